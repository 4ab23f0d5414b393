package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vtishina/consult-bot/internal/domain"
)

const dateParamLayout = "2006-01-02"

// SlotLister is the minimal interface needed to list available slots.
type SlotLister interface {
	OfferSlots(ctx context.Context, from, to time.Time) ([]domain.Slot, error)
}

// HandleListSlots returns an HTTP handler for listing available slots.
// Optional from/to query parameters narrow the date range; the defaults
// cover the configured horizon.
func HandleListSlots(svc SlotLister, loc *time.Location, horizonDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		now := time.Now().In(loc)
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		to := from.AddDate(0, 0, horizonDays)

		var err error
		if v := r.URL.Query().Get("from"); v != "" {
			if from, err = time.ParseInLocation(dateParamLayout, v, loc); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidDate, "invalid from date")
				return
			}
		}
		if v := r.URL.Query().Get("to"); v != "" {
			if to, err = time.ParseInLocation(dateParamLayout, v, loc); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidDate, "invalid to date")
				return
			}
		}

		slots, err := svc.OfferSlots(r.Context(), from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		resp := listSlotsResponse{Slots: make([]slotResponse, 0, len(slots))}
		for _, slot := range slots {
			resp.Slots = append(resp.Slots, slotResponse{
				ID:      slot.ID,
				Date:    slot.Date.In(loc).Format(dateParamLayout),
				StartAt: slot.StartAt,
				EndAt:   slot.EndAt,
				State:   string(slot.State),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type listSlotsResponse struct {
	Slots []slotResponse `json:"slots"`
}

type slotResponse struct {
	ID      string    `json:"id"`
	Date    string    `json:"date"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	State   string    `json:"state"`
}
