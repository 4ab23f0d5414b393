package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vtishina/consult-bot/internal/domain"
)

// Reserver is the minimal interface needed to reserve a slot or abandon
// a hold.
type Reserver interface {
	Reserve(ctx context.Context, slotID string, client domain.Client) (domain.Booking, error)
	CancelHold(ctx context.Context, slotID, ownerToken string) error
}

// HandleSlotAction routes POST /slots/{id}/reserve and
// POST /slots/{id}/release.
func HandleSlotAction(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		slotID, action, ok := parseSlotActionPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch action {
		case "reserve":
			handleReserve(w, r, svc, slotID)
		case "release":
			handleRelease(w, r, svc, slotID)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func handleReserve(w http.ResponseWriter, r *http.Request, svc Reserver, slotID string) {
	var req reserveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.ClientName == "" {
		writeError(w, http.StatusBadRequest, codeClientNameRequired, "client_name is required")
		return
	}

	booking, err := svc.Reserve(r.Context(), slotID, domain.Client{
		ChatID:      req.ClientChatID,
		DisplayName: req.ClientName,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidID):
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
		case errors.Is(err, domain.ErrSlotNotFound):
			writeError(w, http.StatusNotFound, codeSlotNotFound, err.Error())
		case errors.Is(err, domain.ErrSlotTaken):
			writeError(w, http.StatusConflict, codeSlotTaken, err.Error())
		case errors.Is(err, domain.ErrLostRace):
			writeError(w, http.StatusConflict, codeLostRace, err.Error())
		case errors.Is(err, domain.ErrSyncUnavailable):
			writeError(w, http.StatusBadGateway, codeSyncUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}

	resp := reserveResponse{
		BookingID:           booking.ID,
		SlotID:              booking.SlotID,
		Status:              string(booking.Status),
		ExternalCalendarRef: booking.ExternalCalendarRef,
		CreatedAt:           booking.CreatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func handleRelease(w http.ResponseWriter, r *http.Request, svc Reserver, slotID string) {
	var req releaseRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.OwnerToken == "" {
		writeError(w, http.StatusBadRequest, codeOwnerTokenRequired, "owner_token is required")
		return
	}

	if err := svc.CancelHold(r.Context(), slotID, req.OwnerToken); err != nil {
		if errors.Is(err, domain.ErrInvalidID) {
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseSlotActionPath(path string) (slotID, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "slots" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type reserveRequest struct {
	ClientChatID int64  `json:"client_chat_id"`
	ClientName   string `json:"client_name"`
}

type reserveResponse struct {
	BookingID           string    `json:"booking_id"`
	SlotID              string    `json:"slot_id"`
	Status              string    `json:"status"`
	ExternalCalendarRef string    `json:"external_calendar_ref,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

type releaseRequest struct {
	OwnerToken string `json:"owner_token"`
}
