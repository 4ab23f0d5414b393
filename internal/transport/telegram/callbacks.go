package telegram

import (
	"fmt"
	"strings"
	"time"
)

// Callback payloads carry either a date (list navigation) or a slot id
// (reservation). Slot identity always travels as the stable store id;
// it is never re-derived from date arithmetic at tap time.
const (
	callbackKindDate = "date"
	callbackKindSlot = "slot"

	callbackDateLayout = "2006-01-02"
)

func dateCallback(day time.Time) string {
	return callbackKindDate + "|" + day.Format(callbackDateLayout)
}

func slotCallback(slotID string) string {
	return callbackKindSlot + "|" + slotID
}

type callback struct {
	kind   string
	date   time.Time
	slotID string
}

func parseCallback(data string, loc *time.Location) (callback, error) {
	kind, value, ok := strings.Cut(data, "|")
	if !ok || value == "" {
		return callback{}, fmt.Errorf("malformed callback %q", data)
	}

	switch kind {
	case callbackKindDate:
		day, err := time.ParseInLocation(callbackDateLayout, value, loc)
		if err != nil {
			return callback{}, fmt.Errorf("malformed date callback %q: %w", data, err)
		}
		return callback{kind: kind, date: day}, nil
	case callbackKindSlot:
		return callback{kind: kind, slotID: value}, nil
	default:
		return callback{}, fmt.Errorf("unknown callback kind %q", kind)
	}
}
