// Package google mirrors confirmed reservations into a Google Calendar
// using a service account.
package google

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/vtishina/consult-bot/internal/app"
)

type Adapter struct {
	service    *calendar.Service
	calendarID string
	timezone   string
	logger     *slog.Logger
}

// NewAdapter builds a calendar client from service-account JSON. The
// calendar id and timezone string are passed through to created events.
func NewAdapter(ctx context.Context, logger *slog.Logger, serviceAccountJSON []byte, calendarID, timezone string) (*Adapter, error) {
	if calendarID == "" {
		return nil, fmt.Errorf("calendar id is required")
	}

	service, err := calendar.NewService(ctx,
		option.WithCredentialsJSON(serviceAccountJSON),
		option.WithScopes(calendar.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	return &Adapter{
		service:    service,
		calendarID: calendarID,
		timezone:   timezone,
		logger:     logger,
	}, nil
}

// CreateEvent inserts one event and returns its durable id.
func (a *Adapter) CreateEvent(ctx context.Context, ev app.CalendarEvent) (string, error) {
	event := &calendar.Event{
		Summary: ev.Summary,
		Start: &calendar.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: a.timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: a.timezone,
		},
	}

	created, err := a.service.Events.Insert(a.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}

	a.logger.Debug("calendar event created",
		"event_id", created.Id, "start", ev.Start)
	return created.Id, nil
}
