package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vtishina/consult-bot/internal/domain"
)

// Notifier reports every confirmed booking to the operator chat.
type Notifier struct {
	api         *tgbotapi.BotAPI
	adminChatID int64
	location    *time.Location
	logger      *slog.Logger
}

func NewNotifier(api *tgbotapi.BotAPI, adminChatID int64, loc *time.Location, logger *slog.Logger) *Notifier {
	return &Notifier{
		api:         api,
		adminChatID: adminChatID,
		location:    loc,
		logger:      logger,
	}
}

func (n *Notifier) Notify(_ context.Context, booking domain.Booking, slot domain.Slot) error {
	start := slot.StartAt.In(n.location)
	text := fmt.Sprintf("Новая запись: %s в %s — %s",
		start.Format("02.01"), start.Format("15:04"), booking.Client.DisplayName)

	if _, err := n.api.Send(tgbotapi.NewMessage(n.adminChatID, text)); err != nil {
		return fmt.Errorf("send admin notification: %w", err)
	}
	n.logger.Debug("operator notified", "booking_id", booking.ID)
	return nil
}
