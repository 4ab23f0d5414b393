// Package telegram renders the reservation protocol as an inline-keyboard
// conversation: /start offers dates, a date offers free times, a time tap
// reserves the slot.
package telegram

import (
	"context"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vtishina/consult-bot/internal/clock"
	"github.com/vtishina/consult-bot/internal/domain"
	"github.com/vtishina/consult-bot/internal/policy"
)

// Engine is the slice of the reservation engine the bot drives.
type Engine interface {
	OfferSlots(ctx context.Context, from, to time.Time) ([]domain.Slot, error)
	Reserve(ctx context.Context, slotID string, client domain.Client) (domain.Booking, error)
	Slot(ctx context.Context, slotID string) (domain.Slot, error)
}

type Bot struct {
	api    *tgbotapi.BotAPI
	engine Engine
	policy policy.Policy
	clock  clock.Clock
	logger *slog.Logger
}

func NewBot(api *tgbotapi.BotAPI, engine Engine, p policy.Policy, clk clock.Clock, logger *slog.Logger) *Bot {
	return &Bot{
		api:    api,
		engine: engine,
		policy: p,
		clock:  clk,
		logger: logger,
	}
}

// Run consumes updates via long polling until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	b.logger.Info("telegram bot started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		if update.Message.Command() == "start" {
			b.sendDateMenu(update.Message.Chat.ID)
		}
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) sendDateMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Выберите дату для консультации:")
	msg.ReplyMarkup = b.dateKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("send date menu failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) dateKeyboard() tgbotapi.InlineKeyboardMarkup {
	days := b.policy.BusinessDays(b.clock.Now())
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(days))
	for _, day := range days {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(day.Format("02.01"), dateCallback(day)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("answer callback failed", "error", err)
	}

	cb, err := parseCallback(query.Data, b.policy.Location)
	if err != nil {
		b.logger.Warn("ignoring callback", "data", query.Data, "error", err)
		return
	}

	switch cb.kind {
	case callbackKindDate:
		b.showDaySlots(ctx, query, cb.date)
	case callbackKindSlot:
		b.reserveSlot(ctx, query, cb.slotID)
	}
}

func (b *Bot) showDaySlots(ctx context.Context, query *tgbotapi.CallbackQuery, day time.Time) {
	slots, err := b.engine.OfferSlots(ctx, day, day)
	if err != nil {
		b.logger.Error("offer slots failed", "date", day, "error", err)
		b.editText(query, "Не получилось загрузить расписание. Попробуйте ещё раз: /start")
		return
	}
	if len(slots) == 0 {
		b.editText(query, "На "+day.Format("02.01")+" свободного времени нет. Выберите другую дату: /start")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(slots))
	for _, slot := range slots {
		label := slot.StartAt.In(b.policy.Location).Format("15:04")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, slotCallback(slot.ID)),
		))
	}

	b.editTextWithKeyboard(query,
		"Вы выбрали дату "+day.Format("02.01")+". Выберите время:",
		tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) reserveSlot(ctx context.Context, query *tgbotapi.CallbackQuery, slotID string) {
	client := domain.Client{
		ChatID:      query.From.ID,
		DisplayName: displayName(query.From),
	}

	_, err := b.engine.Reserve(ctx, slotID, client)
	switch err {
	case nil:
		slot, slotErr := b.engine.Slot(ctx, slotID)
		if slotErr != nil {
			b.logger.Warn("booked slot lookup failed", "slot_id", slotID, "error", slotErr)
			b.editText(query, "Вы записаны!")
			return
		}
		start := slot.StartAt.In(b.policy.Location)
		b.editText(query, "Вы записаны на "+start.Format("02.01")+" в "+start.Format("15:04")+"!")
	case domain.ErrSlotTaken, domain.ErrSlotNotFound, domain.ErrInvalidID:
		b.editText(query, "Увы, это время уже занято. Выберите другое: /start")
	case domain.ErrSyncUnavailable:
		b.editText(query, "Не получилось подтвердить запись: календарь недоступен. Попробуйте ещё раз: /start")
	default:
		b.logger.Error("reserve failed", "slot_id", slotID, "error", err)
		b.editText(query, "Не удалось завершить запись. Попробуйте ещё раз: /start")
	}
}

func (b *Bot) editText(query *tgbotapi.CallbackQuery, text string) {
	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("edit message failed", "error", err)
	}
}

func (b *Bot) editTextWithKeyboard(query *tgbotapi.CallbackQuery, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(query.Message.Chat.ID, query.Message.MessageID, text, keyboard)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("edit message failed", "error", err)
	}
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
