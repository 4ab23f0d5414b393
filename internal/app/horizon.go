package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vtishina/consult-bot/internal/clock"
	"github.com/vtishina/consult-bot/internal/domain"
	"github.com/vtishina/consult-bot/internal/policy"
)

// SlotSeeder materializes the slot universe for a set of business days.
type SlotSeeder interface {
	Seed(ctx context.Context, days []time.Time, windows []policy.Window, today time.Time) (domain.SeedStats, error)
}

// HorizonService keeps the slot universe aligned with the working-calendar
// policy: it seeds missing slots over the horizon and expires past ones.
type HorizonService struct {
	seeder   SlotSeeder
	policy   policy.Policy
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
}

const defaultRefreshInterval = time.Hour

func NewHorizonService(seeder SlotSeeder, p policy.Policy, clk clock.Clock, logger *slog.Logger, opts ...HorizonOption) *HorizonService {
	s := &HorizonService{
		seeder:   seeder,
		policy:   p,
		clock:    clk,
		logger:   logger,
		interval: defaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type HorizonOption func(*HorizonService)

// WithRefreshInterval overrides how often the horizon is re-seeded.
func WithRefreshInterval(d time.Duration) HorizonOption {
	return func(s *HorizonService) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Refresh seeds the current horizon once. Idempotent: existing slots are
// left untouched, past never-booked slots are marked expired.
func (s *HorizonService) Refresh(ctx context.Context) (domain.SeedStats, error) {
	if err := s.policy.Validate(); err != nil {
		return domain.SeedStats{}, err
	}

	now := s.clock.Now().In(s.policy.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.policy.Location)

	stats, err := s.seeder.Seed(ctx, s.policy.BusinessDays(now), s.policy.DailySlots(), today)
	if err != nil {
		return domain.SeedStats{}, fmt.Errorf("seed horizon: %w", err)
	}

	s.logger.Info("horizon refreshed",
		"created", stats.Created, "expired", stats.Expired)
	return stats, nil
}

// Run refreshes immediately and then on every interval until ctx is done.
func (s *HorizonService) Run(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Error("horizon refresh failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.Error("horizon refresh failed", "error", err)
			}
		}
	}
}
