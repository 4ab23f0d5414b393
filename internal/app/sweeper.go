package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/vtishina/consult-bot/internal/clock"
)

// HoldSweeper reclaims held slots whose hold expiry has passed.
type HoldSweeper interface {
	SweepExpiredHolds(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically releases expired holds back to the available pool.
// Safe to run concurrently with live reservation attempts: it relies on
// the store's atomic per-slot transition.
type Sweeper struct {
	store    HoldSweeper
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
}

const defaultSweepInterval = 30 * time.Second

func NewSweeper(store HoldSweeper, clk clock.Clock, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		clock:    clk,
		logger:   logger,
		interval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*Sweeper)

// WithSweepInterval overrides how often expired holds are reclaimed.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// SweepOnce reclaims currently expired holds and returns how many slots
// were liberated.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.store.SweepExpiredHolds(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired holds released", "count", n)
	}
	return n, nil
}

// Run sweeps on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("hold sweep failed", "error", err)
			}
		}
	}
}
