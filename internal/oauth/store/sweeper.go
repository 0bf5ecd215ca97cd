package store

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically purges expired authorization codes and tokens.
// Expiry is still enforced lazily on every read; the sweep only keeps the
// tables from growing without bound.
type Sweeper struct {
	Store    Store
	Interval time.Duration
	Logger   *slog.Logger
}

func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		Store:    store,
		Interval: interval,
		Logger:   logger,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	codes, err := s.Store.DeleteExpiredCodes(ctx)
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to sweep expired authorization codes", "error", err)
	}

	tokens, err := s.Store.DeleteExpiredTokens(ctx)
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to sweep expired tokens", "error", err)
	}

	if codes > 0 || tokens > 0 {
		s.Logger.InfoContext(ctx, "Swept expired records", "codes", codes, "tokens", tokens)
	}
}
