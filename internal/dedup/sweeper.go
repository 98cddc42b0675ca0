package dedup

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically evicts fingerprints older than the horizon
type Sweeper struct {
	store    Store
	horizon  time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper for store
func NewSweeper(store Store, horizon, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		horizon:  horizon,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	log.Info().Dur("horizon", s.horizon).Dur("interval", s.interval).Msg("Fingerprint sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Fingerprint sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce evicts everything first sent before now minus the horizon
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.horizon)
	n, err := s.store.EvictBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Time("cutoff", cutoff).Msg("Failed to evict fingerprints")
		return 0
	}
	if n > 0 {
		log.Info().Int64("evicted", n).Time("cutoff", cutoff).Msg("Evicted expired fingerprints")
	}
	return n
}
