/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const DefaultReapInterval = 60 * time.Second

// Reaper periodically ends lobby sessions nobody has joined.
type Reaper struct {
	store    *Store
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

// NewReaper sweeps st every interval. A lobby must have been empty for at
// least grace before it is removed; grace <= 0 means one interval.
func NewReaper(st *Store, interval, grace time.Duration, log zerolog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if grace <= 0 {
		grace = interval
	}

	return &Reaper{
		store:    st,
		interval: interval,
		grace:    grace,
		log:      log,
	}
}

// Run sweeps until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := r.store.Clock().NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Debug().Dur("interval", r.interval).Dur("grace", r.grace).Msg("reaper started")

	for {
		select {
		case <-ctx.Done():
			r.log.Debug().Msg("reaper stopped")
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

// Sweep removes every abandoned lobby and returns how many it removed.
func (r *Reaper) Sweep() int {
	now := r.store.Clock().Now()

	removed := 0
	for _, s := range r.store.Sessions() {
		if s.endIfAbandoned(now, r.grace) {
			removed++
			metricReaped.Inc()
			r.log.Info().Str("code", s.Code()).Msg("reaped abandoned session")
		}
	}

	return removed
}
