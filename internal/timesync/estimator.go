// Package timesync tracks the skew between the local clock and the shared
// store's authoritative clock. Document timestamps are written with the
// store's clock, so comparing them against a raw local clock would be off by
// whole seconds on a skewed machine.
package timesync

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/syncwatch/server/internal/store"
)

type Estimator struct {
	s      store.Store
	clock  clockwork.Clock
	logger *slog.Logger
	offset atomic.Int64
}

func NewEstimator(s store.Store, clock clockwork.Clock, logger *slog.Logger) *Estimator {
	return &Estimator{
		s:      s,
		clock:  clock,
		logger: logger,
	}
}

// Offset returns the current estimate of authoritative minus local clock in
// milliseconds. Zero until the first signal arrives; if the signal never
// arrives the estimator degrades to trusting the local clock.
func (e *Estimator) Offset() int64 {
	return e.offset.Load()
}

// Now returns the estimated authoritative time in unix milliseconds.
func (e *Estimator) Now() int64 {
	return e.clock.Now().UnixMilli() + e.offset.Load()
}

// Run consumes the store's server-time signal until ctx is done.
func (e *Estimator) Run(ctx context.Context) {
	for snap := range e.s.Subscribe(ctx, store.ServerTimePath) {
		if snap.Doc == nil {
			continue
		}

		var st store.ServerTime
		if err := json.Unmarshal(snap.Doc, &st); err != nil {
			e.logger.WarnContext(ctx, "failed to decode server time", "error", err)
			continue
		}

		e.offset.Store(st.ServerNow - e.clock.Now().UnixMilli())
	}
}
