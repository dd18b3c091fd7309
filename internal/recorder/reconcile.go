package recorder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shelfline/flightrec/internal/store"
	"github.com/shelfline/flightrec/model"
)

// Reconciler closes dangling traces: rows stuck in started status because
// the recording process crashed or the request was abandoned before a
// terminal transition. They are failed with a synthesized error so the
// dashboard stops showing them as live.
type Reconciler struct {
	store         store.Store
	logger        *zap.Logger
	danglingAfter time.Duration

	// OnClosed is invoked once per closed trace. Optional.
	OnClosed func()
}

// NewReconciler builds a Reconciler. Traces started more than danglingAfter
// ago and still non-terminal are eligible.
func NewReconciler(s store.Store, logger *zap.Logger, danglingAfter time.Duration) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if danglingAfter <= 0 {
		danglingAfter = 30 * time.Minute
	}
	return &Reconciler{
		store:         s,
		logger:        logger.Named("reconciler"),
		danglingAfter: danglingAfter,
	}
}

// Sweep closes all currently dangling traces. Per-trace failures are logged
// and skipped so one bad row cannot stall the sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.danglingAfter)
	dangling, err := r.store.FindDangling(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(dangling) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for _, trace := range dangling {
		terminal := store.TraceTerminal{
			Status: model.StatusFailed,
			Error: &model.ErrorInfo{
				Message: "trace never reached a terminal status; closed by reconciler",
				Code:    "DANGLING_TRACE",
			},
			FinishedAt: now,
			DurationMs: now.Sub(trace.DateStarted).Milliseconds(),
		}
		if err := r.store.FinishTrace(ctx, trace.TraceID, terminal); err != nil {
			r.logger.Warn("failed to close dangling trace",
				zap.String("trace_id", trace.TraceID),
				zap.Error(err),
			)
			continue
		}
		r.logger.Info("closed dangling trace",
			zap.String("trace_id", trace.TraceID),
			zap.Time("started", trace.DateStarted),
		)
		if r.OnClosed != nil {
			r.OnClosed()
		}
	}
	return nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciler sweep failed", zap.Error(err))
			}
		}
	}
}
