package engine

import (
	"context"
	"log/slog"
	"time"
)

// DefaultFlushInterval is used when a Flusher is given no interval.
const DefaultFlushInterval = 30 * time.Second

// finalFlushTimeout bounds the save performed when Run returns.
const finalFlushTimeout = 30 * time.Second

// IndexSaver persists dirty vector indices. *vectorindex.Manager implements it.
type IndexSaver interface {
	SaveAll(ctx context.Context) error
}

// Flusher periodically writes dirty vector indices back to storage.
type Flusher struct {
	indices  IndexSaver
	interval time.Duration
	logger   *slog.Logger
}

// NewFlusher creates a Flusher. A nil logger uses slog.Default().
func NewFlusher(indices IndexSaver, interval time.Duration, logger *slog.Logger) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		indices:  indices,
		interval: interval,
		logger:   logger.With("component", "flusher"),
	}
}

// Run flushes every interval until ctx is done, then flushes once more and
// returns that final error. Failed flushes are logged and retried on the
// next tick because unsaved indices stay dirty.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := f.indices.SaveAll(ctx); err != nil {
				f.logger.Error("vector index flush failed", "error", err)
			}
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			defer cancel()
			if err := f.indices.SaveAll(finalCtx); err != nil {
				f.logger.Error("final vector index flush failed", "error", err)
				return err
			}
			f.logger.Debug("final vector index flush done")
			return nil
		}
	}
}
