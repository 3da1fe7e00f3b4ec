package catalog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
)

// documentErrors are failures a retry cannot fix until the document itself changes.
// A new document arrives through a saved event or a new reference, which clears the error.
var documentErrors = []string{
	domain.Kind(domain.ErrCorruptDocument),
	domain.Kind(domain.ErrUnsupportedFormat),
}

// Reconciler periodically re-indexes products that are not marked indexed,
// except those whose document could not be read.
type Reconciler struct {
	reindexer reindexer
	interval  time.Duration
	logger    *zap.Logger
}

// NewReconciler creates a reconciler. A non-positive interval disables it.
func NewReconciler(r reindexer, interval time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{reindexer: r, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one stale-only reindex pass.
func (r *Reconciler) Sweep(ctx context.Context) {
	report, err := r.reindexer.Reindex(ctx, ReindexRequest{StaleOnly: true, SkipErrors: documentErrors}, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("reconcile sweep failed", zap.Error(err))
		return
	}
	if report.Total > 0 {
		r.logger.Info("reconcile sweep",
			zap.Int("total", report.Total),
			zap.Int("indexed", report.Indexed),
			zap.Int("failed", report.Failed),
		)
	}
}
