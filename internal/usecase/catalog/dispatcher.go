package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/catalogix/internal/domain"
	logpkg "github.com/kailas-cloud/catalogix/internal/logger"
	"github.com/kailas-cloud/catalogix/internal/metrics"
)

// handler is what the dispatcher needs from Service.
type handler interface {
	HandleSaved(ctx context.Context, ev Event) (Outcome, error)
	HandleDeleted(ctx context.Context, id string)
	MarkStale(ctx context.Context, id string, cause error)
}

// Dispatcher runs product events on a fixed worker pool behind a bounded queue.
// The request that produced an event never waits for indexing and never sees its errors.
type Dispatcher struct {
	handler handler
	workers int
	queue   chan Event
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher. Call Run to start the workers.
func NewDispatcher(h handler, workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handler: h,
		workers: workers,
		queue:   make(chan Event, queueSize),
		timeout: 2 * time.Minute,
		logger:  logger,
	}
}

// WithEventTimeout bounds the handling of a single event.
func (d *Dispatcher) WithEventTimeout(t time.Duration) *Dispatcher {
	d.timeout = t
	return d
}

// Enqueue hands an event to the workers without blocking.
// When the queue is full or the dispatcher has stopped, a saved event marks its
// product stale and ErrQueueFull is returned.
func (d *Dispatcher) Enqueue(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.closed {
		select {
		case d.queue <- ev:
			metrics.IndexingQueueDepth.Set(float64(len(d.queue)))
			return nil
		default:
		}
	}

	log := logpkg.Or(ctx, d.logger.With(logpkg.ProductID(ev.ProductID)))
	log.Warn("indexing event rejected",
		zap.String("event", string(ev.Kind)),
		zap.Bool("stopped", d.closed),
	)
	if ev.Kind == EventSaved {
		d.handler.MarkStale(ctx, ev.ProductID, domain.ErrQueueFull)
	}
	return fmt.Errorf("product %s: %w", ev.ProductID, domain.ErrQueueFull)
}

// Run processes events until ctx is cancelled, then stops accepting new events
// and marks the saved events still queued as stale.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	err := g.Wait()

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.drain(ctx)
	return err
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			metrics.IndexingQueueDepth.Set(float64(len(d.queue)))
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch ev.Kind {
	case EventSaved:
		// ошибка уже залогирована и отмечена в продукте
		_, _ = d.handler.HandleSaved(ctx, ev)
	case EventDeleted:
		d.handler.HandleDeleted(ctx, ev.ProductID)
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for {
		select {
		case ev := <-d.queue:
			if ev.Kind == EventSaved {
				d.handler.MarkStale(ctx, ev.ProductID, context.Canceled)
			}
		default:
			metrics.IndexingQueueDepth.Set(0)
			return
		}
	}
}
