package collection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
	domcol "github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/retry"
)

// Service prepares the configured collection before the pipeline starts.
type Service struct {
	index  Index
	col    domcol.Collection
	policy retry.Policy
	logger *zap.Logger
}

// New creates a collection service for one configured collection.
func New(index Index, col domcol.Collection, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, col: col, policy: retry.DefaultPolicy(), logger: logger}
}

// WithRetry overrides the policy used while the vector database is still starting.
func (s *Service) WithRetry(p retry.Policy) *Service {
	s.policy = p
	return s
}

// Collection returns the configured collection.
func (s *Service) Collection() domcol.Collection { return s.col }

// Ensure creates the collection or validates the existing one.
// Dimension or metric mismatches are configuration errors and are never retried.
func (s *Service) Ensure(ctx context.Context) error {
	err := retry.Do(ctx, s.policy, domain.IsTransient, func(ctx context.Context) error {
		return s.index.EnsureCollection(ctx, s.col.PhysicalName(), s.col.Dimension(), s.col.Metric())
	}, func(attempt int, err error) {
		s.logger.Warn("ensure collection failed, retrying",
			zap.String("collection", s.col.PhysicalName()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	if err != nil {
		if domain.IsConfigError(err) || errors.Is(err, domain.ErrInvalidArgument) {
			return fmt.Errorf("collection %s is misconfigured: %w", s.col.PhysicalName(), err)
		}
		return fmt.Errorf("ensure collection %s: %w", s.col.PhysicalName(), err)
	}

	s.logger.Info("collection ready",
		zap.String("collection", s.col.PhysicalName()),
		zap.Int("dimension", s.col.Dimension()),
		zap.String("metric", string(s.col.Metric())),
	)
	return nil
}
