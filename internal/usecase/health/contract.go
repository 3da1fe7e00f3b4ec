package health

import "context"

// Pinger checks database availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc is a single named probe.
type CheckFunc func(ctx context.Context) error

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) CheckFunc { return p.Ping }

// EmbeddingCheck adapts an EmbeddingChecker.
func EmbeddingCheck(e EmbeddingChecker) CheckFunc { return e.HealthCheck }
