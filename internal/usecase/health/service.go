package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a non-critical component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates a critical component is failing.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Service coordinates health checks.
type Service struct {
	checks  []check
	timeout time.Duration
}

// New creates a Service with a per-check timeout.
func New(timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{timeout: timeout}
}

// WithCheck registers a probe. A failing critical probe makes the report Unhealthy,
// any other failure makes it Degraded. A nil fn is ignored.
func (s *Service) WithCheck(name string, critical bool, fn CheckFunc) *Service {
	if fn != nil {
		s.checks = append(s.checks, check{name: name, critical: critical, fn: fn})
	}
	return s
}

// Check runs all probes concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult, len(s.checks))
		status = Healthy
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()
			err := c.fn(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				checks[c.name] = CheckOK
				return nil
			}
			checks[c.name] = CheckError
			switch {
			case c.critical:
				status = Unhealthy
			case status == Healthy:
				status = Degraded
			}
			// ошибки не прерывают остальные проверки
			return nil
		})
	}
	_ = g.Wait()

	return Report{Status: status, Checks: checks}
}
