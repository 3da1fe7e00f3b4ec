package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
	logpkg "github.com/kailas-cloud/catalogix/internal/logger"
)

// JobStatus is the lifecycle state of a reindex job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a snapshot of a background reindex run.
type Job struct {
	ID         string         `json:"id"`
	Status     JobStatus      `json:"status"`
	Request    ReindexRequest `json:"-"`
	Report     ReindexReport  `json:"report"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

type reindexer interface {
	Reindex(ctx context.Context, req ReindexRequest, progress Progress) (ReindexReport, error)
}

type job struct {
	Job
	cancel context.CancelFunc
}

// Finished jobs are kept for a day, at most 100 of them.
const (
	defaultJobTTL      = 24 * time.Hour
	defaultMaxFinished = 100
)

// JobManager runs bulk reindexes in the background, addressable by id.
// Finished jobs are evicted after the retention TTL or once more than
// maxFinished of them are kept, oldest first. Running jobs are never evicted.
type JobManager struct {
	base        context.Context
	reindexer   reindexer
	logger      *zap.Logger
	ttl         time.Duration
	maxFinished int

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewJobManager creates a manager. Jobs are cancelled when base is.
func NewJobManager(base context.Context, r reindexer, logger *zap.Logger) *JobManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobManager{
		base:        base,
		reindexer:   r,
		logger:      logger,
		ttl:         defaultJobTTL,
		maxFinished: defaultMaxFinished,
		jobs:        make(map[string]*job),
	}
}

// WithRetention overrides how long and how many finished jobs are kept.
// Non-positive values disable the respective limit.
func (m *JobManager) WithRetention(ttl time.Duration, maxFinished int) *JobManager {
	m.ttl = ttl
	m.maxFinished = maxFinished
	return m
}

// Start launches a reindex job and returns its initial snapshot.
func (m *JobManager) Start(req ReindexRequest) Job {
	ctx, cancel := context.WithCancel(m.base)
	j := &job{
		Job: Job{
			ID:        uuid.NewString(),
			Status:    JobRunning,
			Request:   req,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.pruneLocked(time.Now().UTC())
	m.jobs[j.ID] = j
	snapshot := j.Job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, j)
	return snapshot
}

// Get returns the current snapshot of a job.
func (m *JobManager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, domain.ErrJobNotFound)
	}
	return j.Job, nil
}

// Cancel stops a running job between two products. Cancelling a finished job is a no-op.
func (m *JobManager) Cancel(id string) (Job, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, domain.ErrJobNotFound)
	}
	j.cancel()
	return m.Get(id)
}

// Wait blocks until every started job has finished.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

func (m *JobManager) run(ctx context.Context, j *job) {
	defer m.wg.Done()
	defer j.cancel()

	log := m.logger.With(logpkg.JobID(j.ID))
	log.Info("reindex job started")

	report, err := m.reindexer.Reindex(ctx, j.Request, func(r ReindexReport) {
		m.mu.Lock()
		j.Report = r
		m.mu.Unlock()
	})

	now := time.Now().UTC()
	m.mu.Lock()
	j.Report = report
	j.FinishedAt = &now
	switch {
	case err == nil:
		j.Status = JobCompleted
	case errors.Is(err, context.Canceled):
		j.Status = JobCancelled
	default:
		j.Status = JobFailed
		j.Error = domain.Kind(err)
	}
	status := j.Status
	m.pruneLocked(now)
	m.mu.Unlock()

	if err != nil && status == JobFailed {
		log.Error("reindex job failed", zap.Error(err))
		return
	}
	log.Info("reindex job finished", zap.String("status", string(status)), zap.Int("indexed", report.Indexed))
}

// pruneLocked drops expired finished jobs, then the oldest ones over the cap.
func (m *JobManager) pruneLocked(now time.Time) {
	var finished []*job
	for id, j := range m.jobs {
		if j.FinishedAt == nil {
			continue
		}
		if m.ttl > 0 && now.Sub(*j.FinishedAt) > m.ttl {
			delete(m.jobs, id)
			continue
		}
		finished = append(finished, j)
	}
	if m.maxFinished <= 0 || len(finished) <= m.maxFinished {
		return
	}
	slices.SortFunc(finished, func(a, b *job) int { return a.FinishedAt.Compare(*b.FinishedAt) })
	for _, j := range finished[:len(finished)-m.maxFinished] {
		delete(m.jobs, j.ID)
	}
}
