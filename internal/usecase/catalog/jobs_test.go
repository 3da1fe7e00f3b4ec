package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/catalogix/internal/domain"
	domprod "github.com/kailas-cloud/catalogix/internal/domain/product"
)

// stepReindexer reports one product at a time until cancelled.
type stepReindexer struct {
	started chan struct{}
}

func (s *stepReindexer) Reindex(ctx context.Context, _ ReindexRequest, progress Progress) (ReindexReport, error) {
	var report ReindexReport
	close(s.started)
	for {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-time.After(time.Millisecond):
			report.Total++
			report.Indexed++
			progress(report)
		}
	}
}

type failingReindexer struct{}

func (failingReindexer) Reindex(context.Context, ReindexRequest, Progress) (ReindexReport, error) {
	return ReindexReport{Total: 1, Failed: 1}, errBoom
}

func TestJobManager_CompletesJob(t *testing.T) {
	f := newFixture(t, nil)
	seedProducts(t, f, 3)
	m := NewJobManager(context.Background(), f.svc, nil)

	job := m.Start(ReindexRequest{})
	if job.ID == "" || job.Status != JobRunning {
		t.Fatalf("unexpected initial job: %+v", job)
	}
	m.Wait()

	got, err := m.Get(job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != JobCompleted || got.Report.Indexed != 3 || got.FinishedAt == nil {
		t.Errorf("unexpected job: %+v", got)
	}
}

func TestJobManager_Cancel(t *testing.T) {
	r := &stepReindexer{started: make(chan struct{})}
	m := NewJobManager(context.Background(), r, nil)

	job := m.Start(ReindexRequest{StaleOnly: true})
	<-r.started
	if _, err := m.Cancel(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	m.Wait()

	got, _ := m.Get(job.ID)
	if got.Status != JobCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if _, err := m.Cancel(job.ID); err != nil {
		t.Errorf("cancelling a finished job must be a no-op: %v", err)
	}
}

func TestJobManager_Failure(t *testing.T) {
	m := NewJobManager(context.Background(), failingReindexer{}, nil)
	job := m.Start(ReindexRequest{})
	m.Wait()

	got, _ := m.Get(job.ID)
	if got.Status != JobFailed || got.Error != "internal" || got.Report.Failed != 1 {
		t.Errorf("unexpected job: %+v", got)
	}
}

func TestJobManager_UnknownJob(t *testing.T) {
	m := NewJobManager(context.Background(), failingReindexer{}, nil)
	if _, err := m.Get("nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Get: expected ErrJobNotFound, got %v", err)
	}
	if _, err := m.Cancel("nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("Cancel: expected ErrJobNotFound, got %v", err)
	}
}

func TestReconciler_SweepReindexesStale(t *testing.T) {
	f := newFixture(t, nil)
	seedProducts(t, f, 2)
	ctx := context.Background()
	if _, err := f.svc.Reindex(ctx, ReindexRequest{}, nil); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	_ = f.products.MarkStale(ctx, "prod-02", "embedding_unavailable")

	NewReconciler(f.svc, time.Minute, nil).Sweep(ctx)

	if st := f.products.get("prod-02").IndexStatus(); st != domprod.StatusIndexed {
		t.Errorf("prod-02 status = %q, want indexed", st)
	}
}

type recordingReindexer struct {
	inner   reindexer
	reports []ReindexReport
}

func (r *recordingReindexer) Reindex(ctx context.Context, req ReindexRequest, progress Progress) (ReindexReport, error) {
	report, err := r.inner.Reindex(ctx, req, progress)
	r.reports = append(r.reports, report)
	return report, err
}

func TestReconciler_SkipsUnreadableDocuments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.add(t, "prod-01", "Alu Bar", "aluminum", "")
	f.products.add(t, "prod-02", "Copper Pipe", "copper", "docs/broken.pdf")
	f.docs["docs/broken.pdf"] = "%PDF-1.4\nnot really a pdf"

	if _, err := f.svc.Reindex(ctx, ReindexRequest{}, nil); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if got := f.products.get("prod-02").IndexError(); got != "corrupt_document" {
		t.Fatalf("prod-02 error = %q, want corrupt_document", got)
	}
	_ = f.products.MarkStale(ctx, "prod-01", "embedding_unavailable")

	rec := &recordingReindexer{inner: f.svc}
	NewReconciler(rec, time.Minute, nil).Sweep(ctx)

	if len(rec.reports) != 1 || rec.reports[0].Total != 1 {
		t.Fatalf("sweep should only touch prod-01: %+v", rec.reports)
	}
	if st := f.products.get("prod-01").IndexStatus(); st != domprod.StatusIndexed {
		t.Errorf("prod-01 status = %q, want indexed", st)
	}
	if got := f.products.get("prod-02"); got.IndexStatus() != domprod.StatusStale || got.IndexError() != "corrupt_document" {
		t.Errorf("prod-02 status=%q error=%q", got.IndexStatus(), got.IndexError())
	}
}

func TestReconciler_DisabledReturnsImmediately(t *testing.T) {
	done := make(chan error, 1)
	go func() { done <- NewReconciler(failingReindexer{}, 0, nil).Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("disabled reconciler must return")
	}
}

type instantReindexer struct{}

func (instantReindexer) Reindex(context.Context, ReindexRequest, Progress) (ReindexReport, error) {
	return ReindexReport{Total: 1, Indexed: 1}, nil
}

func runJob(t *testing.T, m *JobManager) string {
	t.Helper()
	job := m.Start(ReindexRequest{})
	m.Wait()
	return job.ID
}

func TestJobManager_KeepsAtMostMaxFinished(t *testing.T) {
	m := NewJobManager(context.Background(), instantReindexer{}, nil).WithRetention(time.Hour, 2)

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, runJob(t, m))
		time.Sleep(time.Millisecond)
	}

	for _, id := range ids[:2] {
		if _, err := m.Get(id); !errors.Is(err, domain.ErrJobNotFound) {
			t.Errorf("job %s should be evicted, got %v", id, err)
		}
	}
	for _, id := range ids[2:] {
		if _, err := m.Get(id); err != nil {
			t.Errorf("job %s should be kept: %v", id, err)
		}
	}
}

func TestJobManager_EvictsExpiredFinishedJobs(t *testing.T) {
	m := NewJobManager(context.Background(), instantReindexer{}, nil).WithRetention(10*time.Millisecond, 0)

	old := runJob(t, m)
	time.Sleep(30 * time.Millisecond)
	fresh := runJob(t, m)

	if _, err := m.Get(old); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expired job should be evicted, got %v", err)
	}
	if _, err := m.Get(fresh); err != nil {
		t.Errorf("fresh job should be kept: %v", err)
	}
}

func TestJobManager_RunningJobsAreNeverEvicted(t *testing.T) {
	r := &stepReindexer{started: make(chan struct{})}
	m := NewJobManager(context.Background(), r, nil).WithRetention(time.Nanosecond, 1)

	running := m.Start(ReindexRequest{})
	<-r.started
	m.mu.Lock()
	m.pruneLocked(time.Now().Add(time.Hour))
	m.mu.Unlock()

	if _, err := m.Get(running.ID); err != nil {
		t.Fatalf("running job evicted: %v", err)
	}
	if _, err := m.Cancel(running.ID); err != nil {
		t.Fatal(err)
	}
	m.Wait()
}
