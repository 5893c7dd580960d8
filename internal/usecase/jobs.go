// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/content-ranker/internal/adapter/observability"
	"github.com/fairyhunter13/content-ranker/internal/domain"
	obsctx "github.com/fairyhunter13/content-ranker/internal/observability"
)

// RunFunc is the pipeline executed for one job. It receives its own copy of the entries.
type RunFunc func(ctx domain.Context, entries []domain.StudentEntry) ([]domain.StudentEntry, error)

// JobSnapshot is a read-only copy of a job's state.
type JobSnapshot struct {
	ID          string
	Kind        domain.JobKind
	Status      domain.JobStatus
	SubmittedAt time.Time
	StartedAt   *time.Time
	Elapsed     *time.Duration
	Result      []domain.StudentEntry
	Error       string
}

// Tracker owns the job table and the background goroutines that execute jobs.
type Tracker struct {
	repo   domain.JobRepository
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewTracker constructs a Tracker over the given store.
func NewTracker(repo domain.JobRepository) *Tracker {
	base, cancel := context.WithCancel(context.Background())
	return &Tracker{repo: repo, base: base, cancel: cancel, now: func() time.Time { return time.Now().UTC() }}
}

// Submit creates a queued job and starts run in the background. It returns the job id
// without waiting for the pipeline.
func (t *Tracker) Submit(ctx domain.Context, kind domain.JobKind, entries []domain.StudentEntry, run RunFunc) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", fmt.Errorf("op=usecase.Submit: %w: tracker is shut down", domain.ErrConflict)
	}

	id := uuid.New().String()
	if err := t.repo.Create(ctx, domain.Job{ID: id, Kind: kind, Status: domain.JobQueued, CreatedAt: t.now()}); err != nil {
		return "", fmt.Errorf("op=usecase.Submit: %w", err)
	}
	observability.EnqueueJob(string(kind))

	jobCtx := obsctx.ContextWithLogger(t.base, obsctx.LoggerFromContext(ctx))
	if rid := obsctx.RequestIDFromContext(ctx); rid != "" {
		jobCtx = obsctx.ContextWithRequestID(jobCtx, rid)
	}
	jobCtx = obsctx.ContextWithJob(jobCtx, id, string(kind))
	obsctx.LoggerFromContext(jobCtx).Info("job queued", slog.Int("entries", len(entries)))

	t.wg.Add(1)
	go t.run(jobCtx, id, kind, domain.CloneEntries(entries), run)
	return id, nil
}

func (t *Tracker) run(ctx context.Context, id string, kind domain.JobKind, entries []domain.StudentEntry, run RunFunc) {
	defer t.wg.Done()
	lg := obsctx.LoggerFromContext(ctx)
	// bookkeeping must land even after shutdown cancels the pipeline
	bg := context.WithoutCancel(ctx)

	if err := t.repo.MarkRunning(bg, id, t.now()); err != nil {
		lg.Error("mark running failed", slog.Any("error", err))
		return
	}
	observability.StartProcessingJob(string(kind))
	start := time.Now()

	result, err := safeRun(ctx, entries, run)
	if err != nil {
		observability.FailJob(string(kind))
		lg.Error("job failed", slog.Any("error", err), slog.Duration("duration", time.Since(start)))
		if ferr := t.repo.Fail(bg, id, err.Error(), t.now()); ferr != nil {
			lg.Error("record failure failed", slog.Any("error", ferr))
		}
		return
	}
	if err := t.repo.Complete(bg, id, result, t.now()); err != nil {
		observability.FailJob(string(kind))
		lg.Error("record result failed", slog.Any("error", err))
		return
	}
	observability.CompleteJob(string(kind))
	lg.Info("job completed", slog.Int("entries", len(result)), slog.Duration("duration", time.Since(start)))
}

func safeRun(ctx context.Context, entries []domain.StudentEntry, run RunFunc) (out []domain.StudentEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			obsctx.LoggerFromContext(ctx).Error("job panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: panic: %v", domain.ErrInternal, r)
		}
	}()
	return run(ctx, entries)
}

// Get returns a snapshot of one job, or ErrNotFound.
func (t *Tracker) Get(ctx domain.Context, id string) (JobSnapshot, error) {
	j, err := t.repo.Get(ctx, id)
	if err != nil {
		return JobSnapshot{}, fmt.Errorf("op=usecase.Get: %w", err)
	}
	return t.snapshot(j), nil
}

// List returns snapshots of all jobs of kind in submission order.
func (t *Tracker) List(ctx domain.Context, kind domain.JobKind) ([]JobSnapshot, error) {
	jobs, err := t.repo.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.List: %w", err)
	}
	out := make([]JobSnapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, t.snapshot(j))
	}
	return out, nil
}

func (t *Tracker) snapshot(j domain.Job) JobSnapshot {
	s := JobSnapshot{
		ID:          j.ID,
		Kind:        j.Kind,
		Status:      j.Status,
		SubmittedAt: j.CreatedAt,
		StartedAt:   j.StartTime,
		Result:      j.Result,
		Error:       j.Error,
	}
	if d, ok := j.Elapsed(t.now()); ok {
		s.Elapsed = &d
	}
	return s
}

// Accepting reports whether Submit still takes new jobs.
func (t *Tracker) Accepting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Shutdown stops accepting jobs, cancels running pipelines and waits for their
// goroutines until ctx expires.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("op=usecase.Shutdown: %w", ctx.Err())
	}
}
