// Package memory provides the process-local job store.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/content-ranker/internal/domain"
)

// JobRepo keeps jobs in a map guarded by a RWMutex. Readers always get deep copies.
type JobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewJobRepo constructs an empty JobRepo.
func NewJobRepo() *JobRepo { return &JobRepo{jobs: map[string]*domain.Job{}} }

// Create inserts a queued job. An empty id is replaced with a fresh UUID.
func (r *JobRepo) Create(ctx domain.Context, j domain.Job) error {
	_, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.Create")
	defer span.End()
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = domain.JobQueued
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("op=job.create: %w: duplicate id %s", domain.ErrConflict, j.ID)
	}
	c := j.Clone()
	r.jobs[j.ID] = &c
	return nil
}

// MarkRunning moves a queued job to running and stamps its start time.
func (r *JobRepo) MarkRunning(ctx domain.Context, id string, at time.Time) error {
	_, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.MarkRunning")
	defer span.End()
	return r.transition("op=job.mark_running", id, func(j *domain.Job) error {
		if j.Status != domain.JobQueued {
			return fmt.Errorf("%w: %s -> %s", domain.ErrConflict, j.Status, domain.JobRunning)
		}
		j.Status = domain.JobRunning
		j.StartTime = &at
		return nil
	})
}

// Complete stores the result of a running job.
func (r *JobRepo) Complete(ctx domain.Context, id string, result []domain.StudentEntry, at time.Time) error {
	_, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.Complete")
	defer span.End()
	return r.transition("op=job.complete", id, func(j *domain.Job) error {
		if j.Status != domain.JobRunning {
			return fmt.Errorf("%w: %s -> %s", domain.ErrConflict, j.Status, domain.JobCompleted)
		}
		j.Status = domain.JobCompleted
		j.EndTime = &at
		j.Result = domain.CloneEntries(result)
		return nil
	})
}

// Fail records the error of a queued or running job.
func (r *JobRepo) Fail(ctx domain.Context, id string, errMsg string, at time.Time) error {
	_, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.Fail")
	defer span.End()
	return r.transition("op=job.fail", id, func(j *domain.Job) error {
		if j.Status.Terminal() {
			return fmt.Errorf("%w: %s -> %s", domain.ErrConflict, j.Status, domain.JobFailed)
		}
		j.Status = domain.JobFailed
		j.EndTime = &at
		j.Error = errMsg
		return nil
	})
}

func (r *JobRepo) transition(op, id string, apply func(j *domain.Job) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if err := apply(j); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	_, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.Get")
	defer span.End()
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
	}
	return j.Clone(), nil
}

// List returns the jobs of one kind ordered by creation time. An empty kind lists all.
func (r *JobRepo) List(ctx domain.Context, kind domain.JobKind) ([]domain.Job, error) {
	_, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.List")
	defer span.End()
	r.mu.RLock()
	out := make([]domain.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if kind == "" || j.Kind == kind {
			out = append(out, j.Clone())
		}
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

// CountByStatus returns how many jobs are in each status.
func (r *JobRepo) CountByStatus() map[domain.JobStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[domain.JobStatus]int{}
	for _, j := range r.jobs {
		out[j.Status]++
	}
	return out
}
