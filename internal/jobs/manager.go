package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiostudio/api/internal/model"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// ErrInvalidConfig is returned when a job creation request carries an unknown
// stage name or malformed segment bounds. The job never enters the registry.
var ErrInvalidConfig = errors.New("invalid pipeline config")

// ErrTerminalState is returned when a transition is attempted on a job whose
// status is completed, failed or cancelled.
var ErrTerminalState = errors.New("job is in a terminal state")

// errNoChange signals withJob that nothing was mutated, so neither updatedAt
// nor the snapshot should be touched.
var errNoChange = errors.New("no change")

// Manager owns all job and segment state. It is the single writer: every
// other component mutates a job only through these operations. Reads hand
// out deep copies. A per-job mutex serializes operations on one id without
// blocking operations on other jobs; snapshots are written through the
// store on every mutation.
type Manager struct {
	store      Store
	stageNames map[string]struct{}

	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

type jobEntry struct {
	mu  sync.Mutex
	job *model.Job
}

// NewManager builds a manager validating against the given stage registry
// names and reloads persisted snapshots. Jobs that were mid-run when the
// previous process died are marked failed; their tasks cannot resume.
func NewManager(ctx context.Context, store Store, stageNames []string) (*Manager, error) {
	m := &Manager{
		store:      store,
		stageNames: make(map[string]struct{}, len(stageNames)),
		jobs:       make(map[string]*jobEntry),
	}
	for _, name := range stageNames {
		m.stageNames[name] = struct{}{}
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load job snapshots: %w", err)
	}
	for _, job := range loaded {
		if job.Status == model.JobStatusRunning {
			msg := "processing interrupted by restart"
			job.Status = model.JobStatusFailed
			job.Error = &msg
			job.Message = msg
			now := time.Now()
			job.CompletedAt = &now
			job.UpdatedAt = now
			if err := store.Save(ctx, job); err != nil {
				log.Printf("Failed to persist interrupted job %s: %v", job.ID, err)
			}
			log.Printf("Job %s was running at shutdown, marked failed", job.ID)
		}
		m.jobs[job.ID] = &jobEntry{job: job}
	}
	if len(loaded) > 0 {
		log.Printf("Restored %d job snapshot(s)", len(loaded))
	}
	return m, nil
}

// StageNames returns the registry names creation validates against.
func (m *Manager) StageNames() []string {
	names := make([]string, 0, len(m.stageNames))
	for name := range m.stageNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create validates the config against the stage registry and the segment
// bounds, builds the fixed segment list and persists the initial snapshot.
func (m *Manager) Create(ctx context.Context, cfg model.PipelineConfig, specs []model.SegmentSpec) (*model.Job, error) {
	for _, name := range cfg.PipelineStages {
		if _, ok := m.stageNames[name]; !ok {
			return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidConfig, name)
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrInvalidConfig)
	}
	for i, spec := range specs {
		if spec.EndTime <= spec.StartTime {
			return nil, fmt.Errorf("%w: segment %d endTime %.3f <= startTime %.3f",
				ErrInvalidConfig, i, spec.EndTime, spec.StartTime)
		}
		if spec.SourcePath == "" {
			return nil, fmt.Errorf("%w: segment %d has no sourcePath", ErrInvalidConfig, i)
		}
	}

	now := time.Now()
	segments := make([]model.Segment, len(specs))
	for i, spec := range specs {
		segments[i] = model.Segment{
			Index:      i,
			StartTime:  spec.StartTime,
			EndTime:    spec.EndTime,
			Status:     model.SegmentQueued,
			SourcePath: spec.SourcePath,
		}
	}

	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusQueued,
		Progress:  0,
		Config:    *cfg.Clone(),
		Segments:  segments,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The job must be durable before it is announced to the caller.
	if err := m.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job snapshot: %w", err)
	}

	m.mu.Lock()
	m.jobs[job.ID] = &jobEntry{job: job}
	m.mu.Unlock()

	return job.Clone(), nil
}

// Get returns a deep copy of the job.
func (m *Manager) Get(ctx context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// Status returns just the job's current status, for cheap cancellation
// checks at segment and stage boundaries.
func (m *Manager) Status(ctx context.Context, id string) (model.JobStatus, error) {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Status, nil
}

// List returns jobs ordered by createdAt descending, optionally filtered by
// status. A limit <= 0 returns everything.
func (m *Manager) List(ctx context.Context, limit int, status model.JobStatus) []*model.Job {
	m.mu.RLock()
	entries := make([]*jobEntry, 0, len(m.jobs))
	for _, e := range m.jobs {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*model.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if status == "" || e.job.Status == status {
			out = append(out, e.job.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpdateProgress sets progress and labels. It is a no-op on terminal jobs
// and never lets progress regress while the job is running.
func (m *Manager) UpdateProgress(ctx context.Context, id string, progress float64, stageLabel, message string) error {
	return m.withJob(ctx, id, func(j *model.Job) error {
		if j.Status.Terminal() {
			return errNoChange
		}
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		if j.Status == model.JobStatusRunning && progress < j.Progress {
			progress = j.Progress
		}
		j.Progress = progress
		j.CurrentStage = stageLabel
		j.Message = message
		return nil
	})
}

// UpdateSegmentStatus sets one segment's status and artifact paths and
// recomputes segmentsCompleted. An out-of-range index is logged and ignored.
func (m *Manager) UpdateSegmentStatus(ctx context.Context, id string, index int, status model.SegmentStatus, previewPath, resultPath string) error {
	return m.withJob(ctx, id, func(j *model.Job) error {
		if index < 0 || index >= len(j.Segments) {
			log.Printf("Job %s: segment index %d out of range (%d segments)", id, index, len(j.Segments))
			return errNoChange
		}
		seg := &j.Segments[index]
		seg.Status = status
		if previewPath != "" {
			seg.PreviewPath = previewPath
		}
		if resultPath != "" {
			seg.ResultPath = resultPath
		}
		j.SegmentsCompleted = model.CountResolvedSegments(j.Segments)
		return nil
	})
}

// RecordStageResult appends a stage outcome to a segment, overwriting in
// place when the stage name was already recorded.
func (m *Manager) RecordStageResult(ctx context.Context, id string, index int, res model.StageResult) error {
	return m.withJob(ctx, id, func(j *model.Job) error {
		if index < 0 || index >= len(j.Segments) {
			log.Printf("Job %s: segment index %d out of range (%d segments)", id, index, len(j.Segments))
			return errNoChange
		}
		seg := &j.Segments[index]
		for i := range seg.StageResults {
			if seg.StageResults[i].Stage == res.Stage {
				seg.StageResults[i] = res
				return nil
			}
		}
		seg.StageResults = append(seg.StageResults, res)
		return nil
	})
}

// MarkRunning transitions queued -> running.
func (m *Manager) MarkRunning(ctx context.Context, id string) error {
	return m.transition(ctx, id, model.JobStatusRunning, func(j *model.Job) {
		now := time.Now()
		j.StartedAt = &now
	})
}

// Complete transitions running -> completed and records the results.
func (m *Manager) Complete(ctx context.Context, id string, results model.JobResults) error {
	return m.transition(ctx, id, model.JobStatusCompleted, func(j *model.Job) {
		now := time.Now()
		j.CompletedAt = &now
		j.Progress = 100
		j.CurrentStage = "completed"
		j.Message = "Processing complete"
		j.Results = &results
	})
}

// Fail transitions to failed and records the cause.
func (m *Manager) Fail(ctx context.Context, id string, errMsg string) error {
	return m.transition(ctx, id, model.JobStatusFailed, func(j *model.Job) {
		now := time.Now()
		j.CompletedAt = &now
		j.Error = &errMsg
		j.Message = errMsg
	})
}

// Cancel flips a queued or running job to cancelled and reports whether it
// did. Cancellation is cooperative: the pipeline observes the status at its
// next checkpoint and stops advancing.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	cancelled := false
	err := m.withJob(ctx, id, func(j *model.Job) error {
		if !model.CanTransition(j.Status, model.JobStatusCancelled) {
			return errNoChange
		}
		now := time.Now()
		j.Status = model.JobStatusCancelled
		j.CompletedAt = &now
		j.Message = "Cancelled by user"
		cancelled = true
		return nil
	})
	return cancelled, err
}

func (m *Manager) transition(ctx context.Context, id string, to model.JobStatus, apply func(*model.Job)) error {
	return m.withJob(ctx, id, func(j *model.Job) error {
		if !model.CanTransition(j.Status, to) {
			if j.Status.Terminal() {
				return fmt.Errorf("%w: %s -> %s", ErrTerminalState, j.Status, to)
			}
			return fmt.Errorf("illegal transition %s -> %s", j.Status, to)
		}
		j.Status = to
		if apply != nil {
			apply(j)
		}
		return nil
	})
}

// withJob runs fn under the job's own lock, then bumps updatedAt and writes
// the snapshot. Snapshot failures after creation are logged, not surfaced:
// the in-memory registry stays authoritative for a live process.
func (m *Manager) withJob(ctx context.Context, id string, fn func(j *model.Job) error) error {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.job); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	e.job.UpdatedAt = time.Now()
	if err := m.store.Save(ctx, e.job); err != nil {
		log.Printf("Snapshot write failed for job %s: %v", id, err)
	}
	return nil
}
