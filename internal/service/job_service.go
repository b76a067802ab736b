package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/audiostudio/api/internal/jobs"
	"github.com/audiostudio/api/internal/metrics"
	"github.com/audiostudio/api/internal/model"
	"github.com/audiostudio/api/internal/pipeline"
)

const (
	TaskTypePipeline = "pipeline:process"
	QueuePipeline    = "pipeline"
)

var (
	// ErrJobNotComplete means the final artifact was requested before the
	// job reached completed.
	ErrJobNotComplete = errors.New("job is not completed")
	// ErrInvalidStatus means a list filter named an unknown job status.
	ErrInvalidStatus = errors.New("invalid status filter")
)

// Enqueuer abstracts task submission so the service can be tested without
// a live Redis. *asynq.Client satisfies it.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobService handles processing job management
type JobService struct {
	jobs     *jobs.Manager
	enqueuer Enqueuer
	validate *validator.Validate
	metrics  *metrics.Collector
	notify   pipeline.Notifier
}

func NewJobService(manager *jobs.Manager, enqueuer Enqueuer, validate *validator.Validate, collector *metrics.Collector, notify pipeline.Notifier) *JobService {
	if notify == nil {
		notify = pipeline.NoopNotifier{}
	}
	return &JobService{
		jobs:     manager,
		enqueuer: enqueuer,
		validate: validate,
		metrics:  collector,
		notify:   notify,
	}
}

// CreateJob validates the request, registers the job and queues it for
// processing. Defaults are applied before validation so an omitted section
// never fails range checks.
func (s *JobService) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	cfg := req.Config.Clone()
	cfg.ApplyDefaults()

	normalized := &model.CreateJobRequest{
		Config:   *cfg,
		Segments: req.Segments,
	}
	if err := s.validate.Struct(normalized); err != nil {
		return nil, err
	}

	job, err := s.jobs.Create(ctx, *cfg, req.Segments)
	if err != nil {
		return nil, err
	}

	task, err := newPipelineTask(job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.enqueuer.Enqueue(task,
		asynq.Queue(QueuePipeline),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		// The job exists but will never run; fail it so callers see why.
		if ferr := s.jobs.Fail(ctx, job.ID, "failed to enqueue processing task"); ferr != nil {
			log.Printf("Job %s could not be marked failed: %v", job.ID, ferr)
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.metrics.RecordJobCreated()
	return job, nil
}

// GetJob returns the full job record
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.jobs.Get(ctx, jobID)
}

// GetProgress returns the polling view of a job
func (s *JobService) GetProgress(ctx context.Context, jobID string) (*model.JobProgressResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	resp := model.NewJobProgressResponse(job)
	return &resp, nil
}

// ListJobs returns jobs newest-first, optionally filtered by status
func (s *JobService) ListJobs(ctx context.Context, limit int, status string) (*model.JobListResponse, error) {
	var filter model.JobStatus
	if status != "" {
		parsed, ok := model.ParseJobStatus(status)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		filter = parsed
	}

	list := s.jobs.List(ctx, limit, filter)
	return &model.JobListResponse{Jobs: list, Count: len(list)}, nil
}

// GetSegments returns the per-segment breakdown including stage outcomes
func (s *JobService) GetSegments(ctx context.Context, jobID string) (*model.SegmentBreakdownResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.SegmentBreakdownResponse{JobID: job.ID, Segments: job.Segments}, nil
}

// CancelJob requests cooperative cancellation. Cancelled reports whether
// this call flipped the job; false with a nil error means the job was
// already terminal.
func (s *JobService) CancelJob(ctx context.Context, jobID string) (*model.CancelJobResponse, error) {
	cancelled, err := s.jobs.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if cancelled {
		s.metrics.RecordJobCancelled()
		s.notify.BroadcastProgress(jobID, job.Status, job.Progress, job.CurrentStage, job.Message, job.SegmentsCompleted, len(job.Segments))
	}

	return &model.CancelJobResponse{
		JobID:     jobID,
		Status:    job.Status,
		Cancelled: cancelled,
	}, nil
}

// ArtifactPath returns the final output path of a completed job
func (s *JobService) ArtifactPath(ctx context.Context, jobID string) (string, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != model.JobStatusCompleted || job.Results == nil {
		return "", ErrJobNotComplete
	}
	return job.Results.OutputPath, nil
}

// PreviewPath returns the preview audio for one segment. Falls back to the
// segment result when no separate preview exists.
func (s *JobService) PreviewPath(ctx context.Context, jobID string, segmentIndex int) (string, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if segmentIndex < 0 || segmentIndex >= len(job.Segments) {
		return "", fmt.Errorf("%w: segment %d", jobs.ErrNotFound, segmentIndex)
	}

	seg := job.Segments[segmentIndex]
	path := seg.PreviewPath
	if path == "" {
		path = seg.ResultPath
	}
	if path == "" {
		return "", fmt.Errorf("%w: segment %d has no preview yet", jobs.ErrNotFound, segmentIndex)
	}
	return path, nil
}

func newPipelineTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(map[string]string{"jobId": jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePipeline, payload), nil
}
