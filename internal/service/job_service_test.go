package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/audiostudio/api/internal/jobs"
	"github.com/audiostudio/api/internal/model"
)

// fakeEnqueuer records enqueued tasks in place of an asynq client.
type fakeEnqueuer struct {
	err   error
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueuePipeline}, nil
}

func newTestService(t *testing.T) (*JobService, *fakeEnqueuer, *jobs.Manager) {
	t.Helper()
	manager, err := jobs.NewManager(context.Background(), jobs.NewMemoryStore(), model.DefaultStageOrder)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	enq := &fakeEnqueuer{}
	svc := NewJobService(manager, enq, validator.New(), nil, nil)
	return svc, enq, manager
}

func createRequest(segments int) *model.CreateJobRequest {
	req := &model.CreateJobRequest{}
	for i := 0; i < segments; i++ {
		req.Segments = append(req.Segments, model.SegmentSpec{
			StartTime:  float64(i) * 30,
			EndTime:    float64(i+1) * 30,
			SourcePath: fmt.Sprintf("/tmp/seg_%03d.wav", i),
		})
	}
	return req
}

func TestCreateJobAppliesDefaultsAndEnqueues(t *testing.T) {
	svc, enq, _ := newTestService(t)

	job, err := svc.CreateJob(context.Background(), createRequest(2))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != model.JobStatusQueued {
		t.Errorf("status = %s", job.Status)
	}
	if len(job.Config.PipelineStages) != 4 {
		t.Errorf("defaults not applied: stages = %v", job.Config.PipelineStages)
	}
	if job.Config.Quality == nil || job.Config.Quality.SampleRate != 48000 {
		t.Errorf("quality defaults not applied: %+v", job.Config.Quality)
	}

	if len(enq.tasks) != 1 {
		t.Fatalf("enqueued tasks = %d", len(enq.tasks))
	}
	task := enq.tasks[0]
	if task.Type() != TaskTypePipeline {
		t.Errorf("task type = %s", task.Type())
	}
	var payload map[string]string
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["jobId"] != job.ID {
		t.Errorf("payload jobId = %s, want %s", payload["jobId"], job.ID)
	}
	if len(enq.opts[0]) != 3 {
		t.Errorf("enqueue options = %d, want queue, retry and retention", len(enq.opts[0]))
	}
}

// The request keeps its own config; defaults must not leak back into the
// caller's struct.
func TestCreateJobDoesNotMutateRequest(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := createRequest(1)
	if _, err := svc.CreateJob(context.Background(), req); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if req.Config.Quality != nil || len(req.Config.PipelineStages) != 0 {
		t.Errorf("request config mutated: %+v", req.Config)
	}
}

func TestCreateJobValidatesAfterDefaults(t *testing.T) {
	svc, enq, _ := newTestService(t)

	// An omitted quality section must not fail min/oneof checks.
	req := createRequest(1)
	if _, err := svc.CreateJob(context.Background(), req); err != nil {
		t.Fatalf("CreateJob with empty config: %v", err)
	}

	// Out-of-range values in a provided section are rejected.
	bad := createRequest(1)
	bad.Config.Quality = &model.QualitySettings{SampleRate: 8000, BitDepth: 16, Channels: 2, OutputFormat: model.FormatWAV}
	_, err := svc.CreateJob(context.Background(), bad)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want validation errors", err)
	}
	if len(enq.tasks) != 1 {
		t.Errorf("invalid request reached the queue")
	}
}

func TestCreateJobRejectsUnknownStage(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := createRequest(1)
	req.Config.PipelineStages = []string{"reverb"}
	_, err := svc.CreateJob(context.Background(), req)
	if err == nil {
		t.Fatal("expected unknown stage to be rejected")
	}
}

func TestCreateJobRejectsEmptySegments(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateJob(context.Background(), &model.CreateJobRequest{})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want validation errors", err)
	}
}

func TestCreateJobEnqueueFailureFailsJob(t *testing.T) {
	svc, enq, manager := newTestService(t)
	enq.err = errors.New("redis gone")

	_, err := svc.CreateJob(context.Background(), createRequest(1))
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}

	// The registered job is failed, not left queued forever.
	list := manager.List(context.Background(), 0, "")
	if len(list) != 1 {
		t.Fatalf("jobs = %d", len(list))
	}
	if list[0].Status != model.JobStatusFailed {
		t.Errorf("job status = %s, want failed", list[0].Status)
	}
}

func TestListJobsFilter(t *testing.T) {
	svc, _, manager := newTestService(t)
	ctx := context.Background()

	a, _ := svc.CreateJob(ctx, createRequest(1))
	svc.CreateJob(ctx, createRequest(1))
	manager.MarkRunning(ctx, a.ID)

	resp, err := svc.ListJobs(ctx, 0, "running")
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if resp.Count != 1 || len(resp.Jobs) != 1 {
		t.Fatalf("filtered count = %d", resp.Count)
	}
	if resp.Jobs[0].ID != a.ID {
		t.Errorf("filtered job = %s", resp.Jobs[0].ID)
	}

	if _, err := svc.ListJobs(ctx, 0, "finished"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("unknown filter err = %v, want ErrInvalidStatus", err)
	}
}

func TestGetProgressProjection(t *testing.T) {
	svc, _, manager := newTestService(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, createRequest(4))
	manager.MarkRunning(ctx, job.ID)
	manager.UpdateProgress(ctx, job.ID, 25, "processing_segment_2", "Processing segment 2 of 4")
	manager.UpdateSegmentStatus(ctx, job.ID, 0, model.SegmentCompleted, "", "/r/0.wav")

	progress, err := svc.GetProgress(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if progress.Progress != 25 || progress.CurrentStage != "processing_segment_2" {
		t.Errorf("progress = %+v", progress)
	}
	if progress.SegmentsCompleted != 1 || progress.SegmentsTotal != 4 {
		t.Errorf("segment counts = %d/%d", progress.SegmentsCompleted, progress.SegmentsTotal)
	}

	if _, err := svc.GetProgress(ctx, "nope"); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("unknown job err = %v", err)
	}
}

func TestCancelJobReportsOutcome(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, createRequest(1))

	resp, err := svc.CancelJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if !resp.Cancelled || resp.Status != model.JobStatusCancelled {
		t.Errorf("response = %+v", resp)
	}

	// Second cancel is reported as not-cancelled, status unchanged.
	resp, err = svc.CancelJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if resp.Cancelled || resp.Status != model.JobStatusCancelled {
		t.Errorf("second response = %+v", resp)
	}

	if _, err := svc.CancelJob(ctx, "nope"); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("unknown job err = %v", err)
	}
}

func TestArtifactPathRequiresCompletion(t *testing.T) {
	svc, _, manager := newTestService(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, createRequest(1))

	if _, err := svc.ArtifactPath(ctx, job.ID); !errors.Is(err, ErrJobNotComplete) {
		t.Errorf("queued job err = %v, want ErrJobNotComplete", err)
	}

	manager.MarkRunning(ctx, job.ID)
	manager.Complete(ctx, job.ID, model.JobResults{OutputPath: "/out/final.wav", Format: model.FormatWAV})

	path, err := svc.ArtifactPath(ctx, job.ID)
	if err != nil {
		t.Fatalf("ArtifactPath: %v", err)
	}
	if path != "/out/final.wav" {
		t.Errorf("path = %s", path)
	}
}

func TestPreviewPathFallsBackToResult(t *testing.T) {
	svc, _, manager := newTestService(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, createRequest(2))
	manager.UpdateSegmentStatus(ctx, job.ID, 0, model.SegmentCompleted, "/p/0.wav", "/r/0.wav")
	manager.UpdateSegmentStatus(ctx, job.ID, 1, model.SegmentCompleted, "", "/r/1.wav")

	path, err := svc.PreviewPath(ctx, job.ID, 0)
	if err != nil || path != "/p/0.wav" {
		t.Errorf("PreviewPath(0) = %s, %v", path, err)
	}

	path, err = svc.PreviewPath(ctx, job.ID, 1)
	if err != nil || path != "/r/1.wav" {
		t.Errorf("PreviewPath(1) = %s, %v, want result fallback", path, err)
	}

	if _, err := svc.PreviewPath(ctx, job.ID, 5); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("out-of-range err = %v", err)
	}
}

func TestPreviewPathEmptySegment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, createRequest(1))
	if _, err := svc.PreviewPath(ctx, job.ID, 0); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("unprocessed segment err = %v, want ErrNotFound", err)
	}
}
