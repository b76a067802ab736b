package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"

	"github.com/hibiken/asynq"

	"github.com/audiostudio/api/internal/jobs"
	"github.com/audiostudio/api/internal/metrics"
	"github.com/audiostudio/api/internal/pipeline"
)

// PipelineWorker runs queued processing jobs
type PipelineWorker struct {
	orchestrator *pipeline.Orchestrator
	jobs         *jobs.Manager
	metrics      *metrics.Collector
	notify       pipeline.Notifier
}

// NewPipelineWorker creates a new pipeline worker
func NewPipelineWorker(orchestrator *pipeline.Orchestrator, manager *jobs.Manager, collector *metrics.Collector, notify pipeline.Notifier) *PipelineWorker {
	if notify == nil {
		notify = pipeline.NoopNotifier{}
	}
	return &PipelineWorker{
		orchestrator: orchestrator,
		jobs:         manager,
		metrics:      collector,
		notify:       notify,
	}
}

// ProcessTask handles one queued job. A panic inside the run is recovered
// and recorded as job failure so a bad segment never takes the worker down.
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) (err error) {
	var taskPayload struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("Starting pipeline job: %s", jobID)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic while processing job %s: %v\n%s", jobID, r, debug.Stack())
			msg := fmt.Sprintf("internal error: %v", r)
			if ferr := w.jobs.Fail(context.WithoutCancel(ctx), jobID, msg); ferr != nil {
				log.Printf("Job %s could not be marked failed: %v", jobID, ferr)
			}
			w.metrics.RecordJobFailed()
			w.notify.BroadcastError(jobID, "PROCESSING_FAILED", msg)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return w.orchestrator.Run(ctx, jobID)
}
