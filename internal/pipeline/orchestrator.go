package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/audiostudio/api/internal/jobs"
	"github.com/audiostudio/api/internal/metrics"
	"github.com/audiostudio/api/internal/model"
	"github.com/audiostudio/api/internal/stage"
)

// ArtifactStore mirrors final outputs to object storage so they survive
// local disk cleanup. Upload returns the public URL of the stored object.
type ArtifactStore interface {
	IsConfigured() bool
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// Options wires an Orchestrator. Jobs, Registry, Governor and Combiner
// are required; Notifier, Metrics and Artifacts may be left unset.
type Options struct {
	Jobs      *jobs.Manager
	Registry  *stage.Registry
	Governor  *Governor
	Combiner  *Combiner
	Notifier  Notifier
	Metrics   *metrics.Collector
	Artifacts ArtifactStore
	TempDir   string
}

// Orchestrator drives one job through segmentation, per-segment stage
// execution and final combination. Segments are processed strictly in
// order; concurrency across jobs is bounded by the shared Governor.
type Orchestrator struct {
	jobs      *jobs.Manager
	registry  *stage.Registry
	executor  *Executor
	governor  *Governor
	combiner  *Combiner
	notify    Notifier
	metrics   *metrics.Collector
	artifacts ArtifactStore
	tempDir   string
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Jobs == nil || opts.Registry == nil || opts.Governor == nil || opts.Combiner == nil {
		return nil, errors.New("orchestrator requires jobs manager, stage registry, governor and combiner")
	}
	notify := opts.Notifier
	if notify == nil {
		notify = NoopNotifier{}
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Orchestrator{
		jobs:      opts.Jobs,
		registry:  opts.Registry,
		executor:  NewExecutor(opts.Metrics),
		governor:  opts.Governor,
		combiner:  opts.Combiner,
		notify:    notify,
		metrics:   opts.Metrics,
		artifacts: opts.Artifacts,
		tempDir:   tempDir,
	}, nil
}

// Run processes the job to a terminal state. It returns a non-nil error
// only when processing was aborted (context cancelled, job marked
// failed); a cancelled job is a normal return.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case model.JobStatusQueued:
	case model.JobStatusCancelled:
		log.Printf("Job %s was cancelled before processing started", jobID)
		return nil
	default:
		log.Printf("Job %s is not runnable from status %s, skipping", jobID, job.Status)
		return nil
	}

	if err := o.jobs.MarkRunning(ctx, jobID); err != nil {
		// Lost a race with cancellation between the read and the transition.
		if status, serr := o.jobs.Status(ctx, jobID); serr == nil && status == model.JobStatusCancelled {
			log.Printf("Job %s was cancelled before processing started", jobID)
			return nil
		}
		return err
	}

	o.metrics.JobStarted()
	defer o.metrics.JobFinished()
	started := time.Now()
	total := len(job.Segments)
	resolved := 0
	clearCache := job.Config.Processing != nil && job.Config.Processing.ClearCacheBetweenSegments

	log.Printf("Job %s started: %d segments, stages %v", jobID, total, job.Config.PipelineStages)

	for i := range job.Segments {
		status, err := o.jobs.Status(ctx, jobID)
		if err != nil {
			return err
		}
		if status == model.JobStatusCancelled {
			log.Printf("Job %s cancelled, stopping before segment %d", jobID, i)
			return nil
		}
		if ctx.Err() != nil {
			return o.failInterrupted(ctx, jobID)
		}

		progress := float64(i) / float64(total) * 100
		label := fmt.Sprintf("processing_segment_%d", i+1)
		message := fmt.Sprintf("Processing segment %d of %d", i+1, total)
		if err := o.jobs.UpdateProgress(ctx, jobID, progress, label, message); err != nil {
			log.Printf("Job %s progress update failed: %v", jobID, err)
		}
		o.notify.BroadcastProgress(jobID, model.JobStatusRunning, progress, label, message, resolved, total)

		if err := o.governor.Acquire(ctx); err != nil {
			return o.failInterrupted(ctx, jobID)
		}
		segStatus, cancelled := o.processSegment(ctx, job, i)
		o.governor.Release()
		if clearCache {
			o.governor.Reclaim(ctx)
		}

		if cancelled {
			log.Printf("Job %s cancelled during segment %d", jobID, i)
			return nil
		}
		if ctx.Err() != nil {
			return o.failInterrupted(ctx, jobID)
		}
		resolved++
		o.metrics.RecordSegment(string(segStatus))
	}

	if err := o.jobs.UpdateProgress(ctx, jobID, 90, "combining", "Combining segments"); err != nil {
		log.Printf("Job %s progress update failed: %v", jobID, err)
	}
	o.notify.BroadcastProgress(jobID, model.JobStatusRunning, 90, "combining", "Combining segments", resolved, total)

	final, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if final.Status == model.JobStatusCancelled {
		log.Printf("Job %s cancelled, skipping combination", jobID)
		return nil
	}

	outPath, err := o.combiner.Combine(ctx, jobID, final.Segments, final.Config.Quality)
	if err != nil {
		o.failJob(ctx, jobID, fmt.Sprintf("combination failed: %v", err))
		return err
	}

	quality := final.Config.Quality
	if quality == nil {
		quality = model.DefaultQualitySettings()
	}
	results := model.JobResults{
		OutputPath:       outPath,
		Format:           quality.OutputFormat,
		SegmentsIncluded: countCompleted(final.Segments),
	}
	if o.artifacts != nil && o.artifacts.IsConfigured() {
		if url, err := o.mirrorArtifact(ctx, jobID, outPath, quality.OutputFormat); err != nil {
			log.Printf("Artifact mirror failed for job %s: %v", jobID, err)
		} else {
			results.PublicURL = url
		}
	}

	if err := o.jobs.Complete(ctx, jobID, results); err != nil {
		// Cancellation raced the combination; the cancelled state wins.
		log.Printf("Job %s could not be completed: %v", jobID, err)
		return nil
	}

	o.metrics.RecordJobCompleted(time.Since(started).Seconds())
	o.notify.BroadcastComplete(jobID, &results)
	log.Printf("Job %s completed: %d/%d segments combined into %s", jobID, results.SegmentsIncluded, total, outPath)
	return nil
}

// processSegment runs every configured stage against one segment and
// resolves its status. The second return reports whether the job was
// cancelled mid-segment, in which case the segment is returned to the
// queue untouched.
func (o *Orchestrator) processSegment(ctx context.Context, job *model.Job, idx int) (model.SegmentStatus, bool) {
	jobID := job.ID
	seg := job.Segments[idx]

	if err := o.jobs.UpdateSegmentStatus(ctx, jobID, idx, model.SegmentRunning, "", ""); err != nil {
		log.Printf("Job %s segment %d status update failed: %v", jobID, idx, err)
	}
	o.notify.BroadcastSegment(jobID, idx, model.SegmentRunning, "")

	fail := func(reason string, err error) (model.SegmentStatus, bool) {
		log.Printf("Job %s segment %d failed: %s: %v", jobID, idx, reason, err)
		if uerr := o.jobs.UpdateSegmentStatus(ctx, jobID, idx, model.SegmentFailed, "", ""); uerr != nil {
			log.Printf("Job %s segment %d status update failed: %v", jobID, idx, uerr)
		}
		o.notify.BroadcastSegment(jobID, idx, model.SegmentFailed, "")
		return model.SegmentFailed, false
	}

	current := seg.SourcePath
	if _, err := os.Stat(current); err != nil {
		return fail("source audio missing", err)
	}

	workDir := filepath.Join(o.tempDir, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fail("cannot create work dir", err)
	}

	// The vocal chain flows through current; the instrumental stage emits
	// the backing track, which feeds mixing instead of replacing current.
	var secondary string
	for _, name := range job.Config.PipelineStages {
		status, err := o.jobs.Status(ctx, jobID)
		if err == nil && status == model.JobStatusCancelled {
			if uerr := o.jobs.UpdateSegmentStatus(ctx, jobID, idx, model.SegmentQueued, "", ""); uerr != nil {
				log.Printf("Job %s segment %d status update failed: %v", jobID, idx, uerr)
			}
			return model.SegmentQueued, true
		}

		st, ok := o.registry.Get(name)
		if !ok {
			o.recordStage(ctx, jobID, idx, model.StageResult{Stage: name, Outcome: model.OutcomeSkipped, Reason: "unavailable"})
			continue
		}
		settings, _ := job.Config.Stage(name)
		req := stage.ProcessRequest{
			JobID:         jobID,
			SegmentIndex:  idx,
			InputPath:     current,
			SecondaryPath: secondary,
			OutputPath:    filepath.Join(workDir, fmt.Sprintf("seg_%03d_%s.wav", idx, name)),
			Params:        settings.Params,
		}
		outcome := o.executor.Execute(ctx, st, settings, req)
		o.recordStage(ctx, jobID, idx, outcome.Result)
		if name == model.StageInstrumental {
			if outcome.Result.Outcome == model.OutcomeCompleted {
				secondary = outcome.OutputPath
			}
			continue
		}
		current = outcome.OutputPath
	}

	// The raw chain output is the preview; the converted file is what the
	// combiner consumes. A failed conversion keeps the unconverted audio.
	preview := current
	result := current
	if quality := job.Config.Quality; quality != nil {
		converted := filepath.Join(workDir, fmt.Sprintf("seg_%03d_final.%s", idx, quality.OutputFormat))
		if err := o.combiner.Convert(ctx, current, converted, quality); err != nil {
			log.Printf("Job %s segment %d quality conversion failed, keeping unconverted output: %v", jobID, idx, err)
		} else {
			result = converted
		}
	}

	if err := o.jobs.UpdateSegmentStatus(ctx, jobID, idx, model.SegmentCompleted, preview, result); err != nil {
		log.Printf("Job %s segment %d status update failed: %v", jobID, idx, err)
	}
	o.notify.BroadcastSegment(jobID, idx, model.SegmentCompleted, preview)
	return model.SegmentCompleted, false
}

func (o *Orchestrator) recordStage(ctx context.Context, jobID string, idx int, result model.StageResult) {
	if err := o.jobs.RecordStageResult(ctx, jobID, idx, result); err != nil {
		log.Printf("Job %s segment %d stage result update failed: %v", jobID, idx, err)
	}
}

// failJob marks the job failed and tells listeners. A transition error
// means a terminal state (usually cancellation) got there first.
func (o *Orchestrator) failJob(ctx context.Context, jobID, message string) {
	if err := o.jobs.Fail(ctx, jobID, message); err != nil {
		log.Printf("Job %s could not be marked failed: %v", jobID, err)
		return
	}
	o.metrics.RecordJobFailed()
	o.notify.BroadcastError(jobID, "PROCESSING_FAILED", message)
}

// failInterrupted handles a worker shutdown mid-job. State writes use a
// detached context because ctx is already done.
func (o *Orchestrator) failInterrupted(ctx context.Context, jobID string) error {
	o.failJob(context.WithoutCancel(ctx), jobID, "processing interrupted")
	return ctx.Err()
}

func (o *Orchestrator) mirrorArtifact(ctx context.Context, jobID, path string, format model.OutputFormat) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := fmt.Sprintf("results/%s/final.%s", jobID, format)
	return o.artifacts.Upload(ctx, key, f, contentTypeFor(format))
}

func countCompleted(segments []model.Segment) int {
	n := 0
	for _, seg := range segments {
		if seg.Status == model.SegmentCompleted {
			n++
		}
	}
	return n
}

func contentTypeFor(format model.OutputFormat) string {
	switch format {
	case model.FormatMP3:
		return "audio/mpeg"
	case model.FormatFLAC:
		return "audio/flac"
	default:
		return "audio/wav"
	}
}
