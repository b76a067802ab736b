package pipeline

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/audiostudio/api/internal/metrics"
	"github.com/audiostudio/api/internal/model"
	"github.com/audiostudio/api/internal/stage"
)

// ExecOutcome is the result of running one stage against one segment.
// OutputPath is the audio the next stage should consume; on skip or
// failure it is the unchanged input, so the chain degrades instead of
// breaking.
type ExecOutcome struct {
	Result     model.StageResult
	OutputPath string
}

// Executor applies the per-stage execution policy: disabled stages are
// skipped silently, unavailable stages are skipped with a reason, and a
// stage error fails the stage but never the segment.
type Executor struct {
	metrics *metrics.Collector
}

func NewExecutor(collector *metrics.Collector) *Executor {
	return &Executor{metrics: collector}
}

// Execute runs st against req and returns the stage outcome plus the
// path the pipeline should continue from.
func (e *Executor) Execute(ctx context.Context, st stage.Stage, settings model.StageSettings, req stage.ProcessRequest) ExecOutcome {
	name := st.Name()
	started := time.Now()
	done := func(result model.StageResult, out string) ExecOutcome {
		e.metrics.ObserveStage(name, string(result.Outcome), time.Since(started).Seconds())
		return ExecOutcome{Result: result, OutputPath: out}
	}

	if !settings.Enabled {
		return done(model.StageResult{Stage: name, Outcome: model.OutcomeSkipped}, req.InputPath)
	}

	if _, err := os.Stat(req.InputPath); err != nil {
		log.Printf("Stage %s has no usable input for job %s segment %d: %v", name, req.JobID, req.SegmentIndex, err)
		return done(model.StageResult{Stage: name, Outcome: model.OutcomeSkipped, Reason: "unavailable"}, req.InputPath)
	}

	if !st.IsAvailable(ctx) {
		return done(model.StageResult{Stage: name, Outcome: model.OutcomeSkipped, Reason: "unavailable"}, req.InputPath)
	}

	if !st.IsLoaded(ctx) {
		if err := st.Load(ctx, req.Params); err != nil {
			log.Printf("Stage %s model load failed for job %s: %v", name, req.JobID, err)
			return done(model.StageResult{Stage: name, Outcome: model.OutcomeSkipped, Reason: "unavailable"}, req.InputPath)
		}
	}

	res, err := st.Process(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, stage.ErrSkip):
			return done(model.StageResult{Stage: name, Outcome: model.OutcomeSkipped, Reason: err.Error()}, req.InputPath)
		case errors.Is(err, stage.ErrUnavailable):
			return done(model.StageResult{Stage: name, Outcome: model.OutcomeSkipped, Reason: "unavailable"}, req.InputPath)
		default:
			log.Printf("Stage %s failed for job %s segment %d: %v", name, req.JobID, req.SegmentIndex, err)
			return done(model.StageResult{Stage: name, Outcome: model.OutcomeFailed, Reason: err.Error()}, req.InputPath)
		}
	}

	if res.OutputPath == "" {
		return done(model.StageResult{Stage: name, Outcome: model.OutcomeFailed, Reason: "stage produced no output"}, req.InputPath)
	}
	if _, err := os.Stat(res.OutputPath); err != nil {
		log.Printf("Stage %s reported output %s but it is missing: %v", name, res.OutputPath, err)
		return done(model.StageResult{Stage: name, Outcome: model.OutcomeFailed, Reason: "stage output missing"}, req.InputPath)
	}

	return done(model.StageResult{Stage: name, Outcome: model.OutcomeCompleted}, res.OutputPath)
}
