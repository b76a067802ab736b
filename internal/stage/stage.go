package stage

import (
	"context"
	"errors"
)

// ErrSkip signals that a stage cannot meaningfully run against this request
// and the current audio should pass through unchanged. It is not a failure.
var ErrSkip = errors.New("stage skipped")

// ErrUnavailable signals that the stage's backing implementation cannot be
// reached or loaded right now.
var ErrUnavailable = errors.New("stage unavailable")

// ProcessRequest carries one segment's current audio through a stage.
// InputPath is the output of the previous stage, or the segment source for
// the first enabled stage. OutputPath is where the stage must write its
// result. SecondaryPath carries the optional second track for stages that
// mix two inputs.
type ProcessRequest struct {
	JobID         string
	SegmentIndex  int
	InputPath     string
	SecondaryPath string
	OutputPath    string
	Params        any
}

// ProcessResult reports where the stage wrote its output.
type ProcessResult struct {
	OutputPath string
}

// Stage is the uniform contract every pluggable transform implements. The
// executor consults availability before load, loads lazily, and treats load
// failures as unavailability rather than job failure.
type Stage interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	IsLoaded(ctx context.Context) bool
	Load(ctx context.Context, params any) error
	Process(ctx context.Context, req ProcessRequest) (ProcessResult, error)
}

// Reclaimer is implemented by stages whose backing host holds GPU-resident
// state that can be released between segments.
type Reclaimer interface {
	Reclaim(ctx context.Context) error
}

// Health summarizes one stage's readiness.
type Health struct {
	Stage     string `json:"stage"`
	Available bool   `json:"available"`
	Loaded    bool   `json:"loaded"`
}
