package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/audiostudio/api/internal/model"
	"github.com/audiostudio/api/internal/stage"
)

// stubStage is a scriptable stage implementation shared by the pipeline
// tests. Process writes its output file unless told otherwise, mirroring
// what a real stage host does.
type stubStage struct {
	name        string
	unavailable bool
	loaded      bool
	loadErr     error
	processErr  error
	skipOutput  bool
	claimGhost  bool

	loadCalls    int
	processCalls int
	lastReq      stage.ProcessRequest
	onProcess    func(req stage.ProcessRequest)
}

func (s *stubStage) Name() string                     { return s.name }
func (s *stubStage) IsAvailable(context.Context) bool { return !s.unavailable }
func (s *stubStage) IsLoaded(context.Context) bool    { return s.loaded }

func (s *stubStage) Load(_ context.Context, _ any) error {
	s.loadCalls++
	if s.loadErr != nil {
		return s.loadErr
	}
	s.loaded = true
	return nil
}

func (s *stubStage) Process(_ context.Context, req stage.ProcessRequest) (stage.ProcessResult, error) {
	s.processCalls++
	s.lastReq = req
	if s.onProcess != nil {
		s.onProcess(req)
	}
	if s.processErr != nil {
		return stage.ProcessResult{}, s.processErr
	}
	if s.skipOutput {
		return stage.ProcessResult{}, nil
	}
	if s.claimGhost {
		return stage.ProcessResult{OutputPath: req.OutputPath}, nil
	}
	if err := os.WriteFile(req.OutputPath, []byte(s.name), 0o644); err != nil {
		return stage.ProcessResult{}, err
	}
	return stage.ProcessResult{OutputPath: req.OutputPath}, nil
}

func writeAudioFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func execRequest(t *testing.T, dir string) stage.ProcessRequest {
	t.Helper()
	return stage.ProcessRequest{
		JobID:        "job-1",
		SegmentIndex: 0,
		InputPath:    writeAudioFile(t, dir, "input.wav"),
		OutputPath:   filepath.Join(dir, "output.wav"),
	}
}

func TestExecuteDisabledStageSkipsSilently(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{name: "svc", loaded: true}
	req := execRequest(t, dir)

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: false}, req)

	if got.Result.Outcome != model.OutcomeSkipped || got.Result.Reason != "" {
		t.Errorf("result = %+v, want silent skip", got.Result)
	}
	if got.OutputPath != req.InputPath {
		t.Errorf("output = %s, want passthrough input", got.OutputPath)
	}
	if st.processCalls != 0 {
		t.Error("disabled stage was processed")
	}
}

func TestExecuteMissingInputSkips(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{name: "svc", loaded: true}
	req := execRequest(t, dir)
	req.InputPath = filepath.Join(dir, "gone.wav")

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true}, req)

	if got.Result.Outcome != model.OutcomeSkipped || got.Result.Reason != "unavailable" {
		t.Errorf("result = %+v, want skip with unavailable", got.Result)
	}
	if st.processCalls != 0 {
		t.Error("stage ran without input")
	}
}

func TestExecuteUnavailableStageSkips(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{name: "svc", unavailable: true}
	req := execRequest(t, dir)

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true}, req)

	if got.Result.Outcome != model.OutcomeSkipped || got.Result.Reason != "unavailable" {
		t.Errorf("result = %+v", got.Result)
	}
	if got.OutputPath != req.InputPath {
		t.Errorf("output = %s, want passthrough", got.OutputPath)
	}
}

func TestExecuteLoadFailureSkips(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{name: "svc", loadErr: errors.New("out of VRAM")}
	req := execRequest(t, dir)

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true}, req)

	if got.Result.Outcome != model.OutcomeSkipped || got.Result.Reason != "unavailable" {
		t.Errorf("result = %+v, want load failure treated as unavailability", got.Result)
	}
	if st.processCalls != 0 {
		t.Error("stage ran after failed load")
	}
}

func TestExecuteLoadsLazilyThenRuns(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{name: "svc"}
	req := execRequest(t, dir)
	req.Params = &model.SVCSettings{Enabled: true}

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true, Params: req.Params}, req)

	if st.loadCalls != 1 {
		t.Errorf("load calls = %d, want 1", st.loadCalls)
	}
	if got.Result.Outcome != model.OutcomeCompleted {
		t.Fatalf("result = %+v", got.Result)
	}
	if got.OutputPath != req.OutputPath {
		t.Errorf("output = %s, want %s", got.OutputPath, req.OutputPath)
	}

	// Already loaded stages are not reloaded.
	req2 := execRequest(t, t.TempDir())
	NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true}, req2)
	if st.loadCalls != 1 {
		t.Errorf("load calls after second run = %d, want 1", st.loadCalls)
	}
}

func TestExecuteSkipSentinelKeepsReason(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{
		name:       "mixing",
		loaded:     true,
		processErr: fmt.Errorf("%w: no instrumental track to mix", stage.ErrSkip),
	}
	req := execRequest(t, dir)

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true}, req)

	if got.Result.Outcome != model.OutcomeSkipped {
		t.Fatalf("outcome = %s, want skipped", got.Result.Outcome)
	}
	if got.Result.Reason != "stage skipped: no instrumental track to mix" {
		t.Errorf("reason = %q", got.Result.Reason)
	}
	if got.OutputPath != req.InputPath {
		t.Errorf("output = %s, want passthrough", got.OutputPath)
	}
}

func TestExecuteUnavailableSentinelSkips(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{
		name:       "svc",
		loaded:     true,
		processErr: fmt.Errorf("%w: connection refused", stage.ErrUnavailable),
	}
	req := execRequest(t, dir)

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true}, req)

	if got.Result.Outcome != model.OutcomeSkipped || got.Result.Reason != "unavailable" {
		t.Errorf("result = %+v", got.Result)
	}
}

func TestExecuteProcessErrorFailsStage(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{name: "svc", loaded: true, processErr: errors.New("inference crashed")}
	req := execRequest(t, dir)

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true}, req)

	if got.Result.Outcome != model.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", got.Result.Outcome)
	}
	if got.Result.Reason != "inference crashed" {
		t.Errorf("reason = %q", got.Result.Reason)
	}
	if got.OutputPath != req.InputPath {
		t.Errorf("output = %s, failed stage must pass input through", got.OutputPath)
	}
}

func TestExecuteEmptyOutputFailsStage(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{name: "svc", loaded: true, skipOutput: true}
	req := execRequest(t, dir)

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true}, req)

	if got.Result.Outcome != model.OutcomeFailed || got.Result.Reason != "stage produced no output" {
		t.Errorf("result = %+v", got.Result)
	}
}

func TestExecuteMissingClaimedOutputFailsStage(t *testing.T) {
	dir := t.TempDir()
	st := &stubStage{name: "svc", loaded: true, claimGhost: true}
	req := execRequest(t, dir)

	got := NewExecutor(nil).Execute(context.Background(), st, model.StageSettings{Enabled: true}, req)

	if got.Result.Outcome != model.OutcomeFailed || got.Result.Reason != "stage output missing" {
		t.Errorf("result = %+v", got.Result)
	}
	if got.OutputPath != req.InputPath {
		t.Errorf("output = %s, want passthrough", got.OutputPath)
	}
}
