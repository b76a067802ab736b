package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/audiostudio/api/internal/jobs"
	"github.com/audiostudio/api/internal/model"
	"github.com/audiostudio/api/internal/service"
	"github.com/audiostudio/api/internal/stage"
)

// stubStage is an in-process stage implementation for handler tests.
type stubStage struct {
	name        string
	unavailable bool
	loaded      bool
	loadErr     error
}

func (s *stubStage) Name() string                     { return s.name }
func (s *stubStage) IsAvailable(context.Context) bool { return !s.unavailable }
func (s *stubStage) IsLoaded(context.Context) bool    { return s.loaded }

func (s *stubStage) Load(context.Context, any) error {
	if s.loadErr != nil {
		return s.loadErr
	}
	s.loaded = true
	return nil
}

func (s *stubStage) Process(_ context.Context, req stage.ProcessRequest) (stage.ProcessResult, error) {
	return stage.ProcessResult{OutputPath: req.OutputPath}, nil
}

// fakeEnqueuer accepts tasks without a live Redis.
type fakeEnqueuer struct {
	err   error
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

type testApp struct {
	app      *fiber.App
	manager  *jobs.Manager
	enqueuer *fakeEnqueuer
	stages   map[string]*stubStage
}

// setupApp wires the full handler stack against in-process fakes: a
// memory-backed job registry, stub stage hosts and no queue or Redis.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	stubs := map[string]*stubStage{
		model.StageSwiftF0:      {name: model.StageSwiftF0},
		model.StageSVC:          {name: model.StageSVC, loaded: true},
		model.StageInstrumental: {name: model.StageInstrumental, unavailable: true},
		model.StageMixing:       {name: model.StageMixing, loaded: true},
	}
	registry, err := stage.NewRegistry(
		stubs[model.StageSwiftF0], stubs[model.StageSVC],
		stubs[model.StageInstrumental], stubs[model.StageMixing],
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	manager, err := jobs.NewManager(context.Background(), jobs.NewMemoryStore(), registry.Names())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	enq := &fakeEnqueuer{}
	jobService := service.NewJobService(manager, enq, validator.New(), nil, nil)
	modelService := service.NewModelService(registry)
	uploadService := service.NewUploadService(t.TempDir(), 10)

	jobsHandler := NewJobsHandler(jobService)
	modelsHandler := NewModelsHandler(modelService)
	uploadHandler := NewUploadHandler(uploadService)
	healthHandler := NewHealthHandler(modelService)

	app := fiber.New()

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api/v1")
	api.Post("/jobs", jobsHandler.Create)
	api.Get("/jobs", jobsHandler.List)
	api.Get("/jobs/:id", jobsHandler.Get)
	api.Delete("/jobs/:id", jobsHandler.Cancel)
	api.Get("/jobs/:id/progress", jobsHandler.Progress)
	api.Get("/jobs/:id/segments", jobsHandler.Segments)
	api.Get("/jobs/:id/preview", jobsHandler.Preview)
	api.Get("/jobs/:id/download", jobsHandler.Download)
	api.Get("/models/status", modelsHandler.Status)
	api.Post("/models/load/:stage", modelsHandler.Load)
	api.Get("/optimization/profiles", modelsHandler.Profiles)
	api.Post("/upload", uploadHandler.Audio)

	return &testApp{app: app, manager: manager, enqueuer: enq, stages: stubs}
}

func validCreateBody(t *testing.T, sourcePath string) string {
	t.Helper()
	return fmt.Sprintf(`{
		"config": {
			"pipelineStages": ["swiftf0", "svc", "mixing"]
		},
		"segments": [
			{"startTime": 0, "endTime": 30, "sourcePath": "%s"},
			{"startTime": 30, "endTime": 60, "sourcePath": "%s"}
		]
	}`, sourcePath, sourcePath)
}

// doRequest performs an HTTP request against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the error envelope shape and code.
func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing error envelope: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %s, got %v", code, errObj["code"])
	}
	if errObj["message"] == nil || errObj["message"] == "" {
		t.Error("expected error message")
	}
}
