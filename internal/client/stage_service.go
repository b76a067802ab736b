package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/audiostudio/api/internal/stage"
)

// probeTimeout bounds health and status checks so a dead host does not
// stall the pipeline for the full processing timeout.
const probeTimeout = 3 * time.Second

// availabilityTTL is how long a health probe result is reused.
const availabilityTTL = 5 * time.Second

// ServiceStage is a pipeline stage backed by an out-of-process model host
// speaking the shared HTTP contract: GET /health, GET /status, POST /load,
// POST /process and POST /cache/clear.
type ServiceStage struct {
	name       string
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	available bool
	checkedAt time.Time
}

// NewServiceStage creates a stage client for one model host.
func NewServiceStage(name, baseURL string, timeout time.Duration) *ServiceStage {
	return &ServiceStage{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the stage name this host serves.
func (s *ServiceStage) Name() string {
	return s.name
}

// IsAvailable probes the host's health endpoint. Results are cached for a
// short window so repeated per-stage checks do not hammer the host.
func (s *ServiceStage) IsAvailable(ctx context.Context) bool {
	s.mu.Lock()
	if time.Since(s.checkedAt) < availabilityTTL {
		ok := s.available
		s.mu.Unlock()
		return ok
	}
	s.mu.Unlock()

	ok := s.probeHealth(ctx)

	s.mu.Lock()
	s.available = ok
	s.checkedAt = time.Now()
	s.mu.Unlock()
	return ok
}

// IsLoaded reports whether the host currently has a model in memory.
func (s *ServiceStage) IsLoaded(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var status struct {
		Loaded bool   `json:"loaded"`
		Model  string `json:"model,omitempty"`
	}
	if err := s.get(ctx, "/status", &status); err != nil {
		return false
	}
	return status.Loaded
}

// Load asks the host to load its model with the given stage parameters.
func (s *ServiceStage) Load(ctx context.Context, params any) error {
	body := map[string]any{}
	if params != nil {
		body["params"] = params
	}
	if err := s.post(ctx, "/load", body, nil); err != nil {
		return fmt.Errorf("load %s model: %w", s.name, err)
	}
	return nil
}

// Process runs one segment through the host's model.
func (s *ServiceStage) Process(ctx context.Context, req stage.ProcessRequest) (stage.ProcessResult, error) {
	payload := struct {
		JobID         string `json:"job_id"`
		SegmentIndex  int    `json:"segment_index"`
		InputPath     string `json:"input_path"`
		SecondaryPath string `json:"secondary_path,omitempty"`
		OutputPath    string `json:"output_path"`
		Params        any    `json:"params,omitempty"`
	}{
		JobID:         req.JobID,
		SegmentIndex:  req.SegmentIndex,
		InputPath:     req.InputPath,
		SecondaryPath: req.SecondaryPath,
		OutputPath:    req.OutputPath,
		Params:        req.Params,
	}

	var result struct {
		OutputPath string `json:"output_path"`
	}
	if err := s.post(ctx, "/process", payload, &result); err != nil {
		return stage.ProcessResult{}, err
	}

	out := result.OutputPath
	if out == "" {
		out = req.OutputPath
	}
	return stage.ProcessResult{OutputPath: out}, nil
}

// Reclaim asks the host to release cached model state between segments.
func (s *ServiceStage) Reclaim(ctx context.Context) error {
	if err := s.post(ctx, "/cache/clear", map[string]any{}, nil); err != nil {
		return fmt.Errorf("clear %s cache: %w", s.name, err)
	}
	return nil
}

func (s *ServiceStage) probeHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// get sends a GET request and parses the JSON response.
func (s *ServiceStage) get(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", stage.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s service error (status %d): %s", s.name, resp.StatusCode, serviceMessage(respBody))
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// post sends a POST request with JSON body and parses the response. A 503
// from the host maps to stage.ErrUnavailable and a 422 to stage.ErrSkip so
// the executor can apply its skip policy.
func (s *ServiceStage) post(ctx context.Context, endpoint string, body any, result any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", stage.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", stage.ErrUnavailable, serviceMessage(respBody))
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", stage.ErrSkip, serviceMessage(respBody))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s service error (status %d): %s", s.name, resp.StatusCode, serviceMessage(respBody))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// serviceMessage extracts a human-readable detail from a host error body.
func serviceMessage(body []byte) string {
	var e struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Detail != "" {
			return e.Detail
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "no detail"
	}
	return msg
}
