package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/audiostudio/api/internal/jobs"
	"github.com/audiostudio/api/internal/model"
	"github.com/audiostudio/api/internal/service"
	"github.com/audiostudio/api/pkg/response"
)

type JobsHandler struct {
	service *service.JobService
}

func NewJobsHandler(svc *service.JobService) *JobsHandler {
	return &JobsHandler{
		service: svc,
	}
}

// Create handles POST /api/v1/jobs
func (h *JobsHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	job, err := h.service.CreateJob(c.Context(), &req)
	if err != nil {
		var validationErrors validator.ValidationErrors
		switch {
		case errors.As(err, &validationErrors):
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		case errors.Is(err, jobs.ErrInvalidConfig):
			return response.InvalidConfig(c, err.Error())
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.Accepted(c, job)
}

// List handles GET /api/v1/jobs
func (h *JobsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	status := c.Query("status")

	result, err := h.service.ListJobs(c.Context(), limit, status)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Get handles GET /api/v1/jobs/:id
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// Progress handles GET /api/v1/jobs/:id/progress
func (h *JobsHandler) Progress(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetProgress(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Segments handles GET /api/v1/jobs/:id/segments
func (h *JobsHandler) Segments(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetSegments(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Preview handles GET /api/v1/jobs/:id/preview?segment=N
func (h *JobsHandler) Preview(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}
	segment := c.QueryInt("segment", 0)

	path, err := h.service.PreviewPath(c.Context(), jobID, segment)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return response.NotFound(c, "Preview not found")
		}
		return response.ServiceError(c, err.Error())
	}

	if err := c.SendFile(path); err != nil {
		return response.NotFound(c, "Preview not found")
	}
	return nil
}

// Download handles GET /api/v1/jobs/:id/download
func (h *JobsHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	path, err := h.service.ArtifactPath(c.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, service.ErrJobNotComplete):
			return response.Conflict(c, response.CodeJobNotComplete, "Job is not completed yet")
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	if err := c.Download(path); err != nil {
		return response.NotFound(c, "Artifact not found")
	}
	return nil
}

// Cancel handles DELETE /api/v1/jobs/:id
func (h *JobsHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.CancelJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	if !result.Cancelled {
		return response.Conflict(c, response.CodeJobNotCancellable, "Job is already "+string(result.Status))
	}

	return response.OK(c, result)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
