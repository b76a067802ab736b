package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/audiostudio/api/internal/service"
	"github.com/audiostudio/api/pkg/response"
)

type HealthHandler struct {
	models    *service.ModelService
	startedAt time.Time
}

func NewHealthHandler(models *service.ModelService) *HealthHandler {
	return &HealthHandler{
		models:    models,
		startedAt: time.Now(),
	}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
		"stages": h.models.Status(c.Context()),
	})
}
