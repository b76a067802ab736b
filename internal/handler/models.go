package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/audiostudio/api/internal/model"
	"github.com/audiostudio/api/internal/service"
	"github.com/audiostudio/api/pkg/response"
)

type ModelsHandler struct {
	service *service.ModelService
}

func NewModelsHandler(svc *service.ModelService) *ModelsHandler {
	return &ModelsHandler{
		service: svc,
	}
}

// Status handles GET /api/v1/models/status
func (h *ModelsHandler) Status(c *fiber.Ctx) error {
	stages := make(map[string]model.StageStatus)
	for _, health := range h.service.Status(c.Context()) {
		stages[health.Stage] = model.StageStatus{
			Available: health.Available,
			Loaded:    health.Loaded,
		}
	}
	return response.OK(c, fiber.Map{"stages": stages})
}

// Load handles POST /api/v1/models/load/:stage
func (h *ModelsHandler) Load(c *fiber.Ctx) error {
	name := c.Params("stage")
	if name == "" {
		return response.ValidationError(c, "Stage name is required", nil)
	}

	if err := h.service.LoadStage(c.Context(), name); err != nil {
		if errors.Is(err, service.ErrUnknownStage) {
			return response.NotFound(c, "Unknown stage")
		}
		return response.StageUnavailable(c, err.Error())
	}

	return response.OK(c, fiber.Map{"stage": name, "loaded": true})
}

// optimizationProfiles are ready-to-post config fragments tuned for
// consumer GPUs in the RTX 3070 class.
var optimizationProfiles = map[model.OptimizationProfile]*model.PipelineConfig{
	model.ProfileFast: {
		PipelineStages: []string{model.StageSwiftF0, model.StageSVC, model.StageMixing},
		Processing: &model.ProcessingSettings{
			SegmentLength:             20,
			MaxConcurrentSegments:     2,
			UseGPU:                    true,
			Device:                    "cuda",
			ClearCacheBetweenSegments: false,
		},
		Quality: &model.QualitySettings{
			SampleRate:   44100,
			BitDepth:     16,
			Channels:     2,
			OutputFormat: model.FormatMP3,
		},
		SVC: &model.SVCSettings{
			Enabled:    true,
			Variant:    model.SVCVariantSoVits,
			F0Method:   model.F0CrepeTiny,
			NoiseScale: 0.4,
		},
	},
	model.ProfileQuality: {
		PipelineStages: []string{model.StageSwiftF0, model.StageSVC, model.StageInstrumental, model.StageMixing},
		Processing: &model.ProcessingSettings{
			SegmentLength:             30,
			OverlapDuration:           0.5,
			MaxConcurrentSegments:     1,
			UseGPU:                    true,
			Device:                    "cuda",
			ClearCacheBetweenSegments: true,
		},
		Quality: &model.QualitySettings{
			SampleRate:   48000,
			BitDepth:     24,
			Channels:     2,
			OutputFormat: model.FormatWAV,
		},
		SVC: &model.SVCSettings{
			Enabled:    true,
			Variant:    model.SVCVariantSoVits,
			F0Method:   model.F0Crepe,
			NoiseScale: 0.4,
		},
	},
}

// Profiles handles GET /api/v1/optimization/profiles
func (h *ModelsHandler) Profiles(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"profiles": optimizationProfiles})
}
