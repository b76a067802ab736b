package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/audiostudio/api/internal/service"
	"github.com/audiostudio/api/pkg/response"
)

type UploadHandler struct {
	service *service.UploadService
}

func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{
		service: svc,
	}
}

// Audio handles POST /api/v1/upload
func (h *UploadHandler) Audio(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.SaveAudio(c.Context(), file.Filename, f, file.Size)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedAudio):
			return response.ValidationError(c, "Unsupported audio format. Supported: WAV, FLAC, MP3, OGG, M4A", nil)
		case errors.Is(err, service.ErrUploadTooLarge):
			return response.ValidationError(c, "File exceeds the upload size limit", fiber.Map{
				"fileSize": file.Size,
			})
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.Created(c, result)
}
