package answerimage

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/services"
	"github.com/sahilchouksey/booklet-evaluation/utils/query"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
)

// ImageHandler handles page image requests
type ImageHandler struct {
	imageService *services.AnswerImageService
}

// NewImageHandler creates a new image handler
func NewImageHandler(imageService *services.AnswerImageService) *ImageHandler {
	return &ImageHandler{imageService: imageService}
}

// StatusRequest represents the request body for a review state change
type StatusRequest struct {
	Status model.ImageStatus `json:"status"`
}

// ListImages handles GET /api/v1/answerpdfimages/:answerPdfId
func (h *ImageHandler) ListImages(c *fiber.Ctx) error {
	answerPdfID, ok := query.UintParam(c.Params("answerPdfId"))
	if !ok {
		return response.BadRequest(c, "Invalid answer PDF ID")
	}

	images, err := h.imageService.ListImages(c.UserContext(), answerPdfID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, images)
}

// UpdateStatus handles PUT /api/v1/answerpdfimages/:id/status
func (h *ImageHandler) UpdateStatus(c *fiber.Ctx) error {
	id, ok := query.UintParam(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid image ID")
	}

	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	image, err := h.imageService.UpdateImageStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, image)
}
