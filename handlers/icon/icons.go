package icon

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/services"
	"github.com/sahilchouksey/booklet-evaluation/utils/query"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
)

// IconHandler handles annotation icon requests
type IconHandler struct {
	annotationService *services.AnnotationService
}

// NewIconHandler creates a new icon handler
func NewIconHandler(annotationService *services.AnnotationService) *IconHandler {
	return &IconHandler{annotationService: annotationService}
}

// CreateIcon handles POST /api/v1/icons
func (h *IconHandler) CreateIcon(c *fiber.Ctx) error {
	var req services.IconRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	icon, err := h.annotationService.CreateIcon(c.UserContext(), req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, icon)
}

// UpdateIcon handles PUT /api/v1/icons/:id
func (h *IconHandler) UpdateIcon(c *fiber.Ctx) error {
	id, ok := query.UintParam(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid icon ID")
	}

	var req services.IconUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	icon, err := h.annotationService.UpdateIcon(c.UserContext(), id, req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, icon)
}

// DeleteIcon handles DELETE /api/v1/icons?iconsId=&answerPdfId=
func (h *IconHandler) DeleteIcon(c *fiber.Ctx) error {
	iconID, ok := query.UintParam(c.Query("iconsId"))
	if !ok {
		return response.BadRequest(c, "Invalid iconsId")
	}
	answerPdfID, ok := query.UintParam(c.Query("answerPdfId"))
	if !ok {
		return response.BadRequest(c, "Invalid answerPdfId")
	}

	if err := h.annotationService.DeleteIcon(c.UserContext(), iconID, answerPdfID); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Icon deleted successfully", nil)
}

// RemoveAll handles DELETE /api/v1/icons/removeall?answerPdfImageId=&questionDefinitionId=
func (h *IconHandler) RemoveAll(c *fiber.Ctx) error {
	imageID, ok := query.UintParam(c.Query("answerPdfImageId"))
	if !ok {
		return response.BadRequest(c, "Invalid answerPdfImageId")
	}
	questionID, ok := query.UintParam(c.Query("questionDefinitionId"))
	if !ok {
		return response.BadRequest(c, "Invalid questionDefinitionId")
	}

	deleted, err := h.annotationService.ClearAllIconsForQuestion(c.UserContext(), imageID, questionID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Icons removed successfully", fiber.Map{"deleted": deleted})
}

// ListIcons handles GET /api/v1/icons?questionDefinitionId=&answerPdfImageId=
func (h *IconHandler) ListIcons(c *fiber.Ctx) error {
	questionID, ok := query.UintParam(c.Query("questionDefinitionId"))
	if !ok {
		return response.BadRequest(c, "Invalid questionDefinitionId")
	}
	imageID, ok := query.UintParam(c.Query("answerPdfImageId"))
	if !ok {
		return response.BadRequest(c, "Invalid answerPdfImageId")
	}

	icons, err := h.annotationService.GetIconsByQuestionAndImage(c.UserContext(), questionID, imageID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, icons)
}

// GetIcon handles GET /api/v1/icons/:id
func (h *IconHandler) GetIcon(c *fiber.Ctx) error {
	id, ok := query.UintParam(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid icon ID")
	}

	icon, err := h.annotationService.GetIconByID(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, icon)
}
