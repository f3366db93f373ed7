package marks

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/services"
	"github.com/sahilchouksey/booklet-evaluation/utils/query"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
)

// MarksHandler handles per-question total requests
type MarksHandler struct {
	marksService *services.MarksService
}

// NewMarksHandler creates a new marks handler
func NewMarksHandler(marksService *services.MarksService) *MarksHandler {
	return &MarksHandler{marksService: marksService}
}

// CreateMarks handles POST /api/v1/marks
func (h *MarksHandler) CreateMarks(c *fiber.Ctx) error {
	var req services.CreateMarksRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	marks, err := h.marksService.CreateMarks(c.UserContext(), req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, marks)
}

// UpdateMarks handles PUT /api/v1/marks/:id
func (h *MarksHandler) UpdateMarks(c *fiber.Ctx) error {
	id, ok := query.UintParam(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid marks ID")
	}

	var req services.UpdateMarksRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	marks, err := h.marksService.UpdateMarks(c.UserContext(), id, req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, marks)
}

// GetByAnswerPdf handles GET /api/v1/marks/answerpdf/:answerPdfId
func (h *MarksHandler) GetByAnswerPdf(c *fiber.Ctx) error {
	answerPdfID, ok := query.UintParam(c.Params("answerPdfId"))
	if !ok {
		return response.BadRequest(c, "Invalid answer PDF ID")
	}

	marks, err := h.marksService.GetMarksByAnswerPdf(c.UserContext(), answerPdfID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, marks)
}
