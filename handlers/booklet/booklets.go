package booklet

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/services/classifier"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
)

// BookletHandler serves and maintains a subject's booklet folders
type BookletHandler struct {
	service *classifier.Service
}

// NewBookletHandler creates a new booklet handler
func NewBookletHandler(service *classifier.Service) *BookletHandler {
	return &BookletHandler{service: service}
}

// ListBooklets handles GET /api/v1/booklets/:subjectCode?folder=scanned|processed|rejected
func (h *BookletHandler) ListBooklets(c *fiber.Ctx) error {
	names, err := h.service.ListBooklets(c.Params("subjectCode"), c.Query("folder", classifier.FolderScanned))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{
		"subjectCode": c.Params("subjectCode"),
		"booklets":    names,
	})
}

// ServeBooklet handles GET /api/v1/booklets/:subjectCode/:fileName/file
func (h *BookletHandler) ServeBooklet(c *fiber.Ctx) error {
	path, err := h.service.BookletPath(c.Params("subjectCode"), c.Query("folder", classifier.FolderScanned), c.Params("fileName"))
	if err != nil {
		return response.FromError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.SendFile(path)
}

// RemoveRejected handles DELETE /api/v1/booklets/:subjectCode/rejected[/:fileName]
func (h *BookletHandler) RemoveRejected(c *fiber.Ctx) error {
	removed, err := h.service.RemoveRejected(c.UserContext(), c.Params("subjectCode"), c.Params("fileName"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Rejected booklets removed", fiber.Map{"removed": removed})
}
