package classify

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/services/classifier"
	"github.com/sahilchouksey/booklet-evaluation/services/notification"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
	"github.com/sahilchouksey/booklet-evaluation/utils/sse"
	"github.com/sahilchouksey/booklet-evaluation/utils/validation"
)

// ClassifyHandler starts classification runs and streams their progress
type ClassifyHandler struct {
	service *classifier.Service
	bus     notification.Bus
}

// NewClassifyHandler creates a new classify handler
func NewClassifyHandler(service *classifier.Service, bus notification.Bus) *ClassifyHandler {
	return &ClassifyHandler{service: service, bus: bus}
}

// ClassifyRequest represents the request body for starting a run
type ClassifyRequest struct {
	SubjectCode   string `json:"subjectCode" validate:"required,max=64"`
	ExtractImages bool   `json:"extractImages"`
}

// ManualRequest represents the request body for classifying one booklet
type ManualRequest struct {
	SubjectCode string `json:"subjectCode" validate:"required,max=64"`
	FileName    string `json:"fileName" validate:"required,max=255"`
}

// StartRun handles POST /api/v1/classify
//
// Observers should open the event stream of the subject before calling
// this; events are not replayed.
func (h *ClassifyHandler) StartRun(c *fiber.Ctx) error {
	var req ClassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.SubjectCode = validation.SanitizeString(req.SubjectCode)
	if err := validation.Check(req); err != nil {
		return response.FromError(c, err)
	}

	run, err := h.service.Classify(c.UserContext(), req.SubjectCode, classifier.Options{ExtractImages: req.ExtractImages})
	if err != nil {
		return response.FromError(c, err)
	}

	if run.Status == model.RunStatusHalted {
		return response.SuccessWithMessage(c, notification.StatusNoPDFs, run)
	}
	return response.SuccessWithMessage(c, notification.StatusStarting, run)
}

// Events handles GET /api/v1/classify/:subjectCode/events
func (h *ClassifyHandler) Events(c *fiber.Ctx) error {
	code := c.Params("subjectCode")
	if code == "" {
		return response.BadRequest(c, "Subject code is required.")
	}
	if err := sse.ServeTopic(c, h.bus, code); err != nil {
		return response.ServiceUnavailable(c, "Event stream unavailable")
	}
	return nil
}

// GetRun handles GET /api/v1/classify/runs/:runId
func (h *ClassifyHandler) GetRun(c *fiber.Ctx) error {
	run, state, err := h.service.GetRun(c.UserContext(), c.Params("runId"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{
		"run":   run,
		"state": state,
	})
}

// CancelRun handles POST /api/v1/classify/runs/:runId/cancel
func (h *ClassifyHandler) CancelRun(c *fiber.Ctx) error {
	if err := h.service.Cancel(c.UserContext(), c.Params("runId")); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Cancellation requested", fiber.Map{"runId": c.Params("runId")})
}

// ProcessManually handles POST /api/v1/classify/manual
func (h *ClassifyHandler) ProcessManually(c *fiber.Ctx) error {
	var req ManualRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := validation.Check(req); err != nil {
		return response.FromError(c, err)
	}

	res, err := h.service.ProcessSingle(c.UserContext(), req.SubjectCode, req.FileName)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "PDF processed successfully.", res)
}
