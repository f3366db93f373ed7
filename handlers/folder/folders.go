package folder

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/services/folderledger"
	"github.com/sahilchouksey/booklet-evaluation/services/notification"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
	"github.com/sahilchouksey/booklet-evaluation/utils/sse"
)

// FolderHandler exposes the subject folder summaries
type FolderHandler struct {
	ledger *folderledger.Ledger
	bus    notification.Bus
}

// NewFolderHandler creates a new folder handler
func NewFolderHandler(ledger *folderledger.Ledger, bus notification.Bus) *FolderHandler {
	return &FolderHandler{ledger: ledger, bus: bus}
}

// ListFolders handles GET /api/v1/folders
func (h *FolderHandler) ListFolders(c *fiber.Ctx) error {
	rows, err := h.ledger.List(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, rows)
}

// Rescan handles POST /api/v1/folders/rescan
func (h *FolderHandler) Rescan(c *fiber.Ctx) error {
	rows, err := h.ledger.Rescan(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Folders rescanned", rows)
}

// Events handles GET /api/v1/folders/events
func (h *FolderHandler) Events(c *fiber.Ctx) error {
	if err := sse.ServeTopic(c, h.bus, notification.FoldersTopic); err != nil {
		return response.ServiceUnavailable(c, "Event stream unavailable")
	}
	return nil
}
