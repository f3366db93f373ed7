package task

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/services"
	"github.com/sahilchouksey/booklet-evaluation/utils/query"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
)

// TaskHandler handles task assignment requests
type TaskHandler struct {
	taskService *services.TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// UpdateIndexRequest represents the request body for moving to another booklet
type UpdateIndexRequest struct {
	CurrentFileIndex int `json:"currentFileIndex"`
}

// AssignTask handles POST /api/v1/tasks
func (h *TaskHandler) AssignTask(c *fiber.Ctx) error {
	var req services.AssignTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	task, err := h.taskService.AssignTask(c.UserContext(), req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Task assigned successfully", task)
}

// ListTasks handles GET /api/v1/tasks?page=&limit=
func (h *TaskHandler) ListTasks(c *fiber.Ctx) error {
	page, limit := query.Pagination(c)

	tasks, total, err := h.taskService.ListTasks(c.UserContext(), page, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Paginated(c, tasks, response.CalculatePagination(page, limit, total))
}

// ListTasksByUser handles GET /api/v1/tasks/user/:userId
func (h *TaskHandler) ListTasksByUser(c *fiber.Ctx) error {
	userID, ok := query.UintParam(c.Params("userId"))
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}

	tasks, err := h.taskService.ListTasksByUser(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, tasks)
}

// GetTask handles GET /api/v1/tasks/:id
func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	id, ok := query.UintParam(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid task ID")
	}

	detail, err := h.taskService.GetAssignTaskByID(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, detail)
}

// UpdateTask handles PUT /api/v1/tasks/:id
func (h *TaskHandler) UpdateTask(c *fiber.Ctx) error {
	id, ok := query.UintParam(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid task ID")
	}

	var req services.AssignTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	task, err := h.taskService.UpdateAssignedTask(c.UserContext(), id, req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Task updated successfully", task)
}

// DeleteTask handles DELETE /api/v1/tasks/:id
func (h *TaskHandler) DeleteTask(c *fiber.Ctx) error {
	id, ok := query.UintParam(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid task ID")
	}

	if err := h.taskService.RemoveAssignedTask(c.UserContext(), id); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Task deleted successfully", nil)
}

// UpdateCurrentIndex handles PUT /api/v1/tasks/:id/current-index
func (h *TaskHandler) UpdateCurrentIndex(c *fiber.Ctx) error {
	id, ok := query.UintParam(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid task ID")
	}

	var req UpdateIndexRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	task, err := h.taskService.UpdateCurrentIndex(c.UserContext(), id, req.CurrentFileIndex)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, task)
}

// GetQuestions handles GET /api/v1/tasks/:id/questions?answerPdfId=
func (h *TaskHandler) GetQuestions(c *fiber.Ctx) error {
	id, ok := query.UintParam(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid task ID")
	}

	var answerPdfID uint
	if raw := c.Query("answerPdfId"); raw != "" {
		if answerPdfID, ok = query.UintParam(raw); !ok {
			return response.BadRequest(c, "Invalid answer PDF ID")
		}
	}

	questions, err := h.taskService.QuestionDefinitionsForTask(c.UserContext(), id, answerPdfID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, questions)
}
