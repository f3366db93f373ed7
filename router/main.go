package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/database"
	"github.com/sahilchouksey/booklet-evaluation/handlers"
	answerimage_handlers "github.com/sahilchouksey/booklet-evaluation/handlers/answerimage"
	booklet_handlers "github.com/sahilchouksey/booklet-evaluation/handlers/booklet"
	classify_handlers "github.com/sahilchouksey/booklet-evaluation/handlers/classify"
	folder_handlers "github.com/sahilchouksey/booklet-evaluation/handlers/folder"
	icon_handlers "github.com/sahilchouksey/booklet-evaluation/handlers/icon"
	marks_handlers "github.com/sahilchouksey/booklet-evaluation/handlers/marks"
	task_handlers "github.com/sahilchouksey/booklet-evaluation/handlers/task"
	"github.com/sahilchouksey/booklet-evaluation/services"
	"github.com/sahilchouksey/booklet-evaluation/services/classifier"
	"github.com/sahilchouksey/booklet-evaluation/services/folderledger"
	"github.com/sahilchouksey/booklet-evaluation/services/notification"
	"github.com/sahilchouksey/booklet-evaluation/utils"
	"github.com/sahilchouksey/booklet-evaluation/utils/auth"
	"github.com/sahilchouksey/booklet-evaluation/utils/cache"
	"github.com/sahilchouksey/booklet-evaluation/utils/middleware"
)

// Dependencies are the services the routes are served from. Cache may be
// nil.
type Dependencies struct {
	Store        database.Storage
	Cache        *cache.RedisCache
	JWT          *auth.JWTManager
	AuthDisabled bool
	Security     middleware.SecurityConfig

	Bus         notification.Bus
	Classifier  *classifier.Service
	Ledger      *folderledger.Ledger
	Tasks       *services.TaskService
	Annotations *services.AnnotationService
	Marks       *services.MarksService
	Images      *services.AnswerImageService
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	authMiddleware := middleware.NewAuthMiddleware(deps.JWT, deps.AuthDisabled)
	adminOnly := middleware.RequireRole(auth.RoleAdmin)

	classifyHandler := classify_handlers.NewClassifyHandler(deps.Classifier, deps.Bus)
	bookletHandler := booklet_handlers.NewBookletHandler(deps.Classifier)
	folderHandler := folder_handlers.NewFolderHandler(deps.Ledger, deps.Bus)
	taskHandler := task_handlers.NewTaskHandler(deps.Tasks)
	iconHandler := icon_handlers.NewIconHandler(deps.Annotations)
	marksHandler := marks_handlers.NewMarksHandler(deps.Marks)
	imageHandler := answerimage_handlers.NewImageHandler(deps.Images)

	// Apply security middleware
	middleware.SetupSecurity(app, deps.Security)

	// Health check endpoint (public)
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, handlers.HealthDeps{
		Store: deps.Store,
		Cache: deps.Cache,
	}))

	// API v1 group, every route needs a token
	api := app.Group("/api/v1", authMiddleware.Required())

	// ==================== Classification (admin) ====================

	classify := api.Group("/classify", adminOnly)
	classify.Post("/", classifyHandler.StartRun)
	classify.Post("/manual", classifyHandler.ProcessManually)
	classify.Get("/runs/:runId", classifyHandler.GetRun)
	classify.Post("/runs/:runId/cancel", classifyHandler.CancelRun)
	classify.Get("/:subjectCode/events", classifyHandler.Events)

	booklets := api.Group("/booklets", adminOnly)
	booklets.Get("/:subjectCode", bookletHandler.ListBooklets)
	booklets.Delete("/:subjectCode/rejected", bookletHandler.RemoveRejected)
	booklets.Delete("/:subjectCode/rejected/:fileName", bookletHandler.RemoveRejected)
	booklets.Get("/:subjectCode/:fileName/file", bookletHandler.ServeBooklet)

	folders := api.Group("/folders", adminOnly)
	folders.Get("/", folderHandler.ListFolders)
	folders.Post("/rescan", folderHandler.Rescan)
	folders.Get("/events", folderHandler.Events)

	// ==================== Evaluation ====================

	tasks := api.Group("/tasks")
	tasks.Post("/", adminOnly, taskHandler.AssignTask)
	tasks.Get("/", taskHandler.ListTasks)
	tasks.Get("/user/:userId", taskHandler.ListTasksByUser)
	tasks.Get("/:id", taskHandler.GetTask)
	tasks.Put("/:id", adminOnly, taskHandler.UpdateTask)
	tasks.Delete("/:id", adminOnly, taskHandler.DeleteTask)
	tasks.Put("/:id/current-index", taskHandler.UpdateCurrentIndex)
	tasks.Get("/:id/questions", taskHandler.GetQuestions)

	icons := api.Group("/icons")
	icons.Post("/", iconHandler.CreateIcon)
	icons.Get("/", iconHandler.ListIcons)
	icons.Delete("/", iconHandler.DeleteIcon)
	icons.Delete("/removeall", iconHandler.RemoveAll)
	icons.Get("/:id", iconHandler.GetIcon)
	icons.Put("/:id", iconHandler.UpdateIcon)

	marks := api.Group("/marks")
	marks.Post("/", marksHandler.CreateMarks)
	marks.Put("/:id", marksHandler.UpdateMarks)
	marks.Get("/answerpdf/:answerPdfId", marksHandler.GetByAnswerPdf)

	images := api.Group("/answerpdfimages")
	images.Get("/:answerPdfId", imageHandler.ListImages)
	images.Put("/:id/status", imageHandler.UpdateStatus)
}
