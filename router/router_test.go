package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/config"
	"github.com/sahilchouksey/booklet-evaluation/database"
	"github.com/sahilchouksey/booklet-evaluation/database/dbtest"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/services"
	"github.com/sahilchouksey/booklet-evaluation/services/classifier"
	"github.com/sahilchouksey/booklet-evaluation/services/extractor"
	"github.com/sahilchouksey/booklet-evaluation/services/extractor/extractortest"
	"github.com/sahilchouksey/booklet-evaluation/services/folderledger"
	"github.com/sahilchouksey/booklet-evaluation/services/notification"
	"github.com/sahilchouksey/booklet-evaluation/utils/auth"
	"github.com/sahilchouksey/booklet-evaluation/utils/middleware"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation/pdftest"
	"gorm.io/gorm"
)

type testServer struct {
	app       *fiber.App
	db        *gorm.DB
	layout    config.Layout
	fixture   *dbtest.Fixture
	admin     string
	evaluator string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := dbtest.Open(t)
	fixture := dbtest.Seed(t, db, "CS101", 8)

	layout := config.Layout{Base: t.TempDir()}
	taskRoot := t.TempDir()
	batch := filepath.Join(taskRoot, "batch1")
	if err := os.MkdirAll(batch, 0o755); err != nil {
		t.Fatalf("failed to create batch folder: %v", err)
	}
	pdftest.Write(t, batch, "a.pdf", 8)
	pdftest.Write(t, batch, "b.pdf", 8)

	bus := notification.NewMemoryBus()
	counter := pdfvalidation.NewCounter(pdfvalidation.DefaultLimits)
	images := extractor.New(&extractortest.Renderer{}, 2)
	classifierService := classifier.NewService(classifier.Config{
		DB:        db,
		Layout:    layout,
		Counter:   counter,
		Extractor: images,
		Bus:       bus,
	})
	t.Cleanup(classifierService.Wait)

	jwt := auth.NewJWTManager(auth.JWTConfig{Secret: "test-secret", Issuer: "booklet-test"})
	app := fiber.New()
	SetupRoutes(app, Dependencies{
		Store: database.NewGORMStore(db),
		JWT:   jwt,
		Security: middleware.SecurityConfig{
			AllowedOrigins:    "*",
			RateLimitRequests: 1000,
			RateLimitWindow:   time.Minute,
		},
		Bus:         bus,
		Classifier:  classifierService,
		Ledger:      folderledger.NewLedger(db, layout.ScannedRoot(), bus),
		Tasks:       services.NewTaskService(db, taskRoot, counter, images),
		Annotations: services.NewAnnotationService(db),
		Marks:       services.NewMarksService(db),
		Images:      services.NewAnswerImageService(db),
	})

	sign := func(userID uint, role string) string {
		token, err := jwt.Sign(userID, role, time.Hour)
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return token
	}

	return &testServer{
		app:       app,
		db:        db,
		layout:    layout,
		fixture:   fixture,
		admin:     sign(1, auth.RoleAdmin),
		evaluator: sign(7, auth.RoleEvaluator),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	json.Unmarshal(raw, &env)
	return resp.StatusCode, env
}

func TestPingIsPublic(t *testing.T) {
	s := newTestServer(t)
	if status, _ := s.do(t, http.MethodGet, "/ping", "", nil); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
}

func TestRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	if status, _ := s.do(t, http.MethodGet, "/api/v1/tasks", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without a token, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/tasks", "not-a-jwt", nil); status != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for a bad token, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/tasks", s.evaluator, nil); status != http.StatusOK {
		t.Fatalf("Expected 200 for an evaluator, got %d", status)
	}
}

func TestAdminRoutesRejectEvaluator(t *testing.T) {
	s := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/classify"},
		{http.MethodGet, "/api/v1/folders"},
		{http.MethodGet, "/api/v1/booklets/CS101"},
		{http.MethodPost, "/api/v1/tasks"},
	}
	for _, r := range routes {
		if status, _ := s.do(t, r.method, r.path, s.evaluator, map[string]string{}); status != http.StatusForbidden {
			t.Fatalf("Expected 403 for %s %s, got %d", r.method, r.path, status)
		}
	}
}

func TestClassifyErrors(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodPost, "/api/v1/classify", s.admin, map[string]string{})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "BAD_REQUEST" {
		t.Fatalf("Expected 400 BAD_REQUEST, got %d %+v", status, env.Error)
	}
	if env.Error.Details["subjectCode"] == "" {
		t.Fatalf("Expected subjectCode in the error details, got %+v", env.Error.Details)
	}

	status, _ = s.do(t, http.MethodPost, "/api/v1/classify", s.admin, map[string]string{"subjectCode": "XX000"})
	if status != http.StatusNotFound {
		t.Fatalf("Expected 404 for an unknown subject, got %d", status)
	}

	// Known subject, but nothing was ever scanned for it.
	status, _ = s.do(t, http.MethodPost, "/api/v1/classify", s.admin, map[string]string{"subjectCode": "CS101"})
	if status != http.StatusNotFound {
		t.Fatalf("Expected 404 for a missing scanned folder, got %d", status)
	}
}

func TestClassifyAcknowledgesRun(t *testing.T) {
	s := newTestServer(t)

	scanned := s.layout.ScannedDir("CS101")
	if err := os.MkdirAll(scanned, 0o755); err != nil {
		t.Fatalf("failed to create scanned folder: %v", err)
	}
	pdftest.Write(t, scanned, "a.pdf", 8)

	status, env := s.do(t, http.MethodPost, "/api/v1/classify", s.admin, map[string]string{"subjectCode": "CS101"})
	if status != http.StatusOK || !env.Success {
		t.Fatalf("Expected 200, got %d %+v", status, env.Error)
	}
	var run struct {
		RunID string `json:"runId"`
	}
	if err := json.Unmarshal(env.Data, &run); err != nil || run.RunID == "" {
		t.Fatalf("Expected a run id, got %s (err %v)", env.Data, err)
	}
}

func TestEvaluationFlow(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodPost, "/api/v1/tasks", s.admin, map[string]interface{}{
		"userId":                  7,
		"subjectSchemaRelationId": s.fixture.Relation.ID,
		"folderPath":              "batch1",
		"taskName":                "Midterm",
		"className":               "CS-A",
		"subjectCode":             "CS101",
	})
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from assign, got %d %+v", status, env.Error)
	}
	var task model.Task
	if err := json.Unmarshal(env.Data, &task); err != nil || task.ID == 0 {
		t.Fatalf("Unexpected task payload: %s", env.Data)
	}

	status, _ = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", task.ID), s.evaluator, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from get task, got %d", status)
	}

	status, _ = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d/current-index", task.ID), s.evaluator, map[string]int{"currentFileIndex": 5})
	if status != http.StatusBadRequest {
		t.Fatalf("Expected 400 for an out of range index, got %d", status)
	}

	var image model.AnswerPdfImage
	if err := s.db.Order("id").First(&image).Error; err != nil {
		t.Fatalf("Expected images after opening the task: %v", err)
	}
	question := s.fixture.Questions[0]

	status, env = s.do(t, http.MethodPost, "/api/v1/icons", s.evaluator, map[string]interface{}{
		"answerPdfImageId":     image.ID,
		"questionDefinitionId": question.ID,
		"iconUrl":              "/icons/tick.svg",
		"x":                    10,
		"y":                    10,
		"width":                16,
		"height":               16,
		"mark":                 4,
	})
	if status != http.StatusCreated {
		t.Fatalf("Expected 201 from create icon, got %d %+v", status, env.Error)
	}

	status, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/marks/answerpdf/%d", image.AnswerPdfID), s.evaluator, nil)
	var marks []model.Marks
	if status != http.StatusOK || json.Unmarshal(env.Data, &marks) != nil || len(marks) != 1 || marks[0].AllottedMarks != 4 {
		t.Fatalf("Unexpected marks: %d %s", status, env.Data)
	}

	path := fmt.Sprintf("/api/v1/icons/removeall?answerPdfImageId=%d&questionDefinitionId=%d", image.ID, question.ID)
	if status, env = s.do(t, http.MethodDelete, path, s.evaluator, nil); status != http.StatusOK {
		t.Fatalf("Expected 200 from removeall, got %d %+v", status, env.Error)
	}

	if status, _ = s.do(t, http.MethodGet, "/api/v1/tasks/999", s.evaluator, nil); status != http.StatusNotFound {
		t.Fatalf("Expected 404 for a missing task, got %d", status)
	}
}
