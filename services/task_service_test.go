package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sahilchouksey/booklet-evaluation/database/dbtest"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/services/extractor"
	"github.com/sahilchouksey/booklet-evaluation/services/extractor/extractortest"
	"github.com/sahilchouksey/booklet-evaluation/utils/apperror"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation/pdftest"
	"gorm.io/gorm"
)

type taskHarness struct {
	db       *gorm.DB
	root     string
	fixture  *dbtest.Fixture
	renderer *extractortest.Renderer
	svc      *TaskService
}

func newTaskHarness(t *testing.T) *taskHarness {
	t.Helper()
	db := dbtest.Open(t)
	h := &taskHarness{
		db:       db,
		root:     t.TempDir(),
		fixture:  dbtest.Seed(t, db, "CS101", 8),
		renderer: &extractortest.Renderer{},
	}
	h.svc = NewTaskService(db, h.root,
		pdfvalidation.NewCounter(pdfvalidation.DefaultLimits),
		extractor.New(h.renderer, 2))
	return h
}

func (h *taskHarness) folder(t *testing.T, name string, pages ...int) {
	t.Helper()
	dir := filepath.Join(h.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create folder: %v", err)
	}
	for i, p := range pages {
		pdftest.Write(t, dir, string(rune('a'+i))+".pdf", p)
	}
}

func (h *taskHarness) request(folder string) AssignTaskRequest {
	return AssignTaskRequest{
		UserID:                  7,
		SubjectSchemaRelationID: h.fixture.Relation.ID,
		FolderPath:              folder,
		TaskName:                "Midterm",
		ClassName:               "CS-A",
		SubjectCode:             "CS101",
	}
}

func (h *taskHarness) counts(t *testing.T) (tasks, pdfs int64) {
	t.Helper()
	h.db.Model(&model.Task{}).Count(&tasks)
	h.db.Model(&model.AnswerPdf{}).Count(&pdfs)
	return tasks, pdfs
}

func TestAssignTaskCreatesRows(t *testing.T) {
	h := newTaskHarness(t)
	h.folder(t, "batch1", 8, 8, 6)

	task, err := h.svc.AssignTask(context.Background(), h.request("batch1"))
	if err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}
	if task.TotalFiles != 3 || task.CurrentFileIndex != 1 {
		t.Fatalf("Unexpected task: %+v", task)
	}

	tasks, pdfs := h.counts(t)
	if tasks != 1 || pdfs != 3 {
		t.Fatalf("Expected 1 task and 3 answer PDFs, got %d and %d", tasks, pdfs)
	}

	var third model.AnswerPdf
	h.db.Where("answer_pdf_name = ?", "c.pdf").First(&third)
	if third.TotalImages != 6 {
		t.Fatalf("Expected c.pdf to record 6 pages, got %d", third.TotalImages)
	}
}

func TestAssignTaskIsAtomic(t *testing.T) {
	h := newTaskHarness(t)
	h.folder(t, "batch1", 8, 8)

	h.svc.afterTaskCreate = func(tx *gorm.DB, task *model.Task) error {
		return errors.New("forced failure")
	}
	if _, err := h.svc.AssignTask(context.Background(), h.request("batch1")); err == nil {
		t.Fatalf("Expected AssignTask to fail")
	}

	tasks, pdfs := h.counts(t)
	if tasks != 0 || pdfs != 0 {
		t.Fatalf("Expected no rows after a failed assignment, got %d tasks and %d answer PDFs", tasks, pdfs)
	}
}

func TestAssignTaskConflicts(t *testing.T) {
	h := newTaskHarness(t)
	h.folder(t, "batch1", 8)
	h.folder(t, "batch2", 8)

	if _, err := h.svc.AssignTask(context.Background(), h.request("batch1")); err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}

	_, err := h.svc.AssignTask(context.Background(), h.request("batch2"))
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Expected conflict for the same relation, got %v", err)
	}

	if tasks, _ := h.counts(t); tasks != 1 {
		t.Fatalf("Expected a single task, got %d", tasks)
	}
}

func TestAssignTaskValidation(t *testing.T) {
	h := newTaskHarness(t)
	h.folder(t, "empty")

	tests := []struct {
		name   string
		mutate func(*AssignTaskRequest)
		want   error
	}{
		{"missing fields", func(r *AssignTaskRequest) { r.TaskName = "" }, apperror.ErrValidation},
		{"unknown relation", func(r *AssignTaskRequest) { r.SubjectSchemaRelationID = 999 }, apperror.ErrNotFound},
		{"unknown subject", func(r *AssignTaskRequest) { r.SubjectCode = "XX000" }, apperror.ErrNotFound},
		{"missing folder", func(r *AssignTaskRequest) { r.FolderPath = "nowhere" }, apperror.ErrIO},
		{"escaping folder", func(r *AssignTaskRequest) { r.FolderPath = "../../etc" }, nil},
		{"no pdfs", func(r *AssignTaskRequest) { r.FolderPath = "empty" }, apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := h.request("batch1")
			tt.mutate(&req)
			_, err := h.svc.AssignTask(context.Background(), req)
			if err == nil {
				t.Fatalf("Expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGetAssignTaskByIDExtractsOnce(t *testing.T) {
	h := newTaskHarness(t)
	h.folder(t, "batch1", 8, 4)

	task, err := h.svc.AssignTask(context.Background(), h.request("batch1"))
	if err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		detail, err := h.svc.GetAssignTaskByID(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("GetAssignTaskByID #%d returned error: %v", i+1, err)
		}
		if detail.AnswerPdf.AnswerPdfName != "a.pdf" || len(detail.Images) != 8 {
			t.Fatalf("Unexpected detail: pdf %q with %d images", detail.AnswerPdf.AnswerPdfName, len(detail.Images))
		}
		if detail.Schema.NumberOfPage != 8 || detail.ImageFolder != "batch1/extractedPdfImages/a" {
			t.Fatalf("Unexpected schema or folder: %+v %q", detail.Schema, detail.ImageFolder)
		}
	}

	var images int64
	h.db.Model(&model.AnswerPdfImage{}).Count(&images)
	if images != 8 {
		t.Fatalf("Expected 8 image rows after two opens, got %d", images)
	}
	if h.renderer.Opened() != 1 {
		t.Fatalf("Expected a single extraction, got %d", h.renderer.Opened())
	}

	if _, err := h.svc.UpdateCurrentIndex(context.Background(), task.ID, 2); err != nil {
		t.Fatalf("UpdateCurrentIndex returned error: %v", err)
	}
	detail, err := h.svc.GetAssignTaskByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetAssignTaskByID returned error: %v", err)
	}
	if detail.AnswerPdf.AnswerPdfName != "b.pdf" || len(detail.Images) != 4 {
		t.Fatalf("Expected b.pdf with 4 images, got %q with %d", detail.AnswerPdf.AnswerPdfName, len(detail.Images))
	}
}

func TestUpdateCurrentIndexBounds(t *testing.T) {
	h := newTaskHarness(t)
	h.folder(t, "batch1", 8, 8)

	task, err := h.svc.AssignTask(context.Background(), h.request("batch1"))
	if err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}

	for _, index := range []int{0, 3, -1} {
		if _, err := h.svc.UpdateCurrentIndex(context.Background(), task.ID, index); !errors.Is(err, apperror.ErrValidation) {
			t.Fatalf("Expected validation error for index %d, got %v", index, err)
		}
	}
	if _, err := h.svc.UpdateCurrentIndex(context.Background(), 999, 1); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Expected not found, got %v", err)
	}
}

func TestUpdateAndRemoveAssignedTask(t *testing.T) {
	h := newTaskHarness(t)
	h.folder(t, "batch1", 8, 8, 8)
	h.folder(t, "batch2", 8)

	task, err := h.svc.AssignTask(context.Background(), h.request("batch1"))
	if err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}

	req := h.request("batch2")
	req.TaskName = "Final"
	updated, err := h.svc.UpdateAssignedTask(context.Background(), task.ID, req)
	if err != nil {
		t.Fatalf("UpdateAssignedTask returned error: %v", err)
	}
	if updated.TaskName != "Final" || updated.FolderPath != "batch2" || updated.TotalFiles != 1 {
		t.Fatalf("Unexpected updated task: %+v", updated)
	}
	if tasks, pdfs := h.counts(t); tasks != 1 || pdfs != 1 {
		t.Fatalf("Expected 1 task and 1 answer PDF after update, got %d and %d", tasks, pdfs)
	}

	if err := h.svc.RemoveAssignedTask(context.Background(), task.ID); err != nil {
		t.Fatalf("RemoveAssignedTask returned error: %v", err)
	}
	if tasks, pdfs := h.counts(t); tasks != 0 || pdfs != 0 {
		t.Fatalf("Expected no rows after removal, got %d and %d", tasks, pdfs)
	}
	if err := h.svc.RemoveAssignedTask(context.Background(), task.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Expected not found on second removal, got %v", err)
	}
}

func TestQuestionDefinitionsForTask(t *testing.T) {
	h := newTaskHarness(t)
	h.folder(t, "batch1", 8)

	task, err := h.svc.AssignTask(context.Background(), h.request("batch1"))
	if err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}
	pdfID := task.AnswerPdfs[0].ID
	q1 := h.fixture.Questions[0]

	h.db.Create(&model.Marks{AnswerPdfID: pdfID, QuestionDefinitionID: q1.ID, AllottedMarks: 12, IsMarked: true})

	questions, err := h.svc.QuestionDefinitionsForTask(context.Background(), task.ID, pdfID)
	if err != nil {
		t.Fatalf("QuestionDefinitionsForTask returned error: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("Expected 2 questions, got %d", len(questions))
	}
	if questions[0].AllottedMarks != 12 || !questions[0].IsMarked {
		t.Fatalf("Expected Q1 marked with 12, got %+v", questions[0])
	}
	if questions[1].AllottedMarks != 0 || questions[1].IsMarked {
		t.Fatalf("Expected Q1a unmarked, got %+v", questions[1])
	}

	if _, err := h.svc.QuestionDefinitionsForTask(context.Background(), task.ID, 999); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Expected not found for a foreign answer PDF, got %v", err)
	}
}
