package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2/log"
	"github.com/jinzhu/copier"
	"github.com/sahilchouksey/booklet-evaluation/config"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/utils/apperror"
	"github.com/sahilchouksey/booklet-evaluation/utils/fileutil"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation"
	"github.com/sahilchouksey/booklet-evaluation/utils/validation"
	"gorm.io/gorm"
)

// ImageSource extracts page images of a booklet on demand.
type ImageSource interface {
	EnsureExtracted(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// TaskService assigns folders of booklets to evaluators
type TaskService struct {
	db      *gorm.DB
	root    string
	counter pdfvalidation.PageCounter
	images  ImageSource

	// afterTaskCreate runs inside the assignment transaction right after
	// the task row is written.
	afterTaskCreate func(tx *gorm.DB, task *model.Task) error
}

// NewTaskService creates a task service rooted at root
func NewTaskService(db *gorm.DB, root string, counter pdfvalidation.PageCounter, images ImageSource) *TaskService {
	return &TaskService{
		db:      db,
		root:    root,
		counter: counter,
		images:  images,
	}
}

// AssignTaskRequest is the body of a task assignment
type AssignTaskRequest struct {
	UserID                  uint   `json:"userId" validate:"required"`
	SubjectSchemaRelationID uint   `json:"subjectSchemaRelationId" validate:"required"`
	FolderPath              string `json:"folderPath" validate:"required"`
	TaskName                string `json:"taskName" validate:"required,max=255"`
	ClassName               string `json:"className" validate:"required,max=255"`
	SubjectCode             string `json:"subjectCode" validate:"required,max=64"`
}

// TaskDetail is a task opened for evaluation at its current booklet
type TaskDetail struct {
	Task        model.Task             `json:"task"`
	Schema      model.Schema           `json:"schema"`
	AnswerPdf   model.AnswerPdf        `json:"answerPdf"`
	ImageFolder string                 `json:"extractedImagesFolder"`
	Images      []model.AnswerPdfImage `json:"images"`
}

// QuestionWithMarks is a question definition with one booklet's marks
type QuestionWithMarks struct {
	model.QuestionDefinition
	AllottedMarks float64 `json:"allottedMarks"`
	IsMarked      bool    `json:"isMarked"`
}

// bookletScan is a task folder read before any row is written.
type bookletScan struct {
	relPath string
	dir     string
	pdfs    []model.AnswerPdf
}

// AssignTask creates a task and one AnswerPdf per booklet in its folder,
// atomically.
func (s *TaskService) AssignTask(ctx context.Context, req AssignTaskRequest) (*model.Task, error) {
	// 1. Validate and resolve references
	scan, err := s.prepare(ctx, req, 0)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		TaskName:                validation.SanitizeString(req.TaskName),
		ClassName:               validation.SanitizeString(req.ClassName),
		SubjectCode:             req.SubjectCode,
		UserID:                  req.UserID,
		SubjectSchemaRelationID: req.SubjectSchemaRelationID,
		FolderPath:              scan.relPath,
		TotalFiles:              len(scan.pdfs),
		CurrentFileIndex:        1,
	}

	// 2. Persist the task and its booklets together
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return translateWriteError(err, "task")
		}
		if s.afterTaskCreate != nil {
			if err := s.afterTaskCreate(tx, &task); err != nil {
				return err
			}
		}
		return s.ingest(tx, &task, scan.pdfs)
	})
	if err != nil {
		log.Errorf("[TASK] failed to assign %s to user %d: %v", scan.relPath, req.UserID, err)
		return nil, err
	}

	log.Infof("[TASK] assigned task %d (%s) with %d booklets to user %d", task.ID, task.FolderPath, task.TotalFiles, task.UserID)
	return &task, nil
}

// UpdateAssignedTask replaces a task's fields and re-ingests its folder.
func (s *TaskService) UpdateAssignedTask(ctx context.Context, id uint, req AssignTaskRequest) (*model.Task, error) {
	task, err := s.getTask(ctx, id)
	if err != nil {
		return nil, err
	}

	scan, err := s.prepare(ctx, req, id)
	if err != nil {
		return nil, err
	}

	if err := copier.Copy(task, &req); err != nil {
		return nil, fmt.Errorf("failed to copy task fields: %w", err)
	}
	task.TaskName = validation.SanitizeString(task.TaskName)
	task.ClassName = validation.SanitizeString(task.ClassName)
	task.FolderPath = scan.relPath
	task.TotalFiles = len(scan.pdfs)
	task.CurrentFileIndex = task.ClampIndex(task.CurrentFileIndex)
	task.AnswerPdfs = nil

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(task).Error; err != nil {
			return translateWriteError(err, "task")
		}
		if err := purgeBooklets(tx, task.ID); err != nil {
			return err
		}
		return s.ingest(tx, task, scan.pdfs)
	})
	if err != nil {
		log.Errorf("[TASK] failed to update task %d: %v", id, err)
		return nil, err
	}

	log.Infof("[TASK] updated task %d (%s) with %d booklets", task.ID, task.FolderPath, task.TotalFiles)
	return task, nil
}

// RemoveAssignedTask deletes a task with its booklets and annotations.
func (s *TaskService) RemoveAssignedTask(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task model.Task
		if err := tx.First(&task, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("Task not found: %d", id)
			}
			return err
		}
		if err := purgeBooklets(tx, task.ID); err != nil {
			return err
		}
		return tx.Delete(&task).Error
	})
	if err != nil {
		return err
	}
	log.Infof("[TASK] removed task %d", id)
	return nil
}

// GetAssignTaskByID opens a task at its current booklet, extracting the
// booklet's page images the first time it is viewed.
func (s *TaskService) GetAssignTaskByID(ctx context.Context, id uint) (*TaskDetail, error) {
	task, err := s.getTask(ctx, id)
	if err != nil {
		return nil, err
	}

	var relation model.SubjectSchemaRelation
	if err := s.db.WithContext(ctx).Preload("Schema").First(&relation, task.SubjectSchemaRelationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Subject schema relation not found: %d", task.SubjectSchemaRelationID)
		}
		return nil, err
	}

	dir, err := s.resolveFolder(task.FolderPath)
	if err != nil {
		return nil, err
	}
	files, err := fileutil.ListPDFs(dir)
	if err != nil {
		return nil, apperror.IO("failed to read task folder", err)
	}
	if len(files) == 0 {
		return nil, apperror.NotFound("No booklets left in %s", task.FolderPath)
	}

	index := task.ClampIndex(task.CurrentFileIndex)
	if index > len(files) {
		index = len(files)
	}
	name := files[index-1]

	outDir := config.ImagesDir(dir, fileutil.TrimExt(name))
	imageNames, err := s.images.EnsureExtracted(ctx, filepath.Join(dir, name), outDir)
	if err != nil {
		return nil, apperror.IO(fmt.Sprintf("failed to extract images of %s", name), err)
	}

	detail := &TaskDetail{Task: *task, Schema: relation.Schema}
	if rel, err := filepath.Rel(s.root, outDir); err == nil {
		detail.ImageFolder = filepath.ToSlash(rel)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pdf, err := findOrCreateAnswerPdf(tx, task.ID, name, len(imageNames))
		if err != nil {
			return err
		}
		if err := insertMissingImages(tx, pdf.ID, imageNames); err != nil {
			return err
		}
		detail.AnswerPdf = *pdf
		return tx.Where("answer_pdf_id = ?", pdf.ID).Order("id").Find(&detail.Images).Error
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// UpdateCurrentIndex moves the evaluator to another booklet of the task.
func (s *TaskService) UpdateCurrentIndex(ctx context.Context, id uint, index int) (*model.Task, error) {
	task, err := s.getTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 1 || index > task.TotalFiles {
		return nil, apperror.Validation("currentFileIndex must be between 1 and %d", task.TotalFiles)
	}
	if err := s.db.WithContext(ctx).Model(task).Update("current_file_index", index).Error; err != nil {
		return nil, err
	}
	task.CurrentFileIndex = index
	return task, nil
}

// ListTasks returns one page of tasks and the total count.
func (s *TaskService) ListTasks(ctx context.Context, page, limit int) ([]model.Task, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Task{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var tasks []model.Task
	err := s.db.WithContext(ctx).Order("id").
		Offset((page - 1) * limit).Limit(limit).
		Find(&tasks).Error
	return tasks, total, err
}

// ListTasksByUser returns every task assigned to userID.
func (s *TaskService) ListTasksByUser(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&tasks).Error
	return tasks, err
}

// QuestionDefinitionsForTask returns the task schema's questions. When
// answerPdfID is set each question carries that booklet's marks.
func (s *TaskService) QuestionDefinitionsForTask(ctx context.Context, taskID, answerPdfID uint) ([]QuestionWithMarks, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var relation model.SubjectSchemaRelation
	if err := db.First(&relation, task.SubjectSchemaRelationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Subject schema relation not found: %d", task.SubjectSchemaRelationID)
		}
		return nil, err
	}

	var questions []model.QuestionDefinition
	if err := db.Where("schema_id = ?", relation.SchemaID).Order("id").Find(&questions).Error; err != nil {
		return nil, err
	}

	marksByQuestion := map[uint]model.Marks{}
	if answerPdfID != 0 {
		var pdf model.AnswerPdf
		if err := db.Where("id = ? AND task_id = ?", answerPdfID, task.ID).First(&pdf).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperror.NotFound("Answer PDF %d not found in task %d", answerPdfID, task.ID)
			}
			return nil, err
		}
		var marks []model.Marks
		if err := db.Where("answer_pdf_id = ?", answerPdfID).Find(&marks).Error; err != nil {
			return nil, err
		}
		for _, m := range marks {
			marksByQuestion[m.QuestionDefinitionID] = m
		}
	}

	out := make([]QuestionWithMarks, 0, len(questions))
	for _, q := range questions {
		m := marksByQuestion[q.ID]
		out = append(out, QuestionWithMarks{QuestionDefinition: q, AllottedMarks: m.AllottedMarks, IsMarked: m.IsMarked})
	}
	return out, nil
}

// prepare validates req and reads the task folder. excludeID is the task
// being updated, which may keep its own relation and folder.
func (s *TaskService) prepare(ctx context.Context, req AssignTaskRequest, excludeID uint) (*bookletScan, error) {
	if err := validation.Check(req); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var relation model.SubjectSchemaRelation
	if err := db.First(&relation, req.SubjectSchemaRelationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Subject schema relation not found: %d", req.SubjectSchemaRelationID)
		}
		return nil, err
	}

	var subject model.Subject
	if err := db.Where("code = ?", req.SubjectCode).First(&subject).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Subject not found: %s", req.SubjectCode)
		}
		return nil, err
	}

	relPath := filepath.ToSlash(filepath.Clean(req.FolderPath))
	if err := s.checkConflicts(db, req.SubjectSchemaRelationID, relPath, excludeID); err != nil {
		return nil, err
	}

	dir, err := s.resolveFolder(relPath)
	if err != nil {
		return nil, err
	}
	files, err := fileutil.ListPDFs(dir)
	if err != nil {
		return nil, apperror.IO(fmt.Sprintf("failed to read folder %s", relPath), err)
	}
	if len(files) == 0 {
		return nil, apperror.Validation("No PDF files found in %s", relPath)
	}

	// Page counts are read up front so the transaction only writes rows.
	pdfs := make([]model.AnswerPdf, 0, len(files))
	for _, name := range files {
		pages, err := s.counter.CountPages(ctx, filepath.Join(dir, name))
		if err != nil {
			return nil, apperror.IO(fmt.Sprintf("failed to read %s", name), err)
		}
		pdfs = append(pdfs, model.AnswerPdf{AnswerPdfName: name, TotalImages: pages})
	}

	return &bookletScan{relPath: relPath, dir: dir, pdfs: pdfs}, nil
}

func (s *TaskService) checkConflicts(db *gorm.DB, relationID uint, folderPath string, excludeID uint) error {
	var count int64
	q := db.Model(&model.Task{}).Where("subject_schema_relation_id = ?", relationID)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperror.Conflict("A task already exists for subject schema relation %d", relationID)
	}

	q = db.Model(&model.Task{}).Where("folder_path = ?", folderPath)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperror.Conflict("A task already exists for folder %s", folderPath)
	}
	return nil
}

func (s *TaskService) resolveFolder(relPath string) (string, error) {
	dir, err := fileutil.SafeJoin(s.root, relPath)
	if err != nil {
		return "", apperror.Validation("Invalid folder path %q", relPath)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", apperror.IO(fmt.Sprintf("folder %s is not readable", relPath), err)
	}
	if !info.IsDir() {
		return "", apperror.Validation("%s is not a folder", relPath)
	}
	return dir, nil
}

func (s *TaskService) getTask(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Task not found: %d", id)
		}
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) ingest(tx *gorm.DB, task *model.Task, pdfs []model.AnswerPdf) error {
	rows := make([]model.AnswerPdf, len(pdfs))
	for i, pdf := range pdfs {
		rows[i] = model.AnswerPdf{TaskID: task.ID, AnswerPdfName: pdf.AnswerPdfName, TotalImages: pdf.TotalImages}
	}
	if err := tx.CreateInBatches(&rows, 100).Error; err != nil {
		return apperror.IO("failed to persist answer PDFs", err)
	}
	task.AnswerPdfs = rows
	return nil
}

// purgeBooklets deletes the booklets of a task with their images, icons and
// marks. Deletes are explicit so stores without FK enforcement agree.
func purgeBooklets(tx *gorm.DB, taskID uint) error {
	pdfIDs := tx.Model(&model.AnswerPdf{}).Select("id").Where("task_id = ?", taskID)
	imageIDs := tx.Model(&model.AnswerPdfImage{}).Select("id").Where("answer_pdf_id IN (?)", pdfIDs)

	if err := tx.Where("answer_pdf_image_id IN (?)", imageIDs).Delete(&model.Icon{}).Error; err != nil {
		return err
	}
	if err := tx.Where("answer_pdf_id IN (?)", pdfIDs).Delete(&model.Marks{}).Error; err != nil {
		return err
	}
	if err := tx.Where("answer_pdf_id IN (?)", pdfIDs).Delete(&model.AnswerPdfImage{}).Error; err != nil {
		return err
	}
	return tx.Where("task_id = ?", taskID).Delete(&model.AnswerPdf{}).Error
}

func findOrCreateAnswerPdf(tx *gorm.DB, taskID uint, name string, images int) (*model.AnswerPdf, error) {
	var pdf model.AnswerPdf
	err := tx.Where("task_id = ? AND answer_pdf_name = ?", taskID, name).First(&pdf).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		pdf = model.AnswerPdf{TaskID: taskID, AnswerPdfName: name, TotalImages: images}
		if err := tx.Create(&pdf).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case pdf.TotalImages != images:
		if err := tx.Model(&pdf).Update("total_images", images).Error; err != nil {
			return nil, err
		}
	}
	return &pdf, nil
}

// insertMissingImages adds rows for image names the booklet does not have.
func insertMissingImages(tx *gorm.DB, answerPdfID uint, names []string) error {
	var existing []string
	if err := tx.Model(&model.AnswerPdfImage{}).Where("answer_pdf_id = ?", answerPdfID).Pluck("name", &existing).Error; err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	var missing []model.AnswerPdfImage
	for _, name := range names {
		if !have[name] {
			missing = append(missing, model.AnswerPdfImage{AnswerPdfID: answerPdfID, Name: name, Status: model.ImageStatusNotVisited})
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return tx.CreateInBatches(&missing, 100).Error
}

func translateWriteError(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperror.Conflict("A %s with the same key already exists", what)
	}
	return err
}
