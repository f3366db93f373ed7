package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/sahilchouksey/booklet-evaluation/config"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/services/notification"
	"github.com/sahilchouksey/booklet-evaluation/services/storage"
	"github.com/sahilchouksey/booklet-evaluation/utils/apperror"
	"github.com/sahilchouksey/booklet-evaluation/utils/fileutil"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation"
	"gorm.io/gorm"
)

// ImageExtractor renders an accepted booklet into page images.
type ImageExtractor interface {
	Extract(ctx context.Context, pdfPath, outDir string) (int, error)
}

// Target is what a subject code resolves to before a run may start.
type Target struct {
	Subject  model.Subject
	Relation model.SubjectSchemaRelation
	Schema   model.Schema
}

// Options tune a single run.
type Options struct {
	// ExtractImages renders processed booklets, removes the classified
	// originals from the scanned folder and writes the audit report.
	ExtractImages bool
}

// Run is the acknowledgement returned when a run starts.
type Run struct {
	ID            string          `json:"runId"`
	SubjectCode   string          `json:"subjectCode"`
	Status        model.RunStatus `json:"status"`
	ExpectedPages int             `json:"expectedPages"`
	Files         []string        `json:"files"`
}

// FileResult is the outcome of classifying a single booklet.
type FileResult struct {
	PdfFile    string `json:"pdfName"`
	Status     string `json:"status"`
	TotalPages int    `json:"totalPages"`
	Target     string `json:"-"`
}

// Service classifies scanned booklets into processed and rejected folders.
type Service struct {
	db        *gorm.DB
	layout    config.Layout
	counter   pdfvalidation.PageCounter
	extractor ImageExtractor
	bus       notification.Bus
	tracker   *RunTracker
	archiver  storage.Archiver
	now       func() time.Time

	wg sync.WaitGroup
}

// Config groups the collaborators of the Service.
type Config struct {
	DB        *gorm.DB
	Layout    config.Layout
	Counter   pdfvalidation.PageCounter
	Extractor ImageExtractor
	Bus       notification.Bus
	Tracker   *RunTracker
	Archiver  storage.Archiver // optional
}

func NewService(cfg Config) *Service {
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewRunTracker(nil)
	}
	return &Service{
		db:        cfg.DB,
		layout:    cfg.Layout,
		counter:   cfg.Counter,
		extractor: cfg.Extractor,
		bus:       cfg.Bus,
		tracker:   tracker,
		archiver:  cfg.Archiver,
		now:       time.Now,
	}
}

// Tracker exposes the run tracker for the sweep job and handlers.
func (s *Service) Tracker() *RunTracker {
	return s.tracker
}

// Resolve looks up the subject, its relation and the bound schema.
func (s *Service) Resolve(ctx context.Context, subjectCode string) (*Target, error) {
	subjectCode = strings.TrimSpace(subjectCode)
	if err := validateSubjectCode(subjectCode); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var t Target

	if err := db.Where("code = ?", subjectCode).First(&t.Subject).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Subject not found: %s", subjectCode)
		}
		return nil, err
	}

	if err := db.Where("subject_id = ?", t.Subject.ID).Order("id").First(&t.Relation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Schema not found for the subject: %s", subjectCode)
		}
		return nil, err
	}

	if err := db.First(&t.Schema, t.Relation.SchemaID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Schema details not found for the subject: %s", subjectCode)
		}
		return nil, err
	}

	if t.Schema.ExpectedPageCount() <= 0 {
		return nil, apperror.Validation("Schema %q has no expected page count", t.Schema.Name)
	}

	return &t, nil
}

// Classify resolves the subject, snapshots its scanned folder and starts the
// run in the background. Files added to the folder after this call are not
// part of the run.
func (s *Service) Classify(ctx context.Context, subjectCode string, opts Options) (*Run, error) {
	target, err := s.Resolve(ctx, subjectCode)
	if err != nil {
		return nil, err
	}
	code := target.Subject.Code

	scanned := s.layout.ScannedDir(code)
	files, err := fileutil.ListPDFs(scanned)
	if err != nil {
		return nil, apperror.IO(fmt.Sprintf("Scanned folder not found for %s", code), err)
	}

	run := &Run{
		ID:            uuid.NewString(),
		SubjectCode:   code,
		Status:        model.RunStatusRunning,
		ExpectedPages: target.Schema.ExpectedPageCount(),
		Files:         files,
	}
	pub := notification.NewPublisher(s.bus, code)

	if len(files) == 0 {
		run.Status = model.RunStatusHalted
		s.record(ctx, run, opts)
		pub.Status(ctx, notification.StatusNoPDFs)
		pub.Close(ctx)
		log.Infof("[CLASSIFY] %s: no PDFs found, run %s halted", code, run.ID)
		return run, nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	state := RunState{RunID: run.ID, SubjectCode: code, Status: model.RunStatusRunning, TotalFiles: len(files)}
	if err := s.tracker.Begin(ctx, state, cancel); err != nil {
		cancel()
		if errors.Is(err, ErrRunActive) {
			return nil, apperror.Conflict("Classification is already running for %s", code)
		}
		return nil, err
	}
	s.record(ctx, run, opts)

	log.Infof("[CLASSIFY] %s: run %s started over %d files (expected %d pages)", code, run.ID, len(files), run.ExpectedPages)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(runCtx, run, target, opts, pub)
	}()

	return run, nil
}

type runCounts struct {
	processed, rejected, failed int
}

func (s *Service) run(ctx context.Context, run *Run, target *Target, opts Options, pub *notification.Publisher) {
	// Events and bookkeeping must still go out after ctx is cancelled.
	bg := context.Background()
	code := run.SubjectCode

	pub.Status(bg, notification.StatusVerified)

	var (
		counts     runCounts
		rows       []ReportRow
		classified []string
		cancelled  bool
	)

	for i, name := range run.Files {
		if ctx.Err() != nil || s.tracker.IsCancelled(bg, run.ID) {
			cancelled = true
			break
		}

		res, err := s.classifyFile(ctx, code, target.Schema.ExpectedPageCount(), name)
		if err != nil {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			counts.failed++
			rows = append(rows, ReportRow{PdfFile: name, Status: "Failed", Error: err.Error()})
			log.Errorf("[CLASSIFY] %s: failed to process %s: %v", code, name, err)
			pub.Error(bg, fmt.Sprintf("Failed to process %s", name))
		} else {
			if res.Status == notification.StatusProcessed {
				counts.processed++
			} else {
				counts.rejected++
			}
			classified = append(classified, name)
			rows = append(rows, ReportRow{PdfFile: name, Status: res.Status, TotalPages: res.TotalPages})
			pub.Status(bg, notification.FileOutcome{Status: res.Status, PdfFile: name, TotalPages: res.TotalPages})

			if opts.ExtractImages && res.Status == notification.StatusProcessed {
				s.extract(ctx, pub, code, res.Target)
			}
		}

		s.tracker.Update(bg, RunState{
			RunID: run.ID, SubjectCode: code, Status: model.RunStatusRunning,
			TotalFiles: len(run.Files), Done: i + 1,
			Processed: counts.processed, Rejected: counts.rejected, Failed: counts.failed,
		})
	}

	run.Status = model.RunStatusCompleted
	if cancelled {
		run.Status = model.RunStatusCancelled
	}

	var reportPath, reportURL string
	if opts.ExtractImages && !cancelled {
		s.removeOriginals(code, classified, pub)
		reportPath, reportURL = s.writeReport(bg, code, rows, pub)
	}

	if cancelled {
		log.Warnf("[CLASSIFY] %s: run %s cancelled after %d files", code, run.ID, len(rows))
		pub.Status(bg, notification.StatusCancelled)
	} else {
		log.Infof("[CLASSIFY] %s: run %s completed: %d processed, %d rejected, %d failed",
			code, run.ID, counts.processed, counts.rejected, counts.failed)
		pub.Status(bg, notification.StatusCompleted)
	}
	pub.Close(bg)

	s.finish(bg, run, rows, counts, reportPath, reportURL)
}

// classifyFile counts the pages of one scanned booklet and copies it into
// the processed or rejected folder.
func (s *Service) classifyFile(ctx context.Context, code string, expected int, name string) (*FileResult, error) {
	src := filepath.Join(s.layout.ScannedDir(code), name)

	pages, err := s.counter.CountPages(ctx, src)
	if err != nil {
		return nil, apperror.IO(fmt.Sprintf("failed to read %s", name), err)
	}

	res := &FileResult{PdfFile: name, TotalPages: pages, Status: notification.StatusRejected}
	destDir := s.layout.RejectedDir(code)
	if pages == expected {
		res.Status = notification.StatusProcessed
		destDir = s.layout.ProcessedDir(code)
	}

	target, err := fileutil.CopyFile(src, destDir)
	if err != nil {
		return nil, apperror.IO(fmt.Sprintf("failed to copy %s", name), err)
	}
	res.Target = target
	return res, nil
}

func (s *Service) extract(ctx context.Context, pub *notification.Publisher, code, pdfPath string) {
	if s.extractor == nil {
		return
	}
	name := filepath.Base(pdfPath)
	outDir := config.ImagesDir(filepath.Dir(pdfPath), fileutil.TrimExt(name))
	if _, err := s.extractor.Extract(ctx, pdfPath, outDir); err != nil {
		log.Errorf("[CLASSIFY] %s: image extraction failed for %s: %v", code, name, err)
		pub.Error(context.Background(), fmt.Sprintf("Failed to extract images from %s", name))
	}
}

func (s *Service) removeOriginals(code string, names []string, pub *notification.Publisher) {
	scanned := s.layout.ScannedDir(code)
	for _, name := range names {
		if err := os.Remove(filepath.Join(scanned, name)); err != nil && !os.IsNotExist(err) {
			log.Errorf("[CLASSIFY] %s: failed to remove original %s: %v", code, name, err)
			pub.Error(context.Background(), fmt.Sprintf("Failed to remove original %s", name))
		}
	}
}

// writeReport is best-effort: failures are reported but never undo the
// classification.
func (s *Service) writeReport(ctx context.Context, code string, rows []ReportRow, pub *notification.Publisher) (string, string) {
	path, err := WriteReport(s.layout.ReportDir(code), code, rows, s.now())
	if err != nil {
		log.Errorf("[CLASSIFY] %s: failed to write report: %v", code, err)
		pub.Error(ctx, "Failed to write classification report")
		return "", ""
	}
	log.Infof("[CLASSIFY] %s: report written to %s", code, path)

	if s.archiver == nil {
		return path, ""
	}
	url, err := s.archiver.Upload(ctx, storage.ReportKey(code, path), path)
	if err != nil {
		log.Warnf("[CLASSIFY] %s: failed to archive report: %v", code, err)
		return path, ""
	}
	return path, url
}

// record inserts the run row.
func (s *Service) record(ctx context.Context, run *Run, opts Options) {
	now := s.now().UTC()
	row := model.ClassificationRun{
		RunID:       run.ID,
		SubjectCode: run.SubjectCode,
		Status:      run.Status,
		TotalFiles:  len(run.Files),
		ExtractImgs: opts.ExtractImages,
		Summary:     []byte("[]"),
		StartedAt:   now,
	}
	if run.Status != model.RunStatusRunning {
		row.CompletedAt = &now
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		log.Errorf("[CLASSIFY] %s: failed to record run %s: %v", run.SubjectCode, run.ID, err)
	}
}

func (s *Service) finish(ctx context.Context, run *Run, rows []ReportRow, counts runCounts, reportPath, reportURL string) {
	now := s.now().UTC()
	summary, _ := json.Marshal(rows)

	err := s.db.WithContext(ctx).Model(&model.ClassificationRun{}).
		Where("run_id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":       run.Status,
			"processed":    counts.processed,
			"rejected":     counts.rejected,
			"failed":       counts.failed,
			"report_path":  reportPath,
			"report_url":   reportURL,
			"summary":      summary,
			"completed_at": now,
		}).Error
	if err != nil {
		log.Errorf("[CLASSIFY] %s: failed to update run %s: %v", run.SubjectCode, run.ID, err)
	}

	s.tracker.Finish(ctx, RunState{
		RunID: run.ID, SubjectCode: run.SubjectCode, Status: run.Status,
		TotalFiles: len(run.Files), Done: len(rows),
		Processed: counts.processed, Rejected: counts.rejected, Failed: counts.failed,
	})
}

// ProcessSingle classifies one named booklet synchronously.
func (s *Service) ProcessSingle(ctx context.Context, subjectCode, bookletName string) (*FileResult, error) {
	if err := validateBookletName(bookletName); err != nil {
		return nil, err
	}
	target, err := s.Resolve(ctx, subjectCode)
	if err != nil {
		return nil, err
	}
	code := target.Subject.Code

	src := filepath.Join(s.layout.ScannedDir(code), bookletName)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil, apperror.NotFound("Booklet %s not found in the scanned folder.", bookletName)
		}
		return nil, apperror.IO("failed to stat booklet", err)
	}

	res, err := s.classifyFile(ctx, code, target.Schema.ExpectedPageCount(), bookletName)
	if err != nil {
		log.Errorf("[CLASSIFY] %s: manual processing of %s failed: %v", code, bookletName, err)
		return nil, err
	}
	log.Infof("[CLASSIFY] %s: manually classified %s as %s (%d pages)", code, bookletName, res.Status, res.TotalPages)
	return res, nil
}

// GetRun returns the stored run and, while it is active, its live state.
func (s *Service) GetRun(ctx context.Context, runID string) (*model.ClassificationRun, *RunState, error) {
	var run model.ClassificationRun
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperror.NotFound("Run not found: %s", runID)
		}
		return nil, nil, err
	}
	state, err := s.tracker.Get(ctx, runID)
	if err != nil {
		log.Warnf("[CLASSIFY] failed to read live state of run %s: %v", runID, err)
	}
	return &run, state, nil
}

// Cancel requests that a running run stop.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	run, _, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return apperror.Conflict("Run %s is already %s", runID, run.Status)
	}
	s.tracker.Cancel(ctx, runID)
	log.Infof("[CLASSIFY] %s: cancellation requested for run %s", run.SubjectCode, runID)
	return nil
}

// Wait blocks until every run started by this instance has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
