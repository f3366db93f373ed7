package classifier_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sahilchouksey/booklet-evaluation/config"
	"github.com/sahilchouksey/booklet-evaluation/database/dbtest"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/services/classifier"
	"github.com/sahilchouksey/booklet-evaluation/services/extractor"
	"github.com/sahilchouksey/booklet-evaluation/services/extractor/extractortest"
	"github.com/sahilchouksey/booklet-evaluation/services/notification"
	"github.com/sahilchouksey/booklet-evaluation/services/notification/notificationtest"
	"github.com/sahilchouksey/booklet-evaluation/utils/apperror"
	"github.com/sahilchouksey/booklet-evaluation/utils/fileutil"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation/pdftest"
	"gorm.io/gorm"
)

type harness struct {
	db     *gorm.DB
	layout config.Layout
	bus    *notificationtest.Recorder
	svc    *classifier.Service
}

func newHarness(t *testing.T, counter pdfvalidation.PageCounter) *harness {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.Seed(t, db, "CS101", 8)

	if counter == nil {
		counter = pdfvalidation.NewCounter(pdfvalidation.DefaultLimits)
	}
	h := &harness{
		db:     db,
		layout: config.Layout{Base: t.TempDir()},
		bus:    notificationtest.NewRecorder(),
	}
	h.svc = classifier.NewService(classifier.Config{
		DB:        db,
		Layout:    h.layout,
		Counter:   counter,
		Extractor: extractor.New(&extractortest.Renderer{}, 2),
		Bus:       h.bus,
	})
	return h
}

func (h *harness) scan(t *testing.T, files map[string]int) {
	t.Helper()
	dir := h.layout.ScannedDir("CS101")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create scanned folder: %v", err)
	}
	for name, pages := range files {
		pdftest.Write(t, dir, name, pages)
	}
}

func listed(t *testing.T, dir string) []string {
	t.Helper()
	names, err := fileutil.ListPDFs(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("ListPDFs(%s) returned error: %v", dir, err)
	}
	return names
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func outcomes(events []notification.Event) []notification.FileOutcome {
	var out []notification.FileOutcome
	for _, ev := range events {
		if fo, ok := ev.Data.(notification.FileOutcome); ok {
			out = append(out, fo)
		}
	}
	return out
}

func TestClassifySortsByPageCount(t *testing.T) {
	h := newHarness(t, nil)
	h.scan(t, map[string]int{"a.pdf": 8, "b.pdf": 10, "c.pdf": 8})

	run, err := h.svc.Classify(context.Background(), "CS101", classifier.Options{})
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	h.svc.Wait()

	if run.ExpectedPages != 8 || len(run.Files) != 3 {
		t.Fatalf("Unexpected run: %+v", run)
	}
	if got := listed(t, h.layout.ProcessedDir("CS101")); !equal(got, []string{"a.pdf", "c.pdf"}) {
		t.Fatalf("Expected processed [a.pdf c.pdf], got %v", got)
	}
	if got := listed(t, h.layout.RejectedDir("CS101")); !equal(got, []string{"b.pdf"}) {
		t.Fatalf("Expected rejected [b.pdf], got %v", got)
	}
	if got := listed(t, h.layout.ScannedDir("CS101")); len(got) != 3 {
		t.Fatalf("Expected scanned folder untouched, got %v", got)
	}

	events := h.bus.History("CS101")
	if events[0].Data != notification.StatusVerified {
		t.Fatalf("Expected first status %q, got %v", notification.StatusVerified, events[0].Data)
	}
	want := []notification.FileOutcome{
		{Status: notification.StatusProcessed, PdfFile: "a.pdf", TotalPages: 8},
		{Status: notification.StatusRejected, PdfFile: "b.pdf", TotalPages: 10},
		{Status: notification.StatusProcessed, PdfFile: "c.pdf", TotalPages: 8},
	}
	got := outcomes(events)
	if len(got) != len(want) {
		t.Fatalf("Expected %d outcomes, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Outcome %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	last := events[len(events)-1]
	if last.Kind != notification.KindClose || events[len(events)-2].Data != notification.StatusCompleted {
		t.Fatalf("Expected completion then close, got %+v", events[len(events)-2:])
	}

	var stored model.ClassificationRun
	if err := h.db.Where("run_id = ?", run.ID).First(&stored).Error; err != nil {
		t.Fatalf("Run was not recorded: %v", err)
	}
	if stored.Status != model.RunStatusCompleted || stored.Processed != 2 || stored.Rejected != 1 || stored.CompletedAt == nil {
		t.Fatalf("Unexpected stored run: %+v", stored)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.scan(t, map[string]int{"a.pdf": 8, "b.pdf": 3})

	for i := 0; i < 2; i++ {
		if _, err := h.svc.Classify(context.Background(), "CS101", classifier.Options{}); err != nil {
			t.Fatalf("Classify #%d returned error: %v", i+1, err)
		}
		h.svc.Wait()
	}

	if got := listed(t, h.layout.ProcessedDir("CS101")); !equal(got, []string{"a.pdf"}) {
		t.Fatalf("Expected processed [a.pdf], got %v", got)
	}
	if got := listed(t, h.layout.RejectedDir("CS101")); !equal(got, []string{"b.pdf"}) {
		t.Fatalf("Expected rejected [b.pdf], got %v", got)
	}
}

func TestClassifyWithExtraction(t *testing.T) {
	h := newHarness(t, nil)
	h.scan(t, map[string]int{"a.pdf": 8, "b.pdf": 5})

	if _, err := h.svc.Classify(context.Background(), "CS101", classifier.Options{ExtractImages: true}); err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	h.svc.Wait()

	images, err := extractor.ListImages(config.ImagesDir(h.layout.ProcessedDir("CS101"), "a"))
	if err != nil {
		t.Fatalf("ListImages returned error: %v", err)
	}
	if len(images) != 8 || images[0] != "image_1.png" || images[7] != "image_8.png" {
		t.Fatalf("Expected image_1..image_8, got %v", images)
	}

	if got := listed(t, h.layout.ScannedDir("CS101")); len(got) != 0 {
		t.Fatalf("Expected classified originals removed, got %v", got)
	}

	entries, err := os.ReadDir(h.layout.ReportDir("CS101"))
	if err != nil || len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".xlsx" {
		t.Fatalf("Expected one report, got %v (err %v)", entries, err)
	}
}

func TestClassifyReportsUnreadableFile(t *testing.T) {
	h := newHarness(t, nil)
	h.scan(t, map[string]int{"a.pdf": 8})
	if err := os.WriteFile(filepath.Join(h.layout.ScannedDir("CS101"), "broken.pdf"), []byte("not a pdf"), 0o644); err != nil {
		t.Fatalf("failed to write broken file: %v", err)
	}

	run, err := h.svc.Classify(context.Background(), "CS101", classifier.Options{ExtractImages: true})
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	h.svc.Wait()

	var errorsSeen int
	for _, ev := range h.bus.History("CS101") {
		if ev.Kind == notification.KindError {
			errorsSeen++
		}
	}
	if errorsSeen != 1 {
		t.Fatalf("Expected one error event, got %d", errorsSeen)
	}
	if got := listed(t, h.layout.ScannedDir("CS101")); !equal(got, []string{"broken.pdf"}) {
		t.Fatalf("Expected the failed file to stay in the scanned folder, got %v", got)
	}

	var stored model.ClassificationRun
	h.db.Where("run_id = ?", run.ID).First(&stored)
	if stored.Failed != 1 || stored.Processed != 1 {
		t.Fatalf("Unexpected counts: %+v", stored)
	}
}

func TestClassifyNoPDFsHalts(t *testing.T) {
	h := newHarness(t, nil)
	h.scan(t, nil)

	run, err := h.svc.Classify(context.Background(), "CS101", classifier.Options{})
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if run.Status != model.RunStatusHalted {
		t.Fatalf("Expected halted run, got %s", run.Status)
	}

	events := h.bus.History("CS101")
	if len(events) != 2 || events[0].Data != notification.StatusNoPDFs || events[1].Kind != notification.KindClose {
		t.Fatalf("Unexpected events: %+v", events)
	}
	if _, err := os.Stat(h.layout.ProcessedDir("CS101")); !os.IsNotExist(err) {
		t.Fatalf("Expected no processed folder, got err %v", err)
	}
}

func TestClassifyResolveErrors(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.Classify(context.Background(), "NOPE", classifier.Options{})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Expected not found for unknown subject, got %v", err)
	}

	_, err = h.svc.Classify(context.Background(), "", classifier.Options{})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Expected validation error for empty code, got %v", err)
	}

	_, err = h.svc.Classify(context.Background(), "CS101", classifier.Options{})
	if !errors.Is(err, apperror.ErrIO) {
		t.Fatalf("Expected IO error for missing scanned folder, got %v", err)
	}
}

func TestClassifyRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, nil)
	h.scan(t, map[string]int{"a.pdf": 8})

	err := h.svc.Tracker().Begin(context.Background(), classifier.RunState{RunID: "other", SubjectCode: "CS101"}, func() {})
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	_, err = h.svc.Classify(context.Background(), "CS101", classifier.Options{})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
}

// gatedCounter blocks on the first file until released or cancelled.
type gatedCounter struct {
	inner   pdfvalidation.PageCounter
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCounter) CountPages(ctx context.Context, path string) (int, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return g.inner.CountPages(ctx, path)
}

func TestCancelStopsRun(t *testing.T) {
	gate := &gatedCounter{
		inner:   pdfvalidation.NewCounter(pdfvalidation.DefaultLimits),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	h := newHarness(t, gate)
	h.scan(t, map[string]int{"a.pdf": 8, "b.pdf": 8, "c.pdf": 8})

	run, err := h.svc.Classify(context.Background(), "CS101", classifier.Options{})
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run never reached the first file")
	}
	if err := h.svc.Cancel(context.Background(), run.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	h.svc.Wait()

	stored, state, err := h.svc.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun returned error: %v", err)
	}
	if stored.Status != model.RunStatusCancelled {
		t.Fatalf("Expected cancelled run, got %s", stored.Status)
	}
	if state == nil || state.Status != model.RunStatusCancelled {
		t.Fatalf("Expected cancelled live state, got %+v", state)
	}
	if got := listed(t, h.layout.ProcessedDir("CS101")); len(got) != 0 {
		t.Fatalf("Expected nothing processed, got %v", got)
	}

	if err := h.svc.Cancel(context.Background(), run.ID); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Expected conflict cancelling a finished run, got %v", err)
	}

	// The subject is free again.
	close(gate.release)
	if _, err := h.svc.Classify(context.Background(), "CS101", classifier.Options{}); err != nil {
		t.Fatalf("Classify after cancel returned error: %v", err)
	}
	h.svc.Wait()
}

func TestProcessSingle(t *testing.T) {
	h := newHarness(t, nil)
	h.scan(t, map[string]int{"a.pdf": 8, "b.pdf": 2})

	res, err := h.svc.ProcessSingle(context.Background(), "CS101", "b.pdf")
	if err != nil {
		t.Fatalf("ProcessSingle returned error: %v", err)
	}
	if res.Status != notification.StatusRejected || res.TotalPages != 2 {
		t.Fatalf("Unexpected result: %+v", res)
	}
	if got := listed(t, h.layout.RejectedDir("CS101")); !equal(got, []string{"b.pdf"}) {
		t.Fatalf("Expected rejected [b.pdf], got %v", got)
	}

	if _, err := h.svc.ProcessSingle(context.Background(), "CS101", "missing.pdf"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Expected not found, got %v", err)
	}
	if _, err := h.svc.ProcessSingle(context.Background(), "CS101", "../a.pdf"); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestBookletFolders(t *testing.T) {
	h := newHarness(t, nil)
	h.scan(t, map[string]int{"a.pdf": 8, "b.pdf": 4, "c.pdf": 2})

	if _, err := h.svc.Classify(context.Background(), "CS101", classifier.Options{}); err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	h.svc.Wait()

	rejected, err := h.svc.ListBooklets("CS101", classifier.FolderRejected)
	if err != nil || !equal(rejected, []string{"b.pdf", "c.pdf"}) {
		t.Fatalf("Expected rejected [b.pdf c.pdf], got %v (err %v)", rejected, err)
	}

	path, err := h.svc.BookletPath("CS101", classifier.FolderProcessed, "a.pdf")
	if err != nil || filepath.Base(path) != "a.pdf" {
		t.Fatalf("BookletPath returned %q, %v", path, err)
	}
	if _, err := h.svc.BookletPath("CS101", classifier.FolderProcessed, "b.pdf"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Expected not found, got %v", err)
	}

	removed, err := h.svc.RemoveRejected(context.Background(), "CS101", "")
	if err != nil || len(removed) != 2 {
		t.Fatalf("RemoveRejected returned %v, %v", removed, err)
	}
	if got := listed(t, h.layout.ScannedDir("CS101")); !equal(got, []string{"a.pdf"}) {
		t.Fatalf("Expected only a.pdf left in scanned, got %v", got)
	}
	if got := listed(t, h.layout.RejectedDir("CS101")); len(got) != 0 {
		t.Fatalf("Expected empty rejected folder, got %v", got)
	}

	empty, err := h.svc.ListBooklets("MA201", classifier.FolderProcessed)
	if err != nil || len(empty) != 0 {
		t.Fatalf("Expected empty listing for a missing folder, got %v (err %v)", empty, err)
	}
}
