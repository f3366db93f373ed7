package extractor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sahilchouksey/booklet-evaluation/services/extractor"
	"github.com/sahilchouksey/booklet-evaluation/services/extractor/extractortest"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation/pdftest"
)

func TestExtractWritesOneImagePerPage(t *testing.T) {
	dir := t.TempDir()
	pdfPath := pdftest.Write(t, dir, "A.pdf", 12)
	outDir := filepath.Join(dir, "extractedPdfImages", "A")

	ex := extractor.New(&extractortest.Renderer{}, 4)
	n, err := ex.Extract(context.Background(), pdfPath, outDir)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if n != 12 {
		t.Fatalf("Expected 12 images, got %d", n)
	}

	names, err := extractor.ListImages(outDir)
	if err != nil {
		t.Fatalf("ListImages returned error: %v", err)
	}
	if len(names) != 12 {
		t.Fatalf("Expected 12 files on disk, got %d", len(names))
	}
	for i, name := range names {
		if want := extractor.ImageName(i + 1); name != want {
			t.Fatalf("Image %d: expected %s, got %s", i, want, name)
		}
	}
}

func TestExtractIntoEmptyDirIsIdempotentInCount(t *testing.T) {
	dir := t.TempDir()
	pdfPath := pdftest.Write(t, dir, "B.pdf", 5)
	ex := extractor.New(&extractortest.Renderer{}, 2)

	for round := 0; round < 2; round++ {
		outDir := filepath.Join(dir, "out")
		os.RemoveAll(outDir)
		n, err := ex.Extract(context.Background(), pdfPath, outDir)
		if err != nil {
			t.Fatalf("Round %d: Extract returned error: %v", round, err)
		}
		if n != 5 {
			t.Fatalf("Round %d: expected 5 images, got %d", round, n)
		}
	}
}

func TestExtractOverwritesStaleImages(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	ex := extractor.New(&extractortest.Renderer{}, 2)

	big := pdftest.Write(t, dir, "big.pdf", 6)
	if _, err := ex.Extract(context.Background(), big, outDir); err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	small := pdftest.Write(t, dir, "small.pdf", 3)
	if _, err := ex.Extract(context.Background(), small, outDir); err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	names, _ := extractor.ListImages(outDir)
	if len(names) != 3 {
		t.Fatalf("Expected stale images to be removed, found %v", names)
	}
}

func TestEnsureExtractedSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	pdfPath := pdftest.Write(t, dir, "C.pdf", 4)
	outDir := filepath.Join(dir, "out")
	renderer := &extractortest.Renderer{}
	ex := extractor.New(renderer, 2)

	first, err := ex.EnsureExtracted(context.Background(), pdfPath, outDir)
	if err != nil {
		t.Fatalf("EnsureExtracted returned error: %v", err)
	}
	second, err := ex.EnsureExtracted(context.Background(), pdfPath, outDir)
	if err != nil {
		t.Fatalf("EnsureExtracted returned error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Expected identical listings, got %v and %v", first, second)
	}
	if renderer.Opened() != 1 {
		t.Fatalf("Expected the PDF to be rendered once, rendered %d times", renderer.Opened())
	}
}

func TestExtractFailurePartwayLeavesNoImages(t *testing.T) {
	dir := t.TempDir()
	pdfPath := pdftest.Write(t, dir, "D.pdf", 8)
	outDir := filepath.Join(dir, "extractedPdfImages", "D")

	_, err := extractor.New(&extractortest.Renderer{FailAt: 4}, 2).Extract(context.Background(), pdfPath, outDir)
	if !errors.Is(err, extractor.ErrUnreadablePDF) {
		t.Fatalf("Expected ErrUnreadablePDF, got %v", err)
	}
	if names, err := extractor.ListImages(outDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected no output directory, got %v (err %v)", names, err)
	}
	entries, err := os.ReadDir(filepath.Dir(outDir))
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("Expected staging files to be cleaned up, found %d entries", len(entries))
	}

	// A later open renders the whole booklet instead of reusing a partial one.
	names, err := extractor.New(&extractortest.Renderer{}, 2).EnsureExtracted(context.Background(), pdfPath, outDir)
	if err != nil {
		t.Fatalf("EnsureExtracted returned error: %v", err)
	}
	if len(names) != 8 {
		t.Fatalf("Expected 8 images, got %v", names)
	}
}

func TestExtractFailureKeepsPreviousImages(t *testing.T) {
	dir := t.TempDir()
	pdfPath := pdftest.Write(t, dir, "E.pdf", 6)
	outDir := filepath.Join(dir, "out")

	if _, err := extractor.New(&extractortest.Renderer{}, 2).Extract(context.Background(), pdfPath, outDir); err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if _, err := extractor.New(&extractortest.Renderer{FailAt: 2}, 2).Extract(context.Background(), pdfPath, outDir); err == nil {
		t.Fatalf("Expected the second extraction to fail")
	}

	names, err := extractor.ListImages(outDir)
	if err != nil || len(names) != 6 {
		t.Fatalf("Expected the earlier 6 images to survive, got %v (err %v)", names, err)
	}
}

func TestExtractUnreadablePDF(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.pdf")
	if err := os.WriteFile(bad, []byte("not a pdf"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	_, err := extractor.New(&extractortest.Renderer{}, 1).Extract(context.Background(), bad, filepath.Join(dir, "out"))
	if !errors.Is(err, extractor.ErrUnreadablePDF) {
		t.Fatalf("Expected ErrUnreadablePDF, got %v", err)
	}
}

func TestListImagesNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"image_10.png", "image_2.png", "image_1.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte{}, 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	names, err := extractor.ListImages(dir)
	if err != nil {
		t.Fatalf("ListImages returned error: %v", err)
	}
	want := []string{"image_1.png", "image_2.png", "image_10.png"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
}
