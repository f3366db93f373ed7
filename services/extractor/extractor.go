package extractor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrUnreadablePDF is returned when the source PDF cannot be opened or a
// page cannot be rendered.
var ErrUnreadablePDF = errors.New("failed to extract images from PDF")

// Document is an opened PDF that can be rasterized page by page.
type Document interface {
	NumPage() int
	// RenderPage renders the zero-based page n.
	RenderPage(n int) (image.Image, error)
	Close() error
}

// Renderer opens PDFs for rasterization.
type Renderer interface {
	Open(path string) (Document, error)
}

// Extractor turns a booklet into image_1.png .. image_N.png.
//
// Pages are rendered into a hidden staging directory next to outDir, which
// replaces outDir only once every page is written. An outDir holding images
// is therefore always a complete extraction.
type Extractor struct {
	renderer Renderer
	workers  int
	flight   singleflight.Group
}

func New(renderer Renderer, workers int) *Extractor {
	if workers <= 0 {
		workers = 1
	}
	return &Extractor{renderer: renderer, workers: workers}
}

// ImageName is the file name of the 1-based page n.
func ImageName(n int) string {
	return fmt.Sprintf("image_%d.png", n)
}

// Extract renders every page of pdfPath into outDir, replacing any images
// already there, and returns the number of pages written. On failure the
// previous contents of outDir are left as they were.
func (e *Extractor) Extract(ctx context.Context, pdfPath, outDir string) (int, error) {
	// Concurrent extractions into one directory share a single render.
	v, err, _ := e.flight.Do(outDir, func() (interface{}, error) {
		return e.extract(ctx, pdfPath, outDir)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (e *Extractor) extract(ctx context.Context, pdfPath, outDir string) (int, error) {
	parent := filepath.Dir(outDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory %s: %w", parent, err)
	}

	doc, err := e.renderer.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrUnreadablePDF, filepath.Base(pdfPath), err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages <= 0 {
		return 0, fmt.Errorf("%w: %s has no pages", ErrUnreadablePDF, filepath.Base(pdfPath))
	}

	stage := filepath.Join(parent, fmt.Sprintf(".%s.tmp-%s", filepath.Base(outDir), uuid.NewString()[:8]))
	if err := os.Mkdir(stage, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	// Rendering goes through the document one page at a time; encoding
	// and writing fan out to the worker pool.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := 0; i < pages; i++ {
		if err := gctx.Err(); err != nil {
			break
		}
		img, err := doc.RenderPage(i)
		if err != nil {
			g.Wait()
			return 0, fmt.Errorf("%w: %s page %d: %v", ErrUnreadablePDF, filepath.Base(pdfPath), i+1, err)
		}
		target := filepath.Join(stage, ImageName(i+1))
		g.Go(func() error {
			return writePNG(target, img)
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := os.RemoveAll(outDir); err != nil {
		return 0, fmt.Errorf("failed to remove stale images in %s: %w", outDir, err)
	}
	if err := os.Rename(stage, outDir); err != nil {
		return 0, fmt.Errorf("failed to move images into %s: %w", outDir, err)
	}

	log.Infof("[EXTRACT] %s: wrote %d images to %s", filepath.Base(pdfPath), pages, outDir)
	return pages, nil
}

// EnsureExtracted reuses the images in outDir when there are any and
// extracts otherwise. It returns the image names in page order.
func (e *Extractor) EnsureExtracted(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	existing, err := ListImages(outDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	if _, err := e.Extract(ctx, pdfPath, outDir); err != nil {
		return nil, err
	}
	return ListImages(outDir)
}

// ListImages returns the PNG names in outDir ordered by page number.
func ListImages(outDir string) ([]string, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := pageNumber(names[i]), pageNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
	return names, nil
}

// pageNumber extracts the trailing number of names like image_12.png.
func pageNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	end := len(base)
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	n, err := strconv.Atoi(base[start:end])
	if err != nil {
		return -1
	}
	return n
}

func writePNG(target string, img image.Image) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	w := bufio.NewWriter(f)
	if err := png.Encode(w, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(target), err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
