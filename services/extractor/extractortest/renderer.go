// Package extractortest provides a Renderer that needs no MuPDF.
package extractortest

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sync/atomic"

	"github.com/sahilchouksey/booklet-evaluation/services/extractor"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation"
)

// Renderer parses the page count with the real PDF parser and renders each
// page as a small solid image.
type Renderer struct {
	// FailAt makes rendering of the 1-based page FailAt fail when set.
	FailAt int

	opened atomic.Int32
}

func (r *Renderer) Open(path string) (extractor.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pages, err := pdfvalidation.PageCountFromBytes(content)
	if err != nil {
		return nil, err
	}
	r.opened.Add(1)
	return &document{pages: pages, failAt: r.FailAt}, nil
}

// Opened reports how many documents were opened.
func (r *Renderer) Opened() int {
	return int(r.opened.Load())
}

type document struct {
	pages  int
	failAt int
}

func (d *document) NumPage() int { return d.pages }

func (d *document) RenderPage(n int) (image.Image, error) {
	if d.failAt > 0 && n+1 == d.failAt {
		return nil, fmt.Errorf("cannot render page %d", n+1)
	}
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(n * 16)
	}
	img.Set(0, 0, color.White)
	return img, nil
}

func (d *document) Close() error { return nil }
