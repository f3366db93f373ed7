package extractor

import (
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer rasterizes pages with MuPDF.
type FitzRenderer struct {
	DPI float64
}

func NewFitzRenderer(dpi float64) *FitzRenderer {
	if dpi <= 0 {
		dpi = 150
	}
	return &FitzRenderer{DPI: dpi}
}

func (r *FitzRenderer) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &fitzDocument{doc: doc, dpi: r.DPI}, nil
}

type fitzDocument struct {
	doc *fitz.Document
	dpi float64
}

func (d *fitzDocument) NumPage() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) RenderPage(n int) (image.Image, error) {
	return d.doc.ImageDPI(n, d.dpi)
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
