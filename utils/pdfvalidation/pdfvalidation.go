package pdfvalidation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ledongthuc/pdf"
)

// PDFLimits bounds what the counter is willing to parse.
type PDFLimits struct {
	MaxFileSizeMB int           // Maximum file size in MB
	ParseTimeout  time.Duration // Upper bound for a single parse
}

var DefaultLimits = PDFLimits{
	MaxFileSizeMB: 200,
	ParseTimeout:  30 * time.Second,
}

var (
	ErrNotPDF       = errors.New("invalid PDF file: missing PDF header")
	ErrTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrParseTimeout = errors.New("timed out parsing PDF")
)

// PageCounter returns the page count of a PDF on disk.
type PageCounter interface {
	CountPages(ctx context.Context, path string) (int, error)
}

// Counter parses PDFs with ledongthuc/pdf.
type Counter struct {
	limits PDFLimits
}

func NewCounter(limits PDFLimits) *Counter {
	if limits.MaxFileSizeMB <= 0 {
		limits.MaxFileSizeMB = DefaultLimits.MaxFileSizeMB
	}
	if limits.ParseTimeout <= 0 {
		limits.ParseTimeout = DefaultLimits.ParseTimeout
	}
	return &Counter{limits: limits}
}

// CountPages reads the file and returns its page count. Parsing runs in its
// own goroutine so a malformed file cannot outlive ctx or the parse timeout.
func (c *Counter) CountPages(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > int64(c.limits.MaxFileSizeMB)*1024*1024 {
		return 0, fmt.Errorf("%s: %w (%dMB)", path, ErrTooLarge, c.limits.MaxFileSizeMB)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.limits.ParseTimeout)
	defer cancel()

	type result struct {
		pages int
		err   error
	}
	done := make(chan result, 1)
	go func() {
		pages, err := PageCountFromBytes(content)
		done <- result{pages, err}
	}()

	select {
	case r := <-done:
		return r.pages, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%s: %w", path, ErrParseTimeout)
		}
		return 0, ctx.Err()
	}
}

// PageCountFromBytes parses content and returns its page count. The pdf
// package panics on some corrupt inputs, so panics are reported as errors.
func PageCountFromBytes(content []byte) (pages int, err error) {
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return 0, ErrNotPDF
	}

	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	content = sanitizePDF(content)
	pdfReader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PDF: %w", err)
	}

	pages = pdfReader.NumPage()
	if pages <= 0 {
		return 0, errors.New("PDF has no pages")
	}
	return pages, nil
}

// sanitizePDF removes trailing garbage data from PDFs
func sanitizePDF(content []byte) []byte {
	if len(content) == 0 {
		return content
	}

	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}

	pdfEnd := lastEOF + len(eofMarker)
	for pdfEnd < len(content) && (content[pdfEnd] == '\n' || content[pdfEnd] == '\r') {
		pdfEnd++
	}

	return content[:pdfEnd]
}
