package classifier

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	reportSheet      = "Classification"
	reportTimeFormat = "20060102T150405"
)

// ReportRow is one line of the audit report.
type ReportRow struct {
	PdfFile    string `json:"pdfFile"`
	Status     string `json:"status"`
	TotalPages int    `json:"totalPages"`
	Error      string `json:"error,omitempty"`
}

// ReportName returns <code>_<timestamp>.xlsx for t.
func ReportName(subjectCode string, t time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", subjectCode, t.UTC().Format(reportTimeFormat))
}

// WriteReport writes rows to dir as a new spreadsheet and returns its path.
// A name collision within the same second gets a numeric suffix.
func WriteReport(dir, subjectCode string, rows []ReportRow, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, ReportName(subjectCode, at))
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%s_%d.xlsx", subjectCode, at.UTC().Format(reportTimeFormat), i))
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return "", err
	}

	header := []interface{}{"PDF File", "Status", "Total Pages", "Error"}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return "", err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		f.SetCellStyle(reportSheet, "A1", "D1", bold)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		values := []interface{}{row.PdfFile, row.Status, row.TotalPages, row.Error}
		if err := f.SetSheetRow(reportSheet, cell, &values); err != nil {
			return "", err
		}
	}

	f.SetColWidth(reportSheet, "A", "A", 40)
	f.SetColWidth(reportSheet, "D", "D", 60)

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
