package config

import "path/filepath"

// Folder names under the base folder. These match the directories the
// scanning stations write into, so they are not configurable.
const (
	ScannedFolderName   = "scannedFolder"
	ProcessedFolderName = "processedFolder"
	RejectedFolderName  = "rejectedBookletsFolder"
	ReportFolderName    = "processedReport"
	ExtractedImagesName = "extractedPdfImages"
)

// Layout resolves the per-subject booklet folders.
type Layout struct {
	Base string
}

func (l Layout) ScannedRoot() string {
	return filepath.Join(l.Base, ScannedFolderName)
}

func (l Layout) ScannedDir(subjectCode string) string {
	return filepath.Join(l.Base, ScannedFolderName, subjectCode)
}

func (l Layout) ProcessedDir(subjectCode string) string {
	return filepath.Join(l.Base, ProcessedFolderName, subjectCode)
}

func (l Layout) RejectedDir(subjectCode string) string {
	return filepath.Join(l.Base, RejectedFolderName, subjectCode)
}

func (l Layout) ReportDir(subjectCode string) string {
	return filepath.Join(l.Base, ReportFolderName, subjectCode)
}

// ImagesDir is where the page images of one booklet inside a task or
// processed folder are written.
func ImagesDir(folder, bookletNameWithoutExt string) string {
	return filepath.Join(folder, ExtractedImagesName, bookletNameWithoutExt)
}
