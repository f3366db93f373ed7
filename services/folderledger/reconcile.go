// Package folderledger keeps the SubjectFolder summaries in step with the
// scanned folder tree.
package folderledger

import "github.com/sahilchouksey/booklet-evaluation/model"

const newFolderDescription = "new"

// FolderSnapshot is what the filesystem currently says about one subject
// folder.
type FolderSnapshot struct {
	Name     string
	PDFCount int
}

// Reconcile returns the row that existing should become given snapshot.
// existing is nil for a folder that has no row yet. The result is a pure
// function of its inputs, so watch events and full rescans converge on the
// same row.
func Reconcile(snapshot FolderSnapshot, existing *model.SubjectFolder) model.SubjectFolder {
	if existing == nil {
		return model.SubjectFolder{
			FolderName:    snapshot.Name,
			Description:   newFolderDescription,
			ScannedFolder: snapshot.PDFCount,
			UnAllocated:   snapshot.PDFCount,
		}
	}

	row := *existing
	delta := snapshot.PDFCount - existing.ScannedFolder
	row.ScannedFolder = snapshot.PDFCount
	row.UnAllocated = existing.UnAllocated + delta
	if row.UnAllocated < 0 {
		row.UnAllocated = 0
	}
	return row
}

// Changed reports whether the counters of a and b differ.
func Changed(a, b model.SubjectFolder) bool {
	return a.ScannedFolder != b.ScannedFolder || a.UnAllocated != b.UnAllocated
}
