package model

import (
	"time"

	"gorm.io/datatypes"
)

// RunStatus is the lifecycle state of a classification run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusHalted    RunStatus = "halted"
	RunStatusFailed    RunStatus = "failed"
)

// ClassificationRun records one pass of the classifier over a subject's
// scanned folder.
type ClassificationRun struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	RunID       string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"runId"`
	SubjectCode string         `gorm:"not null;index" json:"subjectCode"`
	Status      RunStatus      `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalFiles  int            `json:"totalFiles"`
	Processed   int            `json:"processed"`
	Rejected    int            `json:"rejected"`
	Failed      int            `json:"failed"`
	ExtractImgs bool           `json:"extractImages"`
	ReportPath  string         `json:"reportPath,omitempty"`
	ReportURL   string         `json:"reportUrl,omitempty"`
	Summary     datatypes.JSON `gorm:"type:jsonb" json:"summary"`
	StartedAt   time.Time      `gorm:"not null" json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// IsTerminal reports whether the run has stopped.
func (r ClassificationRun) IsTerminal() bool {
	return r.Status != RunStatusRunning
}
