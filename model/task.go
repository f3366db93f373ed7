package model

import (
	"time"
)

// Task assigns a folder of booklets to one evaluator. A relation and a
// folder can each back at most one task.
type Task struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
	TaskName                string    `gorm:"not null" json:"taskName"`
	ClassName               string    `gorm:"not null" json:"className"`
	SubjectCode             string    `gorm:"not null;index" json:"subjectCode"`
	UserID                  uint      `gorm:"not null;index" json:"userId"`
	SubjectSchemaRelationID uint      `gorm:"not null;uniqueIndex" json:"subjectSchemaRelationId"`
	FolderPath              string    `gorm:"not null;uniqueIndex" json:"folderPath"`
	TotalFiles              int       `gorm:"not null" json:"totalFiles"`
	CurrentFileIndex        int       `gorm:"not null;default:1" json:"currentFileIndex"`
	Status                  bool      `gorm:"default:false" json:"status"`

	AnswerPdfs []AnswerPdf `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"answerPdfs,omitempty"`
}

// ClampIndex bounds i to the task's 1-based booklet range.
func (t Task) ClampIndex(i int) int {
	if i < 1 {
		return 1
	}
	if t.TotalFiles > 0 && i > t.TotalFiles {
		return t.TotalFiles
	}
	return i
}

// AnswerPdf is one booklet inside a task folder.
type AnswerPdf struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	TaskID        uint      `gorm:"not null;index" json:"taskId"`
	AnswerPdfName string    `gorm:"not null" json:"answerPdfName"`
	TotalImages   int       `gorm:"not null" json:"totalImages"`
	Status        bool      `gorm:"default:false" json:"status"`

	Images []AnswerPdfImage `gorm:"foreignKey:AnswerPdfID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

// ImageStatus is the review state an evaluator sets on a page image.
type ImageStatus string

const (
	ImageStatusNotVisited ImageStatus = "notVisited"
	ImageStatusVisited    ImageStatus = "visited"
	ImageStatusReviewed   ImageStatus = "reviewed"
)

// Valid reports whether s is a known review state.
func (s ImageStatus) Valid() bool {
	switch s {
	case ImageStatusNotVisited, ImageStatusVisited, ImageStatusReviewed:
		return true
	}
	return false
}

// AnswerPdfImage is one extracted page of a booklet. Name is unique per
// AnswerPdf.
type AnswerPdfImage struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	AnswerPdfID uint        `gorm:"not null;uniqueIndex:idx_answer_pdf_image_name" json:"answerPdfId"`
	Name        string      `gorm:"not null;uniqueIndex:idx_answer_pdf_image_name" json:"name"`
	Status      ImageStatus `gorm:"type:varchar(20);default:notVisited" json:"status"`
}
