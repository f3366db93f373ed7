package model

import (
	"time"
)

// Icon is a scored annotation placed on one page image for one question.
type Icon struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
	AnswerPdfImageID     uint      `gorm:"not null;index:idx_icon_image_question" json:"answerPdfImageId"`
	QuestionDefinitionID uint      `gorm:"not null;index:idx_icon_image_question" json:"questionDefinitionId"`
	IconURL              string    `gorm:"not null" json:"iconUrl"`
	Question             string    `json:"question"`
	TimeStamps           string    `json:"timeStamps"`
	X                    float64   `gorm:"not null" json:"x"`
	Y                    float64   `gorm:"not null" json:"y"`
	Width                float64   `gorm:"not null" json:"width"`
	Height               float64   `gorm:"not null" json:"height"`
	Mark                 float64   `gorm:"not null" json:"mark"`
	Comment              string    `json:"comment"`
}

// Marks is the authoritative total for one (AnswerPdf, QuestionDefinition)
// pair. It is only re-derived from icons by an explicit clear.
type Marks struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
	AnswerPdfID          uint      `gorm:"not null;uniqueIndex:idx_marks_pair" json:"answerPdfId"`
	QuestionDefinitionID uint      `gorm:"not null;uniqueIndex:idx_marks_pair" json:"questionDefinitionId"`
	AllottedMarks        float64   `gorm:"not null;default:0" json:"allottedMarks"`
	TimeStamps           string    `json:"timeStamps"`
	IsMarked             bool      `gorm:"default:false" json:"isMarked"`
}
