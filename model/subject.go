package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Subject is an academic subject. Its Code names the per-subject booklet
// folders and never changes once created.
type Subject struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Name      string    `gorm:"not null" json:"name"`
	Code      string    `gorm:"uniqueIndex;not null" json:"code"`
	ClassID   uint      `gorm:"index" json:"classId"`
}

// Schema is the evaluation blueprint for a subject. NumberOfPage is the
// page count every booklet must have to be accepted.
type Schema struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Name           string    `gorm:"not null" json:"name"`
	TotalQuestions int       `json:"totalQuestions"`
	MaxMarks       float64   `json:"maxMarks"`
	MinMarks       float64   `json:"minMarks"`
	NumberOfPage   int       `gorm:"not null" json:"numberOfPage"`
	IsActive       bool      `gorm:"default:true" json:"isActive"`
}

// ExpectedPageCount returns the page count booklets are validated against.
func (s Schema) ExpectedPageCount() int {
	return s.NumberOfPage
}

// SubjectSchemaRelation binds a Subject to a Schema and records the master
// question/answer PDFs and their extracted image counts.
type SubjectSchemaRelation struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
	SubjectID             uint      `gorm:"not null;uniqueIndex:idx_relation_name" json:"subjectId"`
	SchemaID              uint      `gorm:"not null;uniqueIndex:idx_relation_name" json:"schemaId"`
	RelationName          string    `gorm:"not null;uniqueIndex:idx_relation_name" json:"relationName"`
	QuestionPdfPath       string    `json:"questionPdfPath"`
	AnswerPdfPath         string    `json:"answerPdfPath"`
	CountOfQuestionImages int       `json:"countOfQuestionImages"`
	CountOfAnswerImages   int       `json:"countOfAnswerImages"`
	CoordinateStatus      bool      `gorm:"default:false" json:"coordinateStatus"`

	Subject Subject `gorm:"foreignKey:SubjectID;constraint:OnDelete:CASCADE" json:"subject,omitempty"`
	Schema  Schema  `gorm:"foreignKey:SchemaID;constraint:OnDelete:CASCADE" json:"schema,omitempty"`
}

var (
	ErrMinAboveMax     = errors.New("minMarks must be less than or equal to maxMarks")
	ErrParentRequired  = errors.New("sub-question must reference a parent question")
	ErrParentNotFound  = errors.New("parent question not found under the same schema")
	ErrParentIsSubPart = errors.New("parent question cannot itself be a sub-question")
)

// QuestionDefinition is one gradeable question or sub-question of a Schema.
type QuestionDefinition struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
	SchemaID               uint      `gorm:"not null;index" json:"schemaId"`
	QuestionsName          string    `gorm:"not null" json:"questionsName"`
	MaxMarks               float64   `gorm:"not null" json:"maxMarks"`
	MinMarks               float64   `gorm:"not null" json:"minMarks"`
	IsSubQuestion          bool      `gorm:"default:false" json:"isSubQuestion"`
	ParentQuestionID       *uint     `gorm:"index" json:"parentQuestionId"`
	BonusMarks             float64   `gorm:"default:0" json:"bonusMarks"`
	MarksDifference        float64   `gorm:"default:0" json:"marksDifference"`
	NumberOfSubQuestions   int       `gorm:"default:0" json:"numberOfSubQuestions"`
	CompulsorySubQuestions int       `gorm:"default:0" json:"compulsorySubQuestions"`
}

// Validate checks the marks envelope and the parent reference.
func (q *QuestionDefinition) Validate(tx *gorm.DB) error {
	if q.MinMarks > q.MaxMarks {
		return ErrMinAboveMax
	}
	if !q.IsSubQuestion {
		return nil
	}
	if q.ParentQuestionID == nil {
		return ErrParentRequired
	}

	var parent QuestionDefinition
	err := tx.Session(&gorm.Session{NewDB: true}).
		Where("id = ? AND schema_id = ?", *q.ParentQuestionID, q.SchemaID).
		First(&parent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrParentNotFound
	}
	if err != nil {
		return err
	}
	if parent.IsSubQuestion {
		return ErrParentIsSubPart
	}
	return nil
}

func (q *QuestionDefinition) BeforeSave(tx *gorm.DB) error {
	return q.Validate(tx)
}

// MaxAllotted is the highest total a booklet can be given for the question.
func (q QuestionDefinition) MaxAllotted() float64 {
	return q.MaxMarks + q.BonusMarks
}
