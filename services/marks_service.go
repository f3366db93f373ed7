package services

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/utils/apperror"
	"github.com/sahilchouksey/booklet-evaluation/utils/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarksService edits the per-question totals directly
type MarksService struct {
	db *gorm.DB
}

// NewMarksService creates a new marks service
func NewMarksService(db *gorm.DB) *MarksService {
	return &MarksService{db: db}
}

// CreateMarksRequest opens the ledger of one (AnswerPdf, question) pair
type CreateMarksRequest struct {
	AnswerPdfID          uint    `json:"answerPdfId" validate:"required"`
	QuestionDefinitionID uint    `json:"questionDefinitionId" validate:"required"`
	AllottedMarks        float64 `json:"allottedMarks" validate:"gte=0"`
	TimeStamps           string  `json:"timeStamps"`
	IsMarked             bool    `json:"isMarked"`
}

// UpdateMarksRequest overwrites a total
type UpdateMarksRequest struct {
	AllottedMarks *float64 `json:"allottedMarks" validate:"required,gte=0"`
	TimeStamps    *string  `json:"timeStamps"`
	IsMarked      *bool    `json:"isMarked"`
}

// CreateMarks inserts the Marks row of a pair. The pair must not exist yet.
func (s *MarksService) CreateMarks(ctx context.Context, req CreateMarksRequest) (*model.Marks, error) {
	if err := validation.Check(req); err != nil {
		return nil, err
	}

	marks := model.Marks{
		AnswerPdfID:          req.AnswerPdfID,
		QuestionDefinitionID: req.QuestionDefinitionID,
		AllottedMarks:        req.AllottedMarks,
		TimeStamps:           req.TimeStamps,
		IsMarked:             req.IsMarked,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&model.AnswerPdf{}, req.AnswerPdfID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("Answer PDF not found: %d", req.AnswerPdfID)
			}
			return err
		}
		question, err := findQuestion(tx, req.QuestionDefinitionID)
		if err != nil {
			return err
		}
		if req.AllottedMarks > question.MaxAllotted() {
			return apperror.Validation("allottedMarks cannot exceed %.2f", question.MaxAllotted())
		}

		var count int64
		if err := tx.Model(&model.Marks{}).
			Where("answer_pdf_id = ? AND question_definition_id = ?", req.AnswerPdfID, req.QuestionDefinitionID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperror.Conflict("Marks already exist for answer PDF %d and question %d", req.AnswerPdfID, req.QuestionDefinitionID)
		}
		return translateWriteError(tx.Create(&marks).Error, "marks row")
	})
	if err != nil {
		return nil, err
	}
	return &marks, nil
}

// UpdateMarks overwrites a total. It may not exceed the question's maximum
// plus bonus.
func (s *MarksService) UpdateMarks(ctx context.Context, id uint, req UpdateMarksRequest) (*model.Marks, error) {
	if err := validation.Check(req); err != nil {
		return nil, err
	}

	var marks model.Marks
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&marks, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("Marks not found: %d", id)
			}
			return err
		}
		question, err := findQuestion(tx, marks.QuestionDefinitionID)
		if err != nil {
			return err
		}
		if *req.AllottedMarks > question.MaxAllotted() {
			return apperror.Validation("allottedMarks cannot exceed %.2f", question.MaxAllotted())
		}

		marks.AllottedMarks = *req.AllottedMarks
		marks.IsMarked = true
		if req.IsMarked != nil {
			marks.IsMarked = *req.IsMarked
		}
		if req.TimeStamps != nil {
			marks.TimeStamps = *req.TimeStamps
		}
		return tx.Save(&marks).Error
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[LEDGER] marks %d set to %.2f", marks.ID, marks.AllottedMarks)
	return &marks, nil
}

// GetMarksByAnswerPdf lists every total of one booklet.
func (s *MarksService) GetMarksByAnswerPdf(ctx context.Context, answerPdfID uint) ([]model.Marks, error) {
	var marks []model.Marks
	err := s.db.WithContext(ctx).Where("answer_pdf_id = ?", answerPdfID).Order("question_definition_id").Find(&marks).Error
	return marks, err
}

func findQuestion(tx *gorm.DB, id uint) (*model.QuestionDefinition, error) {
	var question model.QuestionDefinition
	if err := tx.First(&question, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Question definition not found: %d", id)
		}
		return nil, err
	}
	return &question, nil
}
