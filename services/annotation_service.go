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

// AnnotationService places scored icons on page images and keeps the
// per-question Marks ledger in step with them.
//
// Every mutation runs in one transaction and locks the Marks row of the
// (AnswerPdf, QuestionDefinition) pair before touching it, so concurrent
// edits of the same question serialise on that row.
type AnnotationService struct {
	db *gorm.DB
}

// NewAnnotationService creates a new annotation service
func NewAnnotationService(db *gorm.DB) *AnnotationService {
	return &AnnotationService{db: db}
}

// IconRequest is the body of an icon create or update
type IconRequest struct {
	AnswerPdfImageID     uint     `json:"answerPdfImageId" validate:"required"`
	QuestionDefinitionID uint     `json:"questionDefinitionId" validate:"required"`
	IconURL              string   `json:"iconUrl" validate:"required"`
	Question             string   `json:"question"`
	TimeStamps           string   `json:"timeStamps"`
	X                    *float64 `json:"x" validate:"required"`
	Y                    *float64 `json:"y" validate:"required"`
	Width                *float64 `json:"width" validate:"required,gte=0"`
	Height               *float64 `json:"height" validate:"required,gte=0"`
	Mark                 *float64 `json:"mark" validate:"required"`
	Comment              string   `json:"comment"`
}

// IconUpdateRequest changes the geometry, mark or comment of an icon
type IconUpdateRequest struct {
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	Width      *float64 `json:"width" validate:"omitempty,gte=0"`
	Height     *float64 `json:"height" validate:"omitempty,gte=0"`
	Mark       *float64 `json:"mark"`
	Comment    *string  `json:"comment"`
	TimeStamps *string  `json:"timeStamps"`
}

// CreateIcon stores an icon and adds its mark to the question's total,
// creating the Marks row on first use.
func (s *AnnotationService) CreateIcon(ctx context.Context, req IconRequest) (*model.Icon, error) {
	if err := validation.Check(req); err != nil {
		return nil, err
	}

	icon := model.Icon{
		AnswerPdfImageID:     req.AnswerPdfImageID,
		QuestionDefinitionID: req.QuestionDefinitionID,
		IconURL:              req.IconURL,
		Question:             req.Question,
		TimeStamps:           req.TimeStamps,
		X:                    *req.X,
		Y:                    *req.Y,
		Width:                *req.Width,
		Height:               *req.Height,
		Mark:                 *req.Mark,
		Comment:              req.Comment,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		image, err := findImage(tx, req.AnswerPdfImageID)
		if err != nil {
			return err
		}
		if err := tx.Select("id").First(&model.QuestionDefinition{}, req.QuestionDefinitionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("Question definition not found: %d", req.QuestionDefinitionID)
			}
			return err
		}

		marks, err := lockOrCreateMarks(tx, image.AnswerPdfID, req.QuestionDefinitionID)
		if err != nil {
			return err
		}
		if err := tx.Create(&icon).Error; err != nil {
			return err
		}
		return applyDelta(tx, marks, icon.Mark, req.TimeStamps)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[LEDGER] icon %d placed on image %d for question %d (mark %.2f)", icon.ID, icon.AnswerPdfImageID, icon.QuestionDefinitionID, icon.Mark)
	return &icon, nil
}

// UpdateIcon changes an icon. A changed mark moves the question's total by
// the difference.
func (s *AnnotationService) UpdateIcon(ctx context.Context, id uint, req IconUpdateRequest) (*model.Icon, error) {
	if err := validation.Check(req); err != nil {
		return nil, err
	}

	var icon model.Icon
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := findIcon(tx, id)
		if err != nil {
			return err
		}
		image, err := findImage(tx, current.AnswerPdfImageID)
		if err != nil {
			return err
		}
		marks, err := lockOrCreateMarks(tx, image.AnswerPdfID, current.QuestionDefinitionID)
		if err != nil {
			return err
		}
		// Re-read under the Marks lock so oldMark is the committed value.
		locked, err := lockIcon(tx, id)
		if err != nil {
			return err
		}
		icon = *locked
		oldMark := icon.Mark

		if req.X != nil {
			icon.X = *req.X
		}
		if req.Y != nil {
			icon.Y = *req.Y
		}
		if req.Width != nil {
			icon.Width = *req.Width
		}
		if req.Height != nil {
			icon.Height = *req.Height
		}
		if req.Mark != nil {
			icon.Mark = *req.Mark
		}
		if req.Comment != nil {
			icon.Comment = *req.Comment
		}
		if req.TimeStamps != nil {
			icon.TimeStamps = *req.TimeStamps
		}

		if icon.Mark != oldMark {
			if err := applyDelta(tx, marks, icon.Mark-oldMark, icon.TimeStamps); err != nil {
				return err
			}
		}
		return tx.Save(&icon).Error
	})
	if err != nil {
		return nil, err
	}
	return &icon, nil
}

// DeleteIcon removes an icon and subtracts its mark from the question's
// total. The total is not floored at zero. The icon must sit on a page of
// answerPdfID.
func (s *AnnotationService) DeleteIcon(ctx context.Context, iconID, answerPdfID uint) error {
	if iconID == 0 || answerPdfID == 0 {
		return apperror.Validation("iconsId and answerPdfId are required")
	}

	var icon model.Icon
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := findIcon(tx, iconID)
		if err != nil {
			return err
		}
		image, err := findImage(tx, current.AnswerPdfImageID)
		if err != nil {
			return err
		}
		if image.AnswerPdfID != answerPdfID {
			return apperror.Validation("Icon %d does not belong to answer PDF %d", iconID, answerPdfID)
		}

		marks, err := lockMarks(tx, answerPdfID, current.QuestionDefinitionID)
		if err != nil {
			return err
		}
		// A delete or clear that committed while we waited for the lock
		// has already taken this mark off the total.
		locked, err := lockIcon(tx, iconID)
		if err != nil {
			return err
		}
		icon = *locked

		res := tx.Delete(&model.Icon{}, icon.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.NotFound("Icon not found: %d", iconID)
		}
		marks.AllottedMarks -= icon.Mark
		return tx.Model(marks).Update("allotted_marks", marks.AllottedMarks).Error
	})
	if err != nil {
		return err
	}

	log.Infof("[LEDGER] icon %d removed from answer PDF %d (mark %.2f)", iconID, answerPdfID, icon.Mark)
	return nil
}

// ClearAllIconsForQuestion deletes every icon of a question on one image
// and resets the question's total.
func (s *AnnotationService) ClearAllIconsForQuestion(ctx context.Context, imageID, questionID uint) (int64, error) {
	if imageID == 0 || questionID == 0 {
		return 0, apperror.Validation("answerPdfImageId and questionDefinitionId are required")
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		image, err := findImage(tx, imageID)
		if err != nil {
			return err
		}
		marks, err := lockMarks(tx, image.AnswerPdfID, questionID)
		if err != nil {
			return err
		}

		res := tx.Where("answer_pdf_image_id = ? AND question_definition_id = ?", imageID, questionID).Delete(&model.Icon{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected

		return tx.Model(marks).Updates(map[string]interface{}{
			"allotted_marks": 0,
			"is_marked":      false,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	log.Infof("[LEDGER] cleared %d icons of question %d on image %d", deleted, questionID, imageID)
	return deleted, nil
}

// GetIconsByQuestionAndImage lists the icons of a question on one image.
func (s *AnnotationService) GetIconsByQuestionAndImage(ctx context.Context, questionID, imageID uint) ([]model.Icon, error) {
	if questionID == 0 || imageID == 0 {
		return nil, apperror.Validation("questionDefinitionId and answerPdfImageId are required")
	}
	var icons []model.Icon
	err := s.db.WithContext(ctx).
		Where("question_definition_id = ? AND answer_pdf_image_id = ?", questionID, imageID).
		Order("id").Find(&icons).Error
	return icons, err
}

// GetIconByID returns one icon.
func (s *AnnotationService) GetIconByID(ctx context.Context, id uint) (*model.Icon, error) {
	return findIcon(s.db.WithContext(ctx), id)
}

func findIcon(tx *gorm.DB, id uint) (*model.Icon, error) {
	var icon model.Icon
	if err := tx.First(&icon, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Icon not found: %d", id)
		}
		return nil, err
	}
	return &icon, nil
}

// lockIcon re-reads an icon FOR UPDATE. Callers take the Marks lock first.
func lockIcon(tx *gorm.DB, id uint) (*model.Icon, error) {
	return findIcon(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func findImage(tx *gorm.DB, id uint) (*model.AnswerPdfImage, error) {
	var image model.AnswerPdfImage
	if err := tx.First(&image, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Answer PDF image not found: %d", id)
		}
		return nil, err
	}
	return &image, nil
}

// lockMarks loads the Marks row of the pair FOR UPDATE.
func lockMarks(tx *gorm.DB, answerPdfID, questionID uint) (*model.Marks, error) {
	var marks model.Marks
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("answer_pdf_id = ? AND question_definition_id = ?", answerPdfID, questionID).
		First(&marks).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Marks not found for answer PDF %d and question %d", answerPdfID, questionID)
		}
		return nil, err
	}
	return &marks, nil
}

// lockOrCreateMarks is lockMarks that inserts an empty row when the pair
// has none. A concurrent insert of the same pair is resolved by the unique
// index and a second lock.
func lockOrCreateMarks(tx *gorm.DB, answerPdfID, questionID uint) (*model.Marks, error) {
	marks, err := lockMarks(tx, answerPdfID, questionID)
	if err == nil || !errors.Is(err, apperror.ErrNotFound) {
		return marks, err
	}

	if err := tx.Select("id").First(&model.AnswerPdf{}, answerPdfID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Consistency("Image refers to missing answer PDF %d", answerPdfID)
		}
		return nil, err
	}

	created := model.Marks{AnswerPdfID: answerPdfID, QuestionDefinitionID: questionID}
	err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&created).Error
	if err != nil {
		return nil, err
	}
	return lockMarks(tx, answerPdfID, questionID)
}

func applyDelta(tx *gorm.DB, marks *model.Marks, delta float64, timeStamps string) error {
	marks.AllottedMarks += delta
	marks.IsMarked = true
	updates := map[string]interface{}{
		"allotted_marks": marks.AllottedMarks,
		"is_marked":      true,
	}
	if timeStamps != "" {
		updates["time_stamps"] = timeStamps
		marks.TimeStamps = timeStamps
	}
	return tx.Model(marks).Updates(updates).Error
}
