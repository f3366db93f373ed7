package services

import (
	"context"
	"errors"

	"github.com/sahilchouksey/booklet-evaluation/model"
	"github.com/sahilchouksey/booklet-evaluation/utils/apperror"
	"gorm.io/gorm"
)

// AnswerImageService reads page images and records their review state
type AnswerImageService struct {
	db *gorm.DB
}

// NewAnswerImageService creates a new answer image service
func NewAnswerImageService(db *gorm.DB) *AnswerImageService {
	return &AnswerImageService{db: db}
}

// ListImages returns the page images of a booklet in page order.
func (s *AnswerImageService) ListImages(ctx context.Context, answerPdfID uint) ([]model.AnswerPdfImage, error) {
	var pdf model.AnswerPdf
	if err := s.db.WithContext(ctx).Select("id").First(&pdf, answerPdfID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Answer PDF not found: %d", answerPdfID)
		}
		return nil, err
	}

	var images []model.AnswerPdfImage
	err := s.db.WithContext(ctx).Where("answer_pdf_id = ?", answerPdfID).Order("id").Find(&images).Error
	return images, err
}

// UpdateImageStatus sets the review state of one image.
func (s *AnswerImageService) UpdateImageStatus(ctx context.Context, imageID uint, status model.ImageStatus) (*model.AnswerPdfImage, error) {
	if !status.Valid() {
		return nil, apperror.Validation("status must be one of notVisited, visited, reviewed")
	}

	var image model.AnswerPdfImage
	if err := s.db.WithContext(ctx).First(&image, imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Answer PDF image not found: %d", imageID)
		}
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&image).Update("status", status).Error; err != nil {
		return nil, err
	}
	image.Status = status
	return &image, nil
}
