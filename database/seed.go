package database

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"gorm.io/gorm"
)

// Seeder loads sample reference data for local development. In production
// subjects and schemas are maintained by the admin console.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedQuestion is a top-level question with optional sub-questions.
type SeedQuestion struct {
	Name  string
	Max   float64
	Bonus float64
	Parts []SeedQuestion
}

// SeedSubject describes one subject, its schema and question tree.
type SeedSubject struct {
	Code      string
	Name      string
	Pages     int
	MaxMarks  float64
	Questions []SeedQuestion
}

// DefaultSubjects is what RunSeeds loads.
var DefaultSubjects = []SeedSubject{
	{
		Code: "CS101", Name: "Programming Fundamentals", Pages: 16, MaxMarks: 70,
		Questions: []SeedQuestion{
			{Name: "Q1", Max: 14, Parts: []SeedQuestion{{Name: "Q1a", Max: 7}, {Name: "Q1b", Max: 7}}},
			{Name: "Q2", Max: 14, Bonus: 2},
			{Name: "Q3", Max: 14},
		},
	},
	{
		Code: "MA201", Name: "Engineering Mathematics II", Pages: 12, MaxMarks: 70,
		Questions: []SeedQuestion{
			{Name: "Q1", Max: 35},
			{Name: "Q2", Max: 35, Parts: []SeedQuestion{{Name: "Q2a", Max: 20}, {Name: "Q2b", Max: 15}}},
		},
	},
}

// RunSeeds seeds DefaultSubjects.
func RunSeeds(db *gorm.DB) error {
	return NewSeeder(db).SeedAll(DefaultSubjects)
}

// SeedAll seeds every subject. Subjects that already exist are skipped, so
// the seeder can be run repeatedly.
func (s *Seeder) SeedAll(subjects []SeedSubject) error {
	log.Info("Starting database seeding...")
	for _, subject := range subjects {
		if err := s.SeedSubject(subject); err != nil {
			return fmt.Errorf("failed to seed subject %s: %w", subject.Code, err)
		}
	}
	log.Info("Database seeding completed")
	return nil
}

// SeedSubject creates the subject, its schema, the binding relation and the
// question tree in one transaction.
func (s *Seeder) SeedSubject(in SeedSubject) error {
	var existing model.Subject
	err := s.db.Where("code = ?", in.Code).First(&existing).Error
	if err == nil {
		log.Infof("Subject %s already exists, skipping", in.Code)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		subject := model.Subject{Code: in.Code, Name: in.Name}
		if err := tx.Create(&subject).Error; err != nil {
			return err
		}

		total := 0
		for _, q := range in.Questions {
			total += 1 + len(q.Parts)
		}
		schema := model.Schema{
			Name:           in.Name + " end semester",
			TotalQuestions: total,
			MaxMarks:       in.MaxMarks,
			NumberOfPage:   in.Pages,
			IsActive:       true,
		}
		if err := tx.Create(&schema).Error; err != nil {
			return err
		}

		relation := model.SubjectSchemaRelation{SubjectID: subject.ID, SchemaID: schema.ID, RelationName: "default"}
		if err := tx.Create(&relation).Error; err != nil {
			return err
		}

		for _, q := range in.Questions {
			parent := model.QuestionDefinition{
				SchemaID:             schema.ID,
				QuestionsName:        q.Name,
				MaxMarks:             q.Max,
				BonusMarks:           q.Bonus,
				NumberOfSubQuestions: len(q.Parts),
			}
			if err := tx.Create(&parent).Error; err != nil {
				return err
			}
			for _, p := range q.Parts {
				part := model.QuestionDefinition{
					SchemaID:         schema.ID,
					QuestionsName:    p.Name,
					MaxMarks:         p.Max,
					BonusMarks:       p.Bonus,
					IsSubQuestion:    true,
					ParentQuestionID: &parent.ID,
				}
				if err := tx.Create(&part).Error; err != nil {
					return err
				}
			}
		}

		log.Infof("Seeded subject %s with %d questions", in.Code, total)
		return nil
	})
}
