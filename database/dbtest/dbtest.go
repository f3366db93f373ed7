// Package dbtest opens throwaway databases for package tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sahilchouksey/booklet-evaluation/database"
	"github.com/sahilchouksey/booklet-evaluation/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated in-memory database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// Fixture is a subject bound to a schema with two questions, the second a
// sub-question of the first.
type Fixture struct {
	Subject   model.Subject
	Schema    model.Schema
	Relation  model.SubjectSchemaRelation
	Questions []model.QuestionDefinition
}

// Seed inserts a Fixture for subjectCode whose schema expects pages pages.
func Seed(t testing.TB, db *gorm.DB, subjectCode string, pages int) *Fixture {
	t.Helper()

	f := &Fixture{
		Subject: model.Subject{Name: "Subject " + subjectCode, Code: subjectCode},
		Schema:  model.Schema{Name: "Schema " + subjectCode, TotalQuestions: 2, MaxMarks: 100, NumberOfPage: pages, IsActive: true},
	}
	if err := db.Create(&f.Subject).Error; err != nil {
		t.Fatalf("failed to seed subject: %v", err)
	}
	if err := db.Create(&f.Schema).Error; err != nil {
		t.Fatalf("failed to seed schema: %v", err)
	}

	f.Relation = model.SubjectSchemaRelation{
		SubjectID:    f.Subject.ID,
		SchemaID:     f.Schema.ID,
		RelationName: "default",
	}
	if err := db.Create(&f.Relation).Error; err != nil {
		t.Fatalf("failed to seed relation: %v", err)
	}

	q1 := model.QuestionDefinition{SchemaID: f.Schema.ID, QuestionsName: "Q1", MaxMarks: 20, BonusMarks: 2}
	if err := db.Create(&q1).Error; err != nil {
		t.Fatalf("failed to seed question: %v", err)
	}
	q1a := model.QuestionDefinition{SchemaID: f.Schema.ID, QuestionsName: "Q1a", MaxMarks: 5, IsSubQuestion: true, ParentQuestionID: &q1.ID}
	if err := db.Create(&q1a).Error; err != nil {
		t.Fatalf("failed to seed sub-question: %v", err)
	}
	f.Questions = []model.QuestionDefinition{q1, q1a}
	return f
}
