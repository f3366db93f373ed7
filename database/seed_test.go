package database_test

import (
	"testing"

	"github.com/sahilchouksey/booklet-evaluation/database"
	"github.com/sahilchouksey/booklet-evaluation/database/dbtest"
	"github.com/sahilchouksey/booklet-evaluation/model"
)

func TestRunSeedsIsRepeatable(t *testing.T) {
	db := dbtest.Open(t)

	for i := 0; i < 2; i++ {
		if err := database.RunSeeds(db); err != nil {
			t.Fatalf("RunSeeds #%d returned error: %v", i+1, err)
		}
	}

	var subjects, relations, questions int64
	db.Model(&model.Subject{}).Count(&subjects)
	db.Model(&model.SubjectSchemaRelation{}).Count(&relations)
	db.Model(&model.QuestionDefinition{}).Count(&questions)
	if subjects != 2 || relations != 2 {
		t.Fatalf("Expected 2 subjects and relations, got %d and %d", subjects, relations)
	}
	// CS101: 3 questions + 2 parts, MA201: 2 questions + 2 parts
	if questions != 9 {
		t.Fatalf("Expected 9 question definitions, got %d", questions)
	}

	var part model.QuestionDefinition
	if err := db.Where("questions_name = ?", "Q2b").First(&part).Error; err != nil {
		t.Fatalf("failed to load Q2b: %v", err)
	}
	if !part.IsSubQuestion || part.ParentQuestionID == nil {
		t.Fatalf("Expected Q2b to be a sub-question, got %+v", part)
	}
}
