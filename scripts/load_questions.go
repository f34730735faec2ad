// Question bank loader.
//
// Reads a JSON file of questions, inserts them into the bank and drops the
// cached division pools. Run after deployment or whenever the bank content
// changes.
//
// Usage: go run scripts/load_questions.go -file questions.json

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"crew_assessment_backend/internal/config"
	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/repository"
	"crew_assessment_backend/internal/service"
	"crew_assessment_backend/pkg/database"
	"crew_assessment_backend/pkg/logger"
)

// bankEntry is the loader file format. Unlike the API model it carries the
// grading fields in plain JSON.
type bankEntry struct {
	ModuleType       string            `json:"moduleType"`
	Division         string            `json:"division"`
	Department       string            `json:"department"`
	ScenarioID       string            `json:"scenarioId"`
	QuestionType     string            `json:"questionType"`
	Text             string            `json:"text"`
	Options          []string          `json:"options"`
	CorrectAnswer    string            `json:"correctAnswer"`
	ExpectedKeywords []string          `json:"expectedKeywords"`
	CategoryPairs    map[string]string `json:"categoryPairs"`
	AudioFilePath    string            `json:"audioFile"`
	Points           int               `json:"points"`
	IsSafetyRelated  bool              `json:"isSafetyRelated"`
}

func main() {
	file := flag.String("file", "questions.json", "path to the question bank JSON file")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, false)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read question file: %v", err)
	}

	var entries []bankEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Fatalf("Failed to parse question file: %v", err)
	}

	questions := make([]model.Question, 0, len(entries))
	for i, entry := range entries {
		division, err := model.ParseDivision(entry.Division)
		if err != nil {
			log.Fatalf("Entry %d: %v", i, err)
		}
		moduleType, err := model.ParseModuleType(entry.ModuleType)
		if err != nil {
			log.Fatalf("Entry %d: %v", i, err)
		}
		if entry.Points <= 0 {
			log.Fatalf("Entry %d: points must be positive", i)
		}

		q := model.Question{
			ModuleType:      moduleType,
			Division:        division,
			Department:      entry.Department,
			ScenarioID:      entry.ScenarioID,
			QuestionType:    model.QuestionType(entry.QuestionType),
			Text:            entry.Text,
			CorrectAnswer:   entry.CorrectAnswer,
			AudioFilePath:   entry.AudioFilePath,
			Points:          entry.Points,
			IsSafetyRelated: entry.IsSafetyRelated,
		}
		if len(entry.Options) > 0 {
			q.Options, _ = json.Marshal(entry.Options)
		}
		if len(entry.ExpectedKeywords) > 0 {
			q.ExpectedKeywords, _ = json.Marshal(entry.ExpectedKeywords)
		}
		if len(entry.CategoryPairs) > 0 {
			q.CategoryPairs, _ = json.Marshal(entry.CategoryPairs)
		}
		questions = append(questions, q)
	}

	questionService := service.NewQuestionService(repository.NewQuestionRepository(db, rdb))
	if err := questionService.Import(context.Background(), questions); err != nil {
		log.Fatalf("Failed to import questions: %v", err)
	}

	log.Printf("Imported %d questions", len(questions))
}
