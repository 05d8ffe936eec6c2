// Package curation supports the human review loop: exporting corrected
// answers and taught questions, approving taught answers, and proposing
// intents for them.
package curation

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bankbot/internal/storage/sqlite"

	"gopkg.in/yaml.v3"
)

type Export struct {
	GeneratedAt      time.Time         `yaml:"generated_at"`
	CorrectedAnswers []CorrectedAnswer `yaml:"corrected_answers"`
	PendingTaughtQA  []TaughtAnswer    `yaml:"pending_taught_answers"`
	Suggestions      []Suggestion      `yaml:"suggestions,omitempty"`
}

type CorrectedAnswer struct {
	FeedbackID    int64     `yaml:"feedback_id"`
	InteractionID int64     `yaml:"interaction_id"`
	Question      string    `yaml:"question"`
	Answer        string    `yaml:"corrected_answer"`
	CreatedAt     time.Time `yaml:"created_at"`
}

type TaughtAnswer struct {
	ID        int64     `yaml:"id"`
	Question  string    `yaml:"question"`
	Answer    string    `yaml:"answer"`
	CreatedAt time.Time `yaml:"created_at"`
}

// BuildExport collects everything awaiting human review.
func BuildExport(db *sql.DB, now time.Time) (*Export, error) {
	answers, err := sqlite.ListCorrectedAnswers(db)
	if err != nil {
		return nil, fmt.Errorf("list corrected answers: %w", err)
	}
	pending, err := sqlite.ListTaughtQA(db, true)
	if err != nil {
		return nil, fmt.Errorf("list taught answers: %w", err)
	}

	exp := &Export{GeneratedAt: now.UTC()}
	for _, a := range answers {
		exp.CorrectedAnswers = append(exp.CorrectedAnswers, CorrectedAnswer{
			FeedbackID:    a.FeedbackID,
			InteractionID: a.InteractionID,
			Question:      a.UserText,
			Answer:        a.CorrectedAnswer,
			CreatedAt:     a.CreatedAt,
		})
	}
	for _, qa := range pending {
		exp.PendingTaughtQA = append(exp.PendingTaughtQA, TaughtAnswer{
			ID:        qa.ID,
			Question:  qa.Question,
			Answer:    qa.Answer,
			CreatedAt: qa.CreatedAt,
		})
	}
	return exp, nil
}

// WriteExport writes exp as YAML into dir and returns the file path.
func WriteExport(dir string, exp *Export) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	data, err := yaml.Marshal(exp)
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("curation_%s.yaml", exp.GeneratedAt.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func LoadExport(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	var exp Export
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse export yaml: %w", err)
	}
	return &exp, nil
}

// Approve marks a taught answer as reviewed. Training does not read the flag.
func Approve(db *sql.DB, id int64) error {
	return sqlite.ApproveTaughtQA(db, id)
}
