package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bankbot/internal/domain"
)

// SeedData is a batch of knowledge-base rows written by SeedKnowledge.
type SeedData struct {
	Intents   []domain.Intent
	Examples  []domain.IntentExample
	Smalltalk []domain.SmalltalkRule
	Facts     []domain.Fact
}

type SeedResult struct {
	Intents   int
	Examples  int
	Smalltalk int
	Facts     int
}

// SeedKnowledge inserts seed rows in one transaction. Existing examples,
// smalltalk patterns and facts are left untouched, so seeding twice is a no-op.
func SeedKnowledge(db *sql.DB, data SeedData) (SeedResult, error) {
	var res SeedResult
	tx, err := db.Begin()
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	intentStmt, err := tx.Prepare(
		`INSERT INTO intents (name, description) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET description = excluded.description
		 WHERE excluded.description != ''`,
	)
	if err != nil {
		return res, err
	}
	defer intentStmt.Close()
	for _, in := range data.Intents {
		r, err := intentStmt.Exec(strings.TrimSpace(in.Name), in.Description)
		if err != nil {
			return res, fmt.Errorf("seed intent %q: %w", in.Name, err)
		}
		res.Intents += affected(r)
	}

	exampleStmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO intent_examples (intent_id, example)
		 SELECT id, ? FROM intents WHERE name = ?`,
	)
	if err != nil {
		return res, err
	}
	defer exampleStmt.Close()
	for _, ex := range data.Examples {
		r, err := exampleStmt.Exec(strings.TrimSpace(ex.Example), ex.IntentName)
		if err != nil {
			return res, fmt.Errorf("seed example %q: %w", ex.Example, err)
		}
		res.Examples += affected(r)
	}

	smalltalkStmt, err := tx.Prepare(`INSERT OR IGNORE INTO smalltalk (pattern, response) VALUES (?, ?)`)
	if err != nil {
		return res, err
	}
	defer smalltalkStmt.Close()
	for _, rule := range data.Smalltalk {
		r, err := smalltalkStmt.Exec(rule.Pattern, rule.Response)
		if err != nil {
			return res, fmt.Errorf("seed smalltalk %q: %w", rule.Pattern, err)
		}
		res.Smalltalk += affected(r)
	}

	factStmt, err := tx.Prepare(`INSERT OR IGNORE INTO facts (key, value) VALUES (?, ?)`)
	if err != nil {
		return res, err
	}
	defer factStmt.Close()
	for _, f := range data.Facts {
		r, err := factStmt.Exec(f.Key, f.Value)
		if err != nil {
			return res, fmt.Errorf("seed fact %q: %w", f.Key, err)
		}
		res.Facts += affected(r)
	}

	return res, tx.Commit()
}

func affected(r sql.Result) int {
	n, err := r.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

// --- Intents ---

func ListIntents(db *sql.DB) ([]domain.Intent, error) {
	rows, err := db.Query(`SELECT name, description FROM intents ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Intent
	for rows.Next() {
		var in domain.Intent
		if err := rows.Scan(&in.Name, &in.Description); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func IntentExists(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM intents WHERE name = ?`, name).Scan(&count)
	return count > 0, err
}

func UpsertIntent(db *sql.DB, in domain.Intent) error {
	_, err := db.Exec(
		`INSERT INTO intents (name, description) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET description = excluded.description
		 WHERE excluded.description != ''`,
		in.Name, in.Description,
	)
	return err
}

// AddIntentExample stores example under an existing intent. It reports
// false when the example was already present.
func AddIntentExample(db *sql.DB, intentName, example string) (bool, error) {
	ok, err := IntentExists(db, intentName)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrUnknownIntent, intentName)
	}
	r, err := db.Exec(
		`INSERT OR IGNORE INTO intent_examples (intent_id, example)
		 SELECT id, ? FROM intents WHERE name = ?`,
		strings.TrimSpace(example), intentName,
	)
	if err != nil {
		return false, err
	}
	return affected(r) > 0, nil
}

// ListIntentExamples returns every example joined with its intent name.
func ListIntentExamples(db *sql.DB) ([]domain.IntentExample, error) {
	rows, err := db.Query(
		`SELECT ie.id, i.name, ie.example
		 FROM intent_examples ie
		 JOIN intents i ON i.id = ie.intent_id
		 ORDER BY i.name, ie.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IntentExample
	for rows.Next() {
		var ex domain.IntentExample
		if err := rows.Scan(&ex.ID, &ex.IntentName, &ex.Example); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// --- Smalltalk ---

// ListSmalltalkRules returns rules in insertion order, which is also the
// match priority.
func ListSmalltalkRules(db *sql.DB) ([]domain.SmalltalkRule, error) {
	rows, err := db.Query(`SELECT id, pattern, response FROM smalltalk ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SmalltalkRule
	for rows.Next() {
		var r domain.SmalltalkRule
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Response); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Facts ---

func GetFact(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM facts WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", domain.ErrFactNotFound, key)
	}
	return value, err
}

func SetFact(db *sql.DB, key, value string) error {
	_, err := db.Exec(
		`INSERT INTO facts (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

func ListFacts(db *sql.DB) ([]domain.Fact, error) {
	rows, err := db.Query(`SELECT key, value, updated_at FROM facts ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Fact
	for rows.Next() {
		var f domain.Fact
		if err := rows.Scan(&f.Key, &f.Value, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Taught answers ---

func InsertTaughtQA(db *sql.DB, question, answer string) (int64, error) {
	r, err := db.Exec(
		`INSERT INTO user_learned_qa (question, answer, approved) VALUES (?, ?, 0)`,
		question, answer,
	)
	if err != nil {
		return 0, err
	}
	return r.LastInsertId()
}

func ListTaughtQA(db *sql.DB, onlyUnapproved bool) ([]domain.TaughtQA, error) {
	query := `SELECT id, question, answer, approved, created_at FROM user_learned_qa`
	if onlyUnapproved {
		query += ` WHERE approved = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TaughtQA
	for rows.Next() {
		var qa domain.TaughtQA
		if err := rows.Scan(&qa.ID, &qa.Question, &qa.Answer, &qa.Approved, &qa.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, qa)
	}
	return out, rows.Err()
}

func ApproveTaughtQA(db *sql.DB, id int64) error {
	r, err := db.Exec(`UPDATE user_learned_qa SET approved = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected(r) == 0 {
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM user_learned_qa WHERE id = ?`, id).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: id=%d", domain.ErrTaughtQANotFound, id)
		}
	}
	return nil
}
