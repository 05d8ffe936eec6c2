package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bankbot/internal/domain"
)

// --- Interactions ---

func InsertInteraction(db *sql.DB, it domain.Interaction) (int64, error) {
	if it.Confidence < 0 || it.Confidence > 1 {
		return 0, fmt.Errorf("confidence %.4f out of range [0,1]", it.Confidence)
	}
	r, err := db.Exec(
		`INSERT INTO interactions (user_text, intent, confidence, answer) VALUES (?, ?, ?, ?)`,
		it.UserText, nullString(it.Intent), it.Confidence, it.Answer,
	)
	if err != nil {
		return 0, err
	}
	return r.LastInsertId()
}

func GetInteraction(db *sql.DB, id int64) (domain.Interaction, error) {
	var it domain.Interaction
	var intent sql.NullString
	err := db.QueryRow(
		`SELECT id, user_text, intent, confidence, answer, created_at
		 FROM interactions WHERE id = ?`,
		id,
	).Scan(&it.ID, &it.UserText, &intent, &it.Confidence, &it.Answer, &it.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return it, fmt.Errorf("%w: id=%d", domain.ErrInteractionNotFound, id)
	}
	it.Intent = intent.String
	return it, err
}

// --- Feedback ---

// InsertFeedback records feedback against an existing interaction.
func InsertFeedback(db *sql.DB, fb domain.Feedback) (int64, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM interactions WHERE id = ?`, fb.InteractionID).Scan(&count); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: id=%d", domain.ErrInteractionNotFound, fb.InteractionID)
	}

	var helpful sql.NullBool
	if fb.Helpful != nil {
		helpful = sql.NullBool{Bool: *fb.Helpful, Valid: true}
	}
	r, err := db.Exec(
		`INSERT INTO feedback (interaction_id, helpful, correction_intent, corrected_answer, approved)
		 VALUES (?, ?, ?, ?, ?)`,
		fb.InteractionID, helpful, nullString(fb.CorrectionIntent), nullString(fb.CorrectedAnswer), fb.Approved,
	)
	if err != nil {
		return 0, err
	}
	return r.LastInsertId()
}

// ListApprovedCorrections returns approved feedback that names a correction
// intent, in insertion order. These rows become extra training examples.
func ListApprovedCorrections(db *sql.DB) ([]domain.FeedbackCorrection, error) {
	return queryCorrections(db,
		`WHERE f.approved = 1 AND f.correction_intent IS NOT NULL AND f.correction_intent != ''`)
}

// ListCorrectedAnswers returns feedback carrying a better answer text. These
// never feed training; curators review them through the export.
func ListCorrectedAnswers(db *sql.DB) ([]domain.FeedbackCorrection, error) {
	return queryCorrections(db,
		`WHERE f.corrected_answer IS NOT NULL AND f.corrected_answer != ''`)
}

func queryCorrections(db *sql.DB, where string) ([]domain.FeedbackCorrection, error) {
	rows, err := db.Query(
		`SELECT f.id, f.interaction_id, i.user_text, f.correction_intent, f.corrected_answer, f.helpful, f.created_at
		 FROM feedback f
		 JOIN interactions i ON i.id = f.interaction_id ` + where + `
		 ORDER BY f.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FeedbackCorrection
	for rows.Next() {
		var c domain.FeedbackCorrection
		var intent, answer sql.NullString
		var helpful sql.NullBool
		if err := rows.Scan(&c.FeedbackID, &c.InteractionID, &c.UserText, &intent, &answer, &helpful, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CorrectionIntent = intent.String
		c.CorrectedAnswer = answer.String
		if helpful.Valid {
			h := helpful.Bool
			c.Helpful = &h
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Stats ---

// GetInteractionStats counts activity since the given time. Confidence
// buckets start at threshold so "below threshold" matches the live gate;
// the 0.70 and 0.90 edges never fall below it.
func GetInteractionStats(db *sql.DB, since time.Time, threshold float64) (domain.InteractionStats, error) {
	s := domain.InteractionStats{Threshold: threshold}
	sinceStr := sqliteTime(since)
	mid, high := max(threshold, 0.70), max(threshold, 0.90)

	err := db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN intent IS NULL OR intent = '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN intent = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(confidence), 0),
		        COALESCE(SUM(CASE WHEN confidence < ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= ? AND confidence < ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= ? AND confidence < ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= ? THEN 1 ELSE 0 END), 0)
		 FROM interactions WHERE created_at >= ?`,
		domain.SmalltalkIntent, threshold, threshold, mid, mid, high, high, sinceStr,
	).Scan(&s.TotalInteractions, &s.Unresolved, &s.Smalltalk, &s.AvgConfidence,
		&s.BucketBelowThreshold, &s.BucketThresholdTo70, &s.Bucket70to90, &s.Bucket90Plus)
	if err != nil {
		return s, err
	}

	err = db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN helpful = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN helpful = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN correction_intent IS NOT NULL AND correction_intent != '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN corrected_answer IS NOT NULL AND corrected_answer != '' THEN 1 ELSE 0 END), 0)
		 FROM feedback WHERE created_at >= ?`,
		sinceStr,
	).Scan(&s.TotalFeedback, &s.Helpful, &s.Unhelpful, &s.Corrections, &s.CorrectedAnswers)
	if err != nil {
		return s, err
	}

	err = db.QueryRow(`SELECT COUNT(*) FROM user_learned_qa WHERE approved = 0`).Scan(&s.PendingTaughtQA)
	return s, err
}

// GetCorrectionsByIntent groups correction feedback by the intent originally
// predicted and the intent the user asked for, most frequent first.
func GetCorrectionsByIntent(db *sql.DB, since time.Time, limit int) ([]domain.IntentCorrectionStat, error) {
	rows, err := db.Query(
		`SELECT COALESCE(i.intent, ''), f.correction_intent, COUNT(*) AS cnt
		 FROM feedback f
		 JOIN interactions i ON i.id = f.interaction_id
		 WHERE f.correction_intent IS NOT NULL AND f.correction_intent != ''
		   AND f.created_at >= ?
		 GROUP BY COALESCE(i.intent, ''), f.correction_intent
		 ORDER BY cnt DESC, f.correction_intent
		 LIMIT ?`,
		sqliteTime(since), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IntentCorrectionStat
	for rows.Next() {
		var s domain.IntentCorrectionStat
		if err := rows.Scan(&s.OriginalIntent, &s.CorrectionIntent, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
