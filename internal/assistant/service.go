package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bankbot/internal/classifier"
	"bankbot/internal/config"
	"bankbot/internal/domain"
	"bankbot/internal/logging"
	"bankbot/internal/storage/sqlite"
	"bankbot/internal/training"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
)

const (
	learnedCandidatePrefix = "[learned candidate] "
	maxIntentSuggestions   = 3
)

// Reply is what a chat surface shows for one turn.
type Reply struct {
	domain.Resolution
	InteractionID int64
}

type FeedbackInput struct {
	InteractionID    int64
	Helpful          *bool
	CorrectionIntent string
	CorrectedAnswer  string
}

// UnknownIntentError is returned when feedback names an intent that does not
// exist and the policy does not allow creating it.
type UnknownIntentError struct {
	Intent      string
	Suggestions []string
}

func (e *UnknownIntentError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown intent %q", e.Intent)
	}
	return fmt.Sprintf("unknown intent %q (did you mean: %s?)", e.Intent, strings.Join(e.Suggestions, ", "))
}

func (e *UnknownIntentError) Unwrap() error {
	return domain.ErrUnknownIntent
}

type Stats struct {
	domain.InteractionStats
	CorrectionsByIntent []domain.IntentCorrectionStat
	ModelID             string
	ModelTrainedAt      time.Time
}

// Service is the entry point shared by the HTTP API, the REPL and Slack.
type Service struct {
	db        *sql.DB
	pipeline  *Pipeline
	holder    *classifier.Holder
	retrainer *training.Retrainer
	policy    string
	logger    *zap.Logger
}

func NewService(db *sql.DB, pipeline *Pipeline, holder *classifier.Holder, retrainer *training.Retrainer, policy string, logger *zap.Logger) *Service {
	if policy == "" {
		policy = config.PolicyReject
	}
	return &Service{
		db:        db,
		pipeline:  pipeline,
		holder:    holder,
		retrainer: retrainer,
		policy:    policy,
		logger:    logger.Named("assistant"),
	}
}

// Ask resolves text and records the turn as an interaction.
func (s *Service) Ask(ctx context.Context, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}
	res, err := s.pipeline.Resolve(ctx, text)
	if err != nil {
		return Reply{}, err
	}
	id, err := sqlite.InsertInteraction(s.db, domain.Interaction{
		UserText:   text,
		Intent:     res.Intent,
		Confidence: res.Confidence,
		Answer:     res.Answer,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("record interaction: %w", err)
	}
	s.logger.Info("answered",
		zap.Int64("interaction_id", id),
		zap.String("text", logging.Truncate(text, 80)),
		zap.String("intent", res.Intent),
		zap.Float64("confidence", res.Confidence),
		zap.Bool("smalltalk", res.Smalltalk),
		zap.Bool("unsure", res.Unsure()),
	)
	return Reply{Resolution: res, InteractionID: id}, nil
}

// Teach stores a user-supplied answer for an unresolved question as a taught
// candidate and logs the exchange as an unresolved interaction.
func (s *Service) Teach(ctx context.Context, question, answer string, confidence float64) (int64, error) {
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return 0, fmt.Errorf("%w: question and answer are both required", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if confidence < 0 || confidence > 1 {
		confidence = 0
	}
	qaID, err := sqlite.InsertTaughtQA(s.db, question, answer)
	if err != nil {
		return 0, fmt.Errorf("record taught answer: %w", err)
	}
	id, err := sqlite.InsertInteraction(s.db, domain.Interaction{
		UserText:   question,
		Confidence: confidence,
		Answer:     learnedCandidatePrefix + answer,
	})
	if err != nil {
		return 0, fmt.Errorf("record interaction: %w", err)
	}
	s.logger.Info("taught answer recorded", zap.Int64("taught_id", qaID), zap.Int64("interaction_id", id))
	return id, nil
}

// RecordFeedback stores feedback for an interaction. A correction intent
// that does not exist is rejected with suggestions, or created when the
// policy is grow.
func (s *Service) RecordFeedback(ctx context.Context, in FeedbackInput) (int64, error) {
	in.CorrectionIntent = strings.TrimSpace(in.CorrectionIntent)
	in.CorrectedAnswer = strings.TrimSpace(in.CorrectedAnswer)
	if in.Helpful == nil && in.CorrectionIntent == "" && in.CorrectedAnswer == "" {
		return 0, fmt.Errorf("%w: feedback carries no rating, intent or answer", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if in.CorrectionIntent != "" {
		if err := s.checkCorrectionIntent(in.CorrectionIntent); err != nil {
			return 0, err
		}
	}

	id, err := sqlite.InsertFeedback(s.db, domain.Feedback{
		InteractionID:    in.InteractionID,
		Helpful:          in.Helpful,
		CorrectionIntent: in.CorrectionIntent,
		CorrectedAnswer:  in.CorrectedAnswer,
		Approved:         true,
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("feedback recorded",
		zap.Int64("feedback_id", id),
		zap.Int64("interaction_id", in.InteractionID),
		zap.String("correction_intent", in.CorrectionIntent),
		zap.Bool("corrected_answer", in.CorrectedAnswer != ""),
	)
	return id, nil
}

func (s *Service) checkCorrectionIntent(name string) error {
	if name == domain.SmalltalkIntent {
		return &UnknownIntentError{Intent: name}
	}
	ok, err := sqlite.IntentExists(s.db, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if s.policy == config.PolicyGrow {
		if err := sqlite.UpsertIntent(s.db, domain.Intent{Name: name}); err != nil {
			return fmt.Errorf("create intent %s: %w", name, err)
		}
		s.logger.Info("created intent from feedback", zap.String("intent", name))
		return nil
	}
	suggestions, err := s.SuggestIntents(name)
	if err != nil {
		return err
	}
	return &UnknownIntentError{Intent: name, Suggestions: suggestions}
}

// SuggestIntents fuzzy-matches name against the known intent names.
func (s *Service) SuggestIntents(name string) ([]string, error) {
	intents, err := sqlite.ListIntents(s.db)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(intents))
	for i, in := range intents {
		names[i] = in.Name
	}
	var out []string
	for _, m := range fuzzy.Find(strings.ToLower(name), names) {
		out = append(out, m.Str)
		if len(out) == maxIntentSuggestions {
			break
		}
	}
	return out, nil
}

func (s *Service) Retrain(ctx context.Context) (classifier.Report, error) {
	_, report, err := s.retrainer.Retrain(ctx)
	return report, err
}

func (s *Service) Stats(ctx context.Context, since time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	base, err := sqlite.GetInteractionStats(s.db, since, s.pipeline.Threshold())
	if err != nil {
		return Stats{}, err
	}
	byIntent, err := sqlite.GetCorrectionsByIntent(s.db, since, 10)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{InteractionStats: base, CorrectionsByIntent: byIntent}
	if m, err := s.holder.Current(); err == nil {
		st.ModelID = m.ID
		st.ModelTrainedAt = m.TrainedAt
	}
	return st, nil
}

func (s *Service) Intents() ([]domain.Intent, error) {
	return sqlite.ListIntents(s.db)
}

func (s *Service) Threshold() float64 {
	return s.pipeline.Threshold()
}
