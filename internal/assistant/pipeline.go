// Package assistant resolves user messages to answers and records the
// conversation for later retraining.
package assistant

import (
	"context"
	"database/sql"
	"fmt"

	"bankbot/internal/classifier"
	"bankbot/internal/domain"
	"bankbot/internal/nlp"
	"bankbot/internal/storage/sqlite"

	"go.uber.org/zap"
)

// Pipeline runs normalize, smalltalk, classify, gate and answer for one
// message. It holds no per-call state.
type Pipeline struct {
	db         *sql.DB
	normalizer *nlp.Normalizer
	holder     *classifier.Holder
	threshold  float64
	logger     *zap.Logger
}

func NewPipeline(db *sql.DB, normalizer *nlp.Normalizer, holder *classifier.Holder, threshold float64, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		db:         db,
		normalizer: normalizer,
		holder:     holder,
		threshold:  threshold,
		logger:     logger.Named("pipeline"),
	}
}

// Resolve never calls the classifier when a smalltalk rule matches. Below the
// confidence threshold the resolution carries no intent and no answer; an
// intent without an answer rule carries its label and no answer.
func (p *Pipeline) Resolve(ctx context.Context, text string) (domain.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return domain.Resolution{}, err
	}
	normalized := p.normalizer.Normalize(text)

	rules, err := sqlite.ListSmalltalkRules(p.db)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("load smalltalk rules: %w", err)
	}
	if reply, ok := MatchSmalltalk(rules, normalized); ok {
		return domain.Resolution{
			Intent:     domain.SmalltalkIntent,
			Answer:     reply,
			Confidence: 1.0,
			Normalized: normalized,
			Smalltalk:  true,
		}, nil
	}

	model, err := p.holder.Current()
	if err != nil {
		return domain.Resolution{}, err
	}
	label, prob := model.Top(normalized)
	res := domain.Resolution{Confidence: prob, Normalized: normalized}
	if prob < p.threshold {
		p.logger.Debug("below confidence threshold",
			zap.String("best", label),
			zap.Float64("confidence", prob),
			zap.Float64("threshold", p.threshold),
		)
		return res, nil
	}

	res.Intent = label
	if !HasAnswer(label) {
		p.logger.Debug("intent has no answer rule", zap.String("intent", label))
		return res, nil
	}
	answer, err := Answer(p.db, label)
	if err != nil {
		return domain.Resolution{}, err
	}
	res.Answer = answer
	return res, nil
}

func (p *Pipeline) Threshold() float64 {
	return p.threshold
}
