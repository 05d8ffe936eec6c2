// Package training assembles the labeled dataset from the knowledge store
// and publishes freshly trained models.
package training

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"bankbot/internal/classifier"
	"bankbot/internal/domain"
	"bankbot/internal/nlp"
	"bankbot/internal/storage/sqlite"

	"go.uber.org/zap"
)

// AssembleDataset returns every intent example plus every approved
// correction-intent feedback row, each normalized. Feedback that only carries
// a corrected answer is not training data.
func AssembleDataset(db *sql.DB, normalizer *nlp.Normalizer, logger *zap.Logger) ([]domain.TrainingExample, error) {
	examples, err := sqlite.ListIntentExamples(db)
	if err != nil {
		return nil, fmt.Errorf("list intent examples: %w", err)
	}
	corrections, err := sqlite.ListApprovedCorrections(db)
	if err != nil {
		return nil, fmt.Errorf("list approved corrections: %w", err)
	}
	intents, err := sqlite.ListIntents(db)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	known := make(map[string]bool, len(intents))
	for _, in := range intents {
		known[in.Name] = true
	}

	out := make([]domain.TrainingExample, 0, len(examples)+len(corrections))
	for _, ex := range examples {
		out = append(out, domain.TrainingExample{
			Text:  normalizer.Normalize(ex.Example),
			Label: ex.IntentName,
		})
	}
	skipped := 0
	for _, c := range corrections {
		if !known[c.CorrectionIntent] {
			skipped++
			continue
		}
		out = append(out, domain.TrainingExample{
			Text:  normalizer.Normalize(c.UserText),
			Label: c.CorrectionIntent,
		})
	}
	if skipped > 0 {
		logger.Warn("skipped corrections naming unknown intents", zap.Int("count", skipped))
	}
	return out, nil
}

// Retrainer serializes training runs and swaps the live model only after
// the new artifact is safely on disk.
type Retrainer struct {
	db         *sql.DB
	normalizer *nlp.Normalizer
	holder     *classifier.Holder
	modelPath  string
	opts       classifier.Options
	logger     *zap.Logger

	mu sync.Mutex
}

func NewRetrainer(db *sql.DB, normalizer *nlp.Normalizer, holder *classifier.Holder, modelPath string, opts classifier.Options, logger *zap.Logger) *Retrainer {
	return &Retrainer{
		db:         db,
		normalizer: normalizer,
		holder:     holder,
		modelPath:  modelPath,
		opts:       opts,
		logger:     logger.Named("training"),
	}
}

// Retrain fits a new model from the store. On any failure the previously
// loaded model stays live.
func (r *Retrainer) Retrain(ctx context.Context) (*classifier.Model, classifier.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, classifier.Report{}, err
	}

	start := time.Now()
	dataset, err := AssembleDataset(r.db, r.normalizer, r.logger)
	if err != nil {
		return nil, classifier.Report{}, err
	}
	model, report, err := classifier.Train(dataset, r.opts)
	if err != nil {
		r.logger.Warn("training failed, keeping current model", zap.Error(err))
		return nil, report, err
	}
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}
	if err := model.Save(r.modelPath); err != nil {
		r.logger.Error("persisting model failed, keeping current model", zap.Error(err))
		return nil, report, err
	}

	prev := r.holder.Swap(model)
	fields := []zap.Field{
		zap.String("model_id", model.ID),
		zap.Int("examples", len(dataset)),
		zap.Int("labels", len(model.Labels)),
		zap.Float64("holdout_accuracy", report.Accuracy),
		zap.Duration("took", time.Since(start)),
	}
	if prev != nil {
		fields = append(fields, zap.String("replaced", prev.ID))
	}
	r.logger.Info("model retrained", fields...)
	return model, report, nil
}

// Bootstrap prepares the live model at startup: train when asked to, fall
// back to the persisted artifact, and report ErrArtifactUnavailable when
// neither works.
func (r *Retrainer) Bootstrap(ctx context.Context, trainFirst bool) error {
	if trainFirst {
		_, _, err := r.Retrain(ctx)
		if err == nil {
			return nil
		}
		r.logger.Warn("startup training failed, loading persisted model", zap.Error(err))
	}
	m, err := classifier.Load(r.modelPath)
	if err != nil {
		return err
	}
	r.holder.Swap(m)
	r.logger.Info("loaded persisted model", zap.String("model_id", m.ID), zap.String("path", r.modelPath))
	return nil
}
