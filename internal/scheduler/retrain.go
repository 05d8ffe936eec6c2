// Package scheduler runs periodic retraining inside the server process.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bankbot/internal/classifier"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetrainFunc retrains and deploys a model.
type RetrainFunc func(ctx context.Context) (classifier.Report, error)

type Retrainer struct {
	sched   cron.Schedule
	spec    string
	retrain RetrainFunc
	logger  *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewRetrainer parses a standard 5-field cron expression (minute hour
// day-of-month month day-of-week), e.g. "0 3 * * *" for daily at 03:00.
// Descriptors such as "@daily" are accepted too.
func NewRetrainer(spec string, retrain RetrainFunc, logger *zap.Logger) (*Retrainer, error) {
	spec = strings.TrimSpace(spec)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid retrain_schedule %q: %w", spec, err)
	}
	return &Retrainer{
		sched:   sched,
		spec:    spec,
		retrain: retrain,
		logger:  logger.Named("scheduler"),
		now:     time.Now,
		after:   time.After,
	}, nil
}

// Run blocks until ctx is cancelled. A failed retrain is logged and the
// previous model stays in service.
func (r *Retrainer) Run(ctx context.Context) error {
	r.logger.Info("scheduled retraining enabled", zap.String("cron", r.spec))
	for {
		now := r.now()
		next := r.sched.Next(now)
		wait := next.Sub(now)
		r.logger.Info("next retrain scheduled", zap.Time("at", next), zap.Duration("in", wait.Round(time.Second)))

		select {
		case <-ctx.Done():
			return nil
		case <-r.after(wait):
		}

		report, err := r.retrain(ctx)
		if err != nil {
			r.logger.Error("scheduled retrain failed; keeping current model", zap.Error(err))
			continue
		}
		r.logger.Info("scheduled retrain complete",
			zap.String("model_id", report.ModelID),
			zap.Int("examples", report.Examples),
			zap.Float64("accuracy", report.Accuracy),
		)
	}
}
