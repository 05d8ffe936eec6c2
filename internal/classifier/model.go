// Package classifier trains and serves the TF-IDF + softmax intent model.
package classifier

import (
	"fmt"
	"sort"
	"time"

	"bankbot/internal/domain"

	"github.com/google/uuid"
)

const (
	defaultTestFraction = 0.2
	defaultSplitSeed    = 42
	defaultEpochs       = 1500
	defaultLearningRate = 1.0
	defaultL2           = 1e-4
)

type Options struct {
	TestFraction float64
	Seed         uint64
	// RefitOnAll trains the deployed model on every example after the
	// holdout evaluation. When false the deployed model is the one that was
	// evaluated.
	RefitOnAll   bool
	Epochs       int
	LearningRate float64
	L2           float64
}

func DefaultOptions() Options {
	return Options{
		TestFraction: defaultTestFraction,
		Seed:         defaultSplitSeed,
		RefitOnAll:   true,
		Epochs:       defaultEpochs,
		LearningRate: defaultLearningRate,
		L2:           defaultL2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TestFraction <= 0 || o.TestFraction >= 1 {
		o.TestFraction = d.TestFraction
	}
	if o.Epochs <= 0 {
		o.Epochs = d.Epochs
	}
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.L2 < 0 {
		o.L2 = d.L2
	}
	return o
}

// Model is immutable once trained; share it freely across goroutines.
type Model struct {
	ID         string             `json:"id"`
	TrainedAt  time.Time          `json:"trained_at"`
	Labels     []string           `json:"labels"`
	Vectorizer *Vectorizer        `json:"vectorizer"`
	Regression *softmaxRegression `json:"regression"`
}

// Train fits a model on already-normalized examples.
func Train(examples []domain.TrainingExample, opts Options) (*Model, Report, error) {
	if len(examples) == 0 {
		return nil, Report{}, domain.ErrNoTrainingData
	}
	opts = opts.withDefaults()

	texts := make([]string, len(examples))
	labels := make([]string, len(examples))
	for i, ex := range examples {
		if ex.Label == "" {
			return nil, Report{}, fmt.Errorf("training example %d has no label", i)
		}
		texts[i] = ex.Text
		labels[i] = ex.Label
	}
	labelSet := distinct(labels)

	report := Report{Labels: labelSet, Examples: len(examples)}

	if len(labelSet) == 1 {
		m := fit(texts, labels, labelSet, opts)
		report.ModelID = m.ID
		report.TrainSize = len(examples)
		report.SingleClass = true
		report.Note = fmt.Sprintf("Only one intent class present (%s); single-class model trained, no evaluation performed.", labelSet[0])
		return m, report, nil
	}

	trainIdx, evalIdx := stratifiedSplit(labels, opts.TestFraction, opts.Seed)
	if len(evalIdx) == 0 {
		m := fit(texts, labels, labelSet, opts)
		report.ModelID = m.ID
		report.TrainSize = len(examples)
		report.Note = "Too few examples per intent for a holdout split; trained on all data, no evaluation performed."
		return m, report, nil
	}

	trainTexts, trainLabels := pick(texts, trainIdx), pick(labels, trainIdx)
	evalModel := fit(trainTexts, trainLabels, distinct(trainLabels), opts)

	gold := pick(labels, evalIdx)
	pred := make([]string, len(evalIdx))
	for i, idx := range evalIdx {
		pred[i], _ = evalModel.Top(texts[idx])
	}
	report.TrainSize = len(trainIdx)
	report.EvalSize = len(evalIdx)
	report.Accuracy, report.PerLabel = evaluate(gold, pred)

	deployed := evalModel
	if opts.RefitOnAll {
		deployed = fit(texts, labels, labelSet, opts)
		report.Refit = true
	}
	report.ModelID = deployed.ID
	report.Labels = deployed.Labels
	return deployed, report, nil
}

func fit(texts, labels, labelSet []string, opts Options) *Model {
	index := make(map[string]int, len(labelSet))
	for i, l := range labelSet {
		index[l] = i
	}
	vec := FitVectorizer(texts)
	xs := make([]SparseVec, len(texts))
	ys := make([]int, len(texts))
	for i := range texts {
		xs[i] = vec.Transform(texts[i])
		ys[i] = index[labels[i]]
	}

	m := &Model{
		ID:         uuid.NewString(),
		TrainedAt:  time.Now().UTC(),
		Labels:     labelSet,
		Vectorizer: vec,
	}
	if len(labelSet) > 1 {
		m.Regression = fitSoftmax(xs, ys, len(labelSet), vec.Size(), fitParams{
			Epochs:       opts.Epochs,
			LearningRate: opts.LearningRate,
			L2:           opts.L2,
		})
	}
	return m
}

// Predict returns a probability for every label the model was trained on.
// The input must already be normalized.
func (m *Model) Predict(text string) map[string]float64 {
	out := make(map[string]float64, len(m.Labels))
	if len(m.Labels) == 1 || m.Regression == nil {
		out[m.Labels[0]] = 1.0
		return out
	}
	probs := make([]float64, len(m.Labels))
	m.Regression.probabilities(m.Vectorizer.Transform(text), probs)
	for i, l := range m.Labels {
		out[l] = probs[i]
	}
	return out
}

// Top returns the most probable label; ties go to the label that sorts first.
func (m *Model) Top(text string) (string, float64) {
	probs := m.Predict(text)
	best, bestP := "", -1.0
	for _, l := range m.Labels {
		if p := probs[l]; p > bestP {
			best, bestP = l, p
		}
	}
	return best, bestP
}

func (m *Model) HasLabel(label string) bool {
	i := sort.SearchStrings(m.Labels, label)
	return i < len(m.Labels) && m.Labels[i] == label
}

func distinct(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func pick(values []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}
