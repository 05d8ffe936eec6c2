package classifier

import (
	"fmt"
	"sort"
	"strings"
)

type LabelMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report describes one training run. Evaluation is informational only and
// never blocks deployment of the model.
type Report struct {
	ModelID     string         `json:"model_id"`
	Labels      []string       `json:"labels"`
	Examples    int            `json:"examples"`
	TrainSize   int            `json:"train_size"`
	EvalSize    int            `json:"eval_size"`
	SingleClass bool           `json:"single_class"`
	Refit       bool           `json:"refit"`
	Accuracy    float64        `json:"accuracy"`
	PerLabel    []LabelMetrics `json:"per_label,omitempty"`
	Note        string         `json:"note,omitempty"`
}

func evaluate(gold, pred []string) (accuracy float64, metrics []LabelMetrics) {
	labelSet := make(map[string]bool)
	for i := range gold {
		labelSet[gold[i]] = true
		labelSet[pred[i]] = true
	}
	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	correct := 0
	tp := make(map[string]int)
	predicted := make(map[string]int)
	support := make(map[string]int)
	for i := range gold {
		support[gold[i]]++
		predicted[pred[i]]++
		if gold[i] == pred[i] {
			correct++
			tp[gold[i]]++
		}
	}
	if len(gold) > 0 {
		accuracy = float64(correct) / float64(len(gold))
	}

	for _, l := range labels {
		m := LabelMetrics{Label: l, Support: support[l]}
		if predicted[l] > 0 {
			m.Precision = float64(tp[l]) / float64(predicted[l])
		}
		if support[l] > 0 {
			m.Recall = float64(tp[l]) / float64(support[l])
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		metrics = append(metrics, m)
	}
	return accuracy, metrics
}

// String renders the report as a fixed-width table.
func (r Report) String() string {
	var b strings.Builder
	if r.Note != "" {
		b.WriteString(r.Note)
		b.WriteString("\n")
	}
	if len(r.PerLabel) == 0 {
		fmt.Fprintf(&b, "model %s: %d examples, labels: %s\n", r.ModelID, r.Examples, strings.Join(r.Labels, ", "))
		return b.String()
	}

	width := len("weighted avg")
	for _, m := range r.PerLabel {
		if len(m.Label) > width {
			width = len(m.Label)
		}
	}
	fmt.Fprintf(&b, "%*s %10s %10s %10s %10s\n\n", width, "", "precision", "recall", "f1-score", "support")

	var macroP, macroR, macroF, weightP, weightR, weightF float64
	total := 0
	for _, m := range r.PerLabel {
		fmt.Fprintf(&b, "%*s %10.2f %10.2f %10.2f %10d\n", width, m.Label, m.Precision, m.Recall, m.F1, m.Support)
		macroP += m.Precision
		macroR += m.Recall
		macroF += m.F1
		weightP += m.Precision * float64(m.Support)
		weightR += m.Recall * float64(m.Support)
		weightF += m.F1 * float64(m.Support)
		total += m.Support
	}
	n := float64(len(r.PerLabel))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %10s %10s %10.2f %10d\n", width, "accuracy", "", "", r.Accuracy, total)
	fmt.Fprintf(&b, "%*s %10.2f %10.2f %10.2f %10d\n", width, "macro avg", macroP/n, macroR/n, macroF/n, total)
	if total > 0 {
		t := float64(total)
		fmt.Fprintf(&b, "%*s %10.2f %10.2f %10.2f %10d\n", width, "weighted avg", weightP/t, weightR/t, weightF/t, total)
	}
	if r.Refit {
		fmt.Fprintf(&b, "\ndeployed model %s refit on all %d examples\n", r.ModelID, r.Examples)
	}
	return b.String()
}
