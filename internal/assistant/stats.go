package assistant

import (
	"fmt"
	"io"

	"bankbot/internal/domain"
)

type ConfidenceBucket struct {
	Label string
	Count int
}

// ConfidenceBuckets labels the stats buckets by their bounds. A range that
// collapses because the threshold sits above its upper edge is left out.
func ConfidenceBuckets(st domain.InteractionStats) []ConfidenceBucket {
	t := st.Threshold
	mid, high := max(t, 0.70), max(t, 0.90)
	out := []ConfidenceBucket{{Label: fmt.Sprintf("<%.2f", t), Count: st.BucketBelowThreshold}}
	if mid > t {
		out = append(out, ConfidenceBucket{Label: fmt.Sprintf("%.2f-%.2f", t, mid), Count: st.BucketThresholdTo70})
	}
	if high > mid {
		out = append(out, ConfidenceBucket{Label: fmt.Sprintf("%.2f-%.2f", mid, high), Count: st.Bucket70to90})
	}
	return append(out, ConfidenceBucket{Label: fmt.Sprintf(">=%.2f", high), Count: st.Bucket90Plus})
}

// WriteStats prints a human-readable stats summary.
func WriteStats(w io.Writer, st Stats) {
	fmt.Fprintf(w, "Interactions: %d (unresolved %d, smalltalk %d)\n", st.TotalInteractions, st.Unresolved, st.Smalltalk)
	fmt.Fprintf(w, "Average confidence: %.2f\n", st.AvgConfidence)
	fmt.Fprint(w, "Confidence buckets:")
	for _, b := range ConfidenceBuckets(st.InteractionStats) {
		fmt.Fprintf(w, "  %s=%d", b.Label, b.Count)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Feedback: %d (helpful %d, unhelpful %d, intent corrections %d, corrected answers %d)\n",
		st.TotalFeedback, st.Helpful, st.Unhelpful, st.Corrections, st.CorrectedAnswers)
	fmt.Fprintf(w, "Taught answers awaiting review: %d\n", st.PendingTaughtQA)
	if len(st.CorrectionsByIntent) > 0 {
		fmt.Fprintln(w, "Top corrections:")
		for _, c := range st.CorrectionsByIntent {
			from := c.OriginalIntent
			if from == "" {
				from = "(unresolved)"
			}
			fmt.Fprintf(w, "  %s -> %s: %d\n", from, c.CorrectionIntent, c.Count)
		}
	}
	if st.ModelID == "" {
		fmt.Fprintln(w, "Model: none loaded")
		return
	}
	fmt.Fprintf(w, "Model: %s (trained %s)\n", st.ModelID, st.ModelTrainedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
}
