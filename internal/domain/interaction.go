package domain

import "time"

type Interaction struct {
	ID         int64
	UserText   string
	Intent     string // empty when the turn went unresolved
	Confidence float64
	Answer     string
	CreatedAt  time.Time
}

type Feedback struct {
	ID               int64
	InteractionID    int64
	Helpful          *bool // nil when the user gave no thumbs up/down
	CorrectionIntent string
	CorrectedAnswer  string
	Approved         bool
	CreatedAt        time.Time
}

// FeedbackCorrection joins an approved feedback row with the text of the
// interaction it refers to.
type FeedbackCorrection struct {
	FeedbackID       int64
	InteractionID    int64
	UserText         string
	CorrectionIntent string
	CorrectedAnswer  string
	Helpful          *bool
	CreatedAt        time.Time
}

// Resolution is the outcome of one pass through the intent pipeline.
type Resolution struct {
	Intent     string
	Answer     string
	Confidence float64
	Normalized string
	Smalltalk  bool
}

// Unsure reports whether the turn fell below the confidence gate.
func (r Resolution) Unsure() bool {
	return r.Intent == ""
}

// NeedsTeach reports whether there is no answer to show: the turn was unsure
// or the intent has no answer rule yet.
func (r Resolution) NeedsTeach() bool {
	return r.Intent == "" || r.Answer == ""
}

type InteractionStats struct {
	TotalInteractions int
	Unresolved        int
	Smalltalk         int
	AvgConfidence     float64

	// Threshold is the confidence gate the buckets below were split on.
	Threshold            float64
	BucketBelowThreshold int
	BucketThresholdTo70  int
	Bucket70to90         int
	Bucket90Plus         int

	TotalFeedback    int
	Helpful          int
	Unhelpful        int
	Corrections      int
	CorrectedAnswers int
	PendingTaughtQA  int
}

type IntentCorrectionStat struct {
	OriginalIntent   string
	CorrectionIntent string
	Count            int
}
