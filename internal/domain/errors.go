package domain

import "errors"

var (
	// ErrNoTrainingData is returned when neither examples nor approved
	// corrections exist to fit a classifier on.
	ErrNoTrainingData = errors.New("no training data found")

	// ErrArtifactUnavailable is returned by the inference path when no model
	// was trained or loaded.
	ErrArtifactUnavailable = errors.New("no trained classifier available")

	// ErrTokenizerUnavailable is recovered inside the normalizer, which falls
	// back to regex tokenization.
	ErrTokenizerUnavailable = errors.New("tokenizer unavailable")

	// ErrFactNotFound is recovered by answer synthesis with a fallback text.
	ErrFactNotFound = errors.New("fact not found")

	ErrUnknownIntent       = errors.New("unknown intent")
	ErrInteractionNotFound = errors.New("interaction not found")
	ErrTaughtQANotFound    = errors.New("taught answer not found")

	// ErrInvalidInput covers empty messages and feedback that carries
	// nothing to record.
	ErrInvalidInput = errors.New("invalid input")
)
