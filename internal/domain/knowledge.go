package domain

import "time"

// SmalltalkIntent is the label reported when a smalltalk rule answers a turn.
const SmalltalkIntent = "smalltalk"

type Intent struct {
	Name        string
	Description string
}

type IntentExample struct {
	ID         int64
	IntentName string
	Example    string
}

type SmalltalkRule struct {
	ID       int64
	Pattern  string
	Response string
}

type Fact struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// TaughtQA is a question/answer pair supplied by a user during the teach-me
// flow. Approved is set by curators; nothing in training reads it.
type TaughtQA struct {
	ID        int64
	Question  string
	Answer    string
	Approved  bool
	CreatedAt time.Time
}

// TrainingExample is one labeled, already-normalized utterance.
type TrainingExample struct {
	Text  string
	Label string
}
