package curation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"bankbot/internal/domain"
	"bankbot/internal/integrations/llm"
	"bankbot/internal/logging"
	"bankbot/internal/nlp"
	"bankbot/internal/storage/sqlite"
	"bankbot/internal/training"

	"go.uber.org/zap"
)

const (
	SourceLLM            = "llm"
	SourceNearestExample = "nearest_example"

	maxSuggestBatch       = 50
	neighboursPerQuestion = 3
)

// Suggestion proposes an intent for a pending taught question. Nothing is
// written to the store; curators decide what to ingest.
type Suggestion struct {
	TaughtID       int64   `yaml:"taught_id" json:"taught_id"`
	Question       string  `yaml:"question" json:"question"`
	Intent         string  `yaml:"intent" json:"intent"`
	NewIntent      bool    `yaml:"new_intent,omitempty" json:"new_intent,omitempty"`
	Confidence     float64 `yaml:"confidence" json:"confidence"`
	Reasoning      string  `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
	Source         string  `yaml:"source" json:"source"`
	NearestExample string  `yaml:"nearest_example,omitempty" json:"nearest_example,omitempty"`
}

type Suggester struct {
	db         *sql.DB
	normalizer *nlp.Normalizer
	client     llm.Client
	logger     *zap.Logger
}

// NewSuggester builds a suggester; client may be nil, in which case only
// nearest-example suggestions are produced.
func NewSuggester(db *sql.DB, normalizer *nlp.Normalizer, client llm.Client, logger *zap.Logger) *Suggester {
	return &Suggester{db: db, normalizer: normalizer, client: client, logger: logger.Named("curation")}
}

type llmSuggestion struct {
	ID         int64   `json:"id"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (s *Suggester) Suggest(ctx context.Context) ([]Suggestion, llm.Usage, error) {
	pending, err := sqlite.ListTaughtQA(s.db, true)
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("list taught answers: %w", err)
	}
	if len(pending) == 0 {
		return nil, llm.Usage{}, nil
	}
	if len(pending) > maxSuggestBatch {
		pending = pending[:maxSuggestBatch]
	}

	dataset, err := training.AssembleDataset(s.db, s.normalizer, s.logger)
	if err != nil {
		return nil, llm.Usage{}, err
	}
	index := buildExampleIndex(dataset)

	local := make([]Suggestion, len(pending))
	neighbours := make([][]scoredExample, len(pending))
	for i, qa := range pending {
		neighbours[i] = index.topK(s.normalizer.Normalize(qa.Question), neighboursPerQuestion)
		local[i] = Suggestion{TaughtID: qa.ID, Question: qa.Question, Source: SourceNearestExample}
		if len(neighbours[i]) > 0 {
			best := neighbours[i][0]
			local[i].Intent = best.Label
			local[i].Confidence = best.Score
			local[i].NearestExample = best.Text
		}
	}
	if s.client == nil {
		return local, llm.Usage{}, nil
	}

	intents, err := sqlite.ListIntents(s.db)
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("list intents: %w", err)
	}
	systemPrompt, userPrompt := buildSuggestPrompts(intents, pending, neighbours)
	s.logger.Info("requesting intent suggestions", zap.String("provider", s.client.Name()), zap.Int("questions", len(pending)))

	responseText, usage, err := s.client.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return local, usage, err
	}
	parsed, err := parseSuggestResponse(responseText)
	if err != nil {
		return local, usage, err
	}

	known := make(map[string]bool, len(intents))
	for _, in := range intents {
		known[in.Name] = true
	}
	byID := make(map[int64]llmSuggestion, len(parsed))
	for _, p := range parsed {
		byID[p.ID] = p
	}
	out := make([]Suggestion, len(pending))
	for i, qa := range pending {
		p, ok := byID[qa.ID]
		if !ok || strings.TrimSpace(p.Intent) == "" {
			out[i] = local[i]
			continue
		}
		intent := strings.TrimSpace(p.Intent)
		out[i] = Suggestion{
			TaughtID:       qa.ID,
			Question:       qa.Question,
			Intent:         intent,
			NewIntent:      !known[intent],
			Confidence:     clamp01(p.Confidence),
			Reasoning:      p.Reasoning,
			Source:         SourceLLM,
			NearestExample: local[i].NearestExample,
		}
	}
	return out, usage, nil
}

func buildSuggestPrompts(intents []domain.Intent, pending []domain.TaughtQA, neighbours [][]scoredExample) (string, string) {
	var intentLines strings.Builder
	for _, in := range intents {
		if in.Description != "" {
			fmt.Fprintf(&intentLines, "- %s: %s\n", in.Name, in.Description)
		} else {
			fmt.Fprintf(&intentLines, "- %s\n", in.Name)
		}
	}

	systemPrompt := fmt.Sprintf(`You help curate the knowledge base of a banking FAQ assistant.
Each question below was asked by a customer, the assistant was unsure, and the customer supplied an answer.

Known intents:
%s
For each question pick the known intent it belongs to. If none fits, propose a short new snake_case intent name.
Give a confidence between 0 and 1 and one sentence of reasoning.

Respond with JSON only (no markdown):
[{"id": 1, "intent": "loan_rates", "confidence": 0.8, "reasoning": "..."}, ...]`, intentLines.String())

	var qLines strings.Builder
	for i, qa := range pending {
		fmt.Fprintf(&qLines, "ID:%d | question: %s | taught answer: %s\n",
			qa.ID, logging.Truncate(strings.TrimSpace(qa.Question), 200), logging.Truncate(strings.TrimSpace(qa.Answer), 200))
		for _, n := range neighbours[i] {
			fmt.Fprintf(&qLines, "    similar example (%s): %s\n", n.Label, n.Text)
		}
	}
	return systemPrompt, "Questions to classify:\n" + qLines.String()
}

func parseSuggestResponse(responseText string) ([]llmSuggestion, error) {
	responseText = llm.StripCodeFence(responseText)
	var out []llmSuggestion
	if err := json.Unmarshal([]byte(responseText), &out); err != nil {
		return nil, fmt.Errorf("parsing suggestion response: %w (truncated response: %s)", err, logging.Truncate(responseText, 512))
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
