package curation

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"bankbot/internal/domain"
	"bankbot/internal/integrations/llm"
	"bankbot/internal/knowledge"
	"bankbot/internal/nlp"
	"bankbot/internal/storage/sqlite"

	"go.uber.org/zap"
)

type fakeLLM struct {
	response   string
	err        error
	userPrompt string
}

func (f *fakeLLM) Name() string { return "fake/test" }

func (f *fakeLLM) Complete(_ context.Context, _, userPrompt string) (string, llm.Usage, error) {
	f.userPrompt = userPrompt
	return f.response, llm.Usage{InputTokens: 10, OutputTokens: 5}, f.err
}

func newSeededDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "bankbot-test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s, err := knowledge.Load("")
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if _, err := s.Apply(db); err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	return db
}

func testNormalizer() *nlp.Normalizer {
	return nlp.New(nlp.SegmentTokenizer{}, nlp.IdentityLemmatizer{}, zap.NewNop())
}

func TestExportRoundTrip(t *testing.T) {
	db := newSeededDB(t)

	id, err := sqlite.InsertInteraction(db, domain.Interaction{UserText: "home loan rate?", Intent: "loan_rates", Confidence: 0.6})
	if err != nil {
		t.Fatalf("InsertInteraction failed: %v", err)
	}
	if _, err := sqlite.InsertFeedback(db, domain.Feedback{InteractionID: id, CorrectedAnswer: "Home loans: 13.9% p.a.", Approved: true}); err != nil {
		t.Fatalf("InsertFeedback failed: %v", err)
	}
	approvedID, err := sqlite.InsertTaughtQA(db, "gold loans?", "Yes")
	if err != nil {
		t.Fatalf("InsertTaughtQA failed: %v", err)
	}
	if _, err := sqlite.InsertTaughtQA(db, "student card?", "Ask a branch"); err != nil {
		t.Fatalf("InsertTaughtQA failed: %v", err)
	}
	if err := Approve(db, approvedID); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	now := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	exp, err := BuildExport(db, now)
	if err != nil {
		t.Fatalf("BuildExport failed: %v", err)
	}
	if len(exp.CorrectedAnswers) != 1 || exp.CorrectedAnswers[0].Question != "home loan rate?" {
		t.Fatalf("unexpected corrected answers: %+v", exp.CorrectedAnswers)
	}
	if len(exp.PendingTaughtQA) != 1 || exp.PendingTaughtQA[0].Question != "student card?" {
		t.Fatalf("unexpected pending taught answers: %+v", exp.PendingTaughtQA)
	}

	dir := filepath.Join(t.TempDir(), "curation")
	path, err := WriteExport(dir, exp)
	if err != nil {
		t.Fatalf("WriteExport failed: %v", err)
	}
	if filepath.Base(path) != "curation_20240305_103000.yaml" {
		t.Fatalf("unexpected export name %s", path)
	}
	loaded, err := LoadExport(path)
	if err != nil {
		t.Fatalf("LoadExport failed: %v", err)
	}
	if loaded.CorrectedAnswers[0].Answer != "Home loans: 13.9% p.a." || !loaded.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected loaded export: %+v", loaded)
	}
}

func TestSuggestNearestExampleWithoutLLM(t *testing.T) {
	db := newSeededDB(t)
	if _, err := sqlite.InsertTaughtQA(db, "where is the nearest atm machine", "Main street"); err != nil {
		t.Fatalf("InsertTaughtQA failed: %v", err)
	}

	got, usage, err := NewSuggester(db, testNormalizer(), nil, zap.NewNop()).Suggest(context.Background())
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if usage.TotalTokens() != 0 {
		t.Fatalf("no tokens should be spent without an llm, got %+v", usage)
	}
	if len(got) != 1 || got[0].Intent != "atm_availability" || got[0].Source != SourceNearestExample {
		t.Fatalf("unexpected suggestions: %+v", got)
	}
	if got[0].NearestExample == "" || got[0].Confidence <= 0 {
		t.Fatalf("expected nearest example evidence: %+v", got[0])
	}
}

func TestSuggestWithLLM(t *testing.T) {
	db := newSeededDB(t)
	id1, _ := sqlite.InsertTaughtQA(db, "what is the home loan rate", "13.9%")
	id2, _ := sqlite.InsertTaughtQA(db, "do you sell gold coins", "Yes")
	id3, _ := sqlite.InsertTaughtQA(db, "nearest atm please", "Main street")

	fake := &fakeLLM{response: "```json\n[" +
		`{"id": ` + itoa(id1) + `, "intent": "loan_rates", "confidence": 1.4, "reasoning": "asks for a rate"},` +
		`{"id": ` + itoa(id2) + `, "intent": "gold_products", "confidence": 0.6, "reasoning": "new product"}` +
		"]\n```"}
	got, usage, err := NewSuggester(db, testNormalizer(), fake, zap.NewNop()).Suggest(context.Background())
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if usage.TotalTokens() != 15 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if !strings.Contains(fake.userPrompt, "similar example (loan_rates)") {
		t.Fatalf("prompt should carry nearest examples:\n%s", fake.userPrompt)
	}

	byID := make(map[int64]Suggestion)
	for _, s := range got {
		byID[s.TaughtID] = s
	}
	if s := byID[id1]; s.Intent != "loan_rates" || s.Source != SourceLLM || s.Confidence != 1 || s.NewIntent {
		t.Fatalf("unexpected suggestion for id1: %+v", s)
	}
	if s := byID[id2]; s.Intent != "gold_products" || !s.NewIntent {
		t.Fatalf("unexpected suggestion for id2: %+v", s)
	}
	if s := byID[id3]; s.Source != SourceNearestExample || s.Intent != "atm_availability" {
		t.Fatalf("missing llm answer should fall back to nearest example: %+v", s)
	}
}

func TestSuggestLLMFailureReturnsLocalSuggestions(t *testing.T) {
	db := newSeededDB(t)
	if _, err := sqlite.InsertTaughtQA(db, "loan interest today", "see site"); err != nil {
		t.Fatal(err)
	}
	fake := &fakeLLM{err: errors.New("boom")}
	got, _, err := NewSuggester(db, testNormalizer(), fake, zap.NewNop()).Suggest(context.Background())
	if err == nil {
		t.Fatal("expected llm error")
	}
	if len(got) != 1 || got[0].Intent != "loan_rates" {
		t.Fatalf("expected local fallback suggestions, got %+v", got)
	}

	fake = &fakeLLM{response: "not json"}
	if _, _, err := NewSuggester(db, testNormalizer(), fake, zap.NewNop()).Suggest(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSuggestNothingPending(t *testing.T) {
	db := newSeededDB(t)
	got, _, err := NewSuggester(db, testNormalizer(), &fakeLLM{}, zap.NewNop()).Suggest(context.Background())
	if err != nil || got != nil {
		t.Fatalf("Suggest = %+v, %v", got, err)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
