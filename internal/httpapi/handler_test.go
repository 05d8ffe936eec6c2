package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bankbot/internal/assistant"
	"bankbot/internal/classifier"
	"bankbot/internal/domain"

	"go.uber.org/zap"
)

type fakeAssistant struct {
	reply       assistant.Reply
	err         error
	feedback    assistant.FeedbackInput
	teachQ      string
	teachA      string
	statsSince  time.Time
	stats       assistant.Stats
	report      classifier.Report
	askedText   string
	calledTrain bool
}

func (f *fakeAssistant) Ask(_ context.Context, text string) (assistant.Reply, error) {
	f.askedText = text
	return f.reply, f.err
}

func (f *fakeAssistant) Teach(_ context.Context, q, a string, _ float64) (int64, error) {
	f.teachQ, f.teachA = q, a
	return 9, f.err
}

func (f *fakeAssistant) RecordFeedback(_ context.Context, in assistant.FeedbackInput) (int64, error) {
	f.feedback = in
	return 1, f.err
}

func (f *fakeAssistant) Retrain(context.Context) (classifier.Report, error) {
	f.calledTrain = true
	return f.report, f.err
}

func (f *fakeAssistant) Stats(_ context.Context, since time.Time) (assistant.Stats, error) {
	f.statsSince = since
	return f.stats, f.err
}

func newTestServer(t *testing.T, fake *fakeAssistant) *httptest.Server {
	t.Helper()
	h := NewHandler(fake, zap.NewNop())
	h.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(NewServer("", h).Handler)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp, out
}

func TestChatResolved(t *testing.T) {
	fake := &fakeAssistant{reply: assistant.Reply{
		Resolution:    domain.Resolution{Intent: "loan_rates", Answer: "Personal: 16.5% p.a.", Confidence: 0.82},
		InteractionID: 7,
	}}
	srv := newTestServer(t, fake)

	resp, out := post(t, srv, "/api/chat", `{"message":"What is loan rate"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if fake.askedText != "What is loan rate" {
		t.Fatalf("asked %q", fake.askedText)
	}
	if out["intent"] != "loan_rates" || out["reply"] != "Personal: 16.5% p.a." || out["unsure"] != false {
		t.Fatalf("unexpected body: %v", out)
	}
	if out["interaction_id"].(float64) != 7 || out["confidence"].(float64) != 0.82 {
		t.Fatalf("unexpected body: %v", out)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}

func TestChatUnsureHasNullIntent(t *testing.T) {
	fake := &fakeAssistant{reply: assistant.Reply{
		Resolution:    domain.Resolution{Confidence: 0.2},
		InteractionID: 3,
	}}
	srv := newTestServer(t, fake)

	_, out := post(t, srv, "/api/chat", `{"message":"xyz"}`)
	if v, ok := out["intent"]; !ok || v != nil {
		t.Fatalf("intent should be null, got %v", out)
	}
	if out["unsure"] != true {
		t.Fatalf("expected unsure, got %v", out)
	}
	if reply, _ := out["reply"].(string); !strings.HasPrefix(reply, "I'm not sure about that (confidence=0.20)") {
		t.Fatalf("unexpected unsure reply %q", out["reply"])
	}
}

func TestChatIntentWithoutAnswer(t *testing.T) {
	fake := &fakeAssistant{reply: assistant.Reply{
		Resolution:    domain.Resolution{Intent: "mortgage_refinance", Confidence: 0.66},
		InteractionID: 8,
	}}
	srv := newTestServer(t, fake)

	_, out := post(t, srv, "/api/chat", `{"message":"refinance?"}`)
	if out["intent"] != "mortgage_refinance" || out["unsure"] != true {
		t.Fatalf("unexpected body: %v", out)
	}
	if reply, _ := out["reply"].(string); !strings.HasPrefix(reply, "I'm not sure about that (confidence=0.66)") {
		t.Fatalf("empty answer should become a teach prompt, got %q", out["reply"])
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: empty", domain.ErrInvalidInput), http.StatusBadRequest, "invalid_request"},
		{domain.ErrInteractionNotFound, http.StatusNotFound, "interaction_not_found"},
		{domain.ErrNoTrainingData, http.StatusConflict, "no_training_data"},
		{fmt.Errorf("load: %w", domain.ErrArtifactUnavailable), http.StatusServiceUnavailable, "model_unavailable"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		srv := newTestServer(t, &fakeAssistant{err: tt.err})
		resp, out := post(t, srv, "/api/chat", `{"message":"hi"}`)
		if resp.StatusCode != tt.status || out["error"] != tt.code {
			t.Errorf("%v: got %d %v, want %d %s", tt.err, resp.StatusCode, out, tt.status, tt.code)
		}
	}
}

func TestChatInvalidBody(t *testing.T) {
	srv := newTestServer(t, &fakeAssistant{})
	resp, out := post(t, srv, "/api/chat", `{not json`)
	if resp.StatusCode != http.StatusBadRequest || out["error"] != "invalid_request" {
		t.Fatalf("got %d %v", resp.StatusCode, out)
	}
}

func TestFeedback(t *testing.T) {
	fake := &fakeAssistant{}
	srv := newTestServer(t, fake)

	resp, out := post(t, srv, "/api/feedback", `{"interaction_id": 4, "helpful": false, "correction_intent": "atm_availability"}`)
	if resp.StatusCode != http.StatusOK || out["ok"] != true {
		t.Fatalf("got %d %v", resp.StatusCode, out)
	}
	if fake.feedback.InteractionID != 4 || fake.feedback.Helpful == nil || *fake.feedback.Helpful {
		t.Fatalf("unexpected feedback input: %+v", fake.feedback)
	}
	if fake.feedback.CorrectionIntent != "atm_availability" {
		t.Fatalf("unexpected correction intent %q", fake.feedback.CorrectionIntent)
	}

	resp, _ = post(t, srv, "/api/feedback", `{"helpful": true}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing interaction id should be rejected, got %d", resp.StatusCode)
	}
}

func TestFeedbackUnknownIntentCarriesSuggestions(t *testing.T) {
	fake := &fakeAssistant{err: &assistant.UnknownIntentError{Intent: "loan_rate", Suggestions: []string{"loan_rates"}}}
	srv := newTestServer(t, fake)

	resp, out := post(t, srv, "/api/feedback", `{"interaction_id": 1, "correction_intent": "loan_rate"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity || out["error"] != "unknown_intent" {
		t.Fatalf("got %d %v", resp.StatusCode, out)
	}
	suggestions, _ := out["suggestions"].([]any)
	if len(suggestions) != 1 || suggestions[0] != "loan_rates" {
		t.Fatalf("unexpected suggestions: %v", out["suggestions"])
	}
}

func TestTeachAndTrain(t *testing.T) {
	fake := &fakeAssistant{report: classifier.Report{ModelID: "m1", Examples: 27}}
	srv := newTestServer(t, fake)

	resp, out := post(t, srv, "/api/teach", `{"message":"gold loans?","answer":"Yes, at 9%"}`)
	if resp.StatusCode != http.StatusOK || out["ok"] != true || out["interaction_id"].(float64) != 9 {
		t.Fatalf("teach got %d %v", resp.StatusCode, out)
	}
	if fake.teachQ != "gold loans?" || fake.teachA != "Yes, at 9%" {
		t.Fatalf("unexpected teach call %q %q", fake.teachQ, fake.teachA)
	}

	resp, out = post(t, srv, "/api/train", ``)
	if resp.StatusCode != http.StatusOK || !fake.calledTrain {
		t.Fatalf("train got %d %v", resp.StatusCode, out)
	}
	if text, _ := out["report"].(string); text != fake.report.String() {
		t.Fatalf("report should be the rendered text, got %v", out["report"])
	}
	details, _ := out["details"].(map[string]any)
	if details["model_id"] != "m1" || details["examples"].(float64) != 27 {
		t.Fatalf("unexpected details: %v", out["details"])
	}
}

func TestStats(t *testing.T) {
	fake := &fakeAssistant{stats: assistant.Stats{
		InteractionStats:    domain.InteractionStats{TotalInteractions: 5, Threshold: 0.45, BucketBelowThreshold: 2, Bucket90Plus: 3},
		CorrectionsByIntent: []domain.IntentCorrectionStat{{OriginalIntent: "", CorrectionIntent: "atm_availability", Count: 2}},
		ModelID:             "m2",
	}}
	srv := newTestServer(t, fake)

	resp, err := http.Get(srv.URL + "/api/stats?days=7")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.TotalInteractions != 5 || out.ConfidenceBuckets["<0.45"] != 2 || out.ConfidenceBuckets[">=0.90"] != 3 {
		t.Fatalf("unexpected stats: %+v", out)
	}
	if len(out.CorrectionsByIntent) != 1 || out.CorrectionsByIntent[0].To != "atm_availability" {
		t.Fatalf("unexpected corrections: %+v", out.CorrectionsByIntent)
	}
	if out.Model == nil || out.Model.ID != "m2" {
		t.Fatalf("missing model info: %+v", out.Model)
	}
	if want := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC); !fake.statsSince.Equal(want) {
		t.Fatalf("since = %v, want %v", fake.statsSince, want)
	}

	bad, err := http.Get(srv.URL + "/api/stats?days=-1")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative days should be rejected, got %d", bad.StatusCode)
	}
}

func TestHealthAndPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeAssistant{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/chat", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight = %d %v", resp.StatusCode, resp.Header)
	}

	resp, err = http.Get(srv.URL + "/api/chat")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/chat = %d", resp.StatusCode)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewHandler(&fakeAssistant{}, zap.NewNop()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, zap.NewNop()) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
