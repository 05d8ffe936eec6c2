// Package httpapi exposes the assistant over a small JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bankbot/internal/assistant"
	"bankbot/internal/classifier"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

const unsureReply = "I'm not sure about that (confidence=%.2f). Would you like to teach me the answer?"

// Assistant is the subset of assistant.Service the API needs.
type Assistant interface {
	Ask(ctx context.Context, text string) (assistant.Reply, error)
	Teach(ctx context.Context, question, answer string, confidence float64) (int64, error)
	RecordFeedback(ctx context.Context, in assistant.FeedbackInput) (int64, error)
	Retrain(ctx context.Context) (classifier.Report, error)
	Stats(ctx context.Context, since time.Time) (assistant.Stats, error)
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply         string  `json:"reply"`
	Intent        *string `json:"intent"`
	Confidence    float64 `json:"confidence"`
	InteractionID int64   `json:"interaction_id"`
	Unsure        bool    `json:"unsure"`
}

type FeedbackRequest struct {
	InteractionID    int64  `json:"interaction_id"`
	Helpful          *bool  `json:"helpful,omitempty"`
	CorrectionIntent string `json:"correction_intent,omitempty"`
	CorrectedAnswer  string `json:"corrected_answer,omitempty"`
}

type TeachRequest struct {
	Message    string  `json:"message"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence,omitempty"`
}

type StatsResponse struct {
	TotalInteractions   int                `json:"total_interactions"`
	Unresolved          int                `json:"unresolved"`
	Smalltalk           int                `json:"smalltalk"`
	AvgConfidence       float64            `json:"avg_confidence"`
	Threshold           float64            `json:"threshold"`
	ConfidenceBuckets   map[string]int     `json:"confidence_buckets"`
	TotalFeedback       int                `json:"total_feedback"`
	Helpful             int                `json:"helpful"`
	Unhelpful           int                `json:"unhelpful"`
	Corrections         int                `json:"corrections"`
	CorrectedAnswers    int                `json:"corrected_answers"`
	PendingTaughtQA     int                `json:"pending_taught_answers"`
	CorrectionsByIntent []CorrectionCount  `json:"corrections_by_intent"`
	Model               *ModelInfoResponse `json:"model,omitempty"`
}

type CorrectionCount struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

type ModelInfoResponse struct {
	ID        string    `json:"id"`
	TrainedAt time.Time `json:"trained_at"`
}

// Handler serves the chat, feedback, teach, train and stats endpoints.
type Handler struct {
	assistant Assistant
	logger    *zap.Logger
	now       func() time.Time
}

func NewHandler(a Assistant, logger *zap.Logger) *Handler {
	return &Handler{assistant: a, logger: logger.Named("httpapi"), now: time.Now}
}

// RegisterRoutes registers the API handlers with the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/chat", h.Chat)
	mux.HandleFunc("POST /api/feedback", h.Feedback)
	mux.HandleFunc("POST /api/teach", h.Teach)
	mux.HandleFunc("POST /api/train", h.Train)
	mux.HandleFunc("GET /api/stats", h.Stats)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, map[string]any{"ok": true}); err != nil {
		h.logger.Error("failed to encode health response", zap.Error(err))
	}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	reply, err := h.assistant.Ask(r.Context(), req.Message)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	resp := ChatResponse{
		Reply:         reply.Answer,
		Confidence:    reply.Confidence,
		InteractionID: reply.InteractionID,
		Unsure:        reply.NeedsTeach(),
	}
	if reply.Intent != "" {
		intent := reply.Intent
		resp.Intent = &intent
	}
	if reply.NeedsTeach() {
		resp.Reply = fmt.Sprintf(unsureReply, reply.Confidence)
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to encode chat response", zap.Error(err))
	}
}

func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.InteractionID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "interaction_id is required")
		return
	}
	_, err := h.assistant.RecordFeedback(r.Context(), assistant.FeedbackInput{
		InteractionID:    req.InteractionID,
		Helpful:          req.Helpful,
		CorrectionIntent: req.CorrectionIntent,
		CorrectedAnswer:  req.CorrectedAnswer,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.writeOK(w, nil)
}

func (h *Handler) Teach(w http.ResponseWriter, r *http.Request) {
	var req TeachRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.assistant.Teach(r.Context(), req.Message, req.Answer, req.Confidence)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.writeOK(w, map[string]any{"interaction_id": id})
}

func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	report, err := h.assistant.Retrain(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.writeOK(w, map[string]any{"report": report.String(), "details": report})
}

// Stats accepts an optional ?days=N window; the default covers everything.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		d, err := parseDays(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "days must be a positive integer")
			return
		}
		since = h.now().AddDate(0, 0, -d)
	}
	st, err := h.assistant.Stats(r.Context(), since)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, NewStatsResponse(st)); err != nil {
		h.logger.Error("failed to encode stats response", zap.Error(err))
	}
}

// NewStatsResponse converts service stats to the JSON shape served at /api/stats.
func NewStatsResponse(st assistant.Stats) StatsResponse {
	resp := StatsResponse{
		TotalInteractions:   st.TotalInteractions,
		Unresolved:          st.Unresolved,
		Smalltalk:           st.Smalltalk,
		AvgConfidence:       st.AvgConfidence,
		Threshold:           st.Threshold,
		ConfidenceBuckets:   make(map[string]int),
		TotalFeedback:       st.TotalFeedback,
		Helpful:             st.Helpful,
		Unhelpful:           st.Unhelpful,
		Corrections:         st.Corrections,
		CorrectedAnswers:    st.CorrectedAnswers,
		PendingTaughtQA:     st.PendingTaughtQA,
		CorrectionsByIntent: []CorrectionCount{},
	}
	for _, b := range assistant.ConfidenceBuckets(st.InteractionStats) {
		resp.ConfidenceBuckets[b.Label] = b.Count
	}
	for _, c := range st.CorrectionsByIntent {
		resp.CorrectionsByIntent = append(resp.CorrectionsByIntent, CorrectionCount{
			From:  c.OriginalIntent,
			To:    c.CorrectionIntent,
			Count: c.Count,
		})
	}
	if st.ModelID != "" {
		resp.Model = &ModelInfoResponse{ID: st.ModelID, TrainedAt: st.ModelTrainedAt}
	}
	return resp
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeOK(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range extra {
		body[k] = v
	}
	if err := WriteJSON(w, http.StatusOK, body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}
