package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"bankbot/internal/assistant"
	"bankbot/internal/domain"

	"go.uber.org/zap"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, map[string]any{
		"ok":      false,
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps domain errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	message := err.Error()

	var unknown *assistant.UnknownIntentError
	switch {
	case errors.As(err, &unknown):
		status, code = http.StatusUnprocessableEntity, "unknown_intent"
		if err := WriteJSON(w, status, map[string]any{
			"ok":          false,
			"error":       code,
			"message":     message,
			"suggestions": unknown.Suggestions,
		}); err != nil {
			logger.Error("failed to encode error response", zap.Error(err))
		}
		return
	case errors.Is(err, domain.ErrUnknownIntent):
		status, code = http.StatusUnprocessableEntity, "unknown_intent"
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrInteractionNotFound):
		status, code = http.StatusNotFound, "interaction_not_found"
	case errors.Is(err, domain.ErrNoTrainingData):
		status, code = http.StatusConflict, "no_training_data"
	case errors.Is(err, domain.ErrArtifactUnavailable):
		status, code = http.StatusServiceUnavailable, "model_unavailable"
		message = "No trained model is available. Run `bankbot seed` then `bankbot train`."
	default:
		logger.Error("request failed", zap.Error(err))
		message = "internal error"
	}
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("failed to encode error response", zap.Error(err))
	}
}
