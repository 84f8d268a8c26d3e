package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/yolla/server/internal/apperr"
)

// errorResponse is the JSON body of every error response
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindNoActiveChallenge,
		apperr.KindCodeMismatch,
		apperr.KindAttemptsExhausted,
		apperr.KindMalformed,
		apperr.KindExpired,
		apperr.KindRevoked,
		apperr.KindWrongKind:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindTransientFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondWithAppError writes err as a JSON error. Errors without a kind are logged and hidden.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	var e *apperr.Error
	if status == http.StatusInternalServerError || !errors.As(err, &e) {
		log.Printf("%s %s: internal error: %v", r.Method, r.URL.Path, err)
		respondWithJSON(w, http.StatusInternalServerError, errorResponse{Error: string(apperr.KindInternal), Message: "internal server error"})
		return
	}

	if apperr.Retryable(err) {
		w.Header().Set("Retry-After", "5")
	}
	respondWithJSON(w, status, errorResponse{Error: string(kind), Message: e.Msg})
}

// respondWithError sends a JSON error response for failures detected in the handler itself
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	code := string(apperr.KindValidation)
	if statusCode == http.StatusUnauthorized {
		code = "unauthorized"
	}
	respondWithJSON(w, statusCode, errorResponse{Error: code, Message: message})
}

func respondWithJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
