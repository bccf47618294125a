package api

import (
	"encoding/json"
	"net/http"

	"practiceapi/internal/domain"

	"github.com/rs/zerolog"
)

// Meta carries response metadata next to data.
type Meta map[string]any

type dataEnvelope struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorItem is a single entry of an error response.
type ErrorItem struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Path    string `json:"path,omitempty"`
}

type errorEnvelope struct {
	Errors     []ErrorItem `json:"errors"`
	Status     string      `json:"status"`
	StatusCode int         `json:"statusCode"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, statusCode int, data any, meta Meta) {
	if meta == nil {
		meta = Meta{}
	}
	writeJSON(w, statusCode, dataEnvelope{Data: data, Meta: meta})
}

func writeErrors(w http.ResponseWriter, statusCode int, items ...ErrorItem) {
	writeJSON(w, statusCode, errorEnvelope{
		Errors:     items,
		Status:     http.StatusText(statusCode),
		StatusCode: statusCode,
	})
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeErrors(w, statusCode, ErrorItem{Message: message})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders err with the status of its kind. Internal errors are logged and hidden.
func writeDomainError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	de, ok := domain.AsError(err)
	if !ok || de.Kind == domain.KindInternal {
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeErrors(w, statusFor(de.Kind), ErrorItem{Message: de.Message, Code: string(de.Kind), Path: de.Path})
}
