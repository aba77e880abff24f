// Package response writes the versioned JSON envelope every API response uses.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
)

// Version is the envelope format version, sent as "v".
const Version = 1

// Envelope wraps successful responses and simple errors.
type Envelope struct {
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Version int    `json:"v"`
	Success bool   `json:"success"`
}

// ErrorEnvelope wraps errors that carry a machine-readable code.
type ErrorEnvelope struct {
	Details any    `json:"details,omitempty"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Version int    `json:"v"`
	Success bool   `json:"success"`
}

// Success builds a success envelope.
func Success(data any) Envelope {
	return Envelope{Version: Version, Success: true, Data: data}
}

// Failure builds an error envelope. An empty code gives the simple form.
func Failure(code, message string, details any) any {
	if code == "" && details == nil {
		return Envelope{Version: Version, Error: message}
	}
	return ErrorEnvelope{
		Version: Version,
		Error:   message,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// JSON writes status and body.
func JSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && logger != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, Success(data), logger)
}

// Created writes a 201 success envelope.
func Created(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusCreated, Success(data), logger)
}

// Error writes an error envelope for a domain error code.
func Error(w http.ResponseWriter, code domainerrors.Code, message string, logger *slog.Logger) {
	JSON(w, code.HTTPStatus(), Failure(string(code), message, nil), logger)
}

// HandleError writes err as an error envelope. Domain errors keep their code and
// details; anything else is logged and reported as an internal error.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var de *domainerrors.Error
	if errors.As(err, &de) {
		if de.HTTPStatus() >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed", "code", de.Code, "error", err)
		}
		JSON(w, de.HTTPStatus(), Failure(string(de.Code), de.Message, de.Details), logger)
		return
	}

	if logger != nil {
		logger.Error("unhandled error", "error", err)
	}
	Error(w, domainerrors.CodeInternal, "internal server error", logger)
}
