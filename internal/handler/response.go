package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"GistAPI/internal/apperr"
	"GistAPI/internal/logger"
)

// WebMessage is the body of every error response.
type WebMessage struct {
	HTTPStatus     string `json:"httpStatus"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.HTTPStatus(err)
	msg := err.Error()

	fields := logger.WithRequest(r.Context(), map[string]any{
		"path":   r.URL.Path,
		"status": code,
		"error":  err.Error(),
	})
	if code >= http.StatusInternalServerError {
		logger.Error("gist_request_failed", fields)
		// причина остаётся в логе
		var execErr *apperr.ExecutionError
		if errors.As(err, &execErr) {
			msg = execErr.Message
		}
	} else {
		logger.Warn("gist_request_rejected", fields)
	}

	writeJSON(w, r, code, WebMessage{
		HTTPStatus:     http.StatusText(code),
		HTTPStatusCode: code,
		Status:         "ERROR",
		Message:        msg,
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		logger.Error("write_response_failed", logger.WithRequest(r.Context(), map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		}))
	}
}
