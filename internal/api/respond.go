package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"fitsync/internal/apperr"
	"fitsync/internal/logx"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status. Internal failures are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Fields: verr.Fields()})
		return
	}

	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logx.FromContext(r.Context(), fallback).Error("request failed", "status", status, "error", err)
		if status == http.StatusInternalServerError {
			writeJSON(w, status, errorResponse{Error: "internal error"})
			return
		}
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when optional is true.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return apperr.InvalidInput("invalid request body: %v", err)
	}
	return nil
}
