package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp-forge/pawls/internal/auth"
	"github.com/hashicorp-forge/pawls/internal/server"
	"github.com/hashicorp-forge/pawls/pkg/docid"
	"github.com/hashicorp-forge/pawls/pkg/errs"
)

// maxRequestBytes bounds request bodies. Annotation payloads for long
// documents are the largest.
const maxRequestBytes = 32 << 20

// decodeRequest decodes the JSON request body into v.
func decodeRequest(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

// respondJSON writes v as a 200 JSON response.
func respondJSON(srv server.Server, w http.ResponseWriter, logArgs []any, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.Logger.Error("error encoding response",
			append([]any{
				"error", err,
			}, logArgs...)...)
	}
}

// respondEmpty writes the "{}" acknowledgement mutating endpoints return.
func respondEmpty(srv server.Server, w http.ResponseWriter, logArgs []any) {
	respondJSON(srv, w, logArgs, struct{}{})
}

// respondError logs err and writes the status code matching its class.
func respondError(
	srv server.Server, w http.ResponseWriter, logArgs []any, msg string, err error,
) {
	code := statusCode(err)
	args := append([]any{"error", err}, logArgs...)
	if code >= http.StatusInternalServerError {
		srv.Logger.Error(msg, args...)
	} else {
		srv.Logger.Warn(msg, args...)
	}

	text := http.StatusText(code)
	if code < http.StatusInternalServerError {
		text = fmt.Sprintf("%s: %v", msg, err)
	}
	http.Error(w, text, code)
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// documentID parses the {sha} path value.
func documentID(r *http.Request) (docid.DocumentID, error) {
	id, err := docid.Parse(r.PathValue("sha"))
	if err != nil {
		return docid.DocumentID{}, errs.Wrap("documentID", errs.ErrInvalidInput, err)
	}
	return id, nil
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(
	srv server.Server, w http.ResponseWriter, r *http.Request, logArgs []any,
) (string, bool) {
	userEmail, ok := auth.GetUserEmail(r.Context())
	if !ok || userEmail == "" {
		srv.Logger.Error("user email not found in request context", logArgs...)
		http.Error(
			w, "No authorization information in request", http.StatusUnauthorized)
		return "", false
	}
	return userEmail, true
}
