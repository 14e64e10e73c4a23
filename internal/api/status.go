package api

import (
	"net/http"

	"github.com/hashicorp-forge/pawls/internal/server"
	"github.com/hashicorp-forge/pawls/pkg/status"
)

// CommentsHandler sets the comments on the user's record for a document.
// The body is a JSON string.
func CommentsHandler(srv server.Server) http.Handler {
	return statusFieldHandler[string](srv, status.FieldComments)
}

// JunkHandler flags a document as junk. The body is a JSON boolean.
func JunkHandler(srv server.Server) http.Handler {
	return statusFieldHandler[bool](srv, status.FieldJunk)
}

// FinishedHandler marks a document finished. The body is a JSON boolean.
func FinishedHandler(srv server.Server) http.Handler {
	return statusFieldHandler[bool](srv, status.FieldFinished)
}

// statusFieldHandler decodes a single JSON value of type T and merges it
// into field of the user's record. Users without the document allocated get
// the same empty response and nothing is written.
func statusFieldHandler[T string | bool](srv server.Server, field string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		userEmail, ok := requireUser(srv, w, r, logArgs)
		if !ok {
			return
		}

		id, err := documentID(r)
		if err != nil {
			respondError(srv, w, logArgs, "invalid document ID", err)
			return
		}
		logArgs = append(logArgs, "document_id", id, "user", userEmail)

		var value T
		if err := decodeRequest(r, &value); err != nil {
			srv.Logger.Warn("error decoding request",
				append([]any{
					"error", err,
				}, logArgs...)...)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		if err := srv.Status.MergeFields(
			r.Context(), userEmail, id, status.Fields{field: value},
		); err != nil {
			respondError(srv, w, logArgs, "error updating status", err)
			return
		}

		srv.Logger.Debug("updated status",
			append([]any{
				"field", field,
			}, logArgs...)...)
		respondEmpty(srv, w, logArgs)
	})
}
