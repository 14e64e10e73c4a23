package api

import (
	"net/http"

	"github.com/hashicorp-forge/pawls/internal/server"
	"github.com/hashicorp-forge/pawls/pkg/annotations"
)

// AnnotationsHandler reads and saves the user's annotations for a document.
func AnnotationsHandler(srv server.Server) http.Handler {
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

		switch r.Method {
		case "GET":
			payload, err := srv.Annotations.Load(r.Context(), id, userEmail)
			if err != nil {
				respondError(srv, w, logArgs, "error loading annotations", err)
				return
			}
			respondJSON(srv, w, logArgs, payload)

		case "POST":
			payload := annotations.Payload{}
			if err := decodeRequest(r, &payload); err != nil {
				srv.Logger.Warn("error decoding request",
					append([]any{
						"error", err,
					}, logArgs...)...)
				http.Error(w, "Bad request", http.StatusBadRequest)
				return
			}
			if payload.Annotations == nil || payload.Relations == nil {
				srv.Logger.Warn("annotations or relations missing from request",
					logArgs...)
				http.Error(w, "Bad request: annotations and relations are required",
					http.StatusBadRequest)
				return
			}

			if err := srv.Annotations.Save(r.Context(), id, userEmail, payload); err != nil {
				respondError(srv, w, logArgs, "error saving annotations", err)
				return
			}

			srv.Logger.Info("saved annotations",
				append([]any{
					"annotations", len(payload.Annotations),
					"relations", len(payload.Relations),
				}, logArgs...)...)
			respondEmpty(srv, w, logArgs)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
	})
}
