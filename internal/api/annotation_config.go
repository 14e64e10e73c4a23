package api

import (
	"net/http"

	"github.com/hashicorp-forge/pawls/internal/config"
	"github.com/hashicorp-forge/pawls/internal/server"
)

// LabelsHandler returns the annotation labels for the user.
func LabelsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		userEmail, ok := requireUser(srv, w, r, logArgs)
		if !ok {
			return
		}

		respondJSON(srv, w, logArgs, nonNilLabels(srv.Config.LabelsFor(userEmail)))
	})
}

// RelationsHandler returns the relation vocabulary.
func RelationsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		respondJSON(srv, w, logArgs, nonNilLabels(srv.Config.Relations))
	})
}

// AllocationHandler returns the documents allocated to the user.
func AllocationHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		userEmail, ok := requireUser(srv, w, r, logArgs)
		if !ok {
			return
		}

		alloc, err := srv.Allocation.GetAllocation(r.Context(), userEmail)
		if err != nil {
			respondError(srv, w, logArgs, "error getting allocation",
				err)
			return
		}
		respondJSON(srv, w, logArgs, alloc)
	})
}

func nonNilLabels(labels []*config.Label) []*config.Label {
	if labels == nil {
		return []*config.Label{}
	}
	return labels
}
