// Package api serves the annotation UI's HTTP API.
package api

import (
	"net/http"

	"github.com/hashicorp-forge/pawls/internal/auth"
	"github.com/hashicorp-forge/pawls/internal/server"
)

// Routes returns the API handler. Routes that act for a user require HTTP
// Basic credentials listed in srv.Users; with no users configured every
// such request is rejected.
func Routes(srv server.Server) http.Handler {
	users := srv.Users
	if users == nil {
		users = auth.NewHtpasswd()
	}
	authn := func(h http.Handler) http.Handler {
		return auth.Middleware(users, srv.Logger, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.Handle("GET /api/doc/{sha}/pdf", PDFHandler(srv))
	mux.Handle("GET /api/doc/{sha}/title", TitleHandler(srv))
	mux.Handle("GET /api/doc/{sha}/tokens", TokensHandler(srv))
	mux.Handle("POST /api/doc/{sha}/comments", authn(CommentsHandler(srv)))
	mux.Handle("POST /api/doc/{sha}/junk", authn(JunkHandler(srv)))
	mux.Handle("POST /api/doc/{sha}/finished", authn(FinishedHandler(srv)))
	mux.Handle("GET /api/doc/{sha}/annotations", authn(AnnotationsHandler(srv)))
	mux.Handle("POST /api/doc/{sha}/annotations", authn(AnnotationsHandler(srv)))

	mux.Handle("GET /api/annotation/labels", authn(LabelsHandler(srv)))
	mux.Handle("GET /api/annotation/relations", RelationsHandler(srv))
	mux.Handle("GET /api/annotation/allocation/info", authn(AllocationHandler(srv)))

	return mux
}
