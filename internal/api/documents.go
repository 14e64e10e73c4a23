package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hashicorp-forge/pawls/internal/server"
	"github.com/hashicorp-forge/pawls/pkg/errs"
)

const (
	// metadataFile maps document IDs to bibliographic metadata.
	metadataFile = "pdf_metadata.json"

	// structureFile holds the token layout of a document's pages.
	structureFile = "pdf_structure.json"
)

// PDFHandler serves a document's PDF bytes.
func PDFHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		id, err := documentID(r)
		if err != nil {
			respondError(srv, w, logArgs, "invalid document ID", err)
			return
		}

		f, err := srv.Documents.Open(id)
		if err != nil {
			respondError(srv, w, logArgs, "error opening document", err)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/pdf")
		http.ServeContent(w, r, id.String()+".pdf", time.Time{}, f)
	})
}

// TitleHandler returns a document's title from the metadata file, or null
// when there is none.
func TitleHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		id, err := documentID(r)
		if err != nil {
			respondError(srv, w, logArgs, "invalid document ID", err)
			return
		}

		var title *string
		data, err := srv.Blob.ReadFile(
			filepath.Join(srv.Documents.Root(), metadataFile))
		switch {
		case errors.Is(err, errs.ErrNotFound):
		case err != nil:
			respondError(srv, w, logArgs, "error reading document metadata", err)
			return
		default:
			var meta map[string]struct {
				Title *string `json:"title"`
			}
			if err := json.Unmarshal(data, &meta); err != nil {
				respondError(srv, w, logArgs, "error parsing document metadata",
					errs.Wrap("TitleHandler", errs.ErrIntegrity, err))
				return
			}
			if m, ok := meta[id.String()]; ok {
				title = m.Title
			}
		}

		respondJSON(srv, w, logArgs, title)
	})
}

// TokensHandler serves a document's token structure file as stored.
func TokensHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		id, err := documentID(r)
		if err != nil {
			respondError(srv, w, logArgs, "invalid document ID", err)
			return
		}

		data, err := srv.Blob.ReadFile(
			filepath.Join(srv.Documents.Dir(id), structureFile))
		if errors.Is(err, errs.ErrNotFound) {
			err = errs.E("TokensHandler", errs.ErrNotFound, "no tokens for pdf")
		}
		if err != nil {
			respondError(srv, w, logArgs, "error reading tokens", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			srv.Logger.Error("error writing tokens response",
				append([]any{
					"error", err,
				}, logArgs...)...)
		}
	})
}
