package server

import (
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/pawls/internal/auth"
	"github.com/hashicorp-forge/pawls/internal/config"
	"github.com/hashicorp-forge/pawls/pkg/allocation"
	"github.com/hashicorp-forge/pawls/pkg/annotations"
	"github.com/hashicorp-forge/pawls/pkg/assign"
	"github.com/hashicorp-forge/pawls/pkg/blob"
	"github.com/hashicorp-forge/pawls/pkg/documents"
	"github.com/hashicorp-forge/pawls/pkg/status"
)

// Server contains the server configuration and the stores handlers use.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// Blob is the file layer every store writes through.
	Blob *blob.Store

	// Documents is the content-addressed document store.
	Documents *documents.Store

	// Status holds each annotator's progress records.
	Status *status.Store

	// Annotations holds annotation payloads.
	Annotations *annotations.Repository

	// Assign allocates documents to annotators.
	Assign *assign.Service

	// Allocation answers which documents an annotator sees.
	Allocation *allocation.View

	// Users is the allow-list for the API. Nil disables the routes that
	// need an authenticated user.
	Users *auth.Htpasswd

	// Logger is the logger for the server.
	Logger hclog.Logger
}
