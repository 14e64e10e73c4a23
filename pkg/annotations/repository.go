// Package annotations stores each annotator's annotation and relation
// payload for a document and keeps the status counts in step with it.
package annotations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/pawls/pkg/blob"
	"github.com/hashicorp-forge/pawls/pkg/docid"
	"github.com/hashicorp-forge/pawls/pkg/errs"
	"github.com/hashicorp-forge/pawls/pkg/keylock"
	"github.com/hashicorp-forge/pawls/pkg/status"
)

const fileSuffix = "_annotations.json"

// Payload is the annotation UI's document state. Annotations and relation
// groups are stored as received.
type Payload struct {
	Annotations []json.RawMessage `json:"annotations"`
	Relations   []json.RawMessage `json:"relations"`
}

// EmptyPayload returns a payload with no annotations or relations.
func EmptyPayload() Payload {
	return Payload{
		Annotations: []json.RawMessage{},
		Relations:   []json.RawMessage{},
	}
}

func (p Payload) normalized() Payload {
	if p.Annotations == nil {
		p.Annotations = []json.RawMessage{}
	}
	if p.Relations == nil {
		p.Relations = []json.RawMessage{}
	}
	return p
}

// StatusStore is the subset of the status store the repository needs.
type StatusStore interface {
	Get(ctx context.Context, annotator string) (*status.File, error)
	MergeFields(ctx context.Context, annotator string, id docid.DocumentID, fields status.Fields) error
}

// Config configures a Repository.
type Config struct {
	// Root is the data directory holding one directory per document.
	Root string

	Blob   *blob.Store
	Status StatusStore

	// Locker serializes saves per annotator and document. Share it with
	// the status store so that processes sharing a data directory agree.
	// Defaults to an in-process KeyedMutex.
	Locker keylock.Locker

	Logger hclog.Logger
}

// Repository persists annotation payloads.
type Repository struct {
	root   string
	blob   *blob.Store
	status StatusStore
	locker keylock.Locker
	logger hclog.Logger
}

// NewRepository creates a Repository.
func NewRepository(cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if cfg.Status == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if cfg.Blob == nil {
		cfg.Blob = blob.New(nil)
	}
	if cfg.Locker == nil {
		cfg.Locker = keylock.NewKeyedMutex()
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Repository{
		root:   cfg.Root,
		blob:   cfg.Blob,
		status: cfg.Status,
		locker: cfg.Locker,
		logger: cfg.Logger.Named("annotations"),
	}, nil
}

// Path returns the payload file for annotator on document id.
func (r *Repository) Path(id docid.DocumentID, annotator string) (string, error) {
	if id.IsZero() {
		return "", errs.E("annotations", errs.ErrInvalidInput, "document id is required")
	}
	if err := status.CheckAnnotator(annotator); err != nil {
		return "", err
	}
	return filepath.Join(r.root, id.String(), annotator+fileSuffix), nil
}

// Save replaces annotator's payload for id and updates the record's counts.
//
// If annotator has no record for id nothing is written and Save returns
// nil. If the payload is written but the counts cannot be updated the error
// is classified as errs.ErrIntegrity. Saves for the same annotator and
// document run one at a time, so the counts always describe the payload on
// disk.
func (r *Repository) Save(ctx context.Context, id docid.DocumentID, annotator string, payload Payload) error {
	const op = "Save"

	path, err := r.Path(id, annotator)
	if err != nil {
		return err
	}

	unlock, err := r.locker.Lock(ctx, lockKey(id, annotator))
	if err != nil {
		return fmt.Errorf("failed to lock annotations for %s: %w", id, err)
	}
	defer unlock()

	f, err := r.status.Get(ctx, annotator)
	if err != nil {
		return fmt.Errorf("failed to read status for %s: %w", annotator, err)
	}
	if !f.Has(id) {
		r.logger.Debug("ignoring save from unallocated annotator",
			"annotator", annotator, "document_id", id.String())
		return nil
	}

	payload = payload.normalized()
	data, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(op, errs.ErrInvalidInput, err)
	}
	if err := r.blob.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write annotations for %s: %w", id, err)
	}

	err = r.status.MergeFields(ctx, annotator, id, status.Fields{
		status.FieldAnnotations: len(payload.Annotations),
		status.FieldRelations:   len(payload.Relations),
	})
	if err != nil {
		r.logger.Error("annotations saved but status counts not updated",
			"annotator", annotator, "document_id", id.String(), "error", err)
		return errs.Wrap(op, errs.ErrIntegrity, err)
	}

	r.logger.Debug("saved annotations",
		"annotator", annotator,
		"document_id", id.String(),
		"annotations", len(payload.Annotations),
		"relations", len(payload.Relations),
	)
	return nil
}

func lockKey(id docid.DocumentID, annotator string) string {
	return "annotations:" + annotator + ":" + id.String()
}

// Load returns annotator's payload for id, or an empty payload if none has
// been saved.
func (r *Repository) Load(ctx context.Context, id docid.DocumentID, annotator string) (Payload, error) {
	path, err := r.Path(id, annotator)
	if err != nil {
		return Payload{}, err
	}

	data, err := r.blob.ReadFile(path)
	if errors.Is(err, errs.ErrNotFound) {
		return EmptyPayload(), nil
	}
	if err != nil {
		return Payload{}, fmt.Errorf("failed to read annotations for %s: %w", id, err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("failed to decode annotations for %s: %w", id, err)
	}
	return p.normalized(), nil
}
