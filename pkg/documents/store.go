// Package documents implements the content-addressed document store.
//
// Each document lives in its own directory named after its ID:
//
//	<root>/<id>/<id>.pdf
//
// Ingestion stages bytes in <root>/.staging and publishes them with a rename
// only after the ID is known and no document with that ID exists, so a crash
// mid-write never leaves a document that a later dedup check would accept.
package documents

import (
	"context"
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/pawls/pkg/blob"
	"github.com/hashicorp-forge/pawls/pkg/docid"
	"github.com/hashicorp-forge/pawls/pkg/errs"
	"github.com/hashicorp-forge/pawls/pkg/keylock"
)

const (
	// Extension is the file extension of stored documents.
	Extension = ".pdf"

	stagingDir = ".staging"
)

// Validator checks staged bytes before they are published.
type Validator interface {
	Validate(r io.ReadSeeker) error
}

// IngestResult describes the outcome of Ingest.
type IngestResult struct {
	ID      docid.DocumentID
	Created bool
}

// Config configures a Store.
type Config struct {
	// Root is the data directory.
	Root string

	// Blob is the file layer. Defaults to the OS filesystem.
	Blob *blob.Store

	// Locker serializes publication per document ID. Defaults to an
	// in-process KeyedMutex.
	Locker keylock.Locker

	// Validator, if set, rejects documents before publication.
	Validator Validator

	Logger hclog.Logger
}

// Store is the content-addressed document store.
type Store struct {
	root      string
	blob      *blob.Store
	locker    keylock.Locker
	validator Validator
	logger    hclog.Logger
}

// NewStore creates a Store.
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("root directory is required")
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

	return &Store{
		root:      cfg.Root,
		blob:      cfg.Blob,
		locker:    cfg.Locker,
		validator: cfg.Validator,
		logger:    cfg.Logger.Named("documents"),
	}, nil
}

// Root returns the data directory.
func (s *Store) Root() string {
	return s.root
}

// Blob returns the file layer the store writes through.
func (s *Store) Blob() *blob.Store {
	return s.blob
}

// Dir returns the directory holding a document and its sidecar files.
func (s *Store) Dir(id docid.DocumentID) string {
	return filepath.Join(s.root, id.String())
}

// Path returns the path of a document's bytes.
func (s *Store) Path(id docid.DocumentID) string {
	return filepath.Join(s.Dir(id), id.String()+Extension)
}

// Exists reports whether a document is stored.
func (s *Store) Exists(id docid.DocumentID) (bool, error) {
	return s.blob.Exists(s.Path(id))
}

// Open returns a document's bytes. The caller must close the result.
func (s *Store) Open(id docid.DocumentID) (io.ReadSeekCloser, error) {
	f, err := s.blob.Read(s.Path(id))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Ingest stores the bytes of src.
//
// When preferredID is empty the ID is the content digest of src; otherwise
// preferredID is read the way stored directory names are read back, so a
// digest shaped name becomes a digest ID and anything else an explicit name.
// If a document with the resulting ID already exists nothing is written and
// Created is false.
func (s *Store) Ingest(ctx context.Context, src io.Reader, preferredID string) (IngestResult, error) {
	const op = "Ingest"

	var id docid.DocumentID
	if preferredID != "" {
		var err error
		if id, err = docid.Parse(preferredID); err != nil {
			return IngestResult{}, errs.Wrap(op, errs.ErrInvalidInput, err)
		}
	}

	tmp, err := s.blob.Stage(filepath.Join(s.root, stagingDir), src)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to stage document: %w", err)
	}
	published := false
	defer func() {
		if !published {
			s.blob.Discard(tmp)
		}
	}()

	if id.IsZero() {
		if id, err = s.digestFile(tmp); err != nil {
			return IngestResult{}, fmt.Errorf("failed to hash document: %w", err)
		}
	}

	if s.validator != nil {
		if err := s.validateFile(tmp); err != nil {
			return IngestResult{}, errs.Wrap(op, errs.ErrInvalidInput, err)
		}
	}

	unlock, err := s.locker.Lock(ctx, "document:"+id.String())
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to lock document %s: %w", id, err)
	}
	defer unlock()

	exists, err := s.Exists(id)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to check document %s: %w", id, err)
	}
	if exists {
		s.logger.Debug("document already stored", "document_id", id.String())
		return IngestResult{ID: id, Created: false}, nil
	}

	if err := s.blob.Publish(tmp, s.Path(id)); err != nil {
		return IngestResult{}, err
	}
	published = true

	s.logger.Info("stored document", "document_id", id.String(), "kind", id.Kind().String())
	return IngestResult{ID: id, Created: true}, nil
}

func (s *Store) digestFile(path string) (docid.DocumentID, error) {
	f, err := s.blob.Read(path)
	if err != nil {
		return docid.DocumentID{}, err
	}
	defer f.Close()
	return docid.Digest(f)
}

func (s *Store) validateFile(path string) error {
	f, err := s.blob.Read(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.validator.Validate(f)
}

// ListIDs yields the ID of every stored document. The sequence is lazy: the
// root is listed once and each entry is checked as it is yielded. Order is
// not guaranteed.
func (s *Store) ListIDs(ctx context.Context) iter.Seq2[docid.DocumentID, error] {
	return func(yield func(docid.DocumentID, error) bool) {
		entries, err := s.blob.ListChildren(s.root, "*")
		if err != nil {
			yield(docid.DocumentID{}, err)
			return
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield(docid.DocumentID{}, err)
				return
			}

			id, err := docid.Parse(filepath.Base(entry))
			if err != nil {
				// Hidden and reserved entries such as .staging and status.
				continue
			}
			exists, err := s.Exists(id)
			if err != nil {
				if !yield(docid.DocumentID{}, err) {
					return
				}
				continue
			}
			if !exists {
				continue
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// AllIDs collects ListIDs.
func (s *Store) AllIDs(ctx context.Context) ([]docid.DocumentID, error) {
	var ids []docid.DocumentID
	for id, err := range s.ListIDs(ctx) {
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
