// Package status persists each annotator's progress records.
//
// Every annotator has one file, <dir>/<annotator>.json, mapping document IDs
// to Records. All writes to a file happen inside a read-modify-write section
// guarded by a lock on "status:<annotator>", so concurrent partial updates to
// the same annotator are serialized and never lose each other, while
// different annotators proceed independently.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/pawls/pkg/blob"
	"github.com/hashicorp-forge/pawls/pkg/docid"
	"github.com/hashicorp-forge/pawls/pkg/errs"
	"github.com/hashicorp-forge/pawls/pkg/keylock"
)

// DirName is the name of the status directory inside the data directory.
const DirName = "status"

const fileExtension = ".json"

// Config configures a Store.
type Config struct {
	// Dir is the status directory, usually <data_dir>/status.
	Dir string

	// Blob is the file layer. Defaults to the OS filesystem.
	Blob *blob.Store

	// Locker serializes writes per annotator. Defaults to an in-process
	// KeyedMutex.
	Locker keylock.Locker

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger hclog.Logger
}

// Store reads and updates annotator status files.
type Store struct {
	dir    string
	blob   *blob.Store
	locker keylock.Locker
	now    func() time.Time
	logger hclog.Logger
}

// NewStore creates a Store.
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("status directory is required")
	}
	if cfg.Blob == nil {
		cfg.Blob = blob.New(nil)
	}
	if cfg.Locker == nil {
		cfg.Locker = keylock.NewKeyedMutex()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Store{
		dir:    cfg.Dir,
		blob:   cfg.Blob,
		locker: cfg.Locker,
		now:    cfg.Now,
		logger: cfg.Logger.Named("status"),
	}, nil
}

// Path returns the status file path for annotator.
func (s *Store) Path(annotator string) (string, error) {
	if err := CheckAnnotator(annotator); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, annotator+fileExtension), nil
}

// CheckAnnotator checks that annotator can be used in a file name. The email
// shape is checked by callers that create allocations.
func CheckAnnotator(annotator string) error {
	if annotator == "" {
		return errs.E("status", errs.ErrInvalidInput, "annotator is required")
	}
	if strings.ContainsAny(annotator, `/\`) || strings.HasPrefix(annotator, ".") {
		return errs.Ef("status", errs.ErrInvalidInput, "invalid annotator %q", annotator)
	}
	return nil
}

// Get returns annotator's status file. An annotator without a file gets an
// empty File.
func (s *Store) Get(ctx context.Context, annotator string) (*File, error) {
	f, _, err := s.load(annotator)
	return f, err
}

// Annotators lists every annotator with a status file, sorted.
func (s *Store) Annotators(ctx context.Context) ([]string, error) {
	paths, err := s.blob.ListChildren(s.dir, "*"+fileExtension)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), fileExtension)
		if CheckAnnotator(name) != nil {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func (s *Store) load(annotator string) (*File, bool, error) {
	path, err := s.Path(annotator)
	if err != nil {
		return nil, false, err
	}

	data, err := s.blob.ReadFile(path)
	if errors.Is(err, errs.ErrNotFound) {
		return NewFile(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read status file for %s: %w", annotator, err)
	}

	f := NewFile()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, false, fmt.Errorf("failed to decode status file for %s: %w", annotator, err)
	}
	return f, true, nil
}

func (s *Store) save(annotator string, f *File) error {
	path, err := s.Path(annotator)
	if err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode status file for %s: %w", annotator, err)
	}
	return s.blob.WriteFileAtomic(path, data)
}

// UpdateFunc mutates a status file in place. exists is false when the
// annotator has no file yet. Returning changed=false skips the write.
type UpdateFunc func(f *File, exists bool) (changed bool, err error)

// Update runs fn inside the annotator's critical section and persists the
// file if fn reports a change.
func (s *Store) Update(ctx context.Context, annotator string, fn UpdateFunc) error {
	if err := CheckAnnotator(annotator); err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, lockKey(annotator))
	if err != nil {
		return fmt.Errorf("failed to lock status for %s: %w", annotator, err)
	}
	defer unlock()

	f, exists, err := s.load(annotator)
	if err != nil {
		return err
	}

	changed, err := fn(f, exists)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.save(annotator, f)
}

func lockKey(annotator string) string {
	return "status:" + annotator
}

// MergeFields applies fields to annotator's record for id.
//
// Only the named fields change. If the annotator has no file, or the file
// has no record for id, the update is dropped without error. Invalid fields
// are rejected before anything is read or written.
func (s *Store) MergeFields(ctx context.Context, annotator string, id docid.DocumentID, fields Fields) error {
	const op = "MergeFields"

	if err := CheckAnnotator(annotator); err != nil {
		return err
	}
	if err := fields.validate(); err != nil {
		return errs.Wrap(op, errs.ErrInvalidInput, err)
	}

	dropped := false
	err := s.Update(ctx, annotator, func(f *File, exists bool) (bool, error) {
		rec, ok := f.record(id)
		if !exists || !ok {
			dropped = true
			return false, nil
		}
		if err := fields.apply(rec, s.now()); err != nil {
			return false, errs.Wrap(op, errs.ErrInvalidInput, err)
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	if dropped {
		s.logger.Debug("ignoring update for unallocated document",
			"annotator", annotator, "document_id", id.String())
	}
	return nil
}

// InsertIfAbsent adds rec to annotator's file, creating the file if needed.
// An existing record for the same document is left untouched. It reports
// whether rec was inserted.
func (s *Store) InsertIfAbsent(ctx context.Context, annotator string, rec Record) (bool, error) {
	n, err := s.InsertAllIfAbsent(ctx, annotator, []Record{rec})
	return n == 1, err
}

// InsertAllIfAbsent inserts each record that is not already present, in the
// given order, with a single write. It returns the number inserted.
func (s *Store) InsertAllIfAbsent(ctx context.Context, annotator string, recs []Record) (int, error) {
	for _, rec := range recs {
		if rec.DocID.IsZero() {
			return 0, errs.E("InsertIfAbsent", errs.ErrInvalidInput, "record has no document id")
		}
	}

	inserted := 0
	err := s.Update(ctx, annotator, func(f *File, exists bool) (bool, error) {
		for _, rec := range recs {
			if f.insert(rec) {
				inserted++
			}
		}
		// A first assignment creates the file even if recs is empty.
		return inserted > 0 || !exists, nil
	})
	if err != nil {
		return 0, err
	}

	if inserted > 0 {
		s.logger.Info("allocated documents", "annotator", annotator, "count", inserted)
	}
	return inserted, nil
}
