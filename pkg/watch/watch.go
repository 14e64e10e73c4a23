// Package watch ingests PDFs dropped into a directory.
//
// A file is ingested once it has stopped changing for the debounce period,
// so a copy in progress is not picked up half written.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/pawls/pkg/documents"
)

// Ingester stores documents.
type Ingester interface {
	Ingest(ctx context.Context, src io.Reader, preferredID string) (documents.IngestResult, error)
}

// Event reports the outcome of ingesting one file.
type Event struct {
	Path   string
	Result documents.IngestResult
	Err    error
}

// Config configures a Watcher.
type Config struct {
	// Dir is the directory to watch. Subdirectories are not watched.
	Dir string

	// Debounce is how long a file must be quiet before it is ingested.
	// Defaults to 2 seconds.
	Debounce time.Duration

	// NoHash names documents after the file stem.
	NoHash bool

	// RemoveAfterIngest deletes files once stored or found to be
	// duplicates.
	RemoveAfterIngest bool

	// OnIngest, if set, is called after each attempt.
	OnIngest func(Event)

	Logger hclog.Logger
}

// Watcher ingests files from a directory until stopped.
type Watcher struct {
	docs   Ingester
	cfg    Config
	logger hclog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a Watcher.
func New(docs Ingester, cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Watcher{
		docs:    docs,
		cfg:     cfg,
		logger:  cfg.Logger.Named("watch"),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run ingests PDFs already in the directory and then every PDF that is
// created or written until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Dir, err)
	}
	defer w.stopTimers()

	ready := make(chan string)
	w.scanExisting(ctx, ready)

	w.logger.Info("watching directory", "dir", w.cfg.Dir, "debounce", w.cfg.Debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !documents.IsDocumentName(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name, ready)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case path := <-ready:
			w.ingest(ctx, path)
		}
	}
}

func (w *Watcher) scanExisting(ctx context.Context, ready chan<- string) {
	matches, err := filepath.Glob(filepath.Join(w.cfg.Dir, "*"+documents.Extension))
	if err != nil {
		w.logger.Warn("failed to scan directory", "dir", w.cfg.Dir, "error", err)
		return
	}
	for _, path := range matches {
		w.schedule(ctx, path, ready)
	}
}

// schedule (re)starts the quiet period for path.
func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.cfg.Debounce, func() {
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	ev := Event{Path: path}
	ev.Result, ev.Err = w.ingestFile(ctx, path)

	switch {
	case errors.Is(ev.Err, os.ErrNotExist):
		// Moved away before it settled.
		w.logger.Debug("file disappeared before ingestion", "path", path)
		return
	case ev.Err != nil:
		w.logger.Error("failed to ingest file", "path", path, "error", ev.Err)
	default:
		w.logger.Info("ingested file",
			"path", path, "document_id", ev.Result.ID.String(), "created", ev.Result.Created)
		if w.cfg.RemoveAfterIngest {
			if err := os.Remove(path); err != nil {
				w.logger.Warn("failed to remove ingested file", "path", path, "error", err)
			}
		}
	}

	if w.cfg.OnIngest != nil {
		w.cfg.OnIngest(ev)
	}
}

func (w *Watcher) ingestFile(ctx context.Context, path string) (documents.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return documents.IngestResult{}, err
	}
	defer f.Close()

	preferred := ""
	if w.cfg.NoHash {
		preferred = documents.FileStem(path)
	}
	return w.docs.Ingest(ctx, f, preferred)
}
