package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// PathOutcome is the result of ingesting one local file.
type PathOutcome struct {
	Path    string
	Result  IngestResult
	Err     error
	Skipped bool
}

// IngestPaths ingests a single file, or every *.pdf directly inside a
// directory. With noHash each document is named after its file stem instead
// of its digest. A failure on one file does not stop the others; failures
// are returned together.
func (s *Store) IngestPaths(ctx context.Context, path string, noHash bool) ([]PathOutcome, error) {
	files, err := collectPDFs(path)
	if err != nil {
		return nil, err
	}

	s.logger.Info("found PDFs to add", "count", len(files), "path", path)

	var (
		outcomes []PathOutcome
		result   *multierror.Error
	)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}

		outcome := s.ingestFile(ctx, file, noHash)
		if outcome.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", file, outcome.Err))
		} else if !outcome.Result.Created {
			outcome.Skipped = true
			s.logger.Warn("document already added, skipping",
				"path", file, "document_id", outcome.Result.ID.String())
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, result.ErrorOrNil()
}

func (s *Store) ingestFile(ctx context.Context, path string, noHash bool) PathOutcome {
	f, err := os.Open(path)
	if err != nil {
		return PathOutcome{Path: path, Err: err}
	}
	defer f.Close()

	preferred := ""
	if noHash {
		preferred = FileStem(path)
	}

	res, err := s.Ingest(ctx, f, preferred)
	return PathOutcome{Path: path, Result: res, Err: err}
}

// FileStem returns the base name of path without its extension.
func FileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsDocumentName reports whether name has the stored document extension.
func IsDocumentName(name string) bool {
	return strings.HasSuffix(name, Extension)
}

func collectPDFs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	matches, err := filepath.Glob(filepath.Join(path, "*"+Extension))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
