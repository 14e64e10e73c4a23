// Package assign allocates documents to annotators.
package assign

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/pawls/pkg/docid"
	"github.com/hashicorp-forge/pawls/pkg/errs"
	"github.com/hashicorp-forge/pawls/pkg/status"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// DocumentIndex reports whether documents are stored.
type DocumentIndex interface {
	Exists(id docid.DocumentID) (bool, error)
}

// StatusWriter inserts status records without overwriting existing ones.
type StatusWriter interface {
	InsertAllIfAbsent(ctx context.Context, annotator string, recs []status.Record) (int, error)
}

// Names maps document IDs to display names.
type Names map[docid.DocumentID]string

// UnknownDocumentsError lists every requested ID that is not in the store.
type UnknownDocumentsError struct {
	IDs []string
}

func (e *UnknownDocumentsError) Error() string {
	return fmt.Sprintf("unknown document ids: %s", strings.Join(e.IDs, ", "))
}

// Is classifies the error as invalid input.
func (e *UnknownDocumentsError) Is(target error) bool {
	return target == errs.ErrInvalidInput
}

// UserOutcome is the result of assigning to one candidate annotator.
type UserOutcome struct {
	User string

	// Inserted is the number of new records.
	Inserted int

	// Skipped is true when User is not a valid annotator identity. Err
	// then holds the reason.
	Skipped bool

	Err error
}

// Service assigns documents to annotators.
type Service struct {
	docs   DocumentIndex
	status StatusWriter
	logger hclog.Logger
}

// NewService creates a Service.
func NewService(docs DocumentIndex, statusWriter StatusWriter, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		docs:   docs,
		status: statusWriter,
		logger: logger.Named("assign"),
	}
}

// ValidateAnnotator checks that annotator is shaped like an email address.
func ValidateAnnotator(annotator string) error {
	err := validation.Validate(annotator,
		validation.Required,
		validation.Match(emailPattern).Error("must be an email address"),
	)
	if err != nil {
		return errs.Ef("ValidateAnnotator", errs.ErrInvalidInput, "annotator %q: %v", annotator, err)
	}
	return nil
}

// AssignDocuments allocates ids to annotator.
//
// Every ID must be stored; otherwise nothing is written and the error is an
// *UnknownDocumentsError naming all of them. Records already present keep
// their progress. names supplies display names and may be nil. It returns
// the number of records created.
func (s *Service) AssignDocuments(ctx context.Context, annotator string, ids []docid.DocumentID, names Names) (int, error) {
	if err := ValidateAnnotator(annotator); err != nil {
		return 0, err
	}
	recs, err := s.records(ids, names)
	if err != nil {
		return 0, err
	}

	n, err := s.status.InsertAllIfAbsent(ctx, annotator, recs)
	if err != nil {
		return 0, fmt.Errorf("failed to assign documents to %s: %w", annotator, err)
	}
	s.logger.Info("assigned documents",
		"annotator", annotator, "requested", len(recs), "created", n)
	return n, nil
}

// AssignDocumentsToUsers allocates ids to each valid user.
//
// Unknown IDs fail the whole call before anything is written. Invalid users
// are skipped with a warning and the rest are still assigned. Write failures
// are reported per user and aggregated in the returned error. Work already
// written stays in place if ctx is cancelled part way through.
func (s *Service) AssignDocumentsToUsers(ctx context.Context, users []string, ids []docid.DocumentID, names Names) ([]UserOutcome, error) {
	recs, err := s.records(ids, names)
	if err != nil {
		return nil, err
	}

	var result *multierror.Error
	outcomes := make([]UserOutcome, 0, len(users))
	for _, user := range users {
		user = strings.TrimSpace(user)
		out := UserOutcome{User: user}

		if err := ValidateAnnotator(user); err != nil {
			s.logger.Warn("skipping invalid annotator", "user", user)
			out.Skipped = true
			out.Err = err
			outcomes = append(outcomes, out)
			continue
		}
		if err := ctx.Err(); err != nil {
			out.Err = err
			outcomes = append(outcomes, out)
			result = multierror.Append(result, fmt.Errorf("%s: %w", user, err))
			continue
		}

		out.Inserted, out.Err = s.status.InsertAllIfAbsent(ctx, user, recs)
		if out.Err != nil {
			s.logger.Error("failed to assign documents", "user", user, "error", out.Err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", user, out.Err))
		}
		outcomes = append(outcomes, out)
	}

	return outcomes, result.ErrorOrNil()
}

// records checks ids against the store and builds default records in
// sorted ID order.
func (s *Service) records(ids []docid.DocumentID, names Names) ([]status.Record, error) {
	unique := make(map[docid.DocumentID]bool, len(ids))
	sorted := make([]docid.DocumentID, 0, len(ids))
	for _, id := range ids {
		if unique[id] {
			continue
		}
		unique[id] = true
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	var unknown []string
	for _, id := range sorted {
		if id.IsZero() {
			return nil, errs.E("AssignDocuments", errs.ErrInvalidInput, "empty document id")
		}
		ok, err := s.docs.Exists(id)
		if err != nil {
			return nil, fmt.Errorf("failed to check document %s: %w", id, err)
		}
		if !ok {
			unknown = append(unknown, id.String())
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownDocumentsError{IDs: unknown}
	}

	recs := make([]status.Record, 0, len(sorted))
	for _, id := range sorted {
		recs = append(recs, status.NewRecord(id, names[id]))
	}
	return recs, nil
}

// ParseIDs parses raw IDs. Values that cannot name a document are reported
// together as an *UnknownDocumentsError.
func ParseIDs(raw []string) ([]docid.DocumentID, error) {
	var (
		ids []docid.DocumentID
		bad []string
	)
	for _, r := range raw {
		id, err := docid.Parse(r)
		if err != nil {
			bad = append(bad, r)
			continue
		}
		ids = append(ids, id)
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, &UnknownDocumentsError{IDs: bad}
	}
	return ids, nil
}
