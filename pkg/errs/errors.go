// Package errs defines the error taxonomy shared by the pawls storage core.
//
// Errors are classified by wrapping one of the sentinel values below in an
// *Error that records the failing operation. Callers test the class with
// errors.Is:
//
//	if errors.Is(err, errs.ErrInvalidInput) {
//	    // reject the request
//	}
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document, status file or payload is
	// absent and the operation has no empty default for that case.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed annotator identities,
	// unknown document ids and unusable field updates. Validation errors
	// are always returned before anything is written.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when an atomic publish fails for a reason
	// other than the target already existing.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable is returned when a remote bucket cannot be reached.
	ErrUnavailable = errors.New("unavailable")

	// ErrIntegrity is returned when the status counts could not be updated
	// after an annotation payload was written.
	ErrIntegrity = errors.New("integrity violation")

	// ErrEmptyResult is returned when a remote listing matched no documents.
	ErrEmptyResult = errors.New("empty result")
)

// Error records the operation that failed alongside its classification.
type Error struct {
	// Op is the operation being performed, e.g. "Ingest" or "MergeFields".
	Op string

	// Err is the underlying error, usually one of the sentinels.
	Err error

	// Msg is optional human readable context.
	Msg string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error.
func E(op string, err error, msg string) error {
	return &Error{Op: op, Err: err, Msg: msg}
}

// Ef builds an *Error with a formatted message.
func Ef(op string, err error, format string, args ...any) error {
	return &Error{Op: op, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under sentinel while keeping cause in the chain, so
// both errors.Is(err, sentinel) and errors.Is(err, cause) hold.
func Wrap(op string, sentinel, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Op: op, Err: &classified{class: sentinel, cause: cause}}
}

type classified struct {
	class error
	cause error
}

func (c *classified) Error() string {
	return fmt.Sprintf("%v: %v", c.class, c.cause)
}

func (c *classified) Unwrap() []error {
	return []error{c.class, c.cause}
}
