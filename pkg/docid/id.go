package docid

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies which variant a DocumentID holds.
type Kind string

const (
	// KindDigest identifies a content digest (SHA-256, lowercase hex).
	KindDigest Kind = "sha256"

	// KindName identifies an explicitly assigned name.
	KindName Kind = "name"
)

// IsValid returns true if this is a recognized kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindDigest, KindName:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// reservedNames collide with entries the data directory uses for itself.
var reservedNames = map[string]bool{
	"status":            true,
	"pdf_metadata.json": true,
}

// DocumentID identifies a stored document.
//
// DocumentIDs are immutable once created. The zero value is not a valid ID.
type DocumentID struct {
	kind  Kind
	value string
}

// ContentDigest creates a digest ID from a hex encoded SHA-256.
func ContentDigest(hexDigest string) (DocumentID, error) {
	if !digestPattern.MatchString(hexDigest) {
		return DocumentID{}, fmt.Errorf(
			"invalid content digest (expected 64 lowercase hex characters): %q", hexDigest)
	}
	return DocumentID{kind: KindDigest, value: hexDigest}, nil
}

// ExplicitName creates an ID from a caller supplied name.
//
// The name becomes a directory name, so it must be a single path element and
// must not be hidden.
func ExplicitName(name string) (DocumentID, error) {
	if name == "" {
		return DocumentID{}, fmt.Errorf("document name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return DocumentID{}, fmt.Errorf("invalid document name: %q", name)
	}
	if reservedNames[name] {
		return DocumentID{}, fmt.Errorf("document name %q is reserved", name)
	}
	return DocumentID{kind: KindName, value: name}, nil
}

// Parse interprets a stored ID. Values shaped like a SHA-256 digest are
// digests, anything else that is a valid name is an explicit name.
func Parse(s string) (DocumentID, error) {
	if digestPattern.MatchString(s) {
		return DocumentID{kind: KindDigest, value: s}, nil
	}
	return ExplicitName(s)
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) DocumentID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Kind returns the variant of the ID.
func (d DocumentID) Kind() Kind {
	return d.kind
}

// IsZero returns true if this is a zero DocumentID.
func (d DocumentID) IsZero() bool {
	return d.kind == "" && d.value == ""
}

// Equal returns true if two DocumentIDs are equal.
func (d DocumentID) Equal(other DocumentID) bool {
	return d.kind == other.kind && d.value == other.value
}

// String returns the bare value, which is also the on-disk directory name.
func (d DocumentID) String() string {
	return d.value
}

// MarshalText implements encoding.TextMarshaler.
func (d DocumentID) MarshalText() ([]byte, error) {
	return []byte(d.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DocumentID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = DocumentID{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return fmt.Errorf("invalid DocumentID: %w", err)
	}
	*d = parsed
	return nil
}
