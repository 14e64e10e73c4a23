package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"github.com/hashicorp-forge/pawls/pkg/docid"
)

// Record is one annotator's progress on one document.
//
// The JSON field names match the status files written by earlier tooling
// and read by the annotation UI.
type Record struct {
	DocID       docid.DocumentID `json:"sha"`
	Name        string           `json:"name"`
	Annotations uint             `json:"annotations"`
	Relations   uint             `json:"relations"`
	Finished    bool             `json:"finished"`
	Junk        bool             `json:"junk"`
	Comments    string           `json:"comments"`
	CompletedAt *Timestamp       `json:"completedAt"`
}

// NewRecord returns a record with default progress. An empty name falls
// back to the document ID.
func NewRecord(id docid.DocumentID, name string) Record {
	if name == "" {
		name = id.String()
	}
	return Record{DocID: id, Name: name}
}

// Timestamp is a point in time that tolerates the assorted formats found in
// hand-edited and older status files.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t.UTC()}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := dateparse.ParseAny(s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}
