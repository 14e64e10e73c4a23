package status

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hashicorp-forge/pawls/pkg/docid"
)

// File is the set of records for one annotator, keyed by document ID.
//
// Key order is preserved across a load and save, so an allocation is listed
// in the order it was assigned.
type File struct {
	order   []docid.DocumentID
	records map[docid.DocumentID]*Record
}

// NewFile returns an empty File.
func NewFile() *File {
	return &File{records: make(map[docid.DocumentID]*Record)}
}

// Len returns the number of records.
func (f *File) Len() int {
	return len(f.order)
}

// Get returns a copy of the record for id.
func (f *File) Get(id docid.DocumentID) (Record, bool) {
	rec, ok := f.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Has reports whether id has a record.
func (f *File) Has(id docid.DocumentID) bool {
	_, ok := f.records[id]
	return ok
}

// IDs returns the document IDs in file order.
func (f *File) IDs() []docid.DocumentID {
	return append([]docid.DocumentID(nil), f.order...)
}

// Records returns copies of all records in file order.
func (f *File) Records() []Record {
	out := make([]Record, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.records[id])
	}
	return out
}

// insert adds rec unless its document already has a record.
func (f *File) insert(rec Record) bool {
	if _, ok := f.records[rec.DocID]; ok {
		return false
	}
	f.order = append(f.order, rec.DocID)
	f.records[rec.DocID] = &rec
	return true
}

// record returns the live record for id.
func (f *File) record(id docid.DocumentID) (*Record, bool) {
	rec, ok := f.records[id]
	return rec, ok
}

// MarshalJSON implements json.Marshaler, writing keys in file order.
func (f *File) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range f.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id.String())
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.records[id])
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping keys in file order.
func (f *File) UnmarshalJSON(data []byte) error {
	*f = *NewFile()

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("status file must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		id, err := docid.Parse(key)
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", key, err)
		}

		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("invalid record for %s: %w", key, err)
		}
		// The key is authoritative.
		rec.DocID = id

		if existing, ok := f.records[id]; ok {
			*existing = rec
			continue
		}
		f.order = append(f.order, id)
		f.records[id] = &rec
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
