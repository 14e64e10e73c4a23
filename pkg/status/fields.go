package status

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mitchellh/mapstructure"
)

// Field names accepted by MergeFields. They are the JSON keys of Record.
const (
	FieldName        = "name"
	FieldAnnotations = "annotations"
	FieldRelations   = "relations"
	FieldFinished    = "finished"
	FieldJunk        = "junk"
	FieldComments    = "comments"
	FieldCompletedAt = "completedAt"
)

// Fields is a partial update to a Record.
type Fields map[string]any

func (f Fields) has(name string) bool {
	_, ok := f[name]
	return ok
}

// validate checks f against a scratch record so that bad input is rejected
// before the annotator's file is locked.
func (f Fields) validate() error {
	if len(f) == 0 {
		return fmt.Errorf("no fields to update")
	}
	if f.has("sha") {
		return fmt.Errorf("field %q cannot be changed", "sha")
	}
	var scratch Record
	return f.decode(&scratch)
}

// apply merges f onto rec. Setting finished without an explicit completedAt
// stamps or clears the completion time.
func (f Fields) apply(rec *Record, now time.Time) error {
	if err := f.decode(rec); err != nil {
		return err
	}

	if f.has(FieldCompletedAt) {
		if f[FieldCompletedAt] == nil {
			rec.CompletedAt = nil
		}
		return nil
	}
	if f.has(FieldFinished) {
		switch {
		case rec.Finished && rec.CompletedAt == nil:
			rec.CompletedAt = NewTimestamp(now)
		case !rec.Finished:
			rec.CompletedAt = nil
		}
	}
	return nil
}

var mergeable = map[string]bool{
	FieldName:        true,
	FieldAnnotations: true,
	FieldRelations:   true,
	FieldFinished:    true,
	FieldJunk:        true,
	FieldComments:    true,
	FieldCompletedAt: true,
}

func (f Fields) decode(rec *Record) error {
	var unknown []string
	for key := range f {
		if !mergeable[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown fields: %s", strings.Join(unknown, ", "))
	}
	for _, key := range []string{FieldAnnotations, FieldRelations} {
		if v, ok := f[key]; ok && isNegative(v) {
			return fmt.Errorf("field %q must not be negative", key)
		}
	}

	// A nil completedAt is skipped here and cleared by apply.
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		Result:      rec,
		DecodeHook:  timestampHook,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(f))
}

func isNegative(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() < 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() < 0
	default:
		return false
	}
}

var timestampType = reflect.TypeOf(Timestamp{})

// timestampHook converts strings and times into Timestamps.
func timestampHook(from, to reflect.Type, data any) (any, error) {
	if to != timestampType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", FieldCompletedAt, v, err)
		}
		return Timestamp{Time: t}, nil
	case time.Time:
		return Timestamp{Time: v}, nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return Timestamp{Time: *v}, nil
	default:
		return data, nil
	}
}
