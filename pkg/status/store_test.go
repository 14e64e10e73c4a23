package status

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/pawls/pkg/blob"
	"github.com/hashicorp-forge/pawls/pkg/docid"
	"github.com/hashicorp-forge/pawls/pkg/errs"
)

const annotator = "ann@example.com"

var (
	docA = docid.MustParse("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	docB = docid.MustParse("paper-b")
	docC = docid.MustParse("paper-c")

	fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewStore(Config{
		Dir:  "/data/status",
		Blob: blob.New(fs),
		Now:  func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return s, fs
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore(Config{})
	assert.Error(t, err)
}

func TestGet_MissingFileIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	f, err := s.Get(context.Background(), annotator)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
}

func TestGet_InvalidAnnotator(t *testing.T) {
	s, _ := newTestStore(t)

	for _, name := range []string{"", "../etc/passwd", ".hidden", `a\b`} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), name)
			assert.ErrorIs(t, err, errs.ErrInvalidInput)
		})
	}
}

func TestInsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	s, fs := newTestStore(t)

	inserted, err := s.InsertIfAbsent(ctx, annotator, NewRecord(docA, "Paper A"))
	require.NoError(t, err)
	assert.True(t, inserted)

	ok, err := afero.Exists(fs, "/data/status/ann@example.com.json")
	require.NoError(t, err)
	assert.True(t, ok)

	f, err := s.Get(ctx, annotator)
	require.NoError(t, err)
	rec, ok := f.Get(docA)
	require.True(t, ok)
	assert.Equal(t, "Paper A", rec.Name)
	assert.Zero(t, rec.Annotations)
	assert.False(t, rec.Finished)
	assert.Nil(t, rec.CompletedAt)
}

func TestInsertIfAbsent_KeepsProgress(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.InsertIfAbsent(ctx, annotator, NewRecord(docA, ""))
	require.NoError(t, err)
	require.NoError(t, s.MergeFields(ctx, annotator, docA, Fields{
		FieldComments: "halfway",
		FieldJunk:     true,
	}))

	inserted, err := s.InsertIfAbsent(ctx, annotator, NewRecord(docA, "renamed"))
	require.NoError(t, err)
	assert.False(t, inserted)

	f, err := s.Get(ctx, annotator)
	require.NoError(t, err)
	rec, _ := f.Get(docA)
	assert.Equal(t, docA.String(), rec.Name)
	assert.Equal(t, "halfway", rec.Comments)
	assert.True(t, rec.Junk)
}

func TestInsertAllIfAbsent_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	n, err := s.InsertAllIfAbsent(ctx, annotator, []Record{
		NewRecord(docC, ""), NewRecord(docA, ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.InsertAllIfAbsent(ctx, annotator, []Record{
		NewRecord(docB, ""), NewRecord(docA, ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := s.Get(ctx, annotator)
	require.NoError(t, err)
	assert.Equal(t, []docid.DocumentID{docC, docA, docB}, f.IDs())
}

func TestInsertAllIfAbsent_EmptyCreatesFile(t *testing.T) {
	ctx := context.Background()
	s, fs := newTestStore(t)

	n, err := s.InsertAllIfAbsent(ctx, annotator, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	data, err := afero.ReadFile(fs, "/data/status/ann@example.com.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestInsertIfAbsent_RequiresID(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.InsertIfAbsent(context.Background(), annotator, Record{Name: "x"})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestMergeFields(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.InsertIfAbsent(ctx, annotator, NewRecord(docA, "A"))
	require.NoError(t, err)

	require.NoError(t, s.MergeFields(ctx, annotator, docA, Fields{
		FieldAnnotations: 3,
		FieldRelations:   float64(1),
	}))

	f, err := s.Get(ctx, annotator)
	require.NoError(t, err)
	rec, _ := f.Get(docA)
	assert.Equal(t, uint(3), rec.Annotations)
	assert.Equal(t, uint(1), rec.Relations)
	assert.Equal(t, "A", rec.Name)
	assert.False(t, rec.Finished)
}

func TestMergeFields_FinishedStampsCompletion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.InsertIfAbsent(ctx, annotator, NewRecord(docA, ""))
	require.NoError(t, err)

	require.NoError(t, s.MergeFields(ctx, annotator, docA, Fields{FieldFinished: true}))
	f, err := s.Get(ctx, annotator)
	require.NoError(t, err)
	rec, _ := f.Get(docA)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.CompletedAt.Equal(fixedNow))

	require.NoError(t, s.MergeFields(ctx, annotator, docA, Fields{FieldFinished: false}))
	f, err = s.Get(ctx, annotator)
	require.NoError(t, err)
	rec, _ = f.Get(docA)
	assert.Nil(t, rec.CompletedAt)
}

func TestMergeFields_ExplicitCompletedAt(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.InsertIfAbsent(ctx, annotator, NewRecord(docA, ""))
	require.NoError(t, err)

	require.NoError(t, s.MergeFields(ctx, annotator, docA, Fields{
		FieldFinished:    true,
		FieldCompletedAt: "2023-05-06 07:08:09",
	}))
	f, err := s.Get(ctx, annotator)
	require.NoError(t, err)
	rec, _ := f.Get(docA)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, 2023, rec.CompletedAt.Year())
	assert.Equal(t, time.May, rec.CompletedAt.Month())

	require.NoError(t, s.MergeFields(ctx, annotator, docA, Fields{FieldCompletedAt: nil}))
	f, err = s.Get(ctx, annotator)
	require.NoError(t, err)
	rec, _ = f.Get(docA)
	assert.Nil(t, rec.CompletedAt)
	assert.True(t, rec.Finished)
}

func TestMergeFields_Unallocated(t *testing.T) {
	ctx := context.Background()

	t.Run("no file", func(t *testing.T) {
		s, fs := newTestStore(t)
		require.NoError(t, s.MergeFields(ctx, annotator, docA, Fields{FieldJunk: true}))

		ok, err := afero.Exists(fs, "/data/status/ann@example.com.json")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("no record", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.InsertIfAbsent(ctx, annotator, NewRecord(docA, ""))
		require.NoError(t, err)

		require.NoError(t, s.MergeFields(ctx, annotator, docB, Fields{FieldJunk: true}))

		f, err := s.Get(ctx, annotator)
		require.NoError(t, err)
		assert.False(t, f.Has(docB))
		assert.Equal(t, 1, f.Len())
	})
}

func TestMergeFields_InvalidFields(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.InsertIfAbsent(ctx, annotator, NewRecord(docA, ""))
	require.NoError(t, err)

	cases := map[string]Fields{
		"empty":            {},
		"unknown":          {"colour": "red"},
		"immutable id":     {"sha": "other"},
		"negative count":   {FieldAnnotations: -1},
		"wrong type":       {FieldFinished: "yes"},
		"bad timestamp":    {FieldCompletedAt: "not a date"},
		"unknown and good": {FieldJunk: true, "extra": 1},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			err := s.MergeFields(ctx, annotator, docA, fields)
			assert.ErrorIs(t, err, errs.ErrInvalidInput)
		})
	}

	f, err := s.Get(ctx, annotator)
	require.NoError(t, err)
	rec, _ := f.Get(docA)
	assert.Equal(t, NewRecord(docA, ""), rec)
}

func TestMergeFields_ConcurrentDistinctFields(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.InsertIfAbsent(ctx, annotator, NewRecord(docA, ""))
	require.NoError(t, err)

	updates := []Fields{
		{FieldAnnotations: 4},
		{FieldRelations: 2},
		{FieldJunk: true},
		{FieldComments: "needs review"},
		{FieldName: "Renamed"},
		{FieldFinished: true},
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, u := range updates {
		wg.Add(1)
		go func(u Fields) {
			defer wg.Done()
			<-start
			assert.NoError(t, s.MergeFields(ctx, annotator, docA, u))
		}(u)
	}
	close(start)
	wg.Wait()

	f, err := s.Get(ctx, annotator)
	require.NoError(t, err)
	rec, _ := f.Get(docA)
	assert.Equal(t, uint(4), rec.Annotations)
	assert.Equal(t, uint(2), rec.Relations)
	assert.True(t, rec.Junk)
	assert.Equal(t, "needs review", rec.Comments)
	assert.Equal(t, "Renamed", rec.Name)
	assert.True(t, rec.Finished)
}

func TestMergeFields_AnnotatorsIndependent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	const n = 8
	for i := 0; i < n; i++ {
		_, err := s.InsertIfAbsent(ctx, fmt.Sprintf("user%d@example.com", i), NewRecord(docA, ""))
		require.NoError(t, err)
	}

	// Hold one annotator's lock; every other annotator must still proceed.
	unlock, err := s.locker.Lock(ctx, lockKey("user0@example.com"))
	require.NoError(t, err)
	defer unlock()

	var wg sync.WaitGroup
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.MergeFields(ctx, fmt.Sprintf("user%d@example.com", i), docA,
				Fields{FieldAnnotations: i}))
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		f, err := s.Get(ctx, fmt.Sprintf("user%d@example.com", i))
		require.NoError(t, err)
		rec, _ := f.Get(docA)
		assert.Equal(t, uint(i), rec.Annotations)
	}
}

func TestMergeFields_LockRespectsContext(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.InsertIfAbsent(context.Background(), annotator, NewRecord(docA, ""))
	require.NoError(t, err)

	unlock, err := s.locker.Lock(context.Background(), lockKey(annotator))
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.MergeFields(ctx, annotator, docA, Fields{FieldJunk: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFileFormat(t *testing.T) {
	ctx := context.Background()
	s, fs := newTestStore(t)

	existing := `{
  "paper-c": {"sha": "paper-c", "name": "C", "annotations": 2, "relations": 0,
              "finished": true, "junk": false, "comments": "", "completedAt": "2021-01-02T03:04:05.000Z"},
  "paper-b": {"sha": "paper-b", "name": "B", "annotations": 0, "relations": 0,
              "finished": false, "junk": false, "comments": "", "completedAt": null}
}`
	require.NoError(t, afero.WriteFile(fs, "/data/status/ann@example.com.json", []byte(existing), 0o644))

	require.NoError(t, s.MergeFields(ctx, annotator, docB, Fields{FieldComments: "ok"}))

	data, err := afero.ReadFile(fs, "/data/status/ann@example.com.json")
	require.NoError(t, err)

	f := NewFile()
	require.NoError(t, json.Unmarshal(data, f))
	assert.Equal(t, []docid.DocumentID{docC, docB}, f.IDs())

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]any{
		"sha":         "paper-b",
		"name":        "B",
		"annotations": float64(0),
		"relations":   float64(0),
		"finished":    false,
		"junk":        false,
		"comments":    "ok",
		"completedAt": nil,
	}, raw["paper-b"])
	assert.Equal(t, "2021-01-02T03:04:05Z", raw["paper-c"]["completedAt"])
}

func TestAnnotators(t *testing.T) {
	ctx := context.Background()
	s, fs := newTestStore(t)

	for _, a := range []string{"b@example.com", "a@example.com"} {
		_, err := s.InsertIfAbsent(ctx, a, NewRecord(docA, ""))
		require.NoError(t, err)
	}
	require.NoError(t, afero.WriteFile(fs, "/data/status/notes.txt", nil, 0o644))

	got, err := s.Annotators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got)
}
