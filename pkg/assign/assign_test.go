package assign

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/pawls/pkg/blob"
	"github.com/hashicorp-forge/pawls/pkg/docid"
	"github.com/hashicorp-forge/pawls/pkg/errs"
	"github.com/hashicorp-forge/pawls/pkg/status"
)

type fakeIndex map[docid.DocumentID]bool

func (f fakeIndex) Exists(id docid.DocumentID) (bool, error) {
	return f[id], nil
}

type failingWriter struct {
	fail map[string]bool
	next StatusWriter
}

func (f *failingWriter) InsertAllIfAbsent(ctx context.Context, annotator string, recs []status.Record) (int, error) {
	if f.fail[annotator] {
		return 0, errors.New("disk full")
	}
	return f.next.InsertAllIfAbsent(ctx, annotator, recs)
}

var (
	paperA = docid.MustParse("paper-a")
	paperB = docid.MustParse("paper-b")
	paperC = docid.MustParse("paper-c")
)

func newTestService(t *testing.T) (*Service, *status.Store) {
	t.Helper()
	st, err := status.NewStore(status.Config{
		Dir:  "/data/status",
		Blob: blob.New(afero.NewMemMapFs()),
	})
	require.NoError(t, err)
	idx := fakeIndex{paperA: true, paperB: true, paperC: true}
	return NewService(idx, st, nil), st
}

func TestValidateAnnotator(t *testing.T) {
	tests := []struct {
		annotator string
		valid     bool
	}{
		{"ann@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"ann", false},
		{"ann@example", false},
		{"ann@@example.com", false},
		{"ann smith@example.com", false},
		{"../ann@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.annotator, func(t *testing.T) {
			err := ValidateAnnotator(tt.annotator)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errs.ErrInvalidInput)
			}
		})
	}
}

func TestAssignDocuments(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	n, err := svc.AssignDocuments(ctx, "ann@example.com",
		[]docid.DocumentID{paperC, paperA, paperC}, Names{paperA: "Alpha"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := st.Get(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, []docid.DocumentID{paperA, paperC}, f.IDs())

	recA, _ := f.Get(paperA)
	assert.Equal(t, "Alpha", recA.Name)
	recC, _ := f.Get(paperC)
	assert.Equal(t, "paper-c", recC.Name)
}

func TestAssignDocuments_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	ids := []docid.DocumentID{paperA, paperB}

	_, err := svc.AssignDocuments(ctx, "ann@example.com", ids, nil)
	require.NoError(t, err)
	require.NoError(t, st.MergeFields(ctx, "ann@example.com", paperA, status.Fields{
		status.FieldAnnotations: 5,
		status.FieldFinished:    true,
	}))
	before, err := st.Get(ctx, "ann@example.com")
	require.NoError(t, err)

	n, err := svc.AssignDocuments(ctx, "ann@example.com", ids, Names{paperA: "new name"})
	require.NoError(t, err)
	assert.Zero(t, n)

	after, err := st.Get(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, before.Records(), after.Records())
}

func TestAssignDocuments_InvalidAnnotator(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	_, err := svc.AssignDocuments(ctx, "not-an-email", []docid.DocumentID{paperA}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	annotators, err := st.Annotators(ctx)
	require.NoError(t, err)
	assert.Empty(t, annotators)
}

func TestAssignDocuments_UnknownIDs(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	_, err := svc.AssignDocuments(ctx, "ann@example.com", []docid.DocumentID{
		docid.MustParse("zzz"), paperA, docid.MustParse("missing"),
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	var unknown *UnknownDocumentsError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"missing", "zzz"}, unknown.IDs)

	f, err := st.Get(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Zero(t, f.Len())
}

func TestAssignDocumentsToUsers(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	outcomes, err := svc.AssignDocumentsToUsers(ctx,
		[]string{"a@example.com", "bogus", " b@example.com "},
		[]docid.DocumentID{paperA}, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, UserOutcome{User: "a@example.com", Inserted: 1}, outcomes[0])
	assert.True(t, outcomes[1].Skipped)
	assert.ErrorIs(t, outcomes[1].Err, errs.ErrInvalidInput)
	assert.Equal(t, UserOutcome{User: "b@example.com", Inserted: 1}, outcomes[2])

	annotators, err := st.Annotators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, annotators)
}

func TestAssignDocumentsToUsers_UnknownIDsFailFast(t *testing.T) {
	svc, st := newTestService(t)

	outcomes, err := svc.AssignDocumentsToUsers(context.Background(),
		[]string{"a@example.com"}, []docid.DocumentID{docid.MustParse("nope")}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Nil(t, outcomes)

	annotators, err := st.Annotators(context.Background())
	require.NoError(t, err)
	assert.Empty(t, annotators)
}

func TestAssignDocumentsToUsers_PartialWriteFailure(t *testing.T) {
	ctx := context.Background()
	_, st := newTestService(t)
	writer := &failingWriter{fail: map[string]bool{"b@example.com": true}, next: st}
	svc := NewService(fakeIndex{paperA: true}, writer, nil)

	outcomes, err := svc.AssignDocumentsToUsers(ctx,
		[]string{"a@example.com", "b@example.com", "c@example.com"},
		[]docid.DocumentID{paperA}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b@example.com")
	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
	assert.False(t, outcomes[1].Skipped)
	assert.NoError(t, outcomes[2].Err)

	annotators, err := st.Annotators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "c@example.com"}, annotators)
}

func TestAssignDocumentsToUsers_Cancelled(t *testing.T) {
	svc, st := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := svc.AssignDocumentsToUsers(ctx,
		[]string{"a@example.com", "b@example.com"}, []docid.DocumentID{paperA}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.ErrorIs(t, out.Err, context.Canceled)
	}

	annotators, err := st.Annotators(context.Background())
	require.NoError(t, err)
	assert.Empty(t, annotators)
}
