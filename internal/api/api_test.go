package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hashicorp-forge/pawls/internal/auth"
	"github.com/hashicorp-forge/pawls/internal/config"
	"github.com/hashicorp-forge/pawls/internal/server"
	"github.com/hashicorp-forge/pawls/pkg/allocation"
	"github.com/hashicorp-forge/pawls/pkg/annotations"
	"github.com/hashicorp-forge/pawls/pkg/docid"
)

const (
	dataDir  = "/data"
	alice    = "alice@example.com"
	bob      = "bob@example.com"
	password = "secret"
)

type testEnv struct {
	srv     *server.Server
	handler http.Handler
	doc     docid.DocumentID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.NewConfig()
	cfg.DataDir = dataDir
	cfg.Labels = []*config.Label{{Text: "Figure", Color: "#70DDBA"}}
	cfg.Relations = []*config.Label{{Text: "Cites", Color: "#FFD700"}}
	cfg.UserLabels = []*config.UserLabels{{
		User:   bob,
		Labels: []*config.Label{{Text: "Table", Color: "#FF0000"}},
	}}

	srv, closeFn, err := server.New(cfg, nil, server.Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	t.Cleanup(closeFn)

	srv.Users = auth.NewHtpasswd()
	require.NoError(t, srv.Users.Add(alice, password, bcrypt.MinCost))
	require.NoError(t, srv.Users.Add(bob, password, bcrypt.MinCost))

	res, err := srv.Documents.Ingest(context.Background(),
		bytes.NewReader([]byte("%PDF-1.4 test")), "")
	require.NoError(t, err)

	_, err = srv.Assign.AssignDocuments(context.Background(), alice,
		[]docid.DocumentID{res.ID}, nil)
	require.NoError(t, err)

	return &testEnv{srv: srv, handler: Routes(*srv), doc: res.ID}
}

func (e *testEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		r.SetBasicAuth(user, password)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) docPath(suffix string) string {
	return "/api/doc/" + e.doc.String() + "/" + suffix
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPDF(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Found", func(t *testing.T) {
		w := env.do(t, "GET", env.docPath("pdf"), "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Equal(t, "%PDF-1.4 test", w.Body.String())
	})

	t.Run("NotFound", func(t *testing.T) {
		w := env.do(t, "GET", "/api/doc/missing/pdf", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("InvalidID", func(t *testing.T) {
		w := env.do(t, "GET", "/api/doc/.hidden/pdf", "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTitle(t *testing.T) {
	env := newTestEnv(t)

	t.Run("NoMetadataFile", func(t *testing.T) {
		w := env.do(t, "GET", env.docPath("title"), "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "null", w.Body.String())
	})

	meta := `{"` + env.doc.String() + `": {"title": "Deep Parsing"}, "other": {}}`
	require.NoError(t, env.srv.Blob.WriteFileAtomic(
		filepath.Join(dataDir, metadataFile), []byte(meta)))

	t.Run("Present", func(t *testing.T) {
		w := env.do(t, "GET", env.docPath("title"), "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `"Deep Parsing"`, w.Body.String())
	})

	t.Run("NoEntry", func(t *testing.T) {
		w := env.do(t, "GET", "/api/doc/other/title", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "null", w.Body.String())
	})
}

func TestTokens(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", env.docPath("tokens"), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	structure := `[{"page": {"width": 612, "height": 792, "index": 0}, "tokens": []}]`
	require.NoError(t, env.srv.Blob.WriteFileAtomic(
		filepath.Join(env.srv.Documents.Dir(env.doc), structureFile), []byte(structure)))

	w = env.do(t, "GET", env.docPath("tokens"), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, structure, w.Body.String())
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	t.Run("NoCredentials", func(t *testing.T) {
		w := env.do(t, "GET", "/api/annotation/allocation/info", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
	})

	t.Run("WrongPassword", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/annotation/labels", nil)
		r.SetBasicAuth(alice, "wrong")
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Incorrect email or password")
	})

	t.Run("NoUsersConfigured", func(t *testing.T) {
		srv := *env.srv
		srv.Users = nil
		r := httptest.NewRequest("GET", "/api/annotation/labels", nil)
		r.SetBasicAuth(alice, password)
		w := httptest.NewRecorder()
		Routes(srv).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestStatusFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, tc := range []struct {
		path string
		body string
	}{
		{"comments", `"needs a second look"`},
		{"junk", `true`},
		{"finished", `true`},
	} {
		w := env.do(t, "POST", env.docPath(tc.path), alice, tc.body)
		require.Equal(t, http.StatusOK, w.Code, tc.path)
		assert.JSONEq(t, `{}`, w.Body.String())
	}

	f, err := env.srv.Status.Get(ctx, alice)
	require.NoError(t, err)
	rec, ok := f.Get(env.doc)
	require.True(t, ok)
	assert.Equal(t, "needs a second look", rec.Comments)
	assert.True(t, rec.Junk)
	assert.True(t, rec.Finished)
	assert.NotNil(t, rec.CompletedAt)

	t.Run("WrongType", func(t *testing.T) {
		w := env.do(t, "POST", env.docPath("junk"), alice, `"yes"`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("NotAllocated", func(t *testing.T) {
		w := env.do(t, "POST", env.docPath("finished"), bob, `true`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{}`, w.Body.String())

		exists, err := afero.Exists(env.srv.Blob.Fs(),
			filepath.Join(dataDir, "status", bob+".json"))
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestAnnotations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, "GET", env.docPath("annotations"), alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"annotations": [], "relations": []}`, w.Body.String())

	body := `{
		"annotations": [{"id": "a1", "page": 0}, {"id": "a2", "page": 1}],
		"relations": [{"id": "r1", "head": ["a1"], "tail": ["a2"]}]
	}`
	w = env.do(t, "POST", env.docPath("annotations"), alice, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = env.do(t, "GET", env.docPath("annotations"), alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, body, w.Body.String())

	f, err := env.srv.Status.Get(ctx, alice)
	require.NoError(t, err)
	rec, ok := f.Get(env.doc)
	require.True(t, ok)
	assert.EqualValues(t, 2, rec.Annotations)
	assert.EqualValues(t, 1, rec.Relations)

	t.Run("MissingRelations", func(t *testing.T) {
		w := env.do(t, "POST", env.docPath("annotations"), alice, `{"annotations": []}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("NotAllocated", func(t *testing.T) {
		w := env.do(t, "POST", env.docPath("annotations"), bob, body)
		require.Equal(t, http.StatusOK, w.Code)

		payload, err := env.srv.Annotations.Load(ctx, env.doc, bob)
		require.NoError(t, err)
		assert.Equal(t, annotations.EmptyPayload(), payload)
	})
}

func TestLabelsAndRelations(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/annotation/labels", alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"text": "Figure", "color": "#70DDBA"}]`, w.Body.String())

	w = env.do(t, "GET", "/api/annotation/labels", bob, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"text": "Table", "color": "#FF0000"}]`, w.Body.String())

	w = env.do(t, "GET", "/api/annotation/relations", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"text": "Cites", "color": "#FFD700"}]`, w.Body.String())
}

func TestAllocationInfo(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Allocated", func(t *testing.T) {
		w := env.do(t, "GET", "/api/annotation/allocation/info", alice, "")
		require.Equal(t, http.StatusOK, w.Code)

		var alloc allocation.Allocation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alloc))
		assert.True(t, alloc.HasAllocatedPapers)
		require.Len(t, alloc.Papers, 1)
		assert.Equal(t, env.doc, alloc.Papers[0].DocID)
	})

	t.Run("Fallback", func(t *testing.T) {
		w := env.do(t, "GET", "/api/annotation/allocation/info", bob, "")
		require.Equal(t, http.StatusOK, w.Code)

		var alloc allocation.Allocation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alloc))
		assert.False(t, alloc.HasAllocatedPapers)
		require.Len(t, alloc.Papers, 1)
		assert.Equal(t, env.doc.String(), alloc.Papers[0].Name)
	})
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusCode(assert.AnError))
}
