package assign

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/pawls/internal/cmd/base"
)

// newDataDir returns a data directory holding documents named alpha and
// beta.
func newDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, name, name+".pdf"), []byte(name), 0o600))
	}
	return dir
}

func readStatus(t *testing.T, dir, annotator string) map[string]map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "status", annotator+".json"))
	require.NoError(t, err)
	var out map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func baseCommand() (*base.Command, *cli.MockUi) {
	ui := cli.NewMockUi()
	return &base.Command{Log: hclog.NewNullLogger(), UI: ui}, ui
}

func TestAssign(t *testing.T) {
	dir := newDataDir(t)

	t.Run("Explicit", func(t *testing.T) {
		b, ui := baseCommand()
		c := &Command{Command: b}
		code := c.Run([]string{"-data-dir", dir, "ann@example.com", "beta"})
		require.Equal(t, 0, code, ui.ErrorWriter.String())

		st := readStatus(t, dir, "ann@example.com")
		require.Contains(t, st, "beta")
		assert.Equal(t, "beta", st["beta"]["name"])
		assert.Nil(t, st["beta"]["completedAt"])
	})

	t.Run("AllWithNames", func(t *testing.T) {
		names := filepath.Join(t.TempDir(), "names.yaml")
		require.NoError(t, os.WriteFile(names, []byte("alpha: The Alpha Paper\n"), 0o600))

		b, ui := baseCommand()
		c := &Command{Command: b}
		code := c.Run([]string{"-data-dir", dir, "-all", "-name-file", names, "ann@example.com"})
		require.Equal(t, 0, code, ui.ErrorWriter.String())

		st := readStatus(t, dir, "ann@example.com")
		assert.Len(t, st, 2)
		assert.Equal(t, "The Alpha Paper", st["alpha"]["name"])
		assert.Contains(t, ui.OutputWriter.String(), "Allocated 1 new documents")
	})

	t.Run("IDFile", func(t *testing.T) {
		ids := filepath.Join(t.TempDir(), "ids.txt")
		require.NoError(t, os.WriteFile(ids, []byte("alpha\n\n"), 0o600))

		b, ui := baseCommand()
		c := &Command{Command: b}
		code := c.Run([]string{"-data-dir", dir, "-sha-file", ids, "other@example.com"})
		require.Equal(t, 0, code, ui.ErrorWriter.String())
		assert.Len(t, readStatus(t, dir, "other@example.com"), 1)
	})

	t.Run("UnknownDocument", func(t *testing.T) {
		b, ui := baseCommand()
		c := &Command{Command: b}
		code := c.Run([]string{"-data-dir", dir, "new@example.com", "alpha", "gamma"})
		assert.Equal(t, 1, code)
		assert.Contains(t, ui.ErrorWriter.String(), "gamma")
		assert.NoFileExists(t, filepath.Join(dir, "status", "new@example.com.json"))
	})

	t.Run("InvalidAnnotator", func(t *testing.T) {
		b, ui := baseCommand()
		c := &Command{Command: b}
		code := c.Run([]string{"-data-dir", dir, "not-an-email"})
		assert.Equal(t, 1, code)
		assert.Contains(t, ui.ErrorWriter.String(), "not a valid email")
	})
}

func TestAssignUsers(t *testing.T) {
	dir := newDataDir(t)
	users := filepath.Join(t.TempDir(), "users.txt")
	require.NoError(t, os.WriteFile(users,
		[]byte("a@example.com\nbogus\nb@example.com\n"), 0o600))

	b, ui := baseCommand()
	c := &UsersCommand{Command: b}
	code := c.Run([]string{"-data-dir", dir, "-all", users})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	assert.Len(t, readStatus(t, dir, "a@example.com"), 2)
	assert.Len(t, readStatus(t, dir, "b@example.com"), 2)
	assert.NoFileExists(t, filepath.Join(dir, "status", "bogus.json"))
	assert.Contains(t, ui.ErrorWriter.String(), "Invalid annotator email bogus")
}
