package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const collectionsYAML = `
collections:
  - name: users
    fields:
      - name: name
        type: text
      - name: email
        type: text
        hidden: true
    listRule: ""
  - name: posts
    fields:
      - name: title
        type: text
      - name: author
        type: relation
        options:
          collectionId: users
`

func writeCollections(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(collectionsYAML), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCompileJSON(t *testing.T) {
	path := writeCollections(t)

	out, err := run(t, "compile", "-f", path, "--collection", "posts",
		"-w", "author.name = 'Ann'", "--sort=-created", "--format", "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	data := got["data"].(string)
	assert.Contains(t, data, "LEFT JOIN [[users]] [[posts_6author]] ON [[posts_6author.id]] = [[posts.author]]")
	assert.Contains(t, data, "COALESCE([[posts_6author.name]], '') = COALESCE(:__p1, '')")
	assert.Contains(t, data, "LIMIT 30 OFFSET 0")
	assert.Equal(t, map[string]any{"__p1": "Ann"}, got["params"])
	assert.NotContains(t, got["rendered"], "[[")
	assert.Contains(t, got["count"], "COUNT(DISTINCT [[posts.id]])")
}

func TestCompilePretty(t *testing.T) {
	path := writeCollections(t)

	out, err := run(t, "compile", "-f", path, "--collection", "users", "-w", "name ~ 'a'", "--dialect", "postgres")
	require.NoError(t, err)
	assert.Contains(t, out, "rendered (postgres)")
	assert.Contains(t, out, "__p1 = \"%a%\"")
	assert.Contains(t, out, "$1")
}

func TestCompileErrors(t *testing.T) {
	path := writeCollections(t)

	_, err := run(t, "compile", "-f", path, "--collection", "posts", "-w", "title =")
	assert.Error(t, err)

	_, err = run(t, "compile", "-f", path, "--collection", "comments")
	assert.Error(t, err)

	_, err = run(t, "compile", "-f", path, "--collection", "posts", "--dialect", "mysql")
	assert.Error(t, err)

	_, err = run(t, "compile", "-f", path, "--collection", "posts", "-w", "title = 'a' && title = 'b'", "--max-expr-limit", "1")
	assert.Error(t, err)
}

func TestCollectionsImportAndRecords(t *testing.T) {
	t.Setenv("RECORDSTORE_AUTH_ENABLED", "false")
	path := writeCollections(t)
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := run(t, "--sqlite-path", db, "--log-level", "error", "collections", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created collection users (2 fields)")
	assert.Contains(t, out, "Created collection posts (2 fields)")

	out, err = run(t, "--sqlite-path", db, "--log-level", "error", "collections", "list")
	require.NoError(t, err)
	assert.True(t, strings.Index(out, "posts") < strings.Index(out, "users"))
	assert.Contains(t, out, "email text (hidden)")

	_, err = run(t, "--sqlite-path", db, "--log-level", "error", "collections", "import", path)
	assert.Error(t, err)

	out, err = run(t, "--sqlite-path", db, "--log-level", "error", "records", "list", "posts", "--format", "json")
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, float64(0), result["totalItems"])

	out, err = run(t, "--sqlite-path", db, "--log-level", "error", "records", "delete", "posts", "-w", "title = 'x'")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 records")
}

func TestToken(t *testing.T) {
	t.Setenv("RECORDSTORE_AUTH_SECRET", "s3cret")

	out, err := run(t, "--log-level", "error", "token", "--id", "root")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	t.Setenv("RECORDSTORE_AUTH_ENABLED", "false")
	t.Setenv("RECORDSTORE_AUTH_SECRET", "")
	_, err = run(t, "--log-level", "error", "token", "--id", "root")
	assert.Error(t, err)
}
