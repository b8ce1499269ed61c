package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-agent-server-go/models"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	records := store.Load(context.Background(), models.StudentsCollection)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	for _, content := range []string{"", "{not json", `{"id": "x"}`, "   \n"} {
		require.NoError(t, os.WriteFile(store.Path(models.PaymentsCollection), []byte(content), 0o644))
		assert.Empty(t, store.Load(context.Background(), models.PaymentsCollection), "content %q", content)
	}
}

func TestFileStoreReplaceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	in := []models.Record{
		{"id": "1", "nombre": "Ana", "apellido": "López"},
		{"id": "2", "nombre": "Juan", "apellido": "Pérez", "extra": map[string]interface{}{"nivel": "avanzado"}},
	}
	require.NoError(t, store.Replace(ctx, models.StudentsCollection, in))

	out := store.Load(ctx, models.StudentsCollection)
	assert.Equal(t, in, out)

	raw, err := os.ReadFile(filepath.Join(dir, "alumnos.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "López", "non-ASCII text should be written unescaped")
	assert.Contains(t, string(raw), "\n  {", "collection should be indented")

	// The second write fully replaces the first.
	require.NoError(t, store.Replace(ctx, models.StudentsCollection, in[:1]))
	assert.Len(t, store.Load(ctx, models.StudentsCollection), 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should be left behind")
}

func TestFileStoreReplaceNilWritesEmptyArray(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Replace(context.Background(), models.NotesCollection, nil))
	raw, err := os.ReadFile(store.Path(models.NotesCollection))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}

func TestReadJSONFileSkipsNullEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sudo-users.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"nombre":"admin"}, null]`), 0o644))

	users := ReadJSONFile(path)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0]["nombre"])
}
