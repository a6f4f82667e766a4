package formid_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashlens/crashlens-go/internal/formid"
	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// newTestDB writes a minimal FormID database with one known entry.
func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formids.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE Fallout4 (formid TEXT, plugin TEXT, entry TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Fallout4 VALUES ('01CBED', 'Fallout4.esm', 'Dogmeat')`)
	require.NoError(t, err)

	return path
}

func TestDescriptionStore_Lookup(t *testing.T) {
	store, err := formid.OpenDescriptionStore(newTestDB(t), "Fallout4", nil)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	ctx := context.Background()

	desc, ok := store.Lookup(ctx, 0x01CBED, "Fallout4.esm")
	require.True(t, ok)
	assert.Equal(t, "Dogmeat", desc)

	// Plugin names compare case-insensitively.
	desc, ok = store.Lookup(ctx, 0x01CBED, "FALLOUT4.ESM")
	require.True(t, ok)
	assert.Equal(t, "Dogmeat", desc)

	_, ok = store.Lookup(ctx, 0x999999, "Fallout4.esm")
	assert.False(t, ok)

	// The miss is cached; a second lookup takes the cache path.
	_, ok = store.Lookup(ctx, 0x999999, "Fallout4.esm")
	assert.False(t, ok)
}

func TestDescriptionStore_Annotate(t *testing.T) {
	store, err := formid.OpenDescriptionStore(newTestDB(t), "Fallout4", nil)
	require.NoError(t, err)
	defer store.Close()

	ids := []crash.FormID{
		{Value: 0x0001CBED, LocalID: 0x01CBED, SourcePlugin: "Fallout4.esm"},
		{Value: 0x0001CBEE, LocalID: 0x01CBEE, SourcePlugin: "Fallout4.esm"},
		{Value: 0x01008196, LocalID: 0x008196},
	}
	store.Annotate(context.Background(), ids)

	assert.Equal(t, "Dogmeat", ids[0].Description)
	assert.Empty(t, ids[1].Description)
	assert.Empty(t, ids[2].Description)
}

func TestOpenDescriptionStore_MissingFile(t *testing.T) {
	store, err := formid.OpenDescriptionStore(filepath.Join(t.TempDir(), "nope.db"), "Fallout4", nil)
	require.NoError(t, err)
	assert.Nil(t, store)

	// A nil store is usable.
	_, ok := store.Lookup(context.Background(), 0x01CBED, "Fallout4.esm")
	assert.False(t, ok)
	store.Annotate(context.Background(), nil)
	assert.NoError(t, store.Close())
}

func TestOpenDescriptionStore_EmptyPath(t *testing.T) {
	store, err := formid.OpenDescriptionStore("", "Fallout4", nil)
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestOpenDescriptionStore_BadTableName(t *testing.T) {
	_, err := formid.OpenDescriptionStore(newTestDB(t), "Fallout4; DROP TABLE", nil)
	require.Error(t, err)
}
