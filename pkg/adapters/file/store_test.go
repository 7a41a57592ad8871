package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/cadence/pkg/adapters/file"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_AtomicLayout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "t1", domain.NewDialogueState("t1")))

	// One JSON file per thread, no temp leftovers.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t1.json", entries[0].Name())

	// Overwrite keeps exactly one file.
	st := domain.NewDialogueState("t1")
	st.TurnCount = 5
	require.NoError(t, store.Save(ctx, "t1", st))

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	loaded, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.TurnCount)
}

func TestFileStore_LenientDecode(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)

	// A record written by an older build without the trace section.
	raw := []byte(`{"version":1,"thread_id":"old","conversation_state":"idle","turn_count":2}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), raw, 0644))

	loaded, err := store.Load(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.TurnCount)
	assert.NotNil(t, loaded.Trace)
	assert.NotNil(t, loaded.Metadata)
}
