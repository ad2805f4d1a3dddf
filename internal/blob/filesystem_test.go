package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesystemStoreSaveRetrieveRoundtrip(t *testing.T) {
	s, err := NewFilesystemStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	handle, err := s.Save(ctx, "weather", []byte("payload"), ".json")
	require.NoError(t, err)

	got, err := s.Retrieve(ctx, handle)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func TestFilesystemStoreDeleteIsIdempotent(t *testing.T) {
	s, err := NewFilesystemStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	handle, err := s.Save(ctx, "weather", []byte("x"), "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, handle))
	// Second delete of an already-removed file must not error.
	require.NoError(t, s.Delete(ctx, handle))
}

func TestFilesystemStoreDeleteByPrefix(t *testing.T) {
	s, err := NewFilesystemStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.SaveAtPath(ctx, "tilesets/job1/a.glb", []byte("a"))
	require.NoError(t, err)
	_, err = s.SaveAtPath(ctx, "tilesets/job1/b.glb", []byte("b"))
	require.NoError(t, err)
	_, err = s.SaveAtPath(ctx, "tilesets/job2/c.glb", []byte("c"))
	require.NoError(t, err)

	n, err := s.DeleteByPrefix(ctx, "tilesets/job1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = s.Retrieve(ctx, "tilesets/job2/c.glb")
	require.NoError(t, err)
}
