package credstore_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/donmezahmet/ring-unlock/credstore"
	"github.com/donmezahmet/ring-unlock/ring"
)

func testSession() *ring.Session {
	return &ring.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestStore(t *testing.T) (*credstore.FileStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data", "ring_token.json")
	store, err := credstore.NewFileStore(path)
	require.NoError(t, err)
	return store, path
}

func TestFileStoreLoadAbsent(t *testing.T) {
	store, _ := newTestStore(t)

	session, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(testSession()))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "access-1", loaded.AccessToken)
	require.Equal(t, "refresh-1", loaded.RefreshToken)
	require.True(t, loaded.ExpiresAt.Equal(testSession().ExpiresAt))
}

func TestFileStoreSaveOverwritesSlot(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(testSession()))

	rotated := testSession()
	rotated.AccessToken = "access-2"
	rotated.RefreshToken = "refresh-2"
	require.NoError(t, store.Save(rotated))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "access-2", loaded.AccessToken)
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Save(testSession()))
	require.NoError(t, store.Save(testSession()))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestFileStoreCorruptFileIsStorageFailure(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("not json{"), 0o600))

	_, err := store.Load()
	require.ErrorIs(t, err, credstore.ErrStorage)

	// The corrupt file stays on disk for diagnostics.
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestSeedRoundTrip(t *testing.T) {
	seed, err := credstore.EncodeSeed(testSession())
	require.NoError(t, err)

	decoded, err := credstore.DecodeSeed(seed)
	require.NoError(t, err)
	require.Equal(t, "access-1", decoded.AccessToken)
	require.Equal(t, "refresh-1", decoded.RefreshToken)
	require.True(t, decoded.ExpiresAt.Equal(testSession().ExpiresAt))
}

func TestDecodeSeedRejectsGarbage(t *testing.T) {
	_, err := credstore.DecodeSeed("%%%not-base64%%%")
	require.Error(t, err)

	_, err = credstore.DecodeSeed("bm90IGpzb24=")
	require.Error(t, err)
}

func TestDecodeSeedRejectsIncompleteSession(t *testing.T) {
	partial := &ring.Session{AccessToken: "access-1"}
	seed, err := credstore.EncodeSeed(partial)
	require.NoError(t, err)

	_, err = credstore.DecodeSeed(seed)
	require.Error(t, err)
}
