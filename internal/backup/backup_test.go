package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/internal/storage/sqlite"
	"github.com/scrypster/forumlens/pkg/types"
)

// seedDatabase creates a store file at path holding one post.
func seedDatabase(t *testing.T, path string, postID string) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, path, sqlite.Options{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	_, err = store.CommitUpload(ctx, storage.UploadBatch{
		Upload: types.Upload{UserID: 1, Filename: "seed.csv", ReadableName: "Seed"},
		Posts: []storage.PostRecord{{Post: types.Post{
			ID: postID, Forum: "F", OriginalTitle: "T", OriginalPost: "B",
		}}},
	})
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
}

func newTestService(t *testing.T, keep int) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "forumlens.db")
	seedDatabase(t, dbPath, "p1")

	svc, err := NewService(Config{
		DBPath: dbPath,
		Dir:    filepath.Join(dir, "backups"),
		Verify: true,
		Keep:   keep,
	}, zap.NewNop())
	require.NoError(t, err)
	return svc, dbPath
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{Dir: t.TempDir()}, nil)
	assert.Error(t, err)
	_, err = NewService(Config{DBPath: "x.db"}, nil)
	assert.Error(t, err)
}

func TestSnapshot_CreatesVerifiedCopy(t *testing.T) {
	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	res, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Greater(t, res.Size, int64(0))
	assert.FileExists(t, res.Path)
	require.NoError(t, svc.Verify(ctx, res.Path))

	snap, err := sqlite.Open(ctx, res.Path, sqlite.Options{})
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()
	post, err := snap.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "T", post.OriginalTitle)
}

func TestSnapshot_PrunesToKeep(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Snapshot(ctx)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	snaps, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	st, err := svc.Status()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Snapshots)
	assert.False(t, st.LastSnapshot.IsZero())
	assert.Empty(t, st.LastError)
}

func TestSnapshot_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(Config{DBPath: filepath.Join(dir, "absent.db"), Dir: dir}, nil)
	require.NoError(t, err)

	_, err = svc.Snapshot(context.Background())
	require.Error(t, err)
	st, err := svc.Status()
	require.NoError(t, err)
	assert.NotEmpty(t, st.LastError)
}

func TestVerify_Corrupt(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "forumlens-bad.db")
	require.NoError(t, os.WriteFile(bad, []byte("definitely not sqlite, but long enough to look like a header"), 0o600))

	svc, err := NewService(Config{DBPath: bad, Dir: dir}, nil)
	require.NoError(t, err)
	assert.Error(t, svc.Verify(context.Background(), bad))
	assert.Error(t, svc.Verify(context.Background(), filepath.Join(dir, "missing.db")))
}

func TestRestore(t *testing.T) {
	svc, dbPath := newTestService(t, 5)
	ctx := context.Background()

	res, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	// Diverge the live database, then roll it back.
	seedDatabase(t, dbPath, "p2")
	require.NoError(t, svc.Restore(ctx, res.Path))

	store, err := sqlite.Open(ctx, dbPath, sqlite.Options{})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	_, err = store.GetPost(ctx, "p1")
	assert.NoError(t, err)
	_, err = store.GetPost(ctx, "p2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Error(t, svc.Restore(ctx, filepath.Join(t.TempDir(), "missing.db")))
	assert.NoFileExists(t, dbPath+".pre-restore")
}

func TestRun_RequiresInterval(t *testing.T) {
	svc, _ := newTestService(t, 5)
	assert.Error(t, svc.Run(context.Background()))
}

func TestRun_TakesScheduledSnapshots(t *testing.T) {
	svc, _ := newTestService(t, 10)
	svc.cfg.Interval = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	snaps, err := svc.List()
	require.NoError(t, err)
	assert.NotEmpty(t, snaps)
}
