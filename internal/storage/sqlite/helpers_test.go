package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

// tickingClock returns strictly increasing timestamps so ordering by
// created_at and updated_at is deterministic.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	clock := &tickingClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store, err := Open(context.Background(), ":memory:", Options{Now: clock.now})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func samplePost(id, forum, title, date string) storage.PostRecord {
	return storage.PostRecord{Post: types.Post{
		ID:            id,
		Forum:         forum,
		OriginalTitle: title,
		OriginalPost:  "body of " + id,
		DatePosted:    date,
	}}
}

// commitPosts ingests recs as one upload owned by userID and returns the upload id.
func commitPosts(t *testing.T, s *Store, userID int64, recs ...storage.PostRecord) int64 {
	t.Helper()
	res, err := s.CommitUpload(context.Background(), storage.UploadBatch{
		Upload: types.Upload{UserID: userID, Filename: "posts.csv", ReadableName: "Posts"},
		Posts:  recs,
	})
	if err != nil {
		t.Fatalf("CommitUpload() failed: %v", err)
	}
	if res.UploadID == nil {
		t.Fatalf("CommitUpload() created no upload: %+v", res)
	}
	return *res.UploadID
}

func ptr[T any](v T) *T { return &v }
