package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

func TestSetUploadStatus_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	err := store.SetUploadStatus(ctx, id, 1, types.UploadDeleted)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition, "active uploads must be archived first")

	require.NoError(t, store.SetUploadStatus(ctx, id, 1, types.UploadArchived))
	require.NoError(t, store.SetUploadStatus(ctx, id, 1, types.UploadDeleted))
	require.NoError(t, store.SetUploadStatus(ctx, id, 1, types.UploadArchived))
	require.NoError(t, store.SetUploadStatus(ctx, id, 1, types.UploadActive))

	up, err := store.GetUpload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.UploadActive, up.Status)
	require.NotNil(t, up.StatusChangedAt)
	assert.True(t, up.StatusChangedAt.After(up.CreatedAt))
}

func TestSetUploadStatus_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	assert.ErrorIs(t, store.SetUploadStatus(ctx, id, 2, types.UploadArchived), storage.ErrForbidden)
	assert.ErrorIs(t, store.SetUploadStatus(ctx, 999, 1, types.UploadArchived), storage.ErrNotFound)
	assert.ErrorIs(t, store.SetUploadStatus(ctx, id, 1, "purged"), storage.ErrInvalidInput)
}

func TestPurgeUpload_RemovesEverythingAttached(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := samplePost("p1", "F", "A", "")
	rec.Questions = []types.AIQuestion{{Text: "seeded"}}
	rec.Tags = []types.TagAssignment{{Level: types.LevelGroup, Value: "Medical"}}
	id := commitPosts(t, store, 1, rec, samplePost("p2", "F", "B", ""))
	keep := commitPosts(t, store, 1, samplePost("p3", "F", "C", ""))

	_, err := store.SaveUserQuestion(ctx, "p1", types.UserAnnotationInput{Text: "mine"})
	require.NoError(t, err)
	_, err = store.SaveFeedback(ctx, types.FeedbackInput{PostID: "p1", InferenceType: "q", Rating: types.RatingPositive, ResponseID: types.NewResponseID()})
	require.NoError(t, err)

	_, err = store.PurgeUpload(ctx, id, 1)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition, "only deleted uploads can be purged")

	require.NoError(t, store.SetUploadStatus(ctx, id, 1, types.UploadArchived))
	require.NoError(t, store.SetUploadStatus(ctx, id, 1, types.UploadDeleted))

	_, err = store.PurgeUpload(ctx, id, 2)
	assert.ErrorIs(t, err, storage.ErrForbidden)

	removed, err := store.PurgeUpload(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.GetUpload(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetPost(ctx, "p1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for _, table := range []string{"ai_questions", "user_questions", "tag_assignments", "inference_feedback"} {
		var n int
		require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, table)
	}

	_, err = store.GetUpload(ctx, keep)
	require.NoError(t, err)
	tags, err := store.AvailableTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Medical"}, tags.Groups, "registry values survive a purge")
}

func TestUploadStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := commitPosts(t, store, 1, samplePost("p1", "F", "A", ""), samplePost("p2", "F", "B", ""))
	commitPosts(t, store, 1, samplePost("p3", "F", "C", ""))
	commitPosts(t, store, 2, samplePost("p4", "F", "D", ""))
	require.NoError(t, store.SetUploadStatus(ctx, a, 1, types.UploadArchived))

	stats, err := store.UploadStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUploads)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, map[types.UploadStatus]int{types.UploadActive: 1, types.UploadArchived: 1}, stats.ByStatus)
	assert.Equal(t, 2, stats.RecentUploads)
}

func TestListUploads_FilterAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))
	second := commitPosts(t, store, 1, samplePost("p2", "F", "B", ""))
	require.NoError(t, store.SetUploadStatus(ctx, first, 1, types.UploadArchived))

	all, err := store.ListUploads(ctx, storage.UploadFilter{UserID: 1})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID, "newest first")

	archived, err := store.ListUploads(ctx, storage.UploadFilter{UserID: 1, Status: types.UploadArchived})
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, first, archived[0].ID)
}
