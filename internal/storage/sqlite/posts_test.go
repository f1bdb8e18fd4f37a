package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

func postIDs(posts []types.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestCommitUpload_InsertsAndCountsRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := samplePost("p1", "ForumA", "Title", "2024-01-01")
	rec.Post.Cluster = ptr(int64(3))
	rec.Post.UMAP1 = ptr(0.25)
	rec.Questions = []types.AIQuestion{{Text: "How long is recovery?", ModelVersion: "upload_v1"}}
	rec.Categories = []types.AICategory{{CategoryType: "group", CategoryValue: "Medical"}}
	rec.Tags = []types.TagAssignment{{Level: types.LevelGroup, Value: "Medical", Source: types.SourceImport}}

	uploadID := commitPosts(t, store, 7, rec, samplePost("p2", "ForumA", "Other", "2024-01-02"))

	up, err := store.GetUpload(ctx, uploadID)
	require.NoError(t, err)
	assert.Equal(t, 2, up.RecordsCount)
	assert.Equal(t, types.UploadActive, up.Status)
	assert.Equal(t, int64(7), up.UserID)

	got, err := store.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, uploadID, got.UploadID)
	require.NotNil(t, got.Cluster)
	assert.Equal(t, int64(3), *got.Cluster)
	require.NotNil(t, got.UMAP1)
	assert.Equal(t, 0.25, *got.UMAP1)
	assert.Nil(t, got.UMAP2)

	qs, err := store.ListAIQuestions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "upload_v1", qs[0].ModelVersion)

	tags, err := store.TagsForPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []types.TagValue{{Value: "Medical", Source: types.SourceImport}}, tags.Groups)
}

func TestCommitUpload_SkipsExistingPosts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "ForumA", "Title", "2024-01-01"))

	res, err := store.CommitUpload(ctx, storage.UploadBatch{
		Upload: types.Upload{UserID: 1, Filename: "again.csv"},
		Posts:  []storage.PostRecord{samplePost("p1", "ForumB", "Changed", "2024-01-01")},
	})
	require.NoError(t, err)
	assert.Nil(t, res.UploadID, "an upload with nothing new leaves no record")
	assert.Equal(t, 1, res.Skipped)

	uploads, err := store.ListUploads(ctx, storage.UploadFilter{UserID: 1})
	require.NoError(t, err)
	assert.Len(t, uploads, 1)

	got, err := store.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "ForumA", got.Forum)
}

func TestCommitUpload_OverwriteUpdatesWithoutDuplicatingSeeds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := samplePost("p1", "ForumA", "Title", "2024-01-01")
	rec.Questions = []types.AIQuestion{{Text: "Same question", ModelVersion: "upload_v1"}}
	commitPosts(t, store, 1, rec)

	rec.Post.Forum = "ForumB"
	res, err := store.CommitUpload(ctx, storage.UploadBatch{
		Upload:    types.Upload{UserID: 1, Filename: "again.csv"},
		Posts:     []storage.PostRecord{rec},
		Overwrite: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.UploadID)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Inserted)

	got, err := store.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "ForumB", got.Forum)
	assert.Equal(t, *res.UploadID, got.UploadID)

	qs, err := store.ListAIQuestions(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, qs, 1)
}

func TestCommitUpload_OverwriteMovesRecordCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := commitPosts(t, store, 1,
		samplePost("p1", "ForumA", "One", ""),
		samplePost("p2", "ForumA", "Two", ""),
	)
	res, err := store.CommitUpload(ctx, storage.UploadBatch{
		Upload:    types.Upload{UserID: 1, Filename: "again.csv"},
		Posts:     []storage.PostRecord{samplePost("p1", "ForumB", "One", "")},
		Overwrite: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.UploadID)

	up, err := store.GetUpload(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, up.RecordsCount, "p1 moved to the new upload")

	stats, err := store.UploadStats(ctx, 1)
	require.NoError(t, err)
	if stats.TotalRecords != 2 {
		t.Fatalf("TotalRecords = %d, want 2", stats.TotalRecords)
	}
}

func TestCommitUpload_IDHeldByAnotherUserConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mine := commitPosts(t, store, 1, samplePost("p1", "ForumA", "Title", ""))

	for _, overwrite := range []bool{false, true} {
		res, err := store.CommitUpload(ctx, storage.UploadBatch{
			Upload:    types.Upload{UserID: 2, Filename: "theirs.csv"},
			Posts:     []storage.PostRecord{samplePost("p1", "ForumB", "Changed", "")},
			Overwrite: overwrite,
		})
		assert.ErrorIs(t, err, storage.ErrConflict, "overwrite=%v", overwrite)
		assert.Nil(t, res)
	}

	got, err := store.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, mine, got.UploadID)
	assert.Equal(t, "ForumA", got.Forum)

	posts, err := store.ListPosts(ctx, storage.PostFilter{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, postIDs(posts))

	uploads, err := store.ListUploads(ctx, storage.UploadFilter{UserID: 2})
	require.NoError(t, err)
	assert.Empty(t, uploads, "the conflicting upload is rolled back")
}

func TestCommitUpload_RejectsInvalidBatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CommitUpload(ctx, storage.UploadBatch{Upload: types.Upload{UserID: 1}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.CommitUpload(ctx, storage.UploadBatch{
		Posts: []storage.PostRecord{samplePost("p1", "F", "T", "")},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCommitUpload_CancelledContextRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.CommitUpload(ctx, storage.UploadBatch{
		Upload: types.Upload{UserID: 1},
		Posts:  []storage.PostRecord{samplePost("p1", "F", "T", "")},
	})
	require.Error(t, err)

	_, err = store.GetPost(context.Background(), "p1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListPosts_Visibility(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mine := commitPosts(t, store, 1,
		samplePost("a1", "ForumA", "T1", "2024-01-01"),
		samplePost("a2", "ForumB", "T2", "2024-01-03"),
	)
	commitPosts(t, store, 2, samplePost("b1", "ForumA", "T3", "2024-01-02"))

	posts, err := store.ListPosts(ctx, storage.PostFilter{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a1"}, postIDs(posts), "own posts, newest date first")

	posts, err = store.ListPosts(ctx, storage.PostFilter{UserID: 1, Forum: "ForumA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, postIDs(posts))

	posts, err = store.ListPosts(ctx, storage.PostFilter{AllUsers: true})
	require.NoError(t, err)
	assert.Len(t, posts, 3)

	require.NoError(t, store.SetUploadStatus(ctx, mine, 1, types.UploadArchived))
	posts, err = store.ListPosts(ctx, storage.PostFilter{UserID: 1})
	require.NoError(t, err)
	assert.Empty(t, posts, "archived uploads are hidden")

	posts, err = store.ListPosts(ctx, storage.PostFilter{UserID: 1, Status: types.UploadArchived})
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	posts, err = store.ListPosts(ctx, storage.PostFilter{UserID: 99})
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
}

func TestListPosts_ClusterFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := samplePost("a", "F", "A", "2024-01-01")
	a.Post.Cluster = ptr(int64(1))
	b := samplePost("b", "F", "B", "2024-01-02")
	b.Post.Cluster = ptr(int64(2))
	commitPosts(t, store, 1, a, b, samplePost("c", "F", "C", "2024-01-03"))

	posts, err := store.ListPosts(ctx, storage.PostFilter{UserID: 1, Cluster: ptr(int64(2))})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, postIDs(posts))

	summary, err := store.PostsSummary(ctx, storage.PostFilter{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalPosts)
	assert.Equal(t, map[string]int{"F": 3}, summary.ByForum)
	assert.Equal(t, map[string]int{"1": 1, "2": 1}, summary.ByCluster)
}

func TestListPostsByTag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1,
		samplePost("p1", "F", "A", "2024-01-01"),
		samplePost("p2", "F", "B", "2024-01-02"),
	)
	require.NoError(t, store.ReplaceTags(ctx, "p1",
		types.TagSet{Tags: []types.TagValue{{Value: "Pain Management"}}}, types.SourceUser))

	posts, err := store.ListPostsByTag(ctx, storage.PostFilter{UserID: 1}, types.LevelTag, "pain  management")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, postIDs(posts))

	posts, err = store.ListPostsByTag(ctx, storage.PostFilter{UserID: 1}, types.LevelGroup, "Pain Management")
	require.NoError(t, err)
	assert.Empty(t, posts)

	_, err = store.ListPostsByTag(ctx, storage.PostFilter{UserID: 1}, "bogus", "x")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestGetPost_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetPost(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListAnnotatedPosts_ChildrenInCreationOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1,
		samplePost("p1", "F", "A", "2024-01-01"),
		samplePost("p2", "F", "B", "2024-01-02"),
	)

	for _, text := range []string{"first", "second", "third"} {
		_, err := store.AddAIQuestion(ctx, &types.AIQuestion{PostID: "p1", Text: text})
		require.NoError(t, err)
	}
	_, err := store.AddAICategory(ctx, &types.AICategory{PostID: "p2", CategoryType: "group", CategoryValue: "Medical"})
	require.NoError(t, err)

	annotated, err := store.ListAnnotatedPosts(ctx, storage.PostFilter{UserID: 1})
	require.NoError(t, err)
	require.Len(t, annotated, 2)

	byID := map[string]storage.AnnotatedPost{}
	for _, a := range annotated {
		byID[a.ID] = a
	}
	var texts []string
	for _, q := range byID["p1"].AIQuestions {
		texts = append(texts, q.Text)
	}
	assert.Equal(t, []string{"first", "second", "third"}, texts)
	assert.Empty(t, byID["p1"].AICategories)
	require.Len(t, byID["p2"].AICategories, 1)
	assert.Equal(t, "Medical", byID["p2"].AICategories[0].CategoryValue)

	annotated, err = store.ListAnnotatedPosts(ctx, storage.PostFilter{UserID: 2})
	require.NoError(t, err)
	assert.Empty(t, annotated)
}

func TestExistingPostIDs(t *testing.T) {
	store := newTestStore(t)
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))
	commitPosts(t, store, 2, samplePost("p2", "F", "B", ""))

	found, err := store.ExistingPostIDs(context.Background(), 1, []string{"p1", "p2", "p3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p1": true}, found)

	found, err = store.ExistingPostIDs(context.Background(), 3, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Empty(t, found)
}
