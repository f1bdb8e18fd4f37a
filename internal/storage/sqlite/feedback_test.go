package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

func TestSaveFeedback_UpsertKeepsOneRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	responseID := types.NewResponseID()
	in := types.FeedbackInput{PostID: "p1", InferenceType: "question", Rating: types.RatingPositive, ResponseID: responseID}

	first, err := store.SaveFeedback(ctx, in)
	require.NoError(t, err)

	in.Rating = types.RatingNegative
	in.FeedbackText = "actually wrong"
	second, err := store.SaveFeedback(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, types.RatingNegative, second.Rating)
	assert.Equal(t, "actually wrong", second.FeedbackText)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "created_at survives the upsert")
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	list, err := store.ListFeedback(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSaveFeedback_TextUpdateKeepsRating(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	responseID := types.NewResponseID()
	_, err := store.SaveFeedback(ctx, types.FeedbackInput{
		PostID: "p1", InferenceType: "category", Rating: types.RatingPositive, ResponseID: responseID,
	})
	require.NoError(t, err)

	got, err := store.SaveFeedback(ctx, types.FeedbackInput{
		PostID: "p1", InferenceType: "category", Rating: types.RatingTextUpdate,
		FeedbackText: "good but vague", ResponseID: responseID,
	})
	require.NoError(t, err)
	assert.Equal(t, types.RatingPositive, got.Rating)
	assert.Equal(t, "good but vague", got.FeedbackText)

	// Without a prior record the text is stored unrated.
	fresh, err := store.SaveFeedback(ctx, types.FeedbackInput{
		PostID: "p1", InferenceType: "category", Rating: types.RatingTextUpdate,
		FeedbackText: "comment only", ResponseID: types.NewResponseID(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.RatingNone, fresh.Rating)
}

func TestGetFeedback_MostRecentAcrossResponses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	older := types.NewResponseID()
	newer := types.NewResponseID()
	_, err := store.SaveFeedback(ctx, types.FeedbackInput{PostID: "p1", InferenceType: "question", Rating: types.RatingPositive, ResponseID: older})
	require.NoError(t, err)
	_, err = store.SaveFeedback(ctx, types.FeedbackInput{PostID: "p1", InferenceType: "question", Rating: types.RatingNegative, ResponseID: newer})
	require.NoError(t, err)

	got, err := store.GetFeedback(ctx, "p1", "question")
	require.NoError(t, err)
	assert.Equal(t, newer, got.ResponseID)

	// Touching the older thread makes it the most recent again.
	_, err = store.SaveFeedback(ctx, types.FeedbackInput{PostID: "p1", InferenceType: "question", Rating: types.RatingPositive, FeedbackText: "revisited", ResponseID: older})
	require.NoError(t, err)
	got, err = store.GetFeedback(ctx, "p1", "question")
	require.NoError(t, err)
	assert.Equal(t, older, got.ResponseID)
}

func TestGetFeedback_AbsentIsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetFeedback(context.Background(), "p1", "question")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFeedback_UserDecoration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	uid, err := store.CreateUser(ctx, &types.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", IsActive: true})
	require.NoError(t, err)

	got, err := store.SaveFeedback(ctx, types.FeedbackInput{
		PostID: "p1", InferenceType: "question", Rating: types.RatingPositive,
		ResponseID: types.NewResponseID(), UserID: &uid,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.UserDisplayName())

	anon, err := store.SaveFeedback(ctx, types.FeedbackInput{
		PostID: "p1", InferenceType: "topic", ResponseID: types.NewResponseID(), FeedbackText: "hmm",
	})
	require.NoError(t, err)
	assert.Equal(t, "Unknown User", anon.UserDisplayName())
}

func TestSaveFeedback_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveFeedback(ctx, types.FeedbackInput{PostID: "p1", InferenceType: "q", ResponseID: "nope"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.SaveFeedback(ctx, types.FeedbackInput{PostID: "missing", InferenceType: "q", ResponseID: types.NewResponseID()})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteFeedback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	rid := types.NewResponseID()
	_, err := store.SaveFeedback(ctx, types.FeedbackInput{PostID: "p1", InferenceType: "q", Rating: types.RatingPositive, ResponseID: rid})
	require.NoError(t, err)

	require.NoError(t, store.DeleteFeedback(ctx, "p1", "q", rid))
	assert.ErrorIs(t, store.DeleteFeedback(ctx, "p1", "q", rid), storage.ErrNotFound)
	_, err = store.GetFeedback(ctx, "p1", "q")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, &types.User{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, &types.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", IsActive: true})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, &types.User{Email: "ADA@example.com"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Hopper", users[0].LastName)
	assert.Equal(t, "Lovelace", users[1].LastName)
	for _, u := range users {
		if !u.IsActive {
			t.Fatalf("user %s created inactive", u.Email)
		}
	}

	got, err := store.GetUser(ctx, users[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)

	_, err = store.GetUser(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
