package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

func TestAIQuestions_AppendOnlyInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	score := 0.9
	id1, err := store.AddAIQuestion(ctx, &types.AIQuestion{PostID: "p1", Text: "Older", ConfidenceScore: &score, ModelVersion: "v1"})
	require.NoError(t, err)
	id2, err := store.AddAIQuestion(ctx, &types.AIQuestion{PostID: "p1", Text: "Older"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2, "duplicates are appended, not merged")

	qs, err := store.ListAIQuestions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, id1, qs[0].ID)
	require.NotNil(t, qs[0].ConfidenceScore)
	assert.Equal(t, 0.9, *qs[0].ConfidenceScore)
	assert.Nil(t, qs[1].ConfidenceScore)
	assert.True(t, qs[0].CreatedAt.Before(qs[1].CreatedAt))
}

func TestAIAnnotations_MixedZonesOrderByInstant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	newYork := time.FixedZone("EST", -5*60*60)
	noonNewYork := time.Date(2024, 1, 10, 12, 0, 0, 0, newYork) // 17:00Z
	fourUTC := time.Date(2024, 1, 10, 16, 0, 0, 0, time.UTC)

	_, err := store.AddAIQuestion(ctx, &types.AIQuestion{PostID: "p1", Text: "Q1", CreatedAt: noonNewYork})
	require.NoError(t, err)
	_, err = store.AddAIQuestion(ctx, &types.AIQuestion{PostID: "p1", Text: "Q2", CreatedAt: fourUTC})
	require.NoError(t, err)

	qs, err := store.ListAIQuestions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, qs, 2)
	if qs[0].Text != "Q2" || qs[1].Text != "Q1" {
		t.Fatalf("order = [%s, %s], want [Q2, Q1]", qs[0].Text, qs[1].Text)
	}
	assert.True(t, qs[1].CreatedAt.Equal(noonNewYork))

	_, err = store.AddAICategory(ctx, &types.AICategory{PostID: "p1", CategoryType: "group", CategoryValue: "C1", CreatedAt: noonNewYork})
	require.NoError(t, err)
	_, err = store.AddAICategory(ctx, &types.AICategory{PostID: "p1", CategoryType: "group", CategoryValue: "C2", CreatedAt: fourUTC})
	require.NoError(t, err)

	cats, err := store.ListAICategories(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "C2", cats[0].CategoryValue)
	assert.Equal(t, "C1", cats[1].CategoryValue)
}

func TestAIAnnotations_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	bad := 1.2
	_, err := store.AddAIQuestion(ctx, &types.AIQuestion{PostID: "p1", Text: "q", ConfidenceScore: &bad})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.AddAIQuestion(ctx, &types.AIQuestion{PostID: "missing", Text: "q"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.AddAICategory(ctx, &types.AICategory{PostID: "p1", CategoryValue: "Medical"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	cats, err := store.ListAICategories(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, cats)
	assert.Empty(t, cats)
}

func TestUserQuestions_CRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	id, err := store.SaveUserQuestion(ctx, "p1", types.UserAnnotationInput{Text: " What helped? ", Notes: "follow up"})
	require.NoError(t, err)
	_, err = store.SaveUserQuestion(ctx, "p1", types.UserAnnotationInput{Text: "Second"})
	require.NoError(t, err)

	list, err := store.ListUserQuestions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "What helped?", list[0].Text)
	assert.Equal(t, "follow up", list[0].Notes)
	assert.Equal(t, "Second", list[1].Text)

	require.NoError(t, store.UpdateUserQuestion(ctx, id, types.UserAnnotationInput{Text: "Edited"}))
	list, err = store.ListUserQuestions(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Edited", list[0].Text)
	assert.Equal(t, "", list[0].Notes)
	assert.True(t, list[0].UpdatedAt.After(list[0].CreatedAt))

	require.NoError(t, store.DeleteUserQuestion(ctx, id))
	list, err = store.ListUserQuestions(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, store.DeleteUserQuestion(ctx, id), storage.ErrNotFound)
	assert.ErrorIs(t, store.UpdateUserQuestion(ctx, 9999, types.UserAnnotationInput{Text: "x"}), storage.ErrNotFound)
}

func TestUserTopics_MirrorQuestions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	commitPosts(t, store, 1, samplePost("p1", "F", "A", ""))

	_, err := store.SaveUserTopic(ctx, "p1", types.UserAnnotationInput{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	id, err := store.SaveUserTopic(ctx, "p1", types.UserAnnotationInput{Text: "Recovery time"})
	require.NoError(t, err)

	topics, err := store.ListUserTopics(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, id, topics[0].ID)
	assert.Equal(t, "Recovery time", topics[0].Text)

	questions, err := store.ListUserQuestions(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, questions, "topics and questions are separate streams")

	require.NoError(t, store.UpdateUserTopic(ctx, id, types.UserAnnotationInput{Notes: "only notes"}))
	require.NoError(t, store.DeleteUserTopic(ctx, id))
	assert.ErrorIs(t, store.UpdateUserTopic(ctx, id, types.UserAnnotationInput{Text: "x"}), storage.ErrNotFound)
}
