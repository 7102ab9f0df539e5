package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EBMS/internal/domain"
)

func dispositions(batch domain.ImportBatch) map[string]domain.ImportDisposition {
	out := map[string]domain.ImportDisposition{}
	for _, a := range batch.Actions {
		out[a.SourceID] = a.Disposition
	}
	return out
}

func TestImportRegularBatch(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.repo.AddToNotList(ctx, e.board.ID, "BADJ", testNow.Add(-24*time.Hour)))

	e.source.add("500", "GOODJ", testNow)
	e.source.add("501", "BADJ", testNow)
	existing := e.article(t, "502")
	e.source.add("502", "GOODJ", testNow)
	excluded := e.article(t, "504")
	e.source.add("504", excluded.JournalID, testNow)
	require.NoError(t, e.repo.AddToNotList(ctx, e.board.ID, excluded.JournalID, testNow.Add(-24*time.Hour)))

	batch, err := e.importer.Run(ctx, ImportRequest{
		PMIDs:   []string{"500, 501", "502 503", "abc", "500", "504"},
		TopicID: e.topic.ID,
		UserID:  e.user.ID,
		Comment: "monthly import",
	})
	require.NoError(t, err)
	assert.NotZero(t, batch.ID)
	assert.True(t, batch.Success)
	require.NotNil(t, batch.Cycle)
	assert.True(t, batch.Cycle.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	got := dispositions(batch)
	assert.Equal(t, domain.DispositionImported, got["500"])
	assert.Equal(t, domain.DispositionNotListed, got["501"])
	assert.Equal(t, domain.DispositionTopicAdded, got["502"])
	assert.Equal(t, domain.DispositionError, got["503"])
	assert.Equal(t, domain.DispositionError, got["abc"])
	assert.Equal(t, domain.DispositionNotListed, got["504"])
	assert.Len(t, batch.Actions, 6)

	articles, err := e.repo.ArticlesBySourceID(ctx, []string{"500", "501"})
	require.NoError(t, err)
	assert.Equal(t, "Fresh title 500", articles["500"].Title)

	state, err := e.ledger.Current(ctx, articles["500"].ID, e.topic.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReadyInitReview, state.State.TextID)
	require.Len(t, state.Comments, 1)
	assert.Equal(t, "monthly import", state.Comments[0].Body)

	state, err = e.ledger.Current(ctx, articles["501"].ID, e.topic.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRejectJournalTitle, state.State.TextID)

	state, err = e.ledger.Current(ctx, existing.ID, e.topic.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReadyInitReview, state.State.TextID)

	state, err = e.ledger.Current(ctx, excluded.ID, e.topic.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRejectJournalTitle, state.State.TextID)

	again, err := e.importer.Run(ctx, ImportRequest{PMIDs: []string{"500"}, TopicID: e.topic.ID, UserID: e.user.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.DispositionDuplicate, dispositions(again)["500"])
}

func TestImportFastTrack(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	e.source.add("510", "J1", testNow)
	e.source.add("511", "J1", testNow)

	_, err := e.importer.Run(ctx, ImportRequest{
		PMIDs: []string{"510"}, TopicID: e.topic.ID, UserID: e.user.ID, ImportType: domain.ImportFastTrack,
	})
	require.NoError(t, err)
	_, err = e.importer.Run(ctx, ImportRequest{
		PMIDs: []string{"511"}, TopicID: e.topic.ID, UserID: e.user.ID, ImportType: domain.ImportFastTrack,
		FastTrackState: domain.StatePassedFullReview,
	})
	require.NoError(t, err)

	articles, err := e.repo.ArticlesBySourceID(ctx, []string{"510", "511"})
	require.NoError(t, err)
	first, err := e.ledger.Current(ctx, articles["510"].ID, e.topic.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePassedBMReview, first.State.TextID)
	second, err := e.ledger.Current(ctx, articles["511"].ID, e.topic.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePassedFullReview, second.State.TextID)
}

func TestImportDataReplacesKnownArticles(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	known := e.article(t, "520")
	e.source.add("520", "J1", testNow)
	e.source.add("521", "J1", testNow)

	batch, err := e.importer.Run(ctx, ImportRequest{PMIDs: []string{"520", "521"}, UserID: e.user.ID, ImportType: domain.ImportData})
	require.NoError(t, err)
	assert.Nil(t, batch.Cycle)

	got := dispositions(batch)
	assert.Equal(t, domain.DispositionReplaced, got["520"])
	assert.Equal(t, domain.DispositionError, got["521"])

	stored, err := e.repo.Article(ctx, known.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fresh title 520", stored.Title)
	require.NotNil(t, stored.UpdateDate)
	assert.True(t, stored.UpdateDate.Equal(testNow))

	topics, err := e.repo.ArticleTopics(ctx, known.ID)
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestImportRequiresTopicAndValidIDs(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	_, err := e.importer.Run(ctx, ImportRequest{PMIDs: []string{"530"}, UserID: e.user.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.importer.Run(ctx, ImportRequest{PMIDs: []string{"x1", ""}, TopicID: e.topic.ID, UserID: e.user.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.importer.Run(ctx, ImportRequest{PMIDs: []string{"530"}, TopicID: e.topic.ID, UserID: e.user.ID, ImportType: "Z"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, e.source.calls)
}

func TestImportFetchFailureRecordsBatch(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.source.err = errOffline

	batch, err := e.importer.Run(context.Background(), ImportRequest{PMIDs: []string{"540"}, TopicID: e.topic.ID, UserID: e.user.ID})
	require.ErrorIs(t, err, errOffline)
	assert.False(t, batch.Success)
	require.Len(t, batch.Messages, 1)
	assert.Contains(t, batch.Messages[0], "NLM offline")
}

func TestNormalizePMIDs(t *testing.T) {
	t.Parallel()

	valid, invalid := NormalizePMIDs([]string{"1, 2;3\t4\n2", "12345678901", "PMC55"})
	assert.Equal(t, []string{"1", "2", "3", "4"}, valid)
	assert.Equal(t, []string{"12345678901", "PMC55"}, invalid)
}
