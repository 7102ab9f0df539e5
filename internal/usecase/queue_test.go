package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EBMS/internal/domain"
	"EBMS/internal/workflow"
)

func TestQueueListGroupsByArticle(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	lung, err := e.repo.SaveTopic(ctx, domain.Topic{Name: "Lung Cancer", BoardID: e.board.ID, Active: true})
	require.NoError(t, err)

	shared := e.article(t, "300")
	single := e.article(t, "301")
	done := e.article(t, "302")

	e.setState(t, shared.ID, domain.StateReadyInitReview)
	_, err = e.ledger.AddState(ctx, AddStateInput{ArticleID: shared.ID, TopicID: lung.ID, State: domain.StateReadyInitReview, UserID: e.user.ID})
	require.NoError(t, err)
	e.setState(t, single.ID, domain.StateReadyInitReview)
	e.setState(t, done.ID, domain.StateReadyInitReview)
	e.setState(t, done.ID, domain.StateRejectInitReview)

	page, err := e.queues.List(ctx, QueueRequest{Queue: workflow.QueueLibrarian, BoardID: e.board.ID})
	require.NoError(t, err)

	assert.Equal(t, "Librarian Review", page.Title)
	assert.Equal(t, []string{domain.StatePassedInitReview, domain.StateRejectInitReview}, page.Decisions)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Articles, 2)
	assert.Equal(t, shared.ID, page.Articles[0].ArticleID)
	assert.Len(t, page.Articles[0].Topics, 2)
	assert.Equal(t, single.ID, page.Articles[1].ArticleID)

	require.Len(t, page.Topics, 2)
	assert.Equal(t, "Breast Cancer (2)", page.Topics[0].Label)
	assert.Equal(t, "Lung Cancer (1)", page.Topics[1].Label)
}

func TestQueueListFiltersByTopicAndPages(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	for _, pmid := range []string{"310", "311", "312"} {
		a := e.article(t, pmid)
		e.setState(t, a.ID, domain.StatePublished)
	}

	page, err := e.queues.List(context.Background(), QueueRequest{
		Queue:    workflow.QueueAbstract,
		TopicIDs: []int64{e.topic.ID},
		Limit:    2,
		Offset:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Articles, 1)
	assert.Equal(t, "312", page.Articles[0].SourceID)

	empty, err := e.queues.List(context.Background(), QueueRequest{Queue: workflow.QueueOnHold})
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Articles)
}

func TestQueueListRejectsUnknownQueue(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, err := e.queues.List(context.Background(), QueueRequest{Queue: "triage"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestQueueClassify(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	a := e.article(t, "320")

	e.setState(t, a.ID, domain.StatePassedBMReview)
	q, ok, err := e.queues.Classify(ctx, a.ID, e.topic.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, workflow.QueueFullText, q)

	e.setState(t, a.ID, domain.StateFYI)
	_, ok, err = e.queues.Classify(ctx, a.ID, e.topic.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = e.queues.Classify(ctx, a.ID, e.topic.ID+50)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
