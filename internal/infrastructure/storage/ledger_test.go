package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

func TestAppendStateKeepsSingleCurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	a := f.article(t, "100")

	f.setState(t, a.ID, f.topic.ID, domain.StateReadyInitReview)
	f.setState(t, a.ID, f.topic.ID, domain.StatePassedInitReview)
	last := f.setState(t, a.ID, f.topic.ID, domain.StatePublished)

	current, err := f.repo.CurrentState(ctx, a.ID, f.topic.ID)
	require.NoError(t, err)
	assert.Equal(t, last.ID, current.ID)
	assert.Equal(t, domain.StatePublished, current.State.TextID)
	assert.Equal(t, f.board.ID, current.BoardID)

	history, err := f.repo.History(ctx, a.ID, f.topic.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	currents := 0
	for _, e := range history {
		if e.Current {
			currents++
		}
	}
	assert.Equal(t, 1, currents)
	assert.Equal(t, domain.StateReadyInitReview, history[0].State.TextID)

	topics, err := f.repo.ArticleTopics(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, f.topic.ID, topics[0].TopicID)
}

func TestAppendStateAnnotations(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	a := f.article(t, "200")
	meeting := int64(7)

	_, err := f.repo.AppendState(ctx, ports.NewState{
		ArticleID: a.ID,
		TopicID:   f.topic.ID,
		State:     f.states[domain.StateFinalBoardDecision],
		UserID:    f.user.ID,
		EnteredAt: time.Now(),
		Cycle:     time.Now(),
		Comment:   "discussed at the March meeting",
		Decisions: []domain.BoardDecision{{Decision: "Cited", MeetingID: &meeting}, {Decision: "Text revised"}},
		Meetings:  []int64{7, 7, 9},
	})
	require.NoError(t, err)

	current, err := f.repo.CurrentState(ctx, a.ID, f.topic.ID)
	require.NoError(t, err)
	require.Len(t, current.Comments, 1)
	assert.Equal(t, "discussed at the March meeting", current.Comments[0].Body)
	require.Len(t, current.Decisions, 2)
	require.NotNil(t, current.Decisions[0].MeetingID)
	assert.Equal(t, meeting, *current.Decisions[0].MeetingID)
	assert.Nil(t, current.Decisions[1].MeetingID)
	assert.Equal(t, []int64{7, 9}, current.Meetings)
}

func TestCurrentStateMissing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.repo.CurrentState(context.Background(), 404, f.topic.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCurrentStatesAndTopicCounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	other, err := f.repo.SaveTopic(ctx, domain.Topic{Name: "Anal Cancer", BoardID: f.board.ID, Active: true})
	require.NoError(t, err)

	a1 := f.article(t, "301")
	a2 := f.article(t, "302")
	a3 := f.article(t, "303")
	f.setState(t, a1.ID, f.topic.ID, domain.StateReadyInitReview)
	f.setState(t, a1.ID, other.ID, domain.StateReadyInitReview)
	f.setState(t, a2.ID, f.topic.ID, domain.StateReadyInitReview)
	f.setState(t, a3.ID, f.topic.ID, domain.StateReadyInitReview)
	f.setState(t, a3.ID, f.topic.ID, domain.StatePassedInitReview)

	filter := ports.StateFilter{StateIDs: []int64{f.states[domain.StateReadyInitReview].ID}, BoardID: f.board.ID}
	items, total, err := f.repo.CurrentStates(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, a1.ID, items[0].ArticleID)
	assert.Equal(t, "Anal Cancer", items[0].TopicName)
	assert.Equal(t, "Adult Treatment", items[0].BoardName)

	filter.Limit = 1
	filter.Offset = 2
	page, total, err := f.repo.CurrentStates(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, a2.ID, page[0].ArticleID)

	filter.TopicIDs = []int64{other.ID}
	counts, err := f.repo.TopicCounts(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{f.topic.ID: 2, other.ID: 1}, counts)

	items, total, err = f.repo.CurrentStates(ctx, ports.StateFilter{StateIDs: []int64{f.states[domain.StateReadyInitReview].ID}, TopicIDs: []int64{other.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, other.ID, items[0].TopicID)
}

func TestAppendStateRejectsStaleExpectation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	a := f.article(t, "250")
	first := f.setState(t, a.ID, f.topic.ID, domain.StateReadyInitReview)
	f.setState(t, a.ID, f.topic.ID, domain.StatePassedInitReview)

	_, err := f.repo.AppendState(ctx, ports.NewState{
		ArticleID:         a.ID,
		TopicID:           f.topic.ID,
		State:             f.states[domain.StateRejectInitReview],
		UserID:            f.user.ID,
		EnteredAt:         time.Now(),
		Cycle:             time.Now(),
		ExpectedCurrentID: first.ID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	current, err := f.repo.CurrentState(ctx, a.ID, f.topic.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePassedInitReview, current.State.TextID)
}
