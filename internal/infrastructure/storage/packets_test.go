package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

func (f *fixture) packet(t *testing.T, reviewers []int64, articles ...domain.Article) domain.Packet {
	t.Helper()
	p := domain.Packet{TopicID: f.topic.ID, CreatedBy: f.user.ID, Title: "Breast Cancer (March 2024)", Reviewers: reviewers}
	for _, a := range articles {
		p.Articles = append(p.Articles, domain.PacketArticle{ArticleID: a.ID})
	}
	created, err := f.repo.CreatePacket(context.Background(), p)
	require.NoError(t, err)
	return created
}

func (f *fixture) review(t *testing.T, packetArticleID, reviewerID int64) {
	t.Helper()
	_, err := f.repo.SaveReview(context.Background(), domain.Review{
		PacketArticleID: packetArticleID,
		ReviewerID:      reviewerID,
		Comments:        "<p>ok</p>",
		Dispositions:    []string{domain.DispositionCitation},
	})
	require.NoError(t, err)
}

func TestCreateAndLoadPacket(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	a1 := f.article(t, "401")
	a2 := f.article(t, "402")
	p := f.packet(t, []int64{11, 12}, a1, a2)

	loaded, err := f.repo.Packet(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Active)
	assert.False(t, loaded.Starred)
	assert.Equal(t, []int64{11, 12}, loaded.Reviewers)
	require.Len(t, loaded.Articles, 2)

	f.review(t, loaded.Articles[0].ID, 11)
	_, err = f.repo.SaveReview(ctx, domain.Review{
		PacketArticleID: loaded.Articles[1].ID,
		ReviewerID:      12,
		Dispositions:    []string{domain.DispositionNoChanges},
		Reasons:         []string{"Not relevant"},
	})
	require.NoError(t, err)

	require.NoError(t, f.repo.SetStarred(ctx, p.ID, true))
	require.NoError(t, f.repo.DropArticle(ctx, loaded.Articles[0].ID))

	loaded, err = f.repo.Packet(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Starred)
	assert.True(t, loaded.Articles[0].Dropped)
	require.Len(t, loaded.Articles[1].Reviews, 1)
	assert.Equal(t, []string{"Not relevant"}, loaded.Articles[1].Reviews[0].Reasons)
	assert.Len(t, loaded.ActiveArticles(), 1)

	require.NoError(t, f.repo.SetActive(ctx, p.ID, false))
	active, err := f.repo.Packets(ctx, ports.PacketFilter{TopicID: f.topic.ID, ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.repo.Packets(ctx, ports.PacketFilter{TopicID: f.topic.ID})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, f.repo.SetStarred(ctx, 999, true), domain.ErrNotFound)
	_, err = f.repo.PacketArticle(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnreviewedPackets(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	const reviewer = int64(21)
	closed := []string{domain.StateFYI, domain.StateFinalBoardDecision}

	a1 := f.article(t, "501")
	a2 := f.article(t, "502")
	a3 := f.article(t, "503")
	f.setState(t, a1.ID, f.topic.ID, domain.StatePassedFullReview)
	f.setState(t, a2.ID, f.topic.ID, domain.StatePassedFullReview)
	f.setState(t, a3.ID, f.topic.ID, domain.StateFYI)

	p := f.packet(t, []int64{reviewer}, a1, a2, a3)
	f.packet(t, []int64{99}, a1)

	packets, err := f.repo.UnreviewedPackets(ctx, reviewer, closed)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, p.ID, packets[0].PacketID)
	assert.Equal(t, 2, packets[0].Unreviewed)

	f.review(t, p.Articles[0].ID, reviewer)
	packets, err = f.repo.UnreviewedPackets(ctx, reviewer, closed)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, 1, packets[0].Unreviewed)

	// a review by someone else does not count for this reviewer
	f.review(t, p.Articles[1].ID, 99)
	packets, err = f.repo.UnreviewedPackets(ctx, reviewer, closed)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	f.setState(t, a2.ID, f.topic.ID, domain.StateFinalBoardDecision)
	packets, err = f.repo.UnreviewedPackets(ctx, reviewer, closed)
	require.NoError(t, err)
	assert.Empty(t, packets)
}

func TestUnreviewedArticleCount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	const reviewer = int64(31)
	fyi := []int64{f.states[domain.StateFYI].ID}
	ceiling := f.states[domain.StatePassedFullReview].Sequence

	articles := make([]domain.Article, 6)
	for i := range articles {
		articles[i] = f.article(t, fmt.Sprintf("60%d", i))
	}
	f.setState(t, articles[0].ID, f.topic.ID, domain.StatePassedFullReview)
	f.setState(t, articles[1].ID, f.topic.ID, domain.StatePassedFullReview)
	f.setState(t, articles[2].ID, f.topic.ID, domain.StateFYI)
	f.setState(t, articles[3].ID, f.topic.ID, domain.StateOnAgenda)
	f.setState(t, articles[4].ID, f.topic.ID, domain.StatePassedFullReview)
	f.setState(t, articles[5].ID, f.topic.ID, domain.StatePassedFullReview)

	p := f.packet(t, []int64{reviewer}, articles...)
	require.NoError(t, f.repo.DropArticle(ctx, p.Articles[4].ID))
	require.NoError(t, f.repo.ArchiveArticle(ctx, p.Articles[5].ID, time.Now()))

	n, err := f.repo.UnreviewedArticleCount(ctx, reviewer, 0, fyi, ceiling)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.repo.UnreviewedArticleCount(ctx, reviewer, f.board.ID, fyi, ceiling)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.repo.UnreviewedArticleCount(ctx, reviewer, f.board.ID+1, fyi, ceiling)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.review(t, p.Articles[0].ID, reviewer)
	n, err = f.repo.UnreviewedArticleCount(ctx, reviewer, 0, fyi, ceiling)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, f.repo.SetActive(ctx, p.ID, false))
	n, err = f.repo.UnreviewedArticleCount(ctx, reviewer, 0, fyi, ceiling)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostedReviews(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	a1 := f.article(t, "701")
	a2 := f.article(t, "702")
	p := f.packet(t, []int64{41, 42}, a1, a2)

	f.review(t, p.Articles[0].ID, 41)
	f.review(t, p.Articles[0].ID, 41)
	f.review(t, p.Articles[0].ID, 42)
	f.review(t, p.Articles[1].ID, 77)

	n, err := f.repo.PostedReviews(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, f.repo.DropArticle(ctx, p.Articles[0].ID))
	n, err = f.repo.PostedReviews(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPacketsFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	first := f.packet(t, nil, f.article(t, "801"))

	other, err := f.repo.SaveBoard(ctx, domain.Board{Name: "Pediatric Treatment"})
	require.NoError(t, err)
	otherTopic, err := f.repo.SaveTopic(ctx, domain.Topic{Name: "Leukemia", BoardID: other.ID, Active: true})
	require.NoError(t, err)
	second, err := f.repo.CreatePacket(ctx, domain.Packet{TopicID: otherTopic.ID, CreatedBy: f.user.ID, Title: "Leukemia (March 2024)"})
	require.NoError(t, err)

	all, err := f.repo.Packets(ctx, ports.PacketFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byBoard, err := f.repo.Packets(ctx, ports.PacketFilter{BoardID: other.ID})
	require.NoError(t, err)
	require.Len(t, byBoard, 1)
	assert.Equal(t, second.ID, byBoard[0].ID)

	byTopic, err := f.repo.Packets(ctx, ports.PacketFilter{TopicID: f.topic.ID, BoardID: f.board.ID})
	require.NoError(t, err)
	require.Len(t, byTopic, 1)
	assert.Equal(t, first.ID, byTopic[0].ID)

	none, err := f.repo.Packets(ctx, ports.PacketFilter{TopicID: f.topic.ID, BoardID: other.ID})
	require.NoError(t, err)
	assert.Empty(t, none)
}
