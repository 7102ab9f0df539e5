package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
	"EBMS/internal/workflow"
)

const maxQueuePage = 500

// QueueDeps wires the review queue selector.
type QueueDeps struct {
	Catalog ports.CatalogRepository
	Ledger  ports.LedgerRepository
	Terms   *Vocabulary
}

// Queues selects the article/topic pairs waiting in each review queue.
type Queues struct {
	catalog ports.CatalogRepository
	ledger  ports.LedgerRepository
	terms   *Vocabulary
}

// NewQueues constructs the queue selector.
func NewQueues(deps QueueDeps) *Queues {
	return &Queues{catalog: deps.Catalog, ledger: deps.Ledger, terms: deps.Terms}
}

// QueueRequest selects one page of a queue.
type QueueRequest struct {
	Queue    workflow.Queue
	BoardID  int64
	TopicIDs []int64
	Limit    uint64
	Offset   uint64
}

// QueueTopic is one topic an article waits in.
type QueueTopic struct {
	TopicID   int64            `json:"topic"`
	Name      string           `json:"name"`
	BoardID   int64            `json:"board"`
	BoardName string           `json:"boardName"`
	State     domain.StateTerm `json:"state"`
	Entered   time.Time        `json:"entered"`
}

// QueueArticle groups the waiting topics of one article.
type QueueArticle struct {
	ArticleID int64        `json:"article"`
	SourceID  string       `json:"sourceId"`
	Title     string       `json:"title"`
	Topics    []QueueTopic `json:"topics"`
}

// TopicCount is the number of pairs waiting for one topic. Label is the
// "Name (count)" form the topic picker shows.
type TopicCount struct {
	TopicID int64  `json:"topic"`
	Name    string `json:"name"`
	Count   int    `json:"count"`
	Label   string `json:"label"`
}

// QueuePage is one page of a review queue.
type QueuePage struct {
	Queue     workflow.Queue `json:"queue"`
	Title     string         `json:"title"`
	Decisions []string       `json:"decisions"`
	Total     int            `json:"total"`
	Articles  []QueueArticle `json:"articles"`
	Topics    []TopicCount   `json:"topics"`
}

// List returns the pairs whose current state feeds the queue, grouped by article,
// with per-topic counts for the board filter.
func (q *Queues) List(ctx context.Context, req QueueRequest) (QueuePage, error) {
	stage, ok := workflow.Lookup(req.Queue)
	if !ok {
		return QueuePage{}, fmt.Errorf("%w: unknown queue %q", domain.ErrValidation, req.Queue)
	}
	stateIDs, err := q.terms.IDs(ctx, stage.Entry)
	if err != nil {
		return QueuePage{}, err
	}
	limit := req.Limit
	if limit == 0 || limit > maxQueuePage {
		limit = maxQueuePage
	}

	filter := ports.StateFilter{
		StateIDs: stateIDs,
		BoardID:  req.BoardID,
		TopicIDs: req.TopicIDs,
		Limit:    limit,
		Offset:   req.Offset,
	}
	items, total, err := q.ledger.CurrentStates(ctx, filter)
	if err != nil {
		return QueuePage{}, fmt.Errorf("select %s queue: %w", req.Queue, err)
	}
	counts, err := q.ledger.TopicCounts(ctx, filter)
	if err != nil {
		return QueuePage{}, fmt.Errorf("count %s queue: %w", req.Queue, err)
	}
	topics, err := q.topicCounts(ctx, req.BoardID, counts)
	if err != nil {
		return QueuePage{}, err
	}

	return QueuePage{
		Queue:     stage.Queue,
		Title:     stage.Title,
		Decisions: stage.Decisions,
		Total:     total,
		Articles:  groupByArticle(items),
		Topics:    topics,
	}, nil
}

func (q *Queues) topicCounts(ctx context.Context, boardID int64, counts map[int64]int) ([]TopicCount, error) {
	topics, err := q.catalog.Topics(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	out := make([]TopicCount, 0, len(counts))
	for _, t := range topics {
		if n := counts[t.ID]; n > 0 {
			out = append(out, TopicCount{TopicID: t.ID, Name: t.Name, Count: n, Label: fmt.Sprintf("%s (%d)", t.Name, n)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func groupByArticle(items []domain.QueueItem) []QueueArticle {
	var out []QueueArticle
	index := map[int64]int{}
	for _, it := range items {
		i, seen := index[it.ArticleID]
		if !seen {
			i = len(out)
			index[it.ArticleID] = i
			out = append(out, QueueArticle{ArticleID: it.ArticleID, SourceID: it.SourceID, Title: it.Title})
		}
		out[i].Topics = append(out[i].Topics, QueueTopic{
			TopicID:   it.TopicID,
			Name:      it.TopicName,
			BoardID:   it.BoardID,
			BoardName: it.BoardName,
			State:     it.State,
			Entered:   it.StateEntered,
		})
	}
	return out
}

// Classify reports the queue a single pair currently waits in.
func (q *Queues) Classify(ctx context.Context, articleID, topicID int64) (workflow.Queue, bool, error) {
	current, err := q.ledger.CurrentState(ctx, articleID, topicID)
	if err != nil {
		return "", false, fmt.Errorf("load current state: %w", err)
	}
	queue, ok := workflow.Classify(current.State)
	return queue, ok, nil
}
