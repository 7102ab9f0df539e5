package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
	"EBMS/internal/workflow"
)

// LedgerDeps wires the state ledger.
type LedgerDeps struct {
	Ledger    ports.LedgerRepository
	Terms     *Vocabulary
	Observers []ports.StateObserver
	Logger    *slog.Logger
	Now       func() time.Time
}

// Ledger records article/topic states and the review decisions that move them.
type Ledger struct {
	ledger    ports.LedgerRepository
	terms     *Vocabulary
	observers []ports.StateObserver
	logger    *slog.Logger
	now       func() time.Time
}

// NewLedger constructs the ledger use case.
func NewLedger(deps LedgerDeps) *Ledger {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		ledger:    deps.Ledger,
		terms:     deps.Terms,
		observers: deps.Observers,
		logger:    logger,
		now:       now,
	}
}

// AddStateInput describes a new ledger entry.
type AddStateInput struct {
	ArticleID int64                  `json:"article" validate:"required"`
	TopicID   int64                  `json:"topic" validate:"required"`
	State     string                 `json:"state" validate:"required"`
	UserID    int64                  `json:"user" validate:"required"`
	EnteredAt time.Time              `json:"entered"`
	Cycle     time.Time              `json:"cycle"`
	Comment   string                 `json:"comment"`
	Decisions []domain.BoardDecision `json:"decisions"`
	Meetings  []int64                `json:"meetings"`

	expectedCurrentID int64
}

// AddState appends a new current entry for the pair, superseding the previous one.
// Any state may be recorded here; queue decisions go through ApplyDecisions.
func (l *Ledger) AddState(ctx context.Context, in AddStateInput) (domain.StateEntry, error) {
	if in.ArticleID == 0 || in.TopicID == 0 || in.State == "" || in.UserID == 0 {
		return domain.StateEntry{}, fmt.Errorf("%w: article, topic, state and user are required", domain.ErrValidation)
	}
	term, err := l.terms.Term(ctx, in.State)
	if err != nil {
		return domain.StateEntry{}, err
	}
	entered := in.EnteredAt
	if entered.IsZero() {
		entered = l.now()
	}
	cycle := in.Cycle
	if cycle.IsZero() {
		cycle = ReviewCycle(entered)
	}

	entry, err := l.ledger.AppendState(ctx, ports.NewState{
		ArticleID:         in.ArticleID,
		TopicID:           in.TopicID,
		State:             term,
		UserID:            in.UserID,
		EnteredAt:         entered,
		Cycle:             cycle,
		Comment:           in.Comment,
		Decisions:         in.Decisions,
		Meetings:          in.Meetings,
		ExpectedCurrentID: in.expectedCurrentID,
	})
	if err != nil {
		return domain.StateEntry{}, fmt.Errorf("append state %s for article %d topic %d: %w",
			in.State, in.ArticleID, in.TopicID, err)
	}

	l.logger.Info("state added",
		"article", entry.ArticleID,
		"topic", entry.TopicID,
		"state", entry.State.TextID,
		"user", entry.UserID)
	for _, o := range l.observers {
		o.StateAdded(ctx, entry)
	}
	return entry, nil
}

// Current returns the pair's current entry.
func (l *Ledger) Current(ctx context.Context, articleID, topicID int64) (domain.StateEntry, error) {
	entry, err := l.ledger.CurrentState(ctx, articleID, topicID)
	if err != nil {
		return domain.StateEntry{}, fmt.Errorf("load current state: %w", err)
	}
	return entry, nil
}

// History returns the pair's entries oldest first.
func (l *Ledger) History(ctx context.Context, articleID, topicID int64) ([]domain.StateEntry, error) {
	entries, err := l.ledger.History(ctx, articleID, topicID)
	if err != nil {
		return nil, fmt.Errorf("load state history: %w", err)
	}
	if len(entries) == 0 {
		return nil, domain.NotFoundError{Resource: fmt.Sprintf("states for article %d topic %d", articleID, topicID)}
	}
	return entries, nil
}

// Decision is one queue decision on an article/topic pair.
type Decision struct {
	ArticleID int64  `json:"article" validate:"required"`
	TopicID   int64  `json:"topic" validate:"required"`
	State     string `json:"state" validate:"required"`
	Comment   string `json:"comment"`
}

// DecisionResult reports what happened to one decision of a batch.
type DecisionResult struct {
	Decision
	Applied bool   `json:"applied"`
	Entry   int64  `json:"entry,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ApplyDecisions records a batch of queue decisions. Each decision must move the pair
// out of one of the queue's entry states into one of the queue's decision states;
// rejected decisions are reported without stopping the rest of the batch.
func (l *Ledger) ApplyDecisions(ctx context.Context, q workflow.Queue, userID int64, decisions []Decision) ([]DecisionResult, error) {
	if _, ok := workflow.Lookup(q); !ok {
		return nil, fmt.Errorf("%w: unknown queue %q", domain.ErrValidation, q)
	}

	results := make([]DecisionResult, 0, len(decisions))
	applied := 0
	for _, d := range decisions {
		res := DecisionResult{Decision: d}
		entry, err := l.applyDecision(ctx, q, userID, d)
		if err != nil {
			res.Error = err.Error()
			l.logger.Warn("decision rejected",
				"queue", q,
				"article", d.ArticleID,
				"topic", d.TopicID,
				"state", d.State,
				"error", err)
		} else {
			res.Applied = true
			res.Entry = entry.ID
			applied++
		}
		results = append(results, res)
	}
	l.logger.Info("queue decisions recorded", "queue", q, "applied", applied, "submitted", len(decisions))
	return results, nil
}

func (l *Ledger) applyDecision(ctx context.Context, q workflow.Queue, userID int64, d Decision) (domain.StateEntry, error) {
	current, err := l.ledger.CurrentState(ctx, d.ArticleID, d.TopicID)
	if err != nil {
		return domain.StateEntry{}, err
	}
	if err := workflow.Decide(q, current.State, d.State); err != nil {
		return domain.StateEntry{}, err
	}
	return l.AddState(ctx, AddStateInput{
		ArticleID:         d.ArticleID,
		TopicID:           d.TopicID,
		State:             d.State,
		UserID:            userID,
		Comment:           d.Comment,
		expectedCurrentID: current.ID,
	})
}

// ReviewCycle is the first day of the month holding t, which is how review cycles are named.
func ReviewCycle(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
