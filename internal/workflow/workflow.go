// Package workflow holds the review state machine: which states feed each
// review queue and which decisions each queue may record.
package workflow

import (
	"fmt"
	"slices"

	"EBMS/internal/domain"
)

// Queue names a review queue.
type Queue string

const (
	QueueLibrarian Queue = "librarian"
	QueuePublish   Queue = "publish"
	QueueAbstract  Queue = "abstract"
	QueueFullText  Queue = "full-text"
	QueueOnHold    Queue = "on-hold"
)

// Stage is one row of the transition table.
type Stage struct {
	Queue     Queue    `json:"queue"`
	Title     string   `json:"title"`
	Entry     []string `json:"entry"`
	Decisions []string `json:"decisions"`
}

var stages = []Stage{
	{
		Queue:     QueueLibrarian,
		Title:     "Librarian Review",
		Entry:     []string{domain.StateReadyInitReview},
		Decisions: []string{domain.StatePassedInitReview, domain.StateRejectInitReview},
	},
	{
		Queue:     QueuePublish,
		Title:     "Publish",
		Entry:     []string{domain.StatePassedInitReview},
		Decisions: []string{domain.StatePublished},
	},
	{
		Queue:     QueueAbstract,
		Title:     "Abstract Review",
		Entry:     []string{domain.StatePublished},
		Decisions: []string{domain.StatePassedBMReview, domain.StateRejectBMReview},
	},
	{
		Queue: QueueFullText,
		Title: "Full Text Review",
		Entry: []string{domain.StatePassedBMReview},
		Decisions: []string{
			domain.StatePassedFullReview,
			domain.StateRejectFullReview,
			domain.StateFYI,
			domain.StateOnHold,
		},
	},
	{
		Queue:     QueueOnHold,
		Title:     "On Hold Review",
		Entry:     []string{domain.StateOnHold, domain.StateFullReviewHold},
		Decisions: []string{domain.StatePassedFullReview, domain.StateRejectFullReview},
	},
}

// Stages returns a copy of the transition table in workflow order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	for i, s := range stages {
		out[i] = Stage{
			Queue:     s.Queue,
			Title:     s.Title,
			Entry:     slices.Clone(s.Entry),
			Decisions: slices.Clone(s.Decisions),
		}
	}
	return out
}

// Lookup returns the stage for a queue name.
func Lookup(q Queue) (Stage, bool) {
	for _, s := range stages {
		if s.Queue == q {
			return s, true
		}
	}
	return Stage{}, false
}

// ParseQueue validates a queue name coming from outside.
func ParseQueue(name string) (Queue, error) {
	if _, ok := Lookup(Queue(name)); !ok {
		return "", fmt.Errorf("%w: unknown queue %q", domain.ErrValidation, name)
	}
	return Queue(name), nil
}

// Classify places a current state into the single queue whose entry set holds it.
// Terminal and FYI states belong to no queue. Matching is on the text id: several
// states share a sequence number, so the sequence alone cannot pick a queue.
func Classify(term domain.StateTerm) (Queue, bool) {
	if term.Terminal || term.TextID == domain.StateFYI {
		return "", false
	}
	for _, s := range stages {
		if slices.Contains(s.Entry, term.TextID) {
			return s.Queue, true
		}
	}
	return "", false
}

// Decide checks that a queue may move a pair from current to the decision state.
func Decide(q Queue, current domain.StateTerm, decision string) error {
	stage, ok := Lookup(q)
	if !ok {
		return fmt.Errorf("%w: unknown queue %q", domain.ErrValidation, q)
	}
	if !slices.Contains(stage.Entry, current.TextID) {
		return fmt.Errorf("%w: not waiting for %s (current state %s)",
			domain.ErrInvalidTransition, stage.Title, current.TextID)
	}
	if !slices.Contains(stage.Decisions, decision) {
		return fmt.Errorf("%w: %s cannot record %s", domain.ErrInvalidTransition, stage.Title, decision)
	}
	return nil
}

// ReviewWindow bounds the current states in which a packet article still counts
// toward a reviewer's outstanding work.
type ReviewWindow struct {
	Ceiling  string
	Excluded []string
}

// AwaitingReview is the window used for reviewer counts: at or below
// passed_full_review in the sequence, FYI excluded.
func AwaitingReview() ReviewWindow {
	return ReviewWindow{Ceiling: domain.StatePassedFullReview, Excluded: []string{domain.StateFYI}}
}

// Holds reports whether term falls inside the window. ceiling is the sequence of w.Ceiling.
func (w ReviewWindow) Holds(term domain.StateTerm, ceiling int) bool {
	return term.Sequence <= ceiling && !slices.Contains(w.Excluded, term.TextID)
}

// PacketEligible reports whether a pair may be placed in a review packet.
func PacketEligible(term domain.StateTerm) bool {
	return term.TextID == domain.StatePassedFullReview || term.TextID == domain.StateFYI
}

// ClosedForPackets lists states which hide a packet article from its reviewers.
func ClosedForPackets() []string {
	return []string{domain.StateFYI, domain.StateFinalBoardDecision}
}
