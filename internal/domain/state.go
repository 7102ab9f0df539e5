package domain

import "time"

// Text identifiers of the state vocabulary.
const (
	StateReadyInitReview      = "ready_init_review"
	StateRejectJournalTitle   = "reject_journal_title"
	StateRejectInitReview     = "reject_init_review"
	StatePassedInitReview     = "passed_init_review"
	StatePublished            = "published"
	StateRejectBMReview       = "reject_bm_review"
	StatePassedBMReview       = "passed_bm_review"
	StateRejectFullReview     = "reject_full_review"
	StatePassedFullReview     = "passed_full_review"
	StateFYI                  = "fyi"
	StateFullReviewHold       = "full_review_hold"
	StateOnHold               = "on_hold"
	StateFullEnd              = "full_end"
	StateAgendaBoardDiscuss   = "agenda_board_discuss"
	StateAgendaFutureChange   = "agenda_future_change"
	StateOnAgenda             = "on_agenda"
	StateWorkingGroupDecision = "working_group_decision"
	StateFinalBoardDecision   = "final_board_decision"
)

// StateTerm is a node of the ordered state vocabulary.
type StateTerm struct {
	ID       int64  `json:"id"`
	TextID   string `json:"textId"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Terminal bool   `json:"terminal"`
}

// DefaultStates is the vocabulary seeded into a fresh database.
func DefaultStates() []StateTerm {
	return []StateTerm{
		{TextID: StateReadyInitReview, Name: "Ready for initial review", Sequence: 10},
		{TextID: StateRejectJournalTitle, Name: "Rejected by NOT list", Sequence: 20, Terminal: true},
		{TextID: StateRejectInitReview, Name: "Rejected in initial review", Sequence: 30, Terminal: true},
		{TextID: StatePassedInitReview, Name: "Passed initial review", Sequence: 30},
		{TextID: StatePublished, Name: "Published", Sequence: 40},
		{TextID: StateRejectBMReview, Name: "Rejected after abstract review", Sequence: 50, Terminal: true},
		{TextID: StatePassedBMReview, Name: "Passed abstract review", Sequence: 50},
		{TextID: StateRejectFullReview, Name: "Rejected after full text review", Sequence: 60, Terminal: true},
		{TextID: StatePassedFullReview, Name: "Passed full text review", Sequence: 60},
		{TextID: StateFYI, Name: "Flagged as FYI", Sequence: 60},
		{TextID: StateFullReviewHold, Name: "Held after full text review", Sequence: 60},
		{TextID: StateOnHold, Name: "On hold", Sequence: 70},
		{TextID: StateFullEnd, Name: "No further action", Sequence: 70, Terminal: true},
		{TextID: StateAgendaBoardDiscuss, Name: "Paper for board discussion", Sequence: 70},
		{TextID: StateAgendaFutureChange, Name: "Paper for future change", Sequence: 70},
		{TextID: StateOnAgenda, Name: "On agenda", Sequence: 80},
		{TextID: StateWorkingGroupDecision, Name: "Working group decision", Sequence: 85},
		{TextID: StateFinalBoardDecision, Name: "Final board decision", Sequence: 90, Terminal: true},
	}
}

// StateEntry is one immutable row of the article/topic state ledger.
type StateEntry struct {
	ID        int64           `json:"id"`
	ArticleID int64           `json:"article"`
	TopicID   int64           `json:"topic"`
	BoardID   int64           `json:"board"`
	State     StateTerm       `json:"state"`
	UserID    int64           `json:"user"`
	EnteredAt time.Time       `json:"entered"`
	Current   bool            `json:"current"`
	Comments  []StateComment  `json:"comments,omitempty"`
	Decisions []BoardDecision `json:"decisions,omitempty"`
	Meetings  []int64         `json:"meetings,omitempty"`
}

// StateComment annotates a state entry.
type StateComment struct {
	UserID    int64     `json:"user"`
	Body      string    `json:"body"`
	EnteredAt time.Time `json:"entered"`
}

// BoardDecision records a board decision attached to a state entry.
type BoardDecision struct {
	Decision  string `json:"decision"`
	MeetingID *int64 `json:"meeting,omitempty"`
}

// QueueItem is an article/topic pair whose current state placed it in a queue.
type QueueItem struct {
	ArticleID    int64     `json:"article"`
	SourceID     string    `json:"sourceId"`
	Title        string    `json:"title"`
	TopicID      int64     `json:"topic"`
	TopicName    string    `json:"topicName"`
	BoardID      int64     `json:"board"`
	BoardName    string    `json:"boardName"`
	State        StateTerm `json:"state"`
	StateEntered time.Time `json:"stateEntered"`
}
