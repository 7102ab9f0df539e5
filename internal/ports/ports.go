package ports

import (
	"context"
	"time"

	"EBMS/internal/domain"
)

// StateFilter narrows a query over current states.
type StateFilter struct {
	StateIDs []int64
	BoardID  int64
	TopicIDs []int64
	Limit    uint64
	Offset   uint64
}

// PacketFilter narrows a packet listing. Zero ids match everything.
type PacketFilter struct {
	TopicID    int64
	BoardID    int64
	ActiveOnly bool
}

// NewState is the input for appending a ledger entry. When ExpectedCurrentID is set
// the append fails with domain.ErrInvalidTransition unless that entry is still current.
type NewState struct {
	ArticleID         int64
	TopicID           int64
	State             domain.StateTerm
	UserID            int64
	EnteredAt         time.Time
	Cycle             time.Time
	Comment           string
	Decisions         []domain.BoardDecision
	Meetings          []int64
	ExpectedCurrentID int64
}

// CatalogRepository looks up boards, topics, users and the state vocabulary.
type CatalogRepository interface {
	States(ctx context.Context) ([]domain.StateTerm, error)
	SaveState(ctx context.Context, term domain.StateTerm) (domain.StateTerm, error)
	Topic(ctx context.Context, id int64) (domain.Topic, error)
	Topics(ctx context.Context, boardID int64) ([]domain.Topic, error)
	SaveBoard(ctx context.Context, board domain.Board) (domain.Board, error)
	SaveTopic(ctx context.Context, topic domain.Topic) (domain.Topic, error)
	User(ctx context.Context, id int64) (domain.User, error)
	SaveUser(ctx context.Context, user domain.User) (domain.User, error)
	NotList(ctx context.Context, boardID int64, at time.Time) (map[string]bool, error)
	AddToNotList(ctx context.Context, boardID int64, journalID string, start time.Time) error
}

// ArticleRepository persists bibliographic records.
type ArticleRepository interface {
	Article(ctx context.Context, id int64) (domain.Article, error)
	ArticlesBySourceID(ctx context.Context, sourceIDs []string) (map[string]domain.Article, error)
	SaveArticle(ctx context.Context, article domain.Article) (domain.Article, error)
	KnownSourceIDs(ctx context.Context) (map[string]bool, error)
	ArticleTopics(ctx context.Context, articleID int64) ([]domain.ArticleTopic, error)
	ImportDates(ctx context.Context, fn func(domain.ImportDate) error) error
	SaveBatch(ctx context.Context, batch domain.ImportBatch) (domain.ImportBatch, error)
}

// LedgerRepository stores the append-only state ledger.
type LedgerRepository interface {
	AppendState(ctx context.Context, in NewState) (domain.StateEntry, error)
	CurrentState(ctx context.Context, articleID, topicID int64) (domain.StateEntry, error)
	History(ctx context.Context, articleID, topicID int64) ([]domain.StateEntry, error)
	CurrentStates(ctx context.Context, filter StateFilter) ([]domain.QueueItem, int, error)
	TopicCounts(ctx context.Context, filter StateFilter) (map[int64]int, error)
}

// PacketRepository stores packets, their articles and the reviews posted against them.
type PacketRepository interface {
	CreatePacket(ctx context.Context, packet domain.Packet) (domain.Packet, error)
	Packet(ctx context.Context, id int64) (domain.Packet, error)
	Packets(ctx context.Context, filter PacketFilter) ([]domain.Packet, error)
	PacketArticle(ctx context.Context, id int64) (domain.PacketArticle, error)
	SetStarred(ctx context.Context, packetID int64, starred bool) error
	SetActive(ctx context.Context, packetID int64, active bool) error
	DropArticle(ctx context.Context, packetArticleID int64) error
	ArchiveArticle(ctx context.Context, packetArticleID int64, at time.Time) error
	SaveReview(ctx context.Context, review domain.Review) (domain.Review, error)
	UnreviewedPackets(ctx context.Context, reviewerID int64, closed []string) ([]domain.AssignedPacket, error)
	UnreviewedArticleCount(ctx context.Context, reviewerID, boardID int64, excluded []int64, ceiling int) (int, error)
	PostedReviews(ctx context.Context, packetID int64) (int, error)
}

// PubmedSource fetches article records by PubMed id.
type PubmedSource interface {
	Name() string
	Fetch(ctx context.Context, pmids []string) ([]domain.PubmedRecord, error)
}

// ChangeFinder asks NLM which articles changed recently.
type ChangeFinder interface {
	RecentlyModified(ctx context.Context, pmids []string, days int) ([]string, error)
}

// Notifier sends reports to the people registered for them.
type Notifier interface {
	PublishReport(ctx context.Context, subject, body string) error
}

// StateObserver is told about every committed ledger entry.
type StateObserver interface {
	StateAdded(ctx context.Context, entry domain.StateEntry)
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
