package domain

import "time"

// Review dispositions offered to board members.
const (
	DispositionNoChanges  = "Warrants no changes to the summary"
	DispositionCitation   = "Deserves citation in the summary"
	DispositionRevision   = "Merits revision of the text"
	DispositionDiscussion = "Merits discussion"
)

// Dispositions lists the review dispositions in display order.
func Dispositions() []string {
	return []string{DispositionNoChanges, DispositionCitation, DispositionRevision, DispositionDiscussion}
}

// RejectionDisposition is the disposition recorded by a quick rejection.
func RejectionDisposition() string {
	return DispositionNoChanges
}

// Packet bundles articles for one topic assigned to one or more reviewers.
type Packet struct {
	ID        int64           `json:"id"`
	TopicID   int64           `json:"topic"`
	CreatedBy int64           `json:"createdBy"`
	Created   time.Time       `json:"created"`
	Title     string          `json:"title"`
	LastSeen  *time.Time      `json:"lastSeen,omitempty"`
	Active    bool            `json:"active"`
	Starred   bool            `json:"starred"`
	Articles  []PacketArticle `json:"articles"`
	Reviewers []int64         `json:"reviewers"`
}

// ActiveArticles returns the packet articles which have not been dropped.
func (p Packet) ActiveArticles() []PacketArticle {
	active := make([]PacketArticle, 0, len(p.Articles))
	for _, a := range p.Articles {
		if !a.Dropped {
			active = append(active, a)
		}
	}
	return active
}

// HasReviewer reports whether the user is assigned to the packet.
func (p Packet) HasReviewer(userID int64) bool {
	for _, id := range p.Reviewers {
		if id == userID {
			return true
		}
	}
	return false
}

// PacketArticle is an article's membership in a packet.
type PacketArticle struct {
	ID        int64      `json:"id"`
	PacketID  int64      `json:"packet"`
	ArticleID int64      `json:"article"`
	Dropped   bool       `json:"dropped"`
	Archived  *time.Time `json:"archived,omitempty"`
	Reviews   []Review   `json:"reviews,omitempty"`
}

// Review is a reviewer's judgment on one article within one packet.
type Review struct {
	ID              int64     `json:"id"`
	PacketArticleID int64     `json:"packetArticle"`
	ReviewerID      int64     `json:"reviewer"`
	Posted          time.Time `json:"posted"`
	Comments        string    `json:"comments"`
	Dispositions    []string  `json:"dispositions"`
	Reasons         []string  `json:"reasons,omitempty"`
}

// AssignedPacket is a packet still awaiting reviews from a reviewer.
type AssignedPacket struct {
	PacketID   int64     `json:"packet"`
	Title      string    `json:"title"`
	Created    time.Time `json:"created"`
	Unreviewed int       `json:"unreviewed"`
}

// PacketProgress is the derived completion of a packet.
type PacketProgress struct {
	PacketID  int64 `json:"packet"`
	Articles  int   `json:"articles"`
	Reviewers int   `json:"reviewers"`
	Expected  int   `json:"expected"`
	Posted    int   `json:"posted"`
	Complete  bool  `json:"complete"`
}
