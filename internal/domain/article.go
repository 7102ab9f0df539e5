package domain

import "time"

// Board is an editorial body responsible for a set of topics.
type Board struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Topic is a reviewable subject area owned by exactly one board.
type Topic struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	BoardID int64  `json:"board"`
	Active  bool   `json:"active"`
}

// User is anyone who records states or reviews.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Article is the bibliographic record imported from PubMed.
type Article struct {
	ID           int64      `json:"id"`
	SourceID     string     `json:"sourceId"`
	Title        string     `json:"title"`
	Authors      []string   `json:"authors"`
	JournalTitle string     `json:"journalTitle"`
	BriefJournal string     `json:"briefJournal"`
	JournalID    string     `json:"journalId"`
	Volume       string     `json:"volume,omitempty"`
	Issue        string     `json:"issue,omitempty"`
	Pages        string     `json:"pages,omitempty"`
	Year         string     `json:"year,omitempty"`
	Abstract     string     `json:"abstract,omitempty"`
	SourceData   string     `json:"-"`
	ImportDate   time.Time  `json:"importDate"`
	UpdateDate   *time.Time `json:"updateDate,omitempty"`
	DataChecked  *time.Time `json:"dataChecked,omitempty"`
}

// ArticleTopic links an article to one topic it is reviewed for.
type ArticleTopic struct {
	ID        int64     `json:"id"`
	ArticleID int64     `json:"article"`
	TopicID   int64     `json:"topic"`
	Cycle     time.Time `json:"cycle"`
}

// ImportDate is one row of the import/refresh dates listing.
type ImportDate struct {
	ArticleID int64
	SourceID  string
	Date      time.Time
}

// PubmedRecord is a parsed PubmedArticle element plus its raw XML.
type PubmedRecord struct {
	PMID         string
	Title        string
	Authors      []string
	JournalTitle string
	BriefJournal string
	JournalID    string
	Volume       string
	Issue        string
	Pages        string
	Year         string
	Abstract     string
	Revised      time.Time
	XML          string
}
