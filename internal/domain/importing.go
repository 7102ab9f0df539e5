package domain

import "time"

// ImportType selects how a batch treats the articles it receives.
type ImportType string

const (
	ImportRegular   ImportType = "R"
	ImportFastTrack ImportType = "F"
	ImportData      ImportType = "D"
	ImportSpecial   ImportType = "S"
	ImportInternal  ImportType = "I"
)

// ImportDisposition is the per-article outcome of an import batch.
type ImportDisposition string

const (
	DispositionImported   ImportDisposition = "imported"
	DispositionNotListed  ImportDisposition = "not_listed"
	DispositionTopicAdded ImportDisposition = "topic_added"
	DispositionDuplicate  ImportDisposition = "duplicate"
	DispositionReplaced   ImportDisposition = "replaced"
	DispositionError      ImportDisposition = "error"
)

// ImportBatch records one run of the importer.
type ImportBatch struct {
	ID         int64          `json:"id"`
	TopicID    int64          `json:"topic,omitempty"`
	Cycle      *time.Time     `json:"cycle,omitempty"`
	ImportType ImportType     `json:"importType"`
	UserID     int64          `json:"user"`
	Imported   time.Time      `json:"imported"`
	Comment    string         `json:"comment,omitempty"`
	Success    bool           `json:"success"`
	Messages   []string       `json:"messages,omitempty"`
	Actions    []ImportAction `json:"actions"`
}

// ImportAction is the disposition of one PubMed id within a batch.
type ImportAction struct {
	SourceID    string            `json:"sourceId"`
	ArticleID   int64             `json:"article,omitempty"`
	Disposition ImportDisposition `json:"disposition"`
	Message     string            `json:"message,omitempty"`
}

// Counts tallies actions per disposition.
func (b ImportBatch) Counts() map[ImportDisposition]int {
	counts := map[ImportDisposition]int{}
	for _, a := range b.Actions {
		counts[a.Disposition]++
	}
	return counts
}

// Refreshed returns the number of distinct articles touched without error.
func (b ImportBatch) Refreshed() int {
	seen := map[int64]struct{}{}
	for _, a := range b.Actions {
		if a.Disposition != DispositionError && a.ArticleID != 0 {
			seen[a.ArticleID] = struct{}{}
		}
	}
	return len(seen)
}
