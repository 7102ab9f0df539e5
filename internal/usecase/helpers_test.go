package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"EBMS/internal/domain"
	"EBMS/internal/infrastructure/storage"
	"EBMS/internal/ports"
)

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type env struct {
	repo     *storage.Repository
	terms    *Vocabulary
	ledger   *Ledger
	queues   *Queues
	packets  *Packets
	importer *Importer
	source   *fakeSource
	observer *recordingObserver
	board    domain.Board
	topic    domain.Topic
	user     domain.User
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()

	repo, err := storage.Open("sqlite3", filepath.Join(t.TempDir(), "ebms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.SeedStates(ctx))

	board, err := repo.SaveBoard(ctx, domain.Board{Name: "Adult Treatment"})
	require.NoError(t, err)
	topic, err := repo.SaveTopic(ctx, domain.Topic{Name: "Breast Cancer", BoardID: board.ID, Active: true})
	require.NoError(t, err)
	user, err := repo.SaveUser(ctx, domain.User{Name: "librarian"})
	require.NoError(t, err)

	now := func() time.Time { return testNow }
	logger := quietLogger()
	terms := NewVocabulary(repo, time.Minute)
	observer := &recordingObserver{}
	ledger := NewLedger(LedgerDeps{Ledger: repo, Terms: terms, Observers: []ports.StateObserver{observer}, Logger: logger, Now: now})
	src := &fakeSource{records: map[string]domain.PubmedRecord{}}

	return &env{
		repo:     repo,
		terms:    terms,
		ledger:   ledger,
		queues:   NewQueues(QueueDeps{Catalog: repo, Ledger: repo, Terms: terms}),
		packets:  NewPackets(PacketDeps{Catalog: repo, Ledger: repo, Packets: repo, Terms: terms, Logger: logger, Now: now}),
		importer: NewImporter(ImporterDeps{Catalog: repo, Articles: repo, Ledger: ledger, Source: src, Logger: logger, Now: now}),
		source:   src,
		observer: observer,
		board:    board,
		topic:    topic,
		user:     user,
	}
}

// article stores an article directly, bypassing the importer.
func (e *env) article(t *testing.T, pmid string) domain.Article {
	t.Helper()
	a, err := e.repo.SaveArticle(context.Background(), domain.Article{
		SourceID:   pmid,
		Title:      "Article " + pmid,
		JournalID:  "J" + pmid,
		ImportDate: testNow.Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	return a
}

func (e *env) setState(t *testing.T, articleID int64, textID string) domain.StateEntry {
	t.Helper()
	entry, err := e.ledger.AddState(context.Background(), AddStateInput{
		ArticleID: articleID,
		TopicID:   e.topic.ID,
		State:     textID,
		UserID:    e.user.ID,
	})
	require.NoError(t, err)
	return entry
}

func (e *env) reviewer(t *testing.T, name string) domain.User {
	t.Helper()
	u, err := e.repo.SaveUser(context.Background(), domain.User{Name: name})
	require.NoError(t, err)
	return u
}

type fakeSource struct {
	records map[string]domain.PubmedRecord
	err     error
	calls   int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, pmids []string) ([]domain.PubmedRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.PubmedRecord
	for _, pmid := range pmids {
		if rec, ok := f.records[pmid]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeSource) add(pmid, journalID string, revised time.Time) {
	f.records[pmid] = domain.PubmedRecord{
		PMID:         pmid,
		Title:        "Fresh title " + pmid,
		Authors:      []string{"Smith J"},
		JournalTitle: "Journal " + journalID,
		JournalID:    journalID,
		Year:         "2024",
		Revised:      revised,
		XML:          "<PubmedArticle><MedlineCitation><PMID>" + pmid + "</PMID></MedlineCitation></PubmedArticle>",
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	entries []domain.StateEntry
}

func (r *recordingObserver) StateAdded(_ context.Context, entry domain.StateEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

type recordingNotifier struct {
	subject string
	body    string
	sent    int
	err     error
}

func (r *recordingNotifier) PublishReport(_ context.Context, subject, body string) error {
	r.sent++
	r.subject = subject
	r.body = body
	return r.err
}

type fakeChanges struct {
	modified []string
	days     int
	asked    []string
	err      error
}

func (f *fakeChanges) RecentlyModified(_ context.Context, pmids []string, days int) ([]string, error) {
	f.asked = pmids
	f.days = days
	return f.modified, f.err
}

var errOffline = errors.New("NLM offline")
