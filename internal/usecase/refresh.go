package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

const (
	// RefreshComment marks batches which replace XML for articles NLM has revised.
	RefreshComment = "BATCH REPLACEMENT OF UPDATED ARTICLES FROM PUBMED"

	importDateLayout = "2006-01-02 15:04:05"
	defaultStaleDays = 15
)

// RefresherDeps wires the PubMed refresh workflow.
type RefresherDeps struct {
	Articles  ports.ArticleRepository
	Importer  *Importer
	Changes   ports.ChangeFinder
	Revisions ports.PubmedSource
	Notifier  ports.Notifier
	Host      string
	UserID    int64
	Days      int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Refresher keeps stored PubMed XML in step with NLM's revisions.
type Refresher struct {
	articles  ports.ArticleRepository
	importer  *Importer
	changes   ports.ChangeFinder
	revisions ports.PubmedSource
	notifier  ports.Notifier
	host      string
	userID    int64
	days      int
	logger    *slog.Logger
	now       func() time.Time
}

// NewRefresher constructs the refresh use case.
func NewRefresher(deps RefresherDeps) *Refresher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	days := deps.Days
	if days <= 0 {
		days = defaultStaleDays
	}
	return &Refresher{
		articles:  deps.Articles,
		importer:  deps.Importer,
		changes:   deps.Changes,
		revisions: deps.Revisions,
		notifier:  deps.Notifier,
		host:      deps.Host,
		userID:    deps.UserID,
		days:      days,
		logger:    logger,
		now:       now,
	}
}

// ImportDates writes one "id<TAB>pmid<TAB>date" line per article, ordered by id.
func (r *Refresher) ImportDates(ctx context.Context, w io.Writer) error {
	bw := bufio.NewWriter(w)
	count := 0
	err := r.articles.ImportDates(ctx, func(d domain.ImportDate) error {
		count++
		_, err := fmt.Fprintf(bw, "%d\t%s\t%s\n", d.ArticleID, d.SourceID, d.Date.UTC().Format(importDateLayout))
		return err
	})
	if err != nil {
		return fmt.Errorf("stream import dates: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush import dates: %w", err)
	}
	r.logger.Debug("streamed import dates", "rows", count)
	return nil
}

// Refresh replaces the XML of the submitted articles which are already in the system,
// emails the outcome and returns the plain-text report. The returned error is non-nil
// when the refresh failed; the report describes the failure either way.
func (r *Refresher) Refresh(ctx context.Context, pmids []string) (string, error) {
	started := r.now()
	lines, failure := r.refresh(ctx, pmids)

	report := strings.Join(lines, "\n")
	if failure != nil {
		report = "Failure: " + failure.Error()
	}
	r.sendReport(ctx, lines, failure, started)
	return report, failure
}

func (r *Refresher) refresh(ctx context.Context, submitted []string) ([]string, error) {
	pmids, _ := NormalizePMIDs(submitted)
	if len(pmids) > 0 {
		known, err := r.articles.KnownSourceIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("load known articles: %w", err)
		}
		r.logger.Info("refresh requested", "submitted", len(pmids), "known", len(known))
		kept := pmids[:0]
		for _, pmid := range pmids {
			if known[pmid] {
				kept = append(kept, pmid)
			}
		}
		pmids = kept
	}
	if len(pmids) == 0 {
		return []string{"No PubMed IDs submitted."}, nil
	}

	batch, err := r.importer.Run(ctx, ImportRequest{
		PMIDs:      pmids,
		ImportType: domain.ImportData,
		Comment:    RefreshComment,
		UserID:     r.userID,
	})
	if err != nil {
		if len(batch.Messages) > 0 {
			return []string{batch.Messages[0]}, nil
		}
		return nil, err
	}
	return []string{fmt.Sprintf("Refreshed %d articles.", batch.Refreshed())}, nil
}

func (r *Refresher) sendReport(ctx context.Context, lines []string, failure error, started time.Time) {
	if r.notifier == nil {
		r.logger.Error("no recipients for article XML refresh report")
		return
	}
	subject := fmt.Sprintf("EBMS Article XML Refresh (%s)", r.host)
	var body strings.Builder
	if failure != nil {
		subject += " [FAILURE]"
		fmt.Fprintf(&body, "<p style=\"color: red; font-weight: bold\">Failure: %s</p>\n", html.EscapeString(failure.Error()))
	} else {
		for _, line := range lines {
			fmt.Fprintf(&body, "<p>%s</p>\n", html.EscapeString(line))
		}
	}
	elapsed := r.now().Sub(started).Seconds()
	fmt.Fprintf(&body, "<p style=\"color: green; font-style: italic\">Processing time: %.3f seconds.</p>", elapsed)

	if err := r.notifier.PublishReport(ctx, subject, body.String()); err != nil {
		r.logger.Error("send refresh report", "error", err)
	}
}

// FindStale asks NLM which of our articles changed in the last few days and returns
// those whose NLM revision date is on or after the day we last refreshed them.
// Same-day revisions count as stale because NLM may have changed the record after
// we picked it up.
func (r *Refresher) FindStale(ctx context.Context) ([]string, error) {
	if r.changes == nil || r.revisions == nil {
		return nil, errors.New("refresher has no NLM client configured")
	}

	ours := map[string]time.Time{}
	err := r.articles.ImportDates(ctx, func(d domain.ImportDate) error {
		ours[d.SourceID] = d.Date
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load import dates: %w", err)
	}
	pmids := sortedPMIDs(ours)
	r.logger.Info("checking articles for NLM changes", "articles", len(pmids), "days", r.days)

	recent, err := r.changes.RecentlyModified(ctx, pmids, r.days)
	if err != nil {
		return nil, fmt.Errorf("search recently modified: %w", err)
	}
	if len(recent) == 0 {
		return nil, nil
	}
	records, err := r.revisions.Fetch(ctx, recent)
	if err != nil {
		return nil, fmt.Errorf("fetch revision dates: %w", err)
	}

	var stale []string
	for _, rec := range records {
		refreshed, ok := ours[rec.PMID]
		if !ok || rec.Revised.IsZero() {
			continue
		}
		if !day(rec.Revised).Before(day(refreshed)) {
			stale = append(stale, rec.PMID)
		}
	}
	sortPMIDs(stale)
	r.logger.Info("identified stale articles", "recent", len(recent), "stale", len(stale))
	return stale, nil
}

// RunScheduled finds stale articles and refreshes them.
func (r *Refresher) RunScheduled(ctx context.Context) error {
	stale, err := r.FindStale(ctx)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		r.logger.Info("no articles need refreshing")
		return nil
	}
	report, err := r.Refresh(ctx, stale)
	r.logger.Info("scheduled refresh finished", "report", report)
	return err
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sortedPMIDs(m map[string]time.Time) []string {
	out := make([]string, 0, len(m))
	for pmid := range m {
		out = append(out, pmid)
	}
	sortPMIDs(out)
	return out
}

func sortPMIDs(pmids []string) {
	sort.Slice(pmids, func(i, j int) bool {
		a, errA := strconv.ParseInt(pmids[i], 10, 64)
		b, errB := strconv.ParseInt(pmids[j], 10, 64)
		if errA != nil || errB != nil {
			return pmids[i] < pmids[j]
		}
		return a < b
	})
}
