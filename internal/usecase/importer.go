package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

// ImporterDeps wires all driven adapters into the import workflow.
type ImporterDeps struct {
	Catalog  ports.CatalogRepository
	Articles ports.ArticleRepository
	Ledger   *Ledger
	Source   ports.PubmedSource
	Logger   *slog.Logger
	Now      func() time.Time
}

// Importer brings PubMed records into the system and links them to topics.
type Importer struct {
	catalog  ports.CatalogRepository
	articles ports.ArticleRepository
	ledger   *Ledger
	source   ports.PubmedSource
	logger   *slog.Logger
	now      func() time.Time
}

// NewImporter constructs the import use case.
func NewImporter(deps ImporterDeps) *Importer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Importer{
		catalog:  deps.Catalog,
		articles: deps.Articles,
		ledger:   deps.Ledger,
		source:   deps.Source,
		logger:   logger,
		now:      now,
	}
}

// ImportRequest describes one import batch.
type ImportRequest struct {
	PMIDs          []string          `json:"pmids" validate:"required,min=1"`
	TopicID        int64             `json:"topic"`
	Cycle          time.Time         `json:"cycle"`
	ImportType     domain.ImportType `json:"importType" validate:"omitempty,oneof=R F D S I"`
	Comment        string            `json:"comment"`
	UserID         int64             `json:"user" validate:"required"`
	FastTrackState string            `json:"fastTrackState"`
}

// Run imports a batch and records a disposition for every PubMed id. A failure to
// reach the record source fails the whole batch; problems with single records are
// reported as error actions.
func (im *Importer) Run(ctx context.Context, req ImportRequest) (domain.ImportBatch, error) {
	if req.ImportType == "" {
		req.ImportType = domain.ImportRegular
	}
	now := im.now()
	batch := domain.ImportBatch{
		TopicID:    req.TopicID,
		ImportType: req.ImportType,
		UserID:     req.UserID,
		Imported:   now,
		Comment:    req.Comment,
	}

	pmids, invalid := NormalizePMIDs(req.PMIDs)
	for _, bad := range invalid {
		batch.Actions = append(batch.Actions, domain.ImportAction{
			SourceID:    bad,
			Disposition: domain.DispositionError,
			Message:     "invalid PubMed ID",
		})
	}
	if len(pmids) == 0 {
		return domain.ImportBatch{}, fmt.Errorf("%w: no valid PubMed IDs submitted", domain.ErrValidation)
	}

	plan, err := im.plan(ctx, req, now)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if plan.topic.ID != 0 {
		cycle := plan.cycle
		batch.Cycle = &cycle
	}

	existing, err := im.articles.ArticlesBySourceID(ctx, pmids)
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("load existing articles: %w", err)
	}

	records, err := im.source.Fetch(ctx, pmids)
	if err != nil {
		batch.Success = false
		batch.Messages = append(batch.Messages, fmt.Sprintf("Unable to retrieve articles from %s: %v", im.source.Name(), err))
		if _, saveErr := im.articles.SaveBatch(ctx, batch); saveErr != nil {
			im.logger.Error("save failed batch", "error", saveErr)
		}
		return batch, fmt.Errorf("fetch records: %w", err)
	}
	byPMID := make(map[string]domain.PubmedRecord, len(records))
	for _, rec := range records {
		byPMID[rec.PMID] = rec
	}

	for _, pmid := range pmids {
		rec, found := byPMID[pmid]
		if !found {
			batch.Actions = append(batch.Actions, domain.ImportAction{
				SourceID:    pmid,
				Disposition: domain.DispositionError,
				Message:     "not found at NLM",
			})
			continue
		}
		article, known := existing[pmid]
		action := im.importOne(ctx, req, plan, rec, article, known)
		batch.Actions = append(batch.Actions, action)
	}

	batch.Success = true
	batch, err = im.articles.SaveBatch(ctx, batch)
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("save batch: %w", err)
	}

	counts := batch.Counts()
	im.logger.Info("import batch finished",
		"batch", batch.ID,
		"type", batch.ImportType,
		"topic", batch.TopicID,
		"imported", counts[domain.DispositionImported],
		"replaced", counts[domain.DispositionReplaced],
		"errors", counts[domain.DispositionError])
	return batch, nil
}

type importPlan struct {
	topic   domain.Topic
	cycle   time.Time
	initial string
	notList map[string]bool
}

func (im *Importer) plan(ctx context.Context, req ImportRequest, now time.Time) (importPlan, error) {
	var plan importPlan
	switch req.ImportType {
	case domain.ImportData, domain.ImportInternal:
		return plan, nil
	case domain.ImportRegular, domain.ImportSpecial:
		plan.initial = domain.StateReadyInitReview
	case domain.ImportFastTrack:
		plan.initial = domain.StatePassedBMReview
		if req.FastTrackState != "" {
			plan.initial = req.FastTrackState
		}
	default:
		return plan, fmt.Errorf("%w: unknown import type %q", domain.ErrValidation, req.ImportType)
	}

	if req.TopicID == 0 {
		return plan, fmt.Errorf("%w: a topic is required for %s imports", domain.ErrValidation, req.ImportType)
	}
	topic, err := im.catalog.Topic(ctx, req.TopicID)
	if err != nil {
		return plan, fmt.Errorf("load topic: %w", err)
	}
	plan.topic = topic
	plan.cycle = req.Cycle
	if plan.cycle.IsZero() {
		plan.cycle = ReviewCycle(now)
	}
	if plan.notList, err = im.catalog.NotList(ctx, topic.BoardID, now); err != nil {
		return plan, fmt.Errorf("load not list: %w", err)
	}
	return plan, nil
}

func (im *Importer) importOne(ctx context.Context, req ImportRequest, plan importPlan, rec domain.PubmedRecord,
	article domain.Article, known bool) domain.ImportAction {
	action := domain.ImportAction{SourceID: rec.PMID}
	fail := func(err error) domain.ImportAction {
		action.Disposition = domain.DispositionError
		action.Message = err.Error()
		im.logger.Warn("import record failed", "pmid", rec.PMID, "error", err)
		return action
	}

	if req.ImportType == domain.ImportData {
		if !known {
			action.Disposition = domain.DispositionError
			action.Message = "article is not in the system"
			return action
		}
		saved, err := im.replace(ctx, article, rec)
		if err != nil {
			return fail(err)
		}
		action.ArticleID = saved.ID
		action.Disposition = domain.DispositionReplaced
		return action
	}

	if !known {
		saved, err := im.articles.SaveArticle(ctx, articleFromRecord(domain.Article{ImportDate: im.now()}, rec))
		if err != nil {
			return fail(err)
		}
		action.ArticleID = saved.ID
		action.Disposition = domain.DispositionImported
		if plan.topic.ID == 0 {
			return action
		}
		state := plan.initial
		if plan.notList[saved.JournalID] {
			state = domain.StateRejectJournalTitle
			action.Disposition = domain.DispositionNotListed
		}
		if err := im.link(ctx, req, plan, saved.ID, state); err != nil {
			return fail(err)
		}
		return action
	}

	action.ArticleID = article.ID
	if plan.topic.ID == 0 {
		action.Disposition = domain.DispositionDuplicate
		return action
	}
	topics, err := im.articles.ArticleTopics(ctx, article.ID)
	if err != nil {
		return fail(err)
	}
	if slices.ContainsFunc(topics, func(at domain.ArticleTopic) bool { return at.TopicID == plan.topic.ID }) {
		action.Disposition = domain.DispositionDuplicate
		return action
	}
	state, disposition := plan.initial, domain.DispositionTopicAdded
	if plan.notList[article.JournalID] {
		state, disposition = domain.StateRejectJournalTitle, domain.DispositionNotListed
	}
	if err := im.link(ctx, req, plan, article.ID, state); err != nil {
		return fail(err)
	}
	action.Disposition = disposition
	return action
}

func (im *Importer) link(ctx context.Context, req ImportRequest, plan importPlan, articleID int64, state string) error {
	_, err := im.ledger.AddState(ctx, AddStateInput{
		ArticleID: articleID,
		TopicID:   plan.topic.ID,
		State:     state,
		UserID:    req.UserID,
		Cycle:     plan.cycle,
		Comment:   req.Comment,
	})
	return err
}

func (im *Importer) replace(ctx context.Context, article domain.Article, rec domain.PubmedRecord) (domain.Article, error) {
	now := im.now()
	updated := articleFromRecord(article, rec)
	updated.UpdateDate = &now
	updated.DataChecked = &now
	saved, err := im.articles.SaveArticle(ctx, updated)
	if err != nil {
		return domain.Article{}, fmt.Errorf("replace article %s: %w", rec.PMID, err)
	}
	return saved, nil
}

func articleFromRecord(a domain.Article, rec domain.PubmedRecord) domain.Article {
	a.SourceID = rec.PMID
	a.Title = rec.Title
	a.Authors = rec.Authors
	a.JournalTitle = rec.JournalTitle
	a.BriefJournal = rec.BriefJournal
	a.JournalID = rec.JournalID
	a.Volume = rec.Volume
	a.Issue = rec.Issue
	a.Pages = rec.Pages
	a.Year = rec.Year
	a.Abstract = rec.Abstract
	a.SourceData = rec.XML
	return a
}

// NormalizePMIDs splits the submitted ids into unique well-formed PubMed ids and the
// rejected tokens. Ids may be separated by commas or whitespace.
func NormalizePMIDs(raw []string) (valid, invalid []string) {
	seen := map[string]struct{}{}
	for _, chunk := range raw {
		for _, token := range strings.FieldsFunc(chunk, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
		}) {
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			if isPMID(token) {
				valid = append(valid, token)
			} else {
				invalid = append(invalid, token)
			}
		}
	}
	return valid, invalid
}

func isPMID(s string) bool {
	if s == "" || len(s) > 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
