package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"EBMS/internal/domain"
)

const authorSeparator = "; "

var articleColumns = []string{
	"id", "source_id", "title", "authors", "journal_title", "brief_journal", "journal_id",
	"volume", "issue", "pages", "pub_year", "abstract", "source_data",
	"import_date", "update_date", "data_checked",
}

func scanArticle(row interface{ Scan(...any) error }) (domain.Article, error) {
	var (
		a       domain.Article
		authors string
		updated sql.NullTime
		checked sql.NullTime
	)
	err := row.Scan(&a.ID, &a.SourceID, &a.Title, &authors, &a.JournalTitle, &a.BriefJournal,
		&a.JournalID, &a.Volume, &a.Issue, &a.Pages, &a.Year, &a.Abstract, &a.SourceData,
		&a.ImportDate, &updated, &checked)
	if err != nil {
		return domain.Article{}, err
	}
	if authors != "" {
		a.Authors = strings.Split(authors, authorSeparator)
	}
	a.UpdateDate = nullTime(updated)
	a.DataChecked = nullTime(checked)
	return a, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Article loads one article.
func (r *Repository) Article(ctx context.Context, id int64) (domain.Article, error) {
	row, err := r.queryRow(ctx, r.db, r.sb.Select(articleColumns...).From("ebms_article").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Article{}, err
	}
	a, err := scanArticle(row)
	if err != nil {
		return domain.Article{}, notFound(err, fmt.Sprintf("article %d", id))
	}
	return a, nil
}

// ArticlesBySourceID returns the stored articles among the given PubMed ids.
func (r *Repository) ArticlesBySourceID(ctx context.Context, sourceIDs []string) (map[string]domain.Article, error) {
	out := make(map[string]domain.Article)
	if len(sourceIDs) == 0 {
		return out, nil
	}
	rows, err := r.query(ctx, r.db, r.sb.
		Select(articleColumns...).
		From("ebms_article").
		Where(sq.Eq{"source_id": sourceIDs}))
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	articles, err := collect(rows, func(rows *sql.Rows) (domain.Article, error) { return scanArticle(rows) })
	if err != nil {
		return nil, err
	}
	for _, a := range articles {
		out[a.SourceID] = a
	}
	return out, nil
}

// SaveArticle inserts a new article or rewrites an existing one.
func (r *Repository) SaveArticle(ctx context.Context, a domain.Article) (domain.Article, error) {
	authors := strings.Join(a.Authors, authorSeparator)
	if a.ID == 0 {
		if a.ImportDate.IsZero() {
			a.ImportDate = time.Now().UTC()
		}
		id, err := r.insertID(ctx, r.db, r.sb.
			Insert("ebms_article").
			Columns(articleColumns[1:]...).
			Values(a.SourceID, a.Title, authors, a.JournalTitle, a.BriefJournal, a.JournalID,
				a.Volume, a.Issue, a.Pages, a.Year, a.Abstract, a.SourceData,
				a.ImportDate.UTC(), timeArg(a.UpdateDate), timeArg(a.DataChecked)))
		if err != nil {
			return domain.Article{}, fmt.Errorf("insert article %s: %w", a.SourceID, err)
		}
		a.ID = id
		return a, nil
	}

	res, err := r.exec(ctx, r.db, r.sb.
		Update("ebms_article").
		SetMap(map[string]any{
			"title":         a.Title,
			"authors":       authors,
			"journal_title": a.JournalTitle,
			"brief_journal": a.BriefJournal,
			"journal_id":    a.JournalID,
			"volume":        a.Volume,
			"issue":         a.Issue,
			"pages":         a.Pages,
			"pub_year":      a.Year,
			"abstract":      a.Abstract,
			"source_data":   a.SourceData,
			"update_date":   timeArg(a.UpdateDate),
			"data_checked":  timeArg(a.DataChecked),
		}).
		Where(sq.Eq{"id": a.ID}))
	if err != nil {
		return domain.Article{}, fmt.Errorf("update article %d: %w", a.ID, err)
	}
	if err := expectAffected(res, fmt.Sprintf("article %d", a.ID)); err != nil {
		return domain.Article{}, err
	}
	return a, nil
}

// KnownSourceIDs returns every PubMed id already stored.
func (r *Repository) KnownSourceIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.query(ctx, r.db, r.sb.Select("source_id").From("ebms_article"))
	if err != nil {
		return nil, fmt.Errorf("query source ids: %w", err)
	}
	ids, err := collect(rows, func(rows *sql.Rows) (string, error) {
		var id string
		err := rows.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// ArticleTopics lists the topics an article is linked to.
func (r *Repository) ArticleTopics(ctx context.Context, articleID int64) ([]domain.ArticleTopic, error) {
	rows, err := r.query(ctx, r.db, r.sb.
		Select("id", "article_id", "topic_id", "cycle").
		From("ebms_article_topic").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("query article topics: %w", err)
	}
	return collect(rows, func(rows *sql.Rows) (domain.ArticleTopic, error) {
		var at domain.ArticleTopic
		err := rows.Scan(&at.ID, &at.ArticleID, &at.TopicID, &at.Cycle)
		return at, err
	})
}

// ImportDates walks every article in id order with its last import or refresh date.
// The date is update_date when set, otherwise import_date, and data_checked wins when later.
func (r *Repository) ImportDates(ctx context.Context, fn func(domain.ImportDate) error) error {
	rows, err := r.query(ctx, r.db, r.sb.
		Select("id", "source_id", "import_date", "update_date", "data_checked").
		From("ebms_article").
		OrderBy("id"))
	if err != nil {
		return fmt.Errorf("query import dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d                domain.ImportDate
			imported         time.Time
			updated, checked sql.NullTime
		)
		if err := rows.Scan(&d.ArticleID, &d.SourceID, &imported, &updated, &checked); err != nil {
			return fmt.Errorf("scan import date: %w", err)
		}
		d.Date = imported
		if updated.Valid {
			d.Date = updated.Time
		}
		if checked.Valid && checked.Time.After(d.Date) {
			d.Date = checked.Time
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}
	return nil
}

// SaveBatch stores an import batch with its per-article actions.
func (r *Repository) SaveBatch(ctx context.Context, batch domain.ImportBatch) (domain.ImportBatch, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var topic any
		if batch.TopicID != 0 {
			topic = batch.TopicID
		}
		id, err := r.insertID(ctx, tx, r.sb.
			Insert("ebms_import_batch").
			Columns("topic_id", "cycle", "import_type", "user_id", "imported", "comment", "success", "messages").
			Values(topic, timeArg(batch.Cycle), string(batch.ImportType), batch.UserID,
				batch.Imported.UTC(), batch.Comment, batch.Success, strings.Join(batch.Messages, "\n")))
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		batch.ID = id

		for _, action := range batch.Actions {
			var article any
			if action.ArticleID != 0 {
				article = action.ArticleID
			}
			_, err := r.exec(ctx, tx, r.sb.
				Insert("ebms_import_action").
				Columns("batch_id", "source_id", "article_id", "disposition", "message").
				Values(id, action.SourceID, article, string(action.Disposition), action.Message))
			if err != nil {
				return fmt.Errorf("insert action %s: %w", action.SourceID, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.ImportBatch{}, err
	}
	return batch, nil
}
