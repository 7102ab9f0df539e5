package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

var stateColumns = []string{
	"s.id", "s.article_id", "s.topic_id", "s.board_id", "s.user_id", "s.entered", "s.is_current",
	"st.id", "st.text_id", "st.name", "st.sequence_no", "st.terminal",
}

func scanState(row interface{ Scan(...any) error }) (domain.StateEntry, error) {
	var e domain.StateEntry
	err := row.Scan(&e.ID, &e.ArticleID, &e.TopicID, &e.BoardID, &e.UserID, &e.EnteredAt, &e.Current,
		&e.State.ID, &e.State.TextID, &e.State.Name, &e.State.Sequence, &e.State.Terminal)
	return e, err
}

func (r *Repository) selectStates() sq.SelectBuilder {
	return r.sb.Select(stateColumns...).
		From("ebms_state s").
		Join("ebms_state_term st ON st.id = s.state_id")
}

// AppendState supersedes the pair's current entry with a new one inside a single
// transaction. The article/topic link row is locked first so concurrent writers for
// the same pair queue up, and the partial unique index rejects a second current row.
func (r *Repository) AppendState(ctx context.Context, in ports.NewState) (domain.StateEntry, error) {
	entry := domain.StateEntry{
		ArticleID: in.ArticleID,
		TopicID:   in.TopicID,
		State:     in.State,
		UserID:    in.UserID,
		EnteredAt: in.EnteredAt.UTC(),
		Current:   true,
		Decisions: in.Decisions,
		Meetings:  in.Meetings,
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.exec(ctx, tx, r.sb.
			Insert("ebms_article_topic").
			Columns("article_id", "topic_id", "cycle").
			Values(in.ArticleID, in.TopicID, in.Cycle.UTC()).
			Suffix("ON CONFLICT (article_id, topic_id) DO NOTHING")); err != nil {
			return fmt.Errorf("link article topic: %w", err)
		}

		lock := r.sb.Select("id").From("ebms_article_topic").
			Where(sq.Eq{"article_id": in.ArticleID, "topic_id": in.TopicID})
		if r.dialect.lockRows {
			lock = lock.Suffix("FOR UPDATE")
		}
		row, err := r.queryRow(ctx, tx, lock)
		if err != nil {
			return err
		}
		var linkID int64
		if err := row.Scan(&linkID); err != nil {
			return fmt.Errorf("lock article topic: %w", err)
		}

		if in.ExpectedCurrentID != 0 {
			row, err := r.queryRow(ctx, tx, r.sb.Select("id").From("ebms_state").
				Where(sq.Eq{"article_id": in.ArticleID, "topic_id": in.TopicID, "is_current": true}))
			if err != nil {
				return err
			}
			var currentID int64
			if err := row.Scan(&currentID); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("load current state: %w", err)
			}
			if currentID != in.ExpectedCurrentID {
				return fmt.Errorf("%w: state for article %d topic %d changed concurrently",
					domain.ErrInvalidTransition, in.ArticleID, in.TopicID)
			}
		}

		row, err = r.queryRow(ctx, tx, r.sb.Select("board_id").From("ebms_topic").Where(sq.Eq{"id": in.TopicID}))
		if err != nil {
			return err
		}
		if err := row.Scan(&entry.BoardID); err != nil {
			return notFound(err, fmt.Sprintf("topic %d", in.TopicID))
		}

		if _, err := r.exec(ctx, tx, r.sb.
			Update("ebms_state").
			Set("is_current", false).
			Where(sq.Eq{"article_id": in.ArticleID, "topic_id": in.TopicID, "is_current": true})); err != nil {
			return fmt.Errorf("retire current state: %w", err)
		}

		id, err := r.insertID(ctx, tx, r.sb.
			Insert("ebms_state").
			Columns("article_id", "topic_id", "board_id", "state_id", "user_id", "entered", "is_current").
			Values(in.ArticleID, in.TopicID, entry.BoardID, in.State.ID, in.UserID, entry.EnteredAt, true))
		if err != nil {
			return fmt.Errorf("insert state: %w", err)
		}
		entry.ID = id

		if in.Comment != "" {
			comment := domain.StateComment{UserID: in.UserID, Body: in.Comment, EnteredAt: entry.EnteredAt}
			if _, err := r.exec(ctx, tx, r.sb.
				Insert("ebms_state_comment").
				Columns("state_id", "user_id", "entered", "body").
				Values(id, comment.UserID, comment.EnteredAt, comment.Body)); err != nil {
				return fmt.Errorf("insert state comment: %w", err)
			}
			entry.Comments = append(entry.Comments, comment)
		}
		for _, d := range in.Decisions {
			var meeting any
			if d.MeetingID != nil {
				meeting = *d.MeetingID
			}
			if _, err := r.exec(ctx, tx, r.sb.
				Insert("ebms_state_decision").
				Columns("state_id", "decision", "meeting_id").
				Values(id, d.Decision, meeting)); err != nil {
				return fmt.Errorf("insert board decision: %w", err)
			}
		}
		for _, m := range in.Meetings {
			if _, err := r.exec(ctx, tx, r.sb.
				Insert("ebms_state_meeting").
				Columns("state_id", "meeting_id").
				Values(id, m).
				Suffix("ON CONFLICT DO NOTHING")); err != nil {
				return fmt.Errorf("insert state meeting: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.StateEntry{}, err
	}
	return entry, nil
}

// CurrentState returns the current entry for a pair with its annotations.
func (r *Repository) CurrentState(ctx context.Context, articleID, topicID int64) (domain.StateEntry, error) {
	row, err := r.queryRow(ctx, r.db, r.selectStates().
		Where(sq.Eq{"s.article_id": articleID, "s.topic_id": topicID, "s.is_current": true}))
	if err != nil {
		return domain.StateEntry{}, err
	}
	entry, err := scanState(row)
	if err != nil {
		return domain.StateEntry{}, notFound(err, fmt.Sprintf("state for article %d topic %d", articleID, topicID))
	}
	if err := r.annotate(ctx, &entry); err != nil {
		return domain.StateEntry{}, err
	}
	return entry, nil
}

// History returns every entry for a pair, oldest first.
func (r *Repository) History(ctx context.Context, articleID, topicID int64) ([]domain.StateEntry, error) {
	rows, err := r.query(ctx, r.db, r.selectStates().
		Where(sq.Eq{"s.article_id": articleID, "s.topic_id": topicID}).
		OrderBy("s.entered", "s.id"))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	entries, err := collect(rows, func(rows *sql.Rows) (domain.StateEntry, error) { return scanState(rows) })
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if err := r.annotate(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *Repository) annotate(ctx context.Context, e *domain.StateEntry) error {
	rows, err := r.query(ctx, r.db, r.sb.
		Select("user_id", "body", "entered").
		From("ebms_state_comment").
		Where(sq.Eq{"state_id": e.ID}).
		OrderBy("entered", "id"))
	if err != nil {
		return fmt.Errorf("query state comments: %w", err)
	}
	comments, err := collect(rows, func(rows *sql.Rows) (domain.StateComment, error) {
		var c domain.StateComment
		err := rows.Scan(&c.UserID, &c.Body, &c.EnteredAt)
		return c, err
	})
	if err != nil {
		return err
	}
	e.Comments = comments

	rows, err = r.query(ctx, r.db, r.sb.
		Select("decision", "meeting_id").
		From("ebms_state_decision").
		Where(sq.Eq{"state_id": e.ID}).
		OrderBy("id"))
	if err != nil {
		return fmt.Errorf("query board decisions: %w", err)
	}
	decisions, err := collect(rows, func(rows *sql.Rows) (domain.BoardDecision, error) {
		var (
			d       domain.BoardDecision
			meeting sql.NullInt64
		)
		if err := rows.Scan(&d.Decision, &meeting); err != nil {
			return d, err
		}
		if meeting.Valid {
			d.MeetingID = &meeting.Int64
		}
		return d, nil
	})
	if err != nil {
		return err
	}
	e.Decisions = decisions

	rows, err = r.query(ctx, r.db, r.sb.
		Select("meeting_id").
		From("ebms_state_meeting").
		Where(sq.Eq{"state_id": e.ID}).
		OrderBy("meeting_id"))
	if err != nil {
		return fmt.Errorf("query state meetings: %w", err)
	}
	meetings, err := collect(rows, func(rows *sql.Rows) (int64, error) {
		var id int64
		err := rows.Scan(&id)
		return id, err
	})
	if err != nil {
		return err
	}
	e.Meetings = meetings
	return nil
}

func (r *Repository) currentStateQuery(q sq.SelectBuilder, filter ports.StateFilter) sq.SelectBuilder {
	q = q.From("ebms_state s").
		Join("ebms_state_term st ON st.id = s.state_id").
		Where(sq.Eq{"s.is_current": true, "s.state_id": filter.StateIDs})
	if filter.BoardID != 0 {
		q = q.Where(sq.Eq{"s.board_id": filter.BoardID})
	}
	if len(filter.TopicIDs) > 0 {
		q = q.Where(sq.Eq{"s.topic_id": filter.TopicIDs})
	}
	return q
}

// CurrentStates pages through pairs whose current state is in the filter's state set,
// returning the page and the total number of matching pairs.
func (r *Repository) CurrentStates(ctx context.Context, filter ports.StateFilter) ([]domain.QueueItem, int, error) {
	if len(filter.StateIDs) == 0 {
		return nil, 0, nil
	}

	row, err := r.queryRow(ctx, r.db, r.currentStateQuery(r.sb.Select("COUNT(*)"), filter))
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue: %w", err)
	}

	q := r.currentStateQuery(r.sb.Select(
		"a.id", "a.source_id", "a.title", "t.id", "t.name", "b.id", "b.name",
		"st.id", "st.text_id", "st.name", "st.sequence_no", "st.terminal", "s.entered",
	), filter).
		Join("ebms_article a ON a.id = s.article_id").
		Join("ebms_topic t ON t.id = s.topic_id").
		Join("ebms_board b ON b.id = s.board_id").
		OrderBy("a.id", "t.name", "t.id")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}
	rows, err := r.query(ctx, r.db, q)
	if err != nil {
		return nil, 0, fmt.Errorf("query queue: %w", err)
	}
	items, err := collect(rows, func(rows *sql.Rows) (domain.QueueItem, error) {
		var it domain.QueueItem
		err := rows.Scan(&it.ArticleID, &it.SourceID, &it.Title, &it.TopicID, &it.TopicName,
			&it.BoardID, &it.BoardName, &it.State.ID, &it.State.TextID, &it.State.Name,
			&it.State.Sequence, &it.State.Terminal, &it.StateEntered)
		return it, err
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// TopicCounts counts matching pairs per topic, ignoring the filter's topic list and paging.
func (r *Repository) TopicCounts(ctx context.Context, filter ports.StateFilter) (map[int64]int, error) {
	out := map[int64]int{}
	if len(filter.StateIDs) == 0 {
		return out, nil
	}
	filter.TopicIDs = nil
	rows, err := r.query(ctx, r.db, r.currentStateQuery(r.sb.Select("s.topic_id", "COUNT(*)"), filter).
		GroupBy("s.topic_id"))
	if err != nil {
		return nil, fmt.Errorf("query topic counts: %w", err)
	}
	type count struct {
		topic int64
		n     int
	}
	counts, err := collect(rows, func(rows *sql.Rows) (count, error) {
		var c count
		err := rows.Scan(&c.topic, &c.n)
		return c, err
	})
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		out[c.topic] = c.n
	}
	return out, nil
}
