package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"EBMS/internal/domain"
)

// States returns the whole state vocabulary in workflow order.
func (r *Repository) States(ctx context.Context) ([]domain.StateTerm, error) {
	rows, err := r.query(ctx, r.db, r.sb.
		Select("id", "text_id", "name", "sequence_no", "terminal").
		From("ebms_state_term").
		OrderBy("sequence_no", "id"))
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	return collect(rows, func(rows *sql.Rows) (domain.StateTerm, error) {
		var t domain.StateTerm
		err := rows.Scan(&t.ID, &t.TextID, &t.Name, &t.Sequence, &t.Terminal)
		return t, err
	})
}

// SaveState upserts a vocabulary term keyed by its text id.
func (r *Repository) SaveState(ctx context.Context, term domain.StateTerm) (domain.StateTerm, error) {
	id, err := r.insertID(ctx, r.db, r.sb.
		Insert("ebms_state_term").
		Columns("text_id", "name", "sequence_no", "terminal").
		Values(term.TextID, term.Name, term.Sequence, term.Terminal).
		Suffix("ON CONFLICT (text_id) DO UPDATE SET name = EXCLUDED.name, "+
			"sequence_no = EXCLUDED.sequence_no, terminal = EXCLUDED.terminal"))
	if err != nil {
		return domain.StateTerm{}, fmt.Errorf("upsert state %s: %w", term.TextID, err)
	}
	term.ID = id
	return term, nil
}

// Topic loads one topic.
func (r *Repository) Topic(ctx context.Context, id int64) (domain.Topic, error) {
	row, err := r.queryRow(ctx, r.db, r.sb.
		Select("id", "name", "board_id", "active").
		From("ebms_topic").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Topic{}, err
	}
	var t domain.Topic
	if err := row.Scan(&t.ID, &t.Name, &t.BoardID, &t.Active); err != nil {
		return domain.Topic{}, notFound(err, fmt.Sprintf("topic %d", id))
	}
	return t, nil
}

// Topics lists topics, optionally restricted to one board.
func (r *Repository) Topics(ctx context.Context, boardID int64) ([]domain.Topic, error) {
	q := r.sb.Select("id", "name", "board_id", "active").From("ebms_topic").OrderBy("name", "id")
	if boardID != 0 {
		q = q.Where(sq.Eq{"board_id": boardID})
	}
	rows, err := r.query(ctx, r.db, q)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	return collect(rows, func(rows *sql.Rows) (domain.Topic, error) {
		var t domain.Topic
		err := rows.Scan(&t.ID, &t.Name, &t.BoardID, &t.Active)
		return t, err
	})
}

// SaveBoard upserts a board keyed by name.
func (r *Repository) SaveBoard(ctx context.Context, board domain.Board) (domain.Board, error) {
	id, err := r.insertID(ctx, r.db, r.sb.
		Insert("ebms_board").
		Columns("name").
		Values(board.Name).
		Suffix("ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name"))
	if err != nil {
		return domain.Board{}, fmt.Errorf("upsert board %s: %w", board.Name, err)
	}
	board.ID = id
	return board, nil
}

// SaveTopic upserts a topic keyed by board and name.
func (r *Repository) SaveTopic(ctx context.Context, topic domain.Topic) (domain.Topic, error) {
	id, err := r.insertID(ctx, r.db, r.sb.
		Insert("ebms_topic").
		Columns("name", "board_id", "active").
		Values(topic.Name, topic.BoardID, topic.Active).
		Suffix("ON CONFLICT (board_id, name) DO UPDATE SET active = EXCLUDED.active"))
	if err != nil {
		return domain.Topic{}, fmt.Errorf("upsert topic %s: %w", topic.Name, err)
	}
	topic.ID = id
	return topic, nil
}

// User loads one user.
func (r *Repository) User(ctx context.Context, id int64) (domain.User, error) {
	row, err := r.queryRow(ctx, r.db, r.sb.Select("id", "name").From("ebms_user").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.User{}, err
	}
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name); err != nil {
		return domain.User{}, notFound(err, fmt.Sprintf("user %d", id))
	}
	return u, nil
}

// SaveUser upserts a user keyed by name.
func (r *Repository) SaveUser(ctx context.Context, user domain.User) (domain.User, error) {
	id, err := r.insertID(ctx, r.db, r.sb.
		Insert("ebms_user").
		Columns("name").
		Values(user.Name).
		Suffix("ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name"))
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user %s: %w", user.Name, err)
	}
	user.ID = id
	return user, nil
}

// NotList returns the NLM journal ids a board refuses as of at.
func (r *Repository) NotList(ctx context.Context, boardID int64, at time.Time) (map[string]bool, error) {
	rows, err := r.query(ctx, r.db, r.sb.
		Select("journal_id").
		From("ebms_journal_not_list").
		Where(sq.Eq{"board_id": boardID}).
		Where(sq.LtOrEq{"start_date": at.UTC()}))
	if err != nil {
		return nil, fmt.Errorf("query not list: %w", err)
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

// AddToNotList puts a journal on a board's NOT list from start onwards.
func (r *Repository) AddToNotList(ctx context.Context, boardID int64, journalID string, start time.Time) error {
	_, err := r.exec(ctx, r.db, r.sb.
		Insert("ebms_journal_not_list").
		Columns("board_id", "journal_id", "start_date").
		Values(boardID, journalID, start.UTC()).
		Suffix("ON CONFLICT (board_id, journal_id) DO UPDATE SET start_date = EXCLUDED.start_date"))
	if err != nil {
		return fmt.Errorf("add %s to not list: %w", journalID, err)
	}
	return nil
}
