package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"EBMS/internal/domain"
	"EBMS/internal/ports"
)

// CreatePacket stores a packet with its reviewers and articles.
func (r *Repository) CreatePacket(ctx context.Context, p domain.Packet) (domain.Packet, error) {
	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}
	p.Active = true

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := r.insertID(ctx, tx, r.sb.
			Insert("ebms_packet").
			Columns("topic_id", "created_by", "created", "title", "active", "starred").
			Values(p.TopicID, p.CreatedBy, p.Created.UTC(), p.Title, true, p.Starred))
		if err != nil {
			return fmt.Errorf("insert packet: %w", err)
		}
		p.ID = id

		for _, reviewer := range p.Reviewers {
			if _, err := r.exec(ctx, tx, r.sb.
				Insert("ebms_packet_reviewer").
				Columns("packet_id", "reviewer_id").
				Values(id, reviewer).
				Suffix("ON CONFLICT DO NOTHING")); err != nil {
				return fmt.Errorf("insert packet reviewer %d: %w", reviewer, err)
			}
		}
		for i := range p.Articles {
			paID, err := r.insertID(ctx, tx, r.sb.
				Insert("ebms_packet_article").
				Columns("packet_id", "article_id", "dropped").
				Values(id, p.Articles[i].ArticleID, false))
			if err != nil {
				return fmt.Errorf("insert packet article %d: %w", p.Articles[i].ArticleID, err)
			}
			p.Articles[i].ID = paID
			p.Articles[i].PacketID = id
		}
		return nil
	})
	if err != nil {
		return domain.Packet{}, err
	}
	return p, nil
}

var packetColumns = []string{"id", "topic_id", "created_by", "created", "title", "last_seen", "active", "starred"}

func scanPacket(row interface{ Scan(...any) error }) (domain.Packet, error) {
	var (
		p    domain.Packet
		seen sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.TopicID, &p.CreatedBy, &p.Created, &p.Title, &seen, &p.Active, &p.Starred); err != nil {
		return domain.Packet{}, err
	}
	p.LastSeen = nullTime(seen)
	return p, nil
}

// Packet loads a packet with its reviewers, articles and posted reviews.
func (r *Repository) Packet(ctx context.Context, id int64) (domain.Packet, error) {
	row, err := r.queryRow(ctx, r.db, r.sb.Select(packetColumns...).From("ebms_packet").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Packet{}, err
	}
	p, err := scanPacket(row)
	if err != nil {
		return domain.Packet{}, notFound(err, fmt.Sprintf("packet %d", id))
	}

	rows, err := r.query(ctx, r.db, r.sb.
		Select("reviewer_id").
		From("ebms_packet_reviewer").
		Where(sq.Eq{"packet_id": id}).
		OrderBy("reviewer_id"))
	if err != nil {
		return domain.Packet{}, fmt.Errorf("query packet reviewers: %w", err)
	}
	p.Reviewers, err = collect(rows, func(rows *sql.Rows) (int64, error) {
		var uid int64
		err := rows.Scan(&uid)
		return uid, err
	})
	if err != nil {
		return domain.Packet{}, err
	}

	rows, err = r.query(ctx, r.db, r.selectPacketArticles().Where(sq.Eq{"packet_id": id}).OrderBy("id"))
	if err != nil {
		return domain.Packet{}, fmt.Errorf("query packet articles: %w", err)
	}
	p.Articles, err = collect(rows, func(rows *sql.Rows) (domain.PacketArticle, error) { return scanPacketArticle(rows) })
	if err != nil {
		return domain.Packet{}, err
	}
	for i := range p.Articles {
		if p.Articles[i].Reviews, err = r.reviews(ctx, p.Articles[i].ID); err != nil {
			return domain.Packet{}, err
		}
	}
	return p, nil
}

// Packets lists a topic's packets newest first, or every topic's when topicID is zero.
func (r *Repository) Packets(ctx context.Context, filter ports.PacketFilter) ([]domain.Packet, error) {
	q := r.sb.Select(packetColumns...).From("ebms_packet").OrderBy("created DESC", "id DESC")
	if filter.TopicID != 0 {
		q = q.Where(sq.Eq{"topic_id": filter.TopicID})
	}
	if filter.BoardID != 0 {
		q = q.Where(sq.Expr("topic_id IN (SELECT id FROM ebms_topic WHERE board_id = ?)", filter.BoardID))
	}
	if filter.ActiveOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	rows, err := r.query(ctx, r.db, q)
	if err != nil {
		return nil, fmt.Errorf("query packets: %w", err)
	}
	return collect(rows, func(rows *sql.Rows) (domain.Packet, error) { return scanPacket(rows) })
}

func (r *Repository) selectPacketArticles() sq.SelectBuilder {
	return r.sb.Select("id", "packet_id", "article_id", "dropped", "archived").From("ebms_packet_article")
}

func scanPacketArticle(row interface{ Scan(...any) error }) (domain.PacketArticle, error) {
	var (
		pa       domain.PacketArticle
		archived sql.NullTime
	)
	if err := row.Scan(&pa.ID, &pa.PacketID, &pa.ArticleID, &pa.Dropped, &archived); err != nil {
		return domain.PacketArticle{}, err
	}
	pa.Archived = nullTime(archived)
	return pa, nil
}

// PacketArticle loads one packet article with its reviews.
func (r *Repository) PacketArticle(ctx context.Context, id int64) (domain.PacketArticle, error) {
	row, err := r.queryRow(ctx, r.db, r.selectPacketArticles().Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.PacketArticle{}, err
	}
	pa, err := scanPacketArticle(row)
	if err != nil {
		return domain.PacketArticle{}, notFound(err, fmt.Sprintf("packet article %d", id))
	}
	if pa.Reviews, err = r.reviews(ctx, id); err != nil {
		return domain.PacketArticle{}, err
	}
	return pa, nil
}

func (r *Repository) reviews(ctx context.Context, packetArticleID int64) ([]domain.Review, error) {
	rows, err := r.query(ctx, r.db, r.sb.
		Select("id", "packet_article_id", "reviewer_id", "posted", "comments").
		From("ebms_review").
		Where(sq.Eq{"packet_article_id": packetArticleID}).
		OrderBy("posted", "id"))
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	reviews, err := collect(rows, func(rows *sql.Rows) (domain.Review, error) {
		var rv domain.Review
		err := rows.Scan(&rv.ID, &rv.PacketArticleID, &rv.ReviewerID, &rv.Posted, &rv.Comments)
		return rv, err
	})
	if err != nil {
		return nil, err
	}
	for i := range reviews {
		if reviews[i].Dispositions, err = r.reviewValues(ctx, "ebms_review_disposition", "disposition", reviews[i].ID); err != nil {
			return nil, err
		}
		if reviews[i].Reasons, err = r.reviewValues(ctx, "ebms_review_reason", "reason", reviews[i].ID); err != nil {
			return nil, err
		}
	}
	return reviews, nil
}

func (r *Repository) reviewValues(ctx context.Context, table, column string, reviewID int64) ([]string, error) {
	rows, err := r.query(ctx, r.db, r.sb.Select(column).From(table).Where(sq.Eq{"review_id": reviewID}))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return collect(rows, func(rows *sql.Rows) (string, error) {
		var v string
		err := rows.Scan(&v)
		return v, err
	})
}

// SetStarred flags or unflags a packet.
func (r *Repository) SetStarred(ctx context.Context, packetID int64, starred bool) error {
	return r.updatePacket(ctx, packetID, "starred", starred)
}

// SetActive archives (false) or restores (true) a packet.
func (r *Repository) SetActive(ctx context.Context, packetID int64, active bool) error {
	return r.updatePacket(ctx, packetID, "active", active)
}

func (r *Repository) updatePacket(ctx context.Context, packetID int64, column string, value any) error {
	res, err := r.exec(ctx, r.db, r.sb.Update("ebms_packet").Set(column, value).Where(sq.Eq{"id": packetID}))
	if err != nil {
		return fmt.Errorf("update packet %s: %w", column, err)
	}
	return expectAffected(res, fmt.Sprintf("packet %d", packetID))
}

// DropArticle removes an article from its packet without deleting it.
func (r *Repository) DropArticle(ctx context.Context, packetArticleID int64) error {
	res, err := r.exec(ctx, r.db, r.sb.
		Update("ebms_packet_article").
		Set("dropped", true).
		Where(sq.Eq{"id": packetArticleID}))
	if err != nil {
		return fmt.Errorf("drop packet article: %w", err)
	}
	return expectAffected(res, fmt.Sprintf("packet article %d", packetArticleID))
}

// ArchiveArticle hides a packet article from reviewer counts as of at.
func (r *Repository) ArchiveArticle(ctx context.Context, packetArticleID int64, at time.Time) error {
	res, err := r.exec(ctx, r.db, r.sb.
		Update("ebms_packet_article").
		Set("archived", at.UTC()).
		Where(sq.Eq{"id": packetArticleID}))
	if err != nil {
		return fmt.Errorf("archive packet article: %w", err)
	}
	return expectAffected(res, fmt.Sprintf("packet article %d", packetArticleID))
}

// SaveReview stores a review with its dispositions and reasons.
func (r *Repository) SaveReview(ctx context.Context, rv domain.Review) (domain.Review, error) {
	if rv.Posted.IsZero() {
		rv.Posted = time.Now().UTC()
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := r.insertID(ctx, tx, r.sb.
			Insert("ebms_review").
			Columns("packet_article_id", "reviewer_id", "posted", "comments").
			Values(rv.PacketArticleID, rv.ReviewerID, rv.Posted.UTC(), rv.Comments))
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		rv.ID = id
		for _, d := range rv.Dispositions {
			if _, err := r.exec(ctx, tx, r.sb.
				Insert("ebms_review_disposition").
				Columns("review_id", "disposition").
				Values(id, d)); err != nil {
				return fmt.Errorf("insert disposition: %w", err)
			}
		}
		for _, reason := range rv.Reasons {
			if _, err := r.exec(ctx, tx, r.sb.
				Insert("ebms_review_reason").
				Columns("review_id", "reason").
				Values(id, reason)); err != nil {
				return fmt.Errorf("insert reason: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

// reviewedBy selects the packet articles a reviewer has already posted against.
// It is built with the default placeholder format because it is only ever nested.
func reviewedBy(reviewerID int64) sq.SelectBuilder {
	return sq.Select("rv.packet_article_id").
		Distinct().
		From("ebms_review rv").
		Where(sq.Eq{"rv.reviewer_id": reviewerID})
}

// UnreviewedPackets lists the reviewer's active packets that still hold at least one
// article needing their review: not dropped, current state not in closed, and no review
// from this reviewer. The count is the number of such articles.
func (r *Repository) UnreviewedPackets(ctx context.Context, reviewerID int64, closed []string) ([]domain.AssignedPacket, error) {
	q := r.sb.Select("p.id", "p.title", "p.created", "COUNT(DISTINCT pa.id)").
		From("ebms_packet p").
		Join("ebms_packet_reviewer pr ON pr.packet_id = p.id").
		Join("ebms_packet_article pa ON pa.packet_id = p.id").
		Join("ebms_state s ON s.article_id = pa.article_id AND s.topic_id = p.topic_id").
		Join("ebms_state_term st ON st.id = s.state_id").
		Where(sq.Eq{
			"p.active":       true,
			"pr.reviewer_id": reviewerID,
			"pa.dropped":     false,
			"s.is_current":   true,
		}).
		Where(sq.Expr("pa.id NOT IN (?)", reviewedBy(reviewerID))).
		GroupBy("p.id", "p.title", "p.created").
		OrderBy("p.created DESC", "p.id DESC")
	if len(closed) > 0 {
		q = q.Where(sq.NotEq{"st.text_id": closed})
	}

	rows, err := r.query(ctx, r.db, q)
	if err != nil {
		return nil, fmt.Errorf("query unreviewed packets: %w", err)
	}
	return collect(rows, func(rows *sql.Rows) (domain.AssignedPacket, error) {
		var ap domain.AssignedPacket
		err := rows.Scan(&ap.PacketID, &ap.Title, &ap.Created, &ap.Unreviewed)
		return ap, err
	})
}

// UnreviewedArticleCount counts distinct articles assigned to the reviewer in active
// packets which are neither dropped nor archived, whose current state is not excluded and
// sits at or below ceiling in the workflow sequence, and which the reviewer has not reviewed.
// A zero boardID counts across all boards.
func (r *Repository) UnreviewedArticleCount(ctx context.Context, reviewerID, boardID int64, excluded []int64, ceiling int) (int, error) {
	q := r.sb.Select("COUNT(DISTINCT pa.article_id)").
		From("ebms_packet_article pa").
		Join("ebms_packet p ON p.id = pa.packet_id").
		Join("ebms_packet_reviewer pr ON pr.packet_id = p.id").
		Join("ebms_state s ON s.article_id = pa.article_id AND s.topic_id = p.topic_id").
		Join("ebms_state_term st ON st.id = s.state_id").
		Where(sq.Eq{
			"pa.dropped":     false,
			"pa.archived":    nil,
			"p.active":       true,
			"pr.reviewer_id": reviewerID,
			"s.is_current":   true,
		}).
		Where(sq.LtOrEq{"st.sequence_no": ceiling}).
		Where(sq.Expr("pa.id NOT IN (?)", reviewedBy(reviewerID)))
	if len(excluded) > 0 {
		q = q.Where(sq.NotEq{"s.state_id": excluded})
	}
	if boardID != 0 {
		q = q.Where(sq.Eq{"s.board_id": boardID})
	}

	row, err := r.queryRow(ctx, r.db, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count unreviewed articles: %w", err)
	}
	return n, nil
}

// PostedReviews counts distinct (article, reviewer) pairs for which an assigned reviewer
// has posted a review on a non-dropped article of the packet.
func (r *Repository) PostedReviews(ctx context.Context, packetID int64) (int, error) {
	posted := sq.Select("rv.packet_article_id", "rv.reviewer_id").
		Distinct().
		From("ebms_review rv").
		Join("ebms_packet_article pa ON pa.id = rv.packet_article_id").
		Join("ebms_packet_reviewer pr ON pr.packet_id = pa.packet_id AND pr.reviewer_id = rv.reviewer_id").
		Where(sq.Eq{"pa.packet_id": packetID, "pa.dropped": false})

	row, err := r.queryRow(ctx, r.db, r.sb.Select("COUNT(*)").FromSelect(posted, "posted"))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count posted reviews: %w", err)
	}
	return n, nil
}
