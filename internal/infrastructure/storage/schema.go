package storage

import (
	"context"
	"fmt"
	"strings"

	"EBMS/internal/domain"
)

// schema is rendered per dialect: %[1]s is the auto-increment primary key.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ebms_board (
		id %[1]s,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_topic (
		id %[1]s,
		name TEXT NOT NULL,
		board_id BIGINT NOT NULL REFERENCES ebms_board (id),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (board_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_user (
		id %[1]s,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_state_term (
		id %[1]s,
		text_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		sequence_no INTEGER NOT NULL,
		terminal BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_article (
		id %[1]s,
		source_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		authors TEXT NOT NULL DEFAULT '',
		journal_title TEXT NOT NULL DEFAULT '',
		brief_journal TEXT NOT NULL DEFAULT '',
		journal_id TEXT NOT NULL DEFAULT '',
		volume TEXT NOT NULL DEFAULT '',
		issue TEXT NOT NULL DEFAULT '',
		pages TEXT NOT NULL DEFAULT '',
		pub_year TEXT NOT NULL DEFAULT '',
		abstract TEXT NOT NULL DEFAULT '',
		source_data TEXT NOT NULL DEFAULT '',
		import_date TIMESTAMP NOT NULL,
		update_date TIMESTAMP NULL,
		data_checked TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_article_topic (
		id %[1]s,
		article_id BIGINT NOT NULL REFERENCES ebms_article (id),
		topic_id BIGINT NOT NULL REFERENCES ebms_topic (id),
		cycle TIMESTAMP NOT NULL,
		UNIQUE (article_id, topic_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_state (
		id %[1]s,
		article_id BIGINT NOT NULL REFERENCES ebms_article (id),
		topic_id BIGINT NOT NULL REFERENCES ebms_topic (id),
		board_id BIGINT NOT NULL REFERENCES ebms_board (id),
		state_id BIGINT NOT NULL REFERENCES ebms_state_term (id),
		user_id BIGINT NOT NULL,
		entered TIMESTAMP NOT NULL,
		is_current BOOLEAN NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ebms_state_one_current
		ON ebms_state (article_id, topic_id) WHERE is_current`,
	`CREATE INDEX IF NOT EXISTS ebms_state_current_term ON ebms_state (state_id, is_current)`,
	`CREATE TABLE IF NOT EXISTS ebms_state_comment (
		id %[1]s,
		state_id BIGINT NOT NULL REFERENCES ebms_state (id),
		user_id BIGINT NOT NULL,
		entered TIMESTAMP NOT NULL,
		body TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_state_decision (
		id %[1]s,
		state_id BIGINT NOT NULL REFERENCES ebms_state (id),
		decision TEXT NOT NULL,
		meeting_id BIGINT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_state_meeting (
		state_id BIGINT NOT NULL REFERENCES ebms_state (id),
		meeting_id BIGINT NOT NULL,
		PRIMARY KEY (state_id, meeting_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_packet (
		id %[1]s,
		topic_id BIGINT NOT NULL REFERENCES ebms_topic (id),
		created_by BIGINT NOT NULL,
		created TIMESTAMP NOT NULL,
		title TEXT NOT NULL,
		last_seen TIMESTAMP NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		starred BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_packet_reviewer (
		packet_id BIGINT NOT NULL REFERENCES ebms_packet (id),
		reviewer_id BIGINT NOT NULL,
		PRIMARY KEY (packet_id, reviewer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_packet_article (
		id %[1]s,
		packet_id BIGINT NOT NULL REFERENCES ebms_packet (id),
		article_id BIGINT NOT NULL REFERENCES ebms_article (id),
		dropped BOOLEAN NOT NULL DEFAULT FALSE,
		archived TIMESTAMP NULL,
		UNIQUE (packet_id, article_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_review (
		id %[1]s,
		packet_article_id BIGINT NOT NULL REFERENCES ebms_packet_article (id),
		reviewer_id BIGINT NOT NULL,
		posted TIMESTAMP NOT NULL,
		comments TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS ebms_review_reviewer ON ebms_review (reviewer_id, packet_article_id)`,
	`CREATE TABLE IF NOT EXISTS ebms_review_disposition (
		review_id BIGINT NOT NULL REFERENCES ebms_review (id),
		disposition TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_review_reason (
		review_id BIGINT NOT NULL REFERENCES ebms_review (id),
		reason TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_journal_not_list (
		board_id BIGINT NOT NULL REFERENCES ebms_board (id),
		journal_id TEXT NOT NULL,
		start_date TIMESTAMP NOT NULL,
		PRIMARY KEY (board_id, journal_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_import_batch (
		id %[1]s,
		topic_id BIGINT NULL,
		cycle TIMESTAMP NULL,
		import_type TEXT NOT NULL,
		user_id BIGINT NOT NULL,
		imported TIMESTAMP NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		messages TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS ebms_import_action (
		id %[1]s,
		batch_id BIGINT NOT NULL REFERENCES ebms_import_batch (id),
		source_id TEXT NOT NULL,
		article_id BIGINT NULL,
		disposition TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT ''
	)`,
}

// Migrate creates any missing tables and indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		ddl := stmt
		if strings.Contains(stmt, "%[1]s") {
			ddl = fmt.Sprintf(stmt, r.dialect.serial)
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate %s: %w", firstLine(ddl), err)
		}
	}
	return nil
}

// SeedStates installs the default state vocabulary, leaving existing terms in place.
func (r *Repository) SeedStates(ctx context.Context) error {
	for _, term := range domain.DefaultStates() {
		if _, err := r.SaveState(ctx, term); err != nil {
			return fmt.Errorf("seed state %s: %w", term.TextID, err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
