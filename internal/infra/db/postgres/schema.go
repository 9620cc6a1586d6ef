package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS essay_feedback (
  id            TEXT PRIMARY KEY,
  user_id       TEXT NOT NULL,
  run_id        TEXT NOT NULL,
  rubric_id     BIGINT NULL,
  shape         TEXT NOT NULL,
  overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  report_url    TEXT NOT NULL DEFAULT '',
  result_json   JSONB NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_user_created ON essay_feedback (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_run ON essay_feedback (run_id)`,
	`
CREATE TABLE IF NOT EXISTS essay_run_failures (
  id           BIGSERIAL PRIMARY KEY,
  user_id      TEXT NOT NULL,
  run_id       TEXT NOT NULL,
  kind         TEXT NOT NULL,
  message      TEXT NOT NULL,
  details_json JSONB NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_failures_run ON essay_run_failures (user_id, run_id, created_at DESC)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
