package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS essay_feedback (
  id            VARCHAR(64)  NOT NULL PRIMARY KEY,
  user_id       VARCHAR(128) NOT NULL,
  run_id        VARCHAR(128) NOT NULL,
  rubric_id     BIGINT       NULL,
  shape         VARCHAR(32)  NOT NULL,
  overall_score DOUBLE       NOT NULL DEFAULT 0,
  report_url    VARCHAR(512) NOT NULL DEFAULT '',
  result_json   JSON         NOT NULL,
  created_at    DATETIME(3)  NOT NULL,
  KEY idx_feedback_user_created (user_id, created_at),
  KEY idx_feedback_run (run_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS essay_run_failures (
  id           BIGINT AUTO_INCREMENT PRIMARY KEY,
  user_id      VARCHAR(128) NOT NULL,
  run_id       VARCHAR(128) NOT NULL,
  kind         VARCHAR(32)  NOT NULL,
  message      TEXT         NOT NULL,
  details_json JSON         NOT NULL,
  created_at   DATETIME(3)  NOT NULL,
  KEY idx_failures_run (user_id, run_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql migrate: %w", err)
		}
	}
	return nil
}
