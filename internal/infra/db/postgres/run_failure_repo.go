package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/runfailures"
)

type RunFailureRepository struct {
	db *sql.DB
}

func NewRunFailureRepository(db *sql.DB) *RunFailureRepository {
	return &RunFailureRepository{db: db}
}

func (r *RunFailureRepository) Save(ctx context.Context, f *domain.RunFailure) error {
	const q = `
INSERT INTO essay_run_failures
  (user_id, run_id, kind, message, details_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		stringOrDash(f.UserID), stringOrDash(f.RunID), stringOrDash(f.Kind),
		stringOrDash(f.Message), jsonOrWrapped(f.DetailsJSON), created)
	return err
}

func (r *RunFailureRepository) ListByRun(ctx context.Context, userID string, runID string, limit int) ([]*domain.RunFailure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, run_id, kind, message, details_json, created_at
FROM essay_run_failures
WHERE user_id = $1 AND run_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3;`
	rows, err := r.db.QueryContext(ctx, q, userID, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.RunFailure
	for rows.Next() {
		var f domain.RunFailure
		if err := rows.Scan(&f.ID, &f.UserID, &f.RunID, &f.Kind, &f.Message, &f.DetailsJSON, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
