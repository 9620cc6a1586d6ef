package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/feedback"
)

type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Save inserts or updates a feedback record
func (r *FeedbackRepository) Save(ctx context.Context, f *domain.Feedback) error {
	const q = `
INSERT INTO essay_feedback
  (id, user_id, run_id, rubric_id, shape, overall_score, report_url, result_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  overall_score=EXCLUDED.overall_score,
  report_url=EXCLUDED.report_url,
  result_json=EXCLUDED.result_json;
`
	result := f.Result
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, f.ID, stringOrDash(f.UserID), f.RunID, nullInt(f.RubricID),
		stringOrDash(f.Shape), f.OverallScore, f.ReportURL, result, createdAt)
	return err
}

const feedbackColumns = `id, user_id, run_id, rubric_id, shape, overall_score, report_url, result_json, created_at`

// Count returns how many feedback records a user has
func (r *FeedbackRepository) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM essay_feedback WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}

// Paginate returns a page of feedback records ordered by created_at desc
func (r *FeedbackRepository) Paginate(ctx context.Context, userID string, page, pageSize int) ([]*domain.Feedback, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	q := `
SELECT ` + feedbackColumns + `
FROM essay_feedback
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.db.QueryContext(ctx, q, userID, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Feedback{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LatestByRun returns the latest feedback for a given run
func (r *FeedbackRepository) LatestByRun(ctx context.Context, userID string, runID string) (*domain.Feedback, error) {
	q := `
SELECT ` + feedbackColumns + `
FROM essay_feedback
WHERE user_id=$1 AND run_id=$2
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	f, err := scanFeedback(r.db.QueryRowContext(ctx, q, userID, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedback(row rowScanner) (*domain.Feedback, error) {
	var f domain.Feedback
	var rubric sql.NullInt64
	if err := row.Scan(&f.ID, &f.UserID, &f.RunID, &rubric, &f.Shape, &f.OverallScore,
		&f.ReportURL, &f.Result, &f.CreatedAt); err != nil {
		return nil, err
	}
	if rubric.Valid {
		v := int(rubric.Int64)
		f.RubricID = &v
	}
	return &f, nil
}
