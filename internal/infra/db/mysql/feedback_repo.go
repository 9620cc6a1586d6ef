package mysql

import (
	"context"
	"database/sql"
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

// Save inserts a feedback record
func (r *FeedbackRepository) Save(ctx context.Context, f *domain.Feedback) error {
	const q = `
INSERT INTO essay_feedback
  (id, user_id, run_id, rubric_id, shape, overall_score, report_url, result_json, created_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  overall_score=VALUES(overall_score), report_url=VALUES(report_url), result_json=VALUES(result_json);
`
	// Ensure non-nullable fields have safe defaults
	user := stringOrDash(f.UserID)
	shape := stringOrDash(f.Shape)
	result := f.Result
	if strings.TrimSpace(result) == "" {
		// result_json column requires valid JSON; use empty object
		result = "{}"
	}
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, q, f.ID, user, f.RunID, nullInt(f.RubricID), shape,
		f.OverallScore, f.ReportURL, result, createdAt)
	return err
}

const feedbackColumns = `id, user_id, run_id, rubric_id, shape, overall_score, report_url, result_json, created_at`

// Count returns how many feedback records a user has
func (r *FeedbackRepository) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM essay_feedback WHERE user_id=?`, userID).Scan(&n)
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
WHERE user_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
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

// LatestByRun returns the latest feedback for a given run, nil when absent
func (r *FeedbackRepository) LatestByRun(ctx context.Context, userID string, runID string) (*domain.Feedback, error) {
	q := `
SELECT ` + feedbackColumns + `
FROM essay_feedback
WHERE user_id=? AND run_id=?
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	f, err := scanFeedback(r.db.QueryRowContext(ctx, q, userID, runID))
	if err == sql.ErrNoRows {
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
	var created time.Time
	if err := row.Scan(&f.ID, &f.UserID, &f.RunID, &rubric, &f.Shape, &f.OverallScore,
		&f.ReportURL, &f.Result, &created); err != nil {
		return nil, err
	}
	if rubric.Valid {
		v := int(rubric.Int64)
		f.RubricID = &v
	}
	f.CreatedAt = created
	return &f, nil
}
