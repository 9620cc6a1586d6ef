package feedback

import "context"

// Repository port for persisting and querying feedback
type Repository interface {
	Save(ctx context.Context, f *Feedback) error
	Paginate(ctx context.Context, userID string, page, pageSize int) ([]*Feedback, error)
	LatestByRun(ctx context.Context, userID string, runID string) (*Feedback, error)
	Count(ctx context.Context, userID string) (int64, error)
}
