package runfailures

import "context"

// Repository defines persistence for run failures
type Repository interface {
	Save(ctx context.Context, f *RunFailure) error
	ListByRun(ctx context.Context, userID string, runID string, limit int) ([]*RunFailure, error)
}
