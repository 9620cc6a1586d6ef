package runfailures

import "time"

// RunFailure represents a persisted grading run failure entry
type RunFailure struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	RunID       string    `json:"run_id"`
	Kind        string    `json:"kind"` // submission | engine | timeout | unparseable | status_query
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
