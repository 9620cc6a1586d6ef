package feedback

import "time"

// FeedbackID identifier type
type FeedbackID string

// Feedback is a finished grading result stored for the student's history
type Feedback struct {
	ID           FeedbackID `json:"id"`
	UserID       string     `json:"user_id"`
	RunID        string     `json:"run_id"`
	RubricID     *int       `json:"rubric_id,omitempty"`
	Shape        string     `json:"shape"`
	OverallScore float64    `json:"overall_score"`
	ReportURL    string     `json:"report_url,omitempty"`
	Result       string     `json:"result"` // AnalysisOutput as JSON string
	CreatedAt    time.Time  `json:"created_at"`
}
