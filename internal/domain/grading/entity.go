package grading

import (
	"fmt"
	"time"
)

// RunID opaque identifier assigned by the grading engine
type RunID string

// Status of a WorkflowRun as seen by this service
type Status string

const (
	StatusSubmitting Status = "submitting"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further polling happens in this status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusSubmitting:
		return 0
	case StatusRunning:
		return 1
	case StatusSucceeded, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Aggregate Root: WorkflowRun
type WorkflowRun struct {
	ID        RunID     `json:"run_id"`
	UserID    string    `json:"user_id,omitempty"`
	RubricID  *int      `json:"rubric_id,omitempty"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Progress  float64   `json:"progress"`
}

// Advance moves the run to next. Transitions only go forward and a terminal
// status is never left or re-entered.
func (r *WorkflowRun) Advance(next Status) error {
	if r.Status.Terminal() || next.rank() <= r.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// Severity tag for an Insight
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeveritySuggestion Severity = "suggestion"
	SeverityStrength   Severity = "strength"
	SeverityInfo       Severity = "info"
)

// DimensionScore value object
type DimensionScore struct {
	Category    string  `json:"category"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	Description string  `json:"description,omitempty"`
}

// Insight is one flagged issue or remark on the essay
type Insight struct {
	ID          string   `json:"id"`
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

// AnalysisOutput normalized result shown to the student
type AnalysisOutput struct {
	OverallScore    float64          `json:"overall_score"`
	DimensionScores []DimensionScore `json:"dimension_scores"`
	Insights        []Insight        `json:"insights"`
	Summary         string           `json:"summary,omitempty"`
	Report          string           `json:"report,omitempty"`
	ReportURL       string           `json:"report_url,omitempty"`
}
