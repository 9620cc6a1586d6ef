package grading

import "encoding/json"

const (
	ResponseModeBlocking  = "blocking"
	ResponseModeStreaming = "streaming"

	DefaultLanguage = "English"
	AnonymousUser   = "anonymous-student"
)

// SubmitRequest body of the "start analysis" call
type SubmitRequest struct {
	EssayQuestion string `json:"essay_question"`
	EssayContent  string `json:"essay_content"`
	Language      string `json:"language"`
	ResponseMode  string `json:"response_mode"`
	UserID        string `json:"user_id"`
	RubricID      *int   `json:"rubric_id,omitempty"`
}

// WithDefaults fills the optional fields the way the dashboard does.
func (r SubmitRequest) WithDefaults() SubmitRequest {
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.ResponseMode == "" {
		r.ResponseMode = ResponseModeBlocking
	}
	if r.UserID == "" {
		r.UserID = AnonymousUser
	}
	return r
}

// SubmitResponse hasil dari engine setelah submit
type SubmitResponse struct {
	WorkflowRunID string          `json:"workflow_run_id"`
	TaskID        string          `json:"task_id"`
	Status        string          `json:"status"`
	Data          json.RawMessage `json:"data,omitempty"`
	Inputs        json.RawMessage `json:"inputs,omitempty"`
	ResponseMode  string          `json:"response_mode"`
}

// EngineStatus as reported by the engine, a superset of Status
type EngineStatus string

const (
	EngineRunning   EngineStatus = "running"
	EngineSucceeded EngineStatus = "succeeded"
	EngineFailed    EngineStatus = "failed"
	EngineStopped   EngineStatus = "stopped"
)

// StatusResponse body of a status query
type StatusResponse struct {
	WorkflowRunID      string           `json:"workflow_run_id"`
	TaskID             string           `json:"task_id"`
	Status             EngineStatus     `json:"status"`
	Outputs            RawEngineOutput  `json:"outputs,omitempty"`
	ErrorMessage       string           `json:"error_message,omitempty"`
	ElapsedTimeSeconds *float64         `json:"elapsed_time_seconds,omitempty"`
	TokenUsage         map[string]int64 `json:"token_usage,omitempty"`
}

// RawEngineOutput untrusted outputs payload, consumed once by Adapt
type RawEngineOutput json.RawMessage

// MarshalJSON keeps the payload verbatim.
func (o RawEngineOutput) MarshalJSON() ([]byte, error) {
	if len(o) == 0 {
		return []byte("null"), nil
	}
	return o, nil
}

// UnmarshalJSON stores a copy of the payload.
func (o *RawEngineOutput) UnmarshalJSON(b []byte) error {
	*o = append((*o)[:0], b...)
	return nil
}

// Present reports whether the engine sent an outputs object at all.
func (o RawEngineOutput) Present() bool {
	s := string(o)
	return len(s) > 0 && s != "null"
}
