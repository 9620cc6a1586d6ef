package grading_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/essay-coach-gateway/internal/domain/feedback"
	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
	"github.com/bryanwahyu/essay-coach-gateway/internal/domain/runfailures"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedEngine answers status queries from a script; the last entry repeats.
type scriptedEngine struct {
	mu        sync.Mutex
	submitID  string
	submitErr error
	submitted []domain.SubmitRequest

	script   []statusStep
	calls    int32
	inFlight int32
	maxIn    int32
	onStatus func(ctx context.Context, call int) error
}

type statusStep struct {
	resp domain.StatusResponse
	err  error
}

func running() statusStep {
	return statusStep{resp: domain.StatusResponse{Status: domain.EngineRunning}}
}

func succeeded(outputs string) statusStep {
	return statusStep{resp: domain.StatusResponse{Status: domain.EngineSucceeded, Outputs: domain.RawEngineOutput(outputs)}}
}

func (e *scriptedEngine) Submit(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted = append(e.submitted, req)
	if e.submitErr != nil {
		return domain.SubmitResponse{}, e.submitErr
	}
	return domain.SubmitResponse{WorkflowRunID: e.submitID, TaskID: "task-" + e.submitID}, nil
}

func (e *scriptedEngine) Status(ctx context.Context, id domain.RunID) (domain.StatusResponse, error) {
	n := atomic.AddInt32(&e.inFlight, 1)
	defer atomic.AddInt32(&e.inFlight, -1)
	for {
		m := atomic.LoadInt32(&e.maxIn)
		if n <= m || atomic.CompareAndSwapInt32(&e.maxIn, m, n) {
			break
		}
	}
	call := int(atomic.AddInt32(&e.calls, 1))
	if e.onStatus != nil {
		if err := e.onStatus(ctx, call); err != nil {
			return domain.StatusResponse{}, err
		}
	}
	if len(e.script) == 0 {
		return domain.StatusResponse{}, errors.New("empty script")
	}
	step := e.script[len(e.script)-1]
	if call <= len(e.script) {
		step = e.script[call-1]
	}
	step.resp.WorkflowRunID = string(id)
	return step.resp, step.err
}

func (e *scriptedEngine) Calls() int { return int(atomic.LoadInt32(&e.calls)) }

type memFeedback struct {
	mu    sync.Mutex
	saved []*feedback.Feedback
}

func (m *memFeedback) Save(_ context.Context, f *feedback.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, f)
	return nil
}

func (m *memFeedback) Paginate(_ context.Context, userID string, page, pageSize int) ([]*feedback.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*feedback.Feedback
	for _, f := range m.saved {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	start := (page - 1) * pageSize
	if start >= len(out) {
		return []*feedback.Feedback{}, nil
	}
	end := start + pageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (m *memFeedback) LatestByRun(_ context.Context, userID, runID string) (*feedback.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].UserID == userID && m.saved[i].RunID == runID {
			return m.saved[i], nil
		}
	}
	return nil, nil
}

func (m *memFeedback) Count(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, f := range m.saved {
		if f.UserID == userID {
			n++
		}
	}
	return n, nil
}

type memFailures struct {
	mu    sync.Mutex
	saved []*runfailures.RunFailure
}

func (m *memFailures) Save(_ context.Context, f *runfailures.RunFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, f)
	return nil
}

func (m *memFailures) ListByRun(_ context.Context, userID, runID string, _ int) ([]*runfailures.RunFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*runfailures.RunFailure
	for _, f := range m.saved {
		if f.UserID == userID && f.RunID == runID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFailures) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.saved))
	for _, f := range m.saved {
		out = append(out, f.Kind)
	}
	return out
}

type memReports struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *memReports) PutReport(_ context.Context, key, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.keys = append(m.keys, key)
	return "http://minio.local/reports/" + key, nil
}

type countingMetrics struct {
	submitted int32
	cancelled int32
	mu        sync.Mutex
	finished  []string
}

func (m *countingMetrics) RunSubmitted() { atomic.AddInt32(&m.submitted, 1) }

func (m *countingMetrics) RunCancelled() { atomic.AddInt32(&m.cancelled, 1) }

// open is the number of submitted runs without a finish or cancel event.
func (m *countingMetrics) open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int(atomic.LoadInt32(&m.submitted)) - int(atomic.LoadInt32(&m.cancelled))
	for _, f := range m.finished {
		if f != "failed/submission" {
			n--
		}
	}
	return n
}

func (m *countingMetrics) RunFinished(status domain.Status, kind domain.FailureKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, string(status)+"/"+string(kind))
}
