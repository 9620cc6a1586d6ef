package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/essay-coach-gateway/internal/application"
	"github.com/bryanwahyu/essay-coach-gateway/internal/domain/feedback"
	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
	"github.com/bryanwahyu/essay-coach-gateway/internal/domain/runfailures"
)

// Metrics receives run lifecycle events
type Metrics interface {
	RunSubmitted()
	RunFinished(status domain.Status, kind domain.FailureKind)
	// RunCancelled: a submitted run nobody polls anymore, without an outcome
	RunCancelled()
}

// Service implements use-cases untuk grading run: submit, poll, adapt.
// Feedback, Failures, Reports and Metrics are optional.
// Service is safe for concurrent use; every run gets its own poll loop.
type Service struct {
	Engine   domain.Engine
	Adapter  *domain.Adapter
	Feedback feedback.Repository
	Failures runfailures.Repository
	Reports  domain.ReportStore
	Metrics  Metrics
	Clock    application.Clock
	Log      *logrus.Entry

	PollInterval time.Duration
	PollTimeout  time.Duration
}

//
// ==== USE CASES ====
//

// SubmitEssayCommand input untuk submit essay
type SubmitEssayCommand struct {
	EssayQuestion string `json:"essay_question" validate:"required,max=4000"`
	EssayContent  string `json:"essay_content" validate:"required,max=100000"`
	Language      string `json:"language" validate:"omitempty,max=64"`
	ResponseMode  string `json:"response_mode" validate:"omitempty,oneof=blocking streaming"`
	UserID        string `json:"user_id" validate:"omitempty,max=128"`
	RubricID      *int   `json:"rubric_id" validate:"omitempty,gt=0"`
}

func (c SubmitEssayCommand) request() domain.SubmitRequest {
	return domain.SubmitRequest{
		EssayQuestion: c.EssayQuestion,
		EssayContent:  c.EssayContent,
		Language:      c.Language,
		ResponseMode:  c.ResponseMode,
		UserID:        c.UserID,
		RubricID:      c.RubricID,
	}.WithDefaults()
}

// Submit issues exactly one start-analysis request. On any failure no run is
// returned, so a failed submission never yields a run id.
func (s *Service) Submit(ctx context.Context, cmd SubmitEssayCommand) (*domain.WorkflowRun, error) {
	req := cmd.request()
	run := &domain.WorkflowRun{
		UserID:    req.UserID,
		RubricID:  req.RubricID,
		Status:    domain.StatusSubmitting,
		StartedAt: s.clock().Now(),
	}

	resp, err := s.Engine.Submit(ctx, req)
	if err != nil {
		return nil, s.submissionFailed(req.UserID, err.Error(), err)
	}
	if resp.WorkflowRunID == "" {
		return nil, s.submissionFailed(req.UserID, "engine returned no workflow_run_id", nil)
	}

	run.ID = domain.RunID(resp.WorkflowRunID)
	if err := run.Advance(domain.StatusRunning); err != nil {
		return nil, err
	}
	if s.Metrics != nil {
		s.Metrics.RunSubmitted()
	}
	s.logger().WithFields(logrus.Fields{
		"run_id":  run.ID,
		"user_id": run.UserID,
		"task_id": resp.TaskID,
	}).Info("workflow run submitted")
	return run, nil
}

// Await polls run to completion and adapts the engine output.
// Cancellation returns ctx.Err(); no failure is recorded, the run is only
// released from the metrics.
func (s *Service) Await(ctx context.Context, run *domain.WorkflowRun, observe ObserveFunc) (domain.AnalysisOutput, error) {
	resp, err := s.poller().Poll(ctx, run, observe)
	if err != nil {
		if re, ok := domain.AsRunError(err); ok {
			s.recordFailure(run, re)
		} else if ctx.Err() != nil {
			s.release(run)
		}
		return domain.AnalysisOutput{}, err
	}
	return s.finish(ctx, run, resp)
}

// Analyze is Submit followed by Await, for callers that block until done.
func (s *Service) Analyze(ctx context.Context, cmd SubmitEssayCommand, observe ObserveFunc) (*domain.WorkflowRun, domain.AnalysisOutput, error) {
	run, err := s.Submit(ctx, cmd)
	if err != nil {
		return nil, domain.AnalysisOutput{}, err
	}
	if observe != nil {
		observe(*run)
	}
	out, err := s.Await(ctx, run, observe)
	return run, out, err
}

// ListFeedback ambil riwayat feedback per user
func (s *Service) ListFeedback(ctx context.Context, userID string, page, pageSize int) (*feedback.Page, error) {
	if s.Feedback == nil {
		return feedback.NewPage(nil, page, pageSize, 0), nil
	}
	total, err := s.Feedback.Count(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count feedback: %w", err)
	}
	list, err := s.Feedback.Paginate(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return feedback.NewPage(list, page, pageSize, total), nil
}

// RunHistory is what the database remembers about one run
type RunHistory struct {
	RunID    string                    `json:"run_id"`
	Feedback *feedback.Feedback        `json:"feedback,omitempty"`
	Failures []*runfailures.RunFailure `json:"failures"`
}

// History looks up stored feedback and failure entries of a run, after the
// tracker has already forgotten it. ErrRunNotFound when neither exists.
func (s *Service) History(ctx context.Context, userID string, id domain.RunID) (*RunHistory, error) {
	h := &RunHistory{RunID: string(id), Failures: []*runfailures.RunFailure{}}
	if s.Feedback != nil {
		f, err := s.Feedback.LatestByRun(ctx, userID, string(id))
		if err != nil {
			return nil, fmt.Errorf("latest feedback: %w", err)
		}
		h.Feedback = f
	}
	if s.Failures != nil {
		list, err := s.Failures.ListByRun(ctx, userID, string(id), 50)
		if err != nil {
			return nil, fmt.Errorf("list run failures: %w", err)
		}
		if list != nil {
			h.Failures = list
		}
	}
	if h.Feedback == nil && len(h.Failures) == 0 {
		return nil, domain.ErrRunNotFound
	}
	return h, nil
}

func (s *Service) finish(ctx context.Context, run *domain.WorkflowRun, resp domain.StatusResponse) (domain.AnalysisOutput, error) {
	adapter := s.Adapter
	if adapter == nil {
		adapter = domain.NewAdapter()
	}
	out, shape, err := adapter.Adapt(resp.Outputs)
	if err != nil {
		re := &domain.RunError{Kind: domain.FailureUnparseable, RunID: run.ID, Message: err.Error(), Err: err}
		s.recordFailure(run, re)
		return domain.AnalysisOutput{}, re
	}

	log := s.logger().WithFields(logrus.Fields{"run_id": run.ID, "shape": shape.String()})

	if out.Report != "" && s.Reports != nil {
		key := fmt.Sprintf("%s/%s.md", run.UserID, run.ID)
		url, err := s.Reports.PutReport(ctx, key, out.Report)
		if err != nil {
			// laporan gagal diarsip, hasil tetap dikembalikan
			log.WithError(err).Warn("failed to archive markdown report")
		} else {
			out.ReportURL = url
		}
	}

	if s.Feedback != nil {
		if err := s.saveFeedback(ctx, run, shape, out); err != nil {
			log.WithError(err).Warn("failed to store feedback")
		}
	}
	if s.Metrics != nil {
		s.Metrics.RunFinished(domain.StatusSucceeded, "")
	}
	log.WithField("overall_score", out.OverallScore).Info("analysis ready")
	return out, nil
}

func (s *Service) saveFeedback(ctx context.Context, run *domain.WorkflowRun, shape domain.Shape, out domain.AnalysisOutput) error {
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal analysis output: %w", err)
	}
	return s.Feedback.Save(ctx, &feedback.Feedback{
		ID:           feedback.FeedbackID(uuid.New().String()),
		UserID:       run.UserID,
		RunID:        string(run.ID),
		RubricID:     run.RubricID,
		Shape:        shape.String(),
		OverallScore: out.OverallScore,
		ReportURL:    out.ReportURL,
		Result:       string(b),
		CreatedAt:    s.clock().Now(),
	})
}

func (s *Service) submissionFailed(userID, msg string, cause error) error {
	re := &domain.RunError{Kind: domain.FailureSubmission, Message: msg, Err: cause}
	s.logger().WithField("user_id", userID).WithError(cause).Warn("workflow submission failed")
	s.recordFailure(&domain.WorkflowRun{UserID: userID}, re)
	return re
}

func (s *Service) recordFailure(run *domain.WorkflowRun, re *domain.RunError) {
	if s.Metrics != nil {
		s.Metrics.RunFinished(domain.StatusFailed, re.Kind)
	}
	if s.Failures == nil {
		return
	}
	details := map[string]any{"status": run.Status, "progress": run.Progress}
	if re.Err != nil {
		details["cause"] = re.Err.Error()
	}
	b, _ := json.Marshal(details)

	// pakai context.Background supaya audit tetap tersimpan walau request sudah selesai
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Failures.Save(ctx, &runfailures.RunFailure{
		UserID:      run.UserID,
		RunID:       string(run.ID),
		Kind:        string(re.Kind),
		Message:     re.Message,
		DetailsJSON: string(b),
		CreatedAt:   s.clock().Now(),
	}); err != nil {
		s.logger().WithError(err).Warn("failed to record run failure")
	}
}

// release balances RunSubmitted for a run that is dropped without a result.
func (s *Service) release(run *domain.WorkflowRun) {
	if s.Metrics != nil {
		s.Metrics.RunCancelled()
	}
	s.logger().WithField("run_id", run.ID).Debug("workflow run released")
}

func (s *Service) poller() *Poller {
	p := NewPoller(s.Engine, s.clock(), s.logger())
	if s.PollInterval > 0 {
		p.Interval = s.PollInterval
	}
	if s.PollTimeout > 0 {
		p.Timeout = s.PollTimeout
	}
	return p
}

func (s *Service) clock() application.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return application.SystemClock{}
}

func (s *Service) logger() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
