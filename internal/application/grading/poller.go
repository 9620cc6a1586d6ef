package grading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/essay-coach-gateway/internal/application"
	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
)

const (
	// PollInterval is the fixed wait between two status queries.
	PollInterval = 2000 * time.Millisecond
	// PollTimeout bounds a run from submission to terminal state.
	PollTimeout = 300000 * time.Millisecond
)

// ObserveFunc receives a copy of the run after every status change or
// progress update.
type ObserveFunc func(run domain.WorkflowRun)

// Poller drives one WorkflowRun from running to a terminal state.
// A Poller holds no per-run state and can serve many runs, one loop each.
type Poller struct {
	Engine   domain.Engine
	Clock    application.Clock
	Interval time.Duration
	Timeout  time.Duration
	Log      *logrus.Entry
}

// NewPoller with the fixed interval and timeout.
func NewPoller(engine domain.Engine, clock application.Clock, log *logrus.Entry) *Poller {
	return &Poller{
		Engine:   engine,
		Clock:    clock,
		Interval: PollInterval,
		Timeout:  PollTimeout,
		Log:      log,
	}
}

// Poll queries the engine until run is terminal, the timeout elapses, or ctx
// is cancelled. The first query fires immediately and the next one is only
// scheduled after the previous response arrived, so queries never overlap.
//
// On success it returns the final engine response. Every failure comes back
// as a *domain.RunError except cancellation, which returns ctx.Err() and
// leaves the run running.
func (p *Poller) Poll(ctx context.Context, run *domain.WorkflowRun, observe ObserveFunc) (domain.StatusResponse, error) {
	if run.Status != domain.StatusRunning {
		return domain.StatusResponse{}, fmt.Errorf("%w: cannot poll run in %s", domain.ErrInvalidTransition, run.Status)
	}
	if observe == nil {
		observe = func(domain.WorkflowRun) {}
	}
	log := p.logger().WithField("run_id", run.ID)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("polling cancelled")
			return domain.StatusResponse{}, ctx.Err()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return domain.StatusResponse{}, ctx.Err()
		}

		elapsed := application.Since(p.Clock, run.StartedAt)
		if elapsed > p.Timeout {
			return domain.StatusResponse{}, p.fail(run, observe, domain.FailureTimeout, domain.TimeoutMessage, nil)
		}

		// a hung query must not outlive the run's deadline
		qctx, cancel := context.WithTimeout(ctx, p.Timeout-elapsed)
		resp, err := p.Engine.Status(qctx, run.ID)
		qerr := qctx.Err()
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Debug("polling cancelled during status query")
				return domain.StatusResponse{}, ctx.Err()
			}
			if errors.Is(qerr, context.DeadlineExceeded) {
				return domain.StatusResponse{}, p.fail(run, observe, domain.FailureTimeout, domain.TimeoutMessage, err)
			}
			return domain.StatusResponse{}, p.fail(run, observe, domain.FailureStatusQuery, err.Error(), err)
		}

		run.Progress = domain.EstimateProgress(elapsed, p.Timeout)

		switch resp.Status {
		case domain.EngineSucceeded:
			if err := run.Advance(domain.StatusSucceeded); err != nil {
				return resp, err
			}
			run.Progress = 100
			observe(*run)
			log.WithField("elapsed", elapsed).Info("workflow run succeeded")
			return resp, nil

		case domain.EngineFailed, domain.EngineStopped:
			msg := resp.ErrorMessage
			if msg == "" {
				msg = domain.EngineFailureMessage
			}
			return resp, p.fail(run, observe, domain.FailureEngine, msg, nil)
		}

		observe(*run)
		log.WithFields(logrus.Fields{"engine_status": resp.Status, "progress": run.Progress}).Debug("workflow run still running")
		timer.Reset(p.Interval)
	}
}

func (p *Poller) fail(run *domain.WorkflowRun, observe ObserveFunc, kind domain.FailureKind, msg string, cause error) error {
	if err := run.Advance(domain.StatusFailed); err != nil {
		return err
	}
	observe(*run)
	p.logger().WithFields(logrus.Fields{"run_id": run.ID, "kind": kind}).Warn(msg)
	return &domain.RunError{Kind: kind, RunID: run.ID, Message: msg, Err: cause}
}

func (p *Poller) logger() *logrus.Entry {
	if p.Log != nil {
		return p.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
