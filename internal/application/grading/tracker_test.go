package grading_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appgrading "github.com/bryanwahyu/essay-coach-gateway/internal/application/grading"
	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
)

type ctxKey struct{}

func TestTracker_StartAndFinish(t *testing.T) {
	f := newServiceFixture(&scriptedEngine{submitID: "run-1", script: []statusStep{running(), succeeded(markdownOutputs)}})
	tr := appgrading.NewTracker(f.svc, 0, 0)
	defer tr.Shutdown(context.Background())

	snap, err := tr.Start(context.Background(), essay())
	require.NoError(t, err)
	assert.Equal(t, domain.RunID("run-1"), snap.RunID)
	assert.Equal(t, domain.StatusRunning, snap.Status)

	require.Eventually(t, func() bool {
		s, err := tr.Get("run-1")
		return err == nil && s.Status == domain.StatusSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	s, err := tr.Get("run-1")
	require.NoError(t, err)
	require.NotNil(t, s.Output)
	assert.Equal(t, 78.0, s.Output.OverallScore)
	assert.Equal(t, 100.0, s.Progress)
	assert.Equal(t, 0, tr.Active())
}

func TestTracker_FailureSnapshot(t *testing.T) {
	f := newServiceFixture(&scriptedEngine{submitID: "run-1", script: []statusStep{{resp: domain.StatusResponse{Status: domain.EngineStopped}}}})
	tr := appgrading.NewTracker(f.svc, 0, 0)
	defer tr.Shutdown(context.Background())

	_, err := tr.Start(context.Background(), essay())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := tr.Get("run-1")
		return err == nil && s.Status == domain.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	s, _ := tr.Get("run-1")
	assert.Equal(t, domain.FailureEngine, s.ErrorKind)
	assert.Equal(t, domain.EngineFailureMessage, s.Error)
	assert.Nil(t, s.Output)
}

func TestTracker_OneLoopPerRun(t *testing.T) {
	f := newServiceFixture(&scriptedEngine{script: []statusStep{running()}})
	tr := appgrading.NewTracker(f.svc, 0, 0)
	defer tr.Shutdown(context.Background())

	run := &domain.WorkflowRun{ID: "run-1", Status: domain.StatusRunning, StartedAt: time.Now()}
	require.NoError(t, tr.Watch(context.Background(), run))

	dup := &domain.WorkflowRun{ID: "run-1", Status: domain.StatusRunning, StartedAt: time.Now()}
	assert.ErrorIs(t, tr.Watch(context.Background(), dup), domain.ErrAlreadyTracked)
	assert.Equal(t, 1, tr.Active())
}

func TestTracker_CancelDropsRun(t *testing.T) {
	f := newServiceFixture(&scriptedEngine{script: []statusStep{running()}})
	tr := appgrading.NewTracker(f.svc, 0, 0)
	defer tr.Shutdown(context.Background())

	run := &domain.WorkflowRun{ID: "run-1", Status: domain.StatusRunning, StartedAt: time.Now()}
	require.NoError(t, tr.Watch(context.Background(), run))
	require.NoError(t, tr.Cancel("run-1"))

	require.Eventually(t, func() bool { return tr.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
	calls := f.engine.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, f.engine.Calls())

	_, err := tr.Get("run-1")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
	assert.ErrorIs(t, tr.Cancel("run-1"), domain.ErrRunNotFound)
	// nothing is recorded for a cancelled run
	assert.Empty(t, f.failures.kinds())
}

func TestTracker_LoopKeepsContextValues(t *testing.T) {
	seen := make(chan any, 1)
	engine := &scriptedEngine{script: []statusStep{succeeded(markdownOutputs)}}
	engine.onStatus = func(ctx context.Context, call int) error {
		if call == 1 {
			seen <- ctx.Value(ctxKey{})
		}
		return nil
	}
	f := newServiceFixture(engine)
	tr := appgrading.NewTracker(f.svc, 0, 0)
	defer tr.Shutdown(context.Background())

	reqCtx, cancelReq := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "token-abc"))
	run := &domain.WorkflowRun{ID: "run-1", Status: domain.StatusRunning, StartedAt: time.Now()}
	require.NoError(t, tr.Watch(reqCtx, run))
	// the request finishing must not stop the loop
	cancelReq()

	select {
	case v := <-seen:
		assert.Equal(t, "token-abc", v)
	case <-time.After(2 * time.Second):
		t.Fatal("status never queried")
	}
	require.Eventually(t, func() bool {
		s, err := tr.Get("run-1")
		return err == nil && s.Status == domain.StatusSucceeded
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTracker_GetUnknown(t *testing.T) {
	tr := appgrading.NewTracker(newServiceFixture(&scriptedEngine{}).svc, 0, 0)
	_, err := tr.Get("nope")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestTracker_Shutdown(t *testing.T) {
	f := newServiceFixture(&scriptedEngine{script: []statusStep{running()}})
	tr := appgrading.NewTracker(f.svc, 0, 0)
	run := &domain.WorkflowRun{ID: "run-1", Status: domain.StatusRunning, StartedAt: time.Now()}
	require.NoError(t, tr.Watch(context.Background(), run))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Shutdown(ctx))
	assert.Equal(t, 0, tr.Active())
	assert.Error(t, tr.Watch(context.Background(), &domain.WorkflowRun{ID: "run-2", Status: domain.StatusRunning}))
}

func TestTracker_CancelReleasesRunningMetric(t *testing.T) {
	f := newServiceFixture(&scriptedEngine{submitID: "run-1", script: []statusStep{running()}})
	tr := appgrading.NewTracker(f.svc, 0, 0)
	defer tr.Shutdown(context.Background())

	_, err := tr.Start(context.Background(), essay())
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.open())

	require.NoError(t, tr.Cancel("run-1"))
	require.Eventually(t, func() bool { return tr.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.metrics.open())
	assert.Empty(t, f.metrics.finished)
}

func TestTracker_ShutdownReleasesRunningMetric(t *testing.T) {
	f := newServiceFixture(&scriptedEngine{submitID: "run-1", script: []statusStep{running()}})
	tr := appgrading.NewTracker(f.svc, 0, 0)

	_, err := tr.Start(context.Background(), essay())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Shutdown(ctx))
	assert.Equal(t, 0, f.metrics.open())
}

func TestTracker_UntrackedSubmitReleasesRunningMetric(t *testing.T) {
	// the engine hands out the same run id twice
	f := newServiceFixture(&scriptedEngine{submitID: "run-1", script: []statusStep{running()}})
	tr := appgrading.NewTracker(f.svc, 0, 0)
	defer tr.Shutdown(context.Background())

	_, err := tr.Start(context.Background(), essay())
	require.NoError(t, err)
	_, err = tr.Start(context.Background(), essay())
	assert.ErrorIs(t, err, domain.ErrAlreadyTracked)

	assert.Equal(t, int32(2), f.metrics.submitted)
	assert.Equal(t, int32(1), f.metrics.cancelled)
	assert.Equal(t, 1, f.metrics.open())
	assert.Equal(t, 1, tr.Active())
}
