package grading

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
)

const (
	DefaultFinishedSize = 1024
	DefaultFinishedTTL  = 10 * time.Minute
)

// Snapshot is what a caller sees of a tracked run
type Snapshot struct {
	RunID     domain.RunID           `json:"run_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Status    domain.Status          `json:"status"`
	StartedAt time.Time              `json:"started_at"`
	Progress  float64                `json:"progress"`
	Output    *domain.AnalysisOutput `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorKind domain.FailureKind     `json:"error_kind,omitempty"`
}

func snapshotOf(run domain.WorkflowRun) Snapshot {
	return Snapshot{
		RunID:     run.ID,
		UserID:    run.UserID,
		Status:    run.Status,
		StartedAt: run.StartedAt,
		Progress:  run.Progress,
	}
}

type trackedRun struct {
	mu     sync.RWMutex
	snap   Snapshot
	cancel context.CancelFunc
}

func (t *trackedRun) set(run domain.WorkflowRun) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Status = run.Status
	t.snap.Progress = run.Progress
}

func (t *trackedRun) get() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Tracker runs poll loops in the background for the HTTP API. It guarantees
// one loop per run id; finished snapshots stay readable until they expire.
type Tracker struct {
	svc *Service

	mu       sync.Mutex
	active   map[domain.RunID]*trackedRun
	finished *expirable.LRU[domain.RunID, Snapshot]

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewTracker; size/ttl <= 0 fall back to defaults.
func NewTracker(svc *Service, size int, ttl time.Duration) *Tracker {
	if size <= 0 {
		size = DefaultFinishedSize
	}
	if ttl <= 0 {
		ttl = DefaultFinishedTTL
	}
	base, stop := context.WithCancel(context.Background())
	return &Tracker{
		svc:      svc,
		active:   make(map[domain.RunID]*trackedRun),
		finished: expirable.NewLRU[domain.RunID, Snapshot](size, nil, ttl),
		base:     base,
		stop:     stop,
	}
}

// Start submits the essay and begins tracking the new run. The poll loop keeps
// the values of ctx (caller credential) but not its cancellation.
func (t *Tracker) Start(ctx context.Context, cmd SubmitEssayCommand) (Snapshot, error) {
	run, err := t.svc.Submit(ctx, cmd)
	if err != nil {
		return Snapshot{}, err
	}
	snap := snapshotOf(*run)
	if err := t.Watch(ctx, run); err != nil {
		// the engine keeps working on it, but nobody will collect the result
		t.svc.logger().WithFields(logrus.Fields{
			"run_id":  run.ID,
			"user_id": run.UserID,
		}).WithError(err).Warn("submitted run not tracked, engine job orphaned")
		t.svc.release(run)
		return Snapshot{}, err
	}
	return snap, nil
}

// Watch starts the poll loop for an already submitted run. Only values of ctx
// are used; the loop ends on Cancel, Shutdown or a terminal state.
func (t *Tracker) Watch(ctx context.Context, run *domain.WorkflowRun) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.base.Err() != nil {
		return errors.New("tracker is shut down")
	}
	if _, ok := t.active[run.ID]; ok {
		return domain.ErrAlreadyTracked
	}
	if t.finished.Contains(run.ID) {
		return domain.ErrAlreadyTracked
	}

	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopWithBase := context.AfterFunc(t.base, cancel)
	tr := &trackedRun{snap: snapshotOf(*run), cancel: cancel}
	t.active[run.ID] = tr

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer stopWithBase()
		defer cancel()
		out, err := t.svc.Await(lctx, run, tr.set)
		t.complete(run.ID, tr, *run, out, err)
	}()
	return nil
}

func (t *Tracker) complete(id domain.RunID, tr *trackedRun, run domain.WorkflowRun, out domain.AnalysisOutput, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, id)

	// cancelled runs are dropped, nobody is observing them anymore
	if errors.Is(err, context.Canceled) {
		return
	}

	snap := tr.get()
	snap.Status = run.Status
	snap.Progress = run.Progress
	switch re, ok := domain.AsRunError(err); {
	case err == nil:
		snap.Output = &out
	case ok:
		snap.Status = domain.StatusFailed
		snap.Error = re.Message
		snap.ErrorKind = re.Kind
	default:
		snap.Status = domain.StatusFailed
		snap.Error = err.Error()
	}
	t.finished.Add(id, snap)
}

// Get returns the latest snapshot of a run.
func (t *Tracker) Get(id domain.RunID) (Snapshot, error) {
	t.mu.Lock()
	tr, ok := t.active[id]
	t.mu.Unlock()
	if ok {
		return tr.get(), nil
	}
	if snap, ok := t.finished.Get(id); ok {
		return snap, nil
	}
	return Snapshot{}, domain.ErrRunNotFound
}

// Cancel stops observing a running run. No status query fires afterwards.
func (t *Tracker) Cancel(id domain.RunID) error {
	t.mu.Lock()
	tr, ok := t.active[id]
	t.mu.Unlock()
	if !ok {
		if t.finished.Remove(id) {
			return nil
		}
		return domain.ErrRunNotFound
	}
	tr.cancel()
	return nil
}

// Active number of runs currently polled.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Shutdown cancels every loop and waits for them or ctx.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.stop()
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
