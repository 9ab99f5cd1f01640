package executors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"positionmonitor/src/cache"
	"positionmonitor/src/model"
	"positionmonitor/src/monitor"
	"positionmonitor/src/reconciler"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLoader struct {
	positions []model.Position
	err       error
	statuses  [][]model.PositionStatus
	// current overrides what FindByID returns, simulating writes after the tick loaded its rows
	current map[uint]*model.Position
	mu      sync.Mutex
}

func (l *staticLoader) FindByStatuses(_ context.Context, statuses []model.PositionStatus) ([]model.Position, error) {
	l.mu.Lock()
	l.statuses = append(l.statuses, statuses)
	l.mu.Unlock()
	return l.positions, l.err
}

func (l *staticLoader) FindByID(_ context.Context, id uint) (*model.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.current[id]; ok {
		return p, nil
	}
	for _, p := range l.positions {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

type countingEvaluator struct {
	mu        sync.Mutex
	seen      map[uint]int
	evaluated map[uint]model.Position
}

func (e *countingEvaluator) Evaluate(_ context.Context, p model.Position) monitor.StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seen == nil {
		e.seen = map[uint]int{}
		e.evaluated = map[uint]model.Position{}
	}
	e.seen[p.ID]++
	e.evaluated[p.ID] = p
	return monitor.StepResult{PositionID: p.ID, Outcome: monitor.OutcomeRefreshed}
}

type scriptedConfirmer struct {
	results map[uint]reconciler.Result
}

func (c *scriptedConfirmer) Reconcile(_ context.Context, p model.Position) reconciler.Result {
	return c.results[p.ID]
}

type trailingSpy struct {
	mu      sync.Mutex
	deleted []uint
}

func (t *trailingSpy) DeleteTrailing(_ context.Context, id uint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleted = append(t.deleted, id)
	return nil
}

func positions(ids ...uint) []model.Position {
	out := make([]model.Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Position{ID: id, Status: model.PositionStatusOpen})
	}
	return out
}

func TestMonitorTickEvaluatesEachPositionOnce(t *testing.T) {
	loader := &staticLoader{positions: positions(1, 2, 3, 4, 5)}
	eval := &countingEvaluator{}
	s := NewScheduler(Config{WorkerPoolSize: 2}, loader, eval, &scriptedConfirmer{})

	s.MonitorTick(context.Background())

	assert.Equal(t, map[uint]int{1: 1, 2: 1, 3: 1, 4: 1, 5: 1}, eval.seen)
	require.Len(t, loader.statuses, 1)
	assert.Equal(t, model.MonitoredStatuses, loader.statuses[0])
}

func TestMonitorTickLoadErrorEvaluatesNothing(t *testing.T) {
	loader := &staticLoader{positions: positions(1), err: errors.New("db down")}
	eval := &countingEvaluator{}
	s := NewScheduler(Config{WorkerPoolSize: 2}, loader, eval, &scriptedConfirmer{})

	s.MonitorTick(context.Background())

	assert.Empty(t, eval.seen)
}

func TestBusyPositionIsSkipped(t *testing.T) {
	loader := &staticLoader{positions: positions(9)}
	eval := &countingEvaluator{}
	s := NewScheduler(Config{WorkerPoolSize: 4}, loader, eval, &scriptedConfirmer{})

	release, ok := s.locker.TryLock(9)
	require.True(t, ok)

	s.MonitorTick(context.Background())
	assert.Empty(t, eval.seen)

	release()
	s.MonitorTick(context.Background())
	assert.Equal(t, 1, eval.seen[9])
}

func TestMonitorTickEvaluatesRowReadUnderLock(t *testing.T) {
	loader := &staticLoader{
		positions: []model.Position{
			{ID: 1, Status: model.PositionStatusOpen, StopLoss: 5},
			{ID: 2, Status: model.PositionStatusOpen, StopLoss: 5},
			{ID: 3, Status: model.PositionStatusOpen, StopLoss: 5},
		},
		current: map[uint]*model.Position{
			// stop loss edited after the tick listed the row
			1: {ID: 1, Status: model.PositionStatusOpen, StopLoss: 2},
			// closed after the tick listed the row
			2: {ID: 2, Status: model.PositionStatusCloseProcessing, StopLoss: 5},
			// deleted
			3: nil,
		},
	}
	eval := &countingEvaluator{}
	s := NewScheduler(Config{WorkerPoolSize: 2}, loader, eval, &scriptedConfirmer{})

	s.MonitorTick(context.Background())

	assert.Equal(t, map[uint]int{1: 1}, eval.seen)
	assert.Equal(t, 2.0, eval.evaluated[1].StopLoss)
}

func TestStartLoopRejectsZeroLockTTL(t *testing.T) {
	s := NewScheduler(Config{MonitorPeriod: time.Second, ReconcilePeriod: time.Second}, &staticLoader{}, &countingEvaluator{}, &scriptedConfirmer{})
	s.Locks = &cache.LockManager{}
	assert.Error(t, s.StartLoop(context.Background()))
}

func TestKeyedLockerTryLock(t *testing.T) {
	l := NewKeyedLocker()

	release, ok := l.TryLock(1)
	require.True(t, ok)

	_, ok = l.TryLock(1)
	assert.False(t, ok)

	other, ok := l.TryLock(2)
	require.True(t, ok)
	other()

	release()
	release()

	again, ok := l.TryLock(1)
	require.True(t, ok)
	again()
}

func TestDistributedLockHeldElsewhereSkips(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := cache.New(context.Background(), cache.Config{RedisAddr: mr.Addr(), RedisPoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	locks := cache.NewLockManager(client)
	unlock, err := locks.Acquire(context.Background(), PositionLockKey(3), time.Minute)
	require.NoError(t, err)

	loader := &staticLoader{positions: positions(3, 4)}
	eval := &countingEvaluator{}
	s := NewScheduler(Config{WorkerPoolSize: 2, LockTTL: time.Minute}, loader, eval, &scriptedConfirmer{})
	s.Locks = locks

	s.MonitorTick(context.Background())
	assert.Equal(t, map[uint]int{4: 1}, eval.seen)
	assert.False(t, mr.Exists("lock:position:4"))

	unlock()
	s.MonitorTick(context.Background())
	assert.Equal(t, 1, eval.seen[3])
}

func TestReconcileTickDropsTrailingForFinalizedPositions(t *testing.T) {
	loader := &staticLoader{positions: positions(1, 2, 3, 4)}
	conf := &scriptedConfirmer{results: map[uint]reconciler.Result{
		1: {Outcome: reconciler.OutcomeForced, Confirmation: reconciler.Confirmation{Kind: reconciler.KindOpen}},
		2: {Outcome: reconciler.OutcomeConfirmed, Confirmation: reconciler.Confirmation{Kind: reconciler.KindOpen}},
		3: {Outcome: reconciler.OutcomeConfirmed, Confirmation: reconciler.Confirmation{Kind: reconciler.KindClose}},
		4: {Outcome: reconciler.OutcomeWaiting, Confirmation: reconciler.Confirmation{Kind: reconciler.KindClose}},
	}}
	spy := &trailingSpy{}
	s := NewScheduler(Config{WorkerPoolSize: 1}, loader, &countingEvaluator{}, conf)
	s.Trailing = spy

	s.ReconcileTick(context.Background())

	assert.ElementsMatch(t, []uint{1, 3}, spy.deleted)
	require.Len(t, loader.statuses, 1)
	assert.Equal(t, model.ProcessingStatuses, loader.statuses[0])
}

func TestStartLoopRejectsZeroPeriods(t *testing.T) {
	s := NewScheduler(Config{}, &staticLoader{}, &countingEvaluator{}, &scriptedConfirmer{})
	assert.Error(t, s.StartLoop(context.Background()))
}

func TestStartLoopStopsOnCancel(t *testing.T) {
	loader := &staticLoader{positions: positions(1)}
	eval := &countingEvaluator{}
	s := NewScheduler(Config{
		MonitorPeriod:   10 * time.Millisecond,
		ReconcilePeriod: time.Hour,
		WorkerPoolSize:  1,
	}, loader, eval, &scriptedConfirmer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.StartLoop(ctx) }()

	require.Eventually(t, func() bool {
		eval.mu.Lock()
		defer eval.mu.Unlock()
		return eval.seen[1] > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
