package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"positionmonitor/src/cache"
	"positionmonitor/src/metrics"
	"positionmonitor/src/model"
	"positionmonitor/src/monitor"
	"positionmonitor/src/reconciler"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type positionLoader interface {
	FindByStatuses(ctx context.Context, statuses []model.PositionStatus) ([]model.Position, error)
	FindByID(ctx context.Context, id uint) (*model.Position, error)
}

type evaluator interface {
	Evaluate(ctx context.Context, p model.Position) monitor.StepResult
}

type confirmer interface {
	Reconcile(ctx context.Context, p model.Position) reconciler.Result
}

type lockAcquirer interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type hotkeyRefresher interface {
	Refresh(ctx context.Context) error
}

type trailingCleaner interface {
	DeleteTrailing(ctx context.Context, positionID uint) error
}

// Scheduler drives the monitor and reconcile loops over a bounded worker pool.
type Scheduler struct {
	Positions  positionLoader
	Monitor    evaluator
	Reconciler confirmer
	// Optional collaborators; nil disables them.
	Locks    lockAcquirer
	Hotkeys  hotkeyRefresher
	Trailing trailingCleaner

	cfg    Config
	locker *KeyedLocker
	log    *logger.Entry
}

func NewScheduler(cfg Config, positions positionLoader, mon evaluator, rec confirmer) *Scheduler {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}
	return &Scheduler{
		Positions:  positions,
		Monitor:    mon,
		Reconciler: rec,
		cfg:        cfg,
		locker:     NewKeyedLocker(),
		log:        logger.WithField("component", "scheduler"),
	}
}

// StartLoop runs both loops until ctx is cancelled.
func (s *Scheduler) StartLoop(ctx context.Context) error {
	if s.cfg.MonitorPeriod <= 0 || s.cfg.ReconcilePeriod <= 0 {
		return errors.New("monitor and reconcile periods must be positive")
	}
	if s.Locks != nil && s.cfg.LockTTL <= 0 {
		return errors.New("lock ttl must be positive")
	}

	if s.Hotkeys != nil {
		if err := s.Hotkeys.Refresh(ctx); err != nil {
			s.log.WithError(err).Warn("Initial hotkey refresh failed")
		}
	}

	s.log.WithFields(map[string]interface{}{
		"monitor_period":   s.cfg.MonitorPeriod,
		"reconcile_period": s.cfg.ReconcilePeriod,
		"workers":          s.cfg.WorkerPoolSize,
		"distributed":      s.Locks != nil,
		"lock_ttl":         s.cfg.LockTTL,
	}).Info("Scheduler started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.every(ctx, s.cfg.MonitorPeriod, s.MonitorTick)
		return nil
	})
	g.Go(func() error {
		s.every(ctx, s.cfg.ReconcilePeriod, s.ReconcileTick)
		return nil
	})
	if s.Hotkeys != nil && s.cfg.HotkeyRefreshPeriod > 0 {
		g.Go(func() error {
			s.every(ctx, s.cfg.HotkeyRefreshPeriod, func(ctx context.Context) {
				if err := s.Hotkeys.Refresh(ctx); err != nil {
					s.log.WithError(err).Warn("Hotkey refresh failed")
				}
			})
			return nil
		})
	}

	err := g.Wait()
	s.log.Info("Scheduler stopped")
	return err
}

func (s *Scheduler) every(ctx context.Context, period time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// MonitorTick evaluates every OPEN, ADJUST_PROCESSING and PENDING position once.
func (s *Scheduler) MonitorTick(ctx context.Context) {
	s.fanOut(ctx, "monitor", model.MonitoredStatuses, func(ctx context.Context, p model.Position) {
		s.Monitor.Evaluate(ctx, p)
	})
}

// ReconcileTick sweeps every position awaiting venue confirmation once.
func (s *Scheduler) ReconcileTick(ctx context.Context) {
	s.fanOut(ctx, "reconcile", model.ProcessingStatuses, func(ctx context.Context, p model.Position) {
		res := s.Reconciler.Reconcile(ctx, p)
		if s.Trailing == nil || !finalized(res) {
			return
		}
		if err := s.Trailing.DeleteTrailing(ctx, p.ID); err != nil {
			s.log.WithError(err).WithField("position_id", p.ID).Warn("Failed to drop trailing snapshot")
		}
	})
}

func finalized(res reconciler.Result) bool {
	switch res.Outcome {
	case reconciler.OutcomeForced:
		return true
	case reconciler.OutcomeConfirmed:
		return res.Confirmation.Kind == reconciler.KindClose
	default:
		return false
	}
}

func (s *Scheduler) fanOut(ctx context.Context, loop string, statuses []model.PositionStatus, work func(context.Context, model.Position)) {
	start := time.Now()
	defer func() {
		metrics.TickDuration.WithLabelValues(loop).Observe(time.Since(start).Seconds())
	}()

	positions, err := s.Positions.FindByStatuses(ctx, statuses)
	if err != nil {
		s.log.WithError(err).WithField("loop", loop).Error("Failed to load positions")
		return
	}
	if len(positions) == 0 {
		return
	}

	s.log.WithFields(map[string]interface{}{
		"loop":      loop,
		"positions": len(positions),
	}).Debug("Tick")

	var g errgroup.Group
	g.SetLimit(s.cfg.WorkerPoolSize)

	for _, p := range positions {
		p := p
		g.Go(func() error {
			s.withPositionLock(ctx, loop, p.ID, func() {
				fresh, ok := s.reload(ctx, loop, p)
				if !ok {
					return
				}
				work(ctx, fresh)
			})
			return nil
		})
	}
	_ = g.Wait()
}

// reload re-reads a position once its lock is held. Rows another writer moved
// to a different status since the tick loaded them are skipped.
func (s *Scheduler) reload(ctx context.Context, loop string, p model.Position) (model.Position, bool) {
	entry := s.log.WithFields(map[string]interface{}{
		"loop":        loop,
		"position_id": p.ID,
	})

	fresh, err := s.Positions.FindByID(ctx, p.ID)
	if err != nil {
		entry.WithError(err).Warn("Failed to reload position")
		return model.Position{}, false
	}
	if fresh == nil || fresh.Status != p.Status {
		entry.Debug("Position changed since tick start, skipping")
		return model.Position{}, false
	}
	return *fresh, true
}

// PositionLockKey is the distributed lock key shared by every writer of a position.
func PositionLockKey(id uint) string {
	return fmt.Sprintf("position:%d", id)
}

// withPositionLock runs fn only if no other worker, here or in another
// process sharing the redis lock, is handling the position.
func (s *Scheduler) withPositionLock(ctx context.Context, loop string, id uint, fn func()) {
	entry := s.log.WithFields(map[string]interface{}{
		"loop":        loop,
		"position_id": id,
	})

	release, ok := s.locker.TryLock(id)
	if !ok {
		entry.Debug("Position busy, skipping this tick")
		return
	}
	defer release()

	if s.Locks != nil {
		unlock, err := s.Locks.Acquire(ctx, PositionLockKey(id), s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				entry.Debug("Position locked by another process")
			} else {
				entry.WithError(err).Warn("Failed to acquire position lock")
			}
			return
		}
		defer unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			entry.WithError(fmt.Errorf("%+v", r)).Error("Position worker panicked")
		}
	}()

	fn()
}
