// Package reconciler resolves positions waiting on asynchronous venue
// confirmation, escalating to a forced close once the window expires.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"positionmonitor/src/metrics"
	"positionmonitor/src/model"
	"positionmonitor/src/repository"

	logger "github.com/sirupsen/logrus"
)

type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeWaiting   Outcome = "waiting"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeForced    Outcome = "forced"
	OutcomeConflict  Outcome = "conflict"
	OutcomeFailed    Outcome = "failed"
)

type Result struct {
	PositionID   uint
	Confirmation Confirmation
	Outcome      Outcome
	Err          error
}

type Reconciler struct {
	deps Deps
	cfg  Config
	now  func() time.Time
	log  *logger.Entry
}

func New(deps Deps, cfg Config) *Reconciler {
	return &Reconciler{
		deps: deps,
		cfg:  cfg,
		now:  time.Now,
		log:  logger.WithField("component", "reconciler"),
	}
}

// Reconcile advances one processing position. Anything else is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, p model.Position) Result {
	conf, ok := ConfirmationFor(p, r.cfg)
	if !ok {
		return Result{PositionID: p.ID, Outcome: OutcomeSkipped}
	}

	snap, err := r.venue(ctx, p)
	if err != nil {
		// network failures count as no data; only the deadline may act
		r.log.WithError(err).WithField("position_id", p.ID).Warn("Venue fetch failed during reconcile")
		snap = model.VenuePosition{}
	}

	var res Result
	switch conf.Kind {
	case KindOpen:
		res = r.reconcileOpen(ctx, p, conf, snap)
	case KindAdjust:
		res = r.reconcileAdjust(ctx, p, conf, snap)
	case KindClose:
		res = r.reconcileClose(ctx, p, conf, snap)
	}
	res.PositionID = p.ID
	res.Confirmation = conf

	metrics.ObserveEvaluation("reconcile", string(res.Outcome))
	r.logResult(p, res)
	return res
}

func (r *Reconciler) reconcileOpen(ctx context.Context, p model.Position, conf Confirmation, snap model.VenuePosition) Result {
	if snap.Price != 0 {
		fields := map[string]interface{}{
			"entry_price":         snap.Price,
			"order_level":         snap.FillCount,
			"average_entry_price": snap.AvgEntryPrice,
		}
		if p.VenuePositionID == "" && snap.UUID != "" {
			fields["venue_position_id"] = snap.UUID
		}
		if res, ok := r.transition(ctx, p, model.PositionStatusOpen, fields); !ok {
			return res
		}
		r.notify(ctx, p, model.NotificationEventOpened, fmt.Sprintf(
			"%s %s opened at %v (leverage %v)", p.OrderType, p.TradePair, snap.Price, p.Leverage,
		))
		return Result{Outcome: OutcomeConfirmed}
	}

	if !conf.Expired(r.now()) {
		return Result{Outcome: OutcomeWaiting}
	}
	return r.forceClose(ctx, p, 0, "open was never confirmed")
}

func (r *Reconciler) reconcileAdjust(ctx context.Context, p model.Position, conf Confirmation, snap model.VenuePosition) Result {
	if snap.Price != 0 && snap.FillCount > p.OrderLevel {
		fields := map[string]interface{}{
			"order_level":         snap.FillCount,
			"average_entry_price": snap.AvgEntryPrice,
			"max_profit_loss":     math.Max(p.MaxProfitLoss, snap.ProfitLoss),
		}
		if res, ok := r.transition(ctx, p, model.PositionStatusOpen, fields); !ok {
			return res
		}
		r.notify(ctx, p, model.NotificationEventAdjusted, fmt.Sprintf(
			"%s %s adjustment filled (fill %d, average entry %v)", p.OrderType, p.TradePair, snap.FillCount, snap.AvgEntryPrice,
		))
		return Result{Outcome: OutcomeConfirmed}
	}

	if !conf.Expired(r.now()) {
		return Result{Outcome: OutcomeWaiting}
	}
	return r.forceClose(ctx, p, snap.Price, "adjustment was never confirmed")
}

func (r *Reconciler) reconcileClose(ctx context.Context, p model.Position, conf Confirmation, snap model.VenuePosition) Result {
	if snap.Price != 0 && snap.FillCount > p.OrderLevel {
		fields := map[string]interface{}{
			"close_price":                   snap.Price,
			"order_level":                   snap.FillCount,
			"profit_loss":                   snap.ProfitLoss,
			"profit_loss_without_fee":       snap.ProfitLossNoFee,
			"venue_profit_loss":             snap.ProfitLoss,
			"venue_profit_loss_without_fee": snap.ProfitLossNoFee,
			"venue_return":                  snap.VenueReturn,
			"venue_return_without_fee":      snap.VenueReturnNoFee,
		}
		if snap.ProfitLoss > p.MaxProfitLoss {
			fields["max_profit_loss"] = snap.ProfitLoss
		}
		if res, ok := r.transition(ctx, p, model.PositionStatusClosed, fields); !ok {
			return res
		}
		r.notify(ctx, p, model.NotificationEventClosed, fmt.Sprintf(
			"%s %s closed at %v: profit/loss %.4f%%", p.OrderType, p.TradePair, snap.Price, snap.ProfitLoss,
		))
		return Result{Outcome: OutcomeConfirmed}
	}

	if !conf.Expired(r.now()) {
		return Result{Outcome: OutcomeWaiting}
	}

	closePrice := p.ClosePrice
	if snap.Price != 0 {
		closePrice = snap.Price
	}
	return r.forceClose(ctx, p, closePrice, "close was never confirmed")
}

// forceClose sends FLAT and finalizes the position as CLOSED whether or not
// the dispatch succeeded.
func (r *Reconciler) forceClose(ctx context.Context, p model.Position, closePrice float64, reason string) Result {
	if !r.deps.Dispatcher.CloseAll(ctx, p.TraderID, p.TradePair) {
		r.log.WithFields(map[string]interface{}{
			"position_id": p.ID,
			"trade_pair":  p.TradePair,
		}).Warn("Defensive FLAT failed, finalizing anyway")
	}

	fields := map[string]interface{}{
		"close_price": closePrice,
		"close_time":  r.now(),
	}
	if res, ok := r.transition(ctx, p, model.PositionStatusClosed, fields); !ok {
		return res
	}

	r.notify(ctx, p, model.NotificationEventForceClosed, fmt.Sprintf(
		"%s %s force closed: %s", p.OrderType, p.TradePair, reason,
	))
	return Result{Outcome: OutcomeForced}
}

func (r *Reconciler) transition(ctx context.Context, p model.Position, to model.PositionStatus, fields map[string]interface{}) (Result, bool) {
	err := r.deps.Positions.Transition(ctx, p.ID, p.Status, to, fields)
	switch {
	case err == nil:
		metrics.ObserveTransition(string(p.Status), string(to))
		return Result{}, true
	case errors.Is(err, repository.ErrConflict):
		return Result{Outcome: OutcomeConflict, Err: err}, false
	default:
		return Result{Outcome: OutcomeFailed, Err: err}, false
	}
}

func (r *Reconciler) venue(ctx context.Context, p model.Position) (model.VenuePosition, error) {
	if r.cfg.VenueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.VenueTimeout)
		defer cancel()
	}
	return r.deps.Venue.GetVenuePosition(ctx, p.TraderID, p.TradePair, p.VenuePositionID, p.Source)
}

func (r *Reconciler) notify(ctx context.Context, p model.Position, event, message string) {
	if r.deps.Notifier == nil {
		return
	}
	r.deps.Notifier.Record(ctx, p.TraderID, p.TradePair, p.ID, event, message)
}

func (r *Reconciler) logResult(p model.Position, res Result) {
	entry := r.log.WithFields(map[string]interface{}{
		"position_id": p.ID,
		"status":      p.Status,
		"kind":        res.Confirmation.Kind,
		"deadline":    res.Confirmation.Deadline,
		"outcome":     res.Outcome,
	})
	if res.Err != nil {
		entry = entry.WithError(res.Err)
	}

	switch res.Outcome {
	case OutcomeFailed:
		entry.Error("Reconcile failed")
	case OutcomeConflict:
		entry.Warn("Reconcile aborted")
	case OutcomeConfirmed, OutcomeForced:
		entry.Info("Position reconciled")
	default:
		entry.Debug("Position still waiting")
	}
}
