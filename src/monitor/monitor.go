// Package monitor evaluates OPEN, ADJUST_PROCESSING and PENDING positions once
// per tick: trailing ratchets, close decisions and limit-order triggers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"positionmonitor/src/metrics"
	"positionmonitor/src/model"
	"positionmonitor/src/repository"
	"positionmonitor/src/tp_sl"

	logger "github.com/sirupsen/logrus"
)

var errInvalidPosition = errors.New("invalid position terms")

// Monitor is the position state machine.
type Monitor struct {
	deps Deps
	cfg  Config
	now  func() time.Time
	log  *logger.Entry
}

func New(deps Deps, cfg Config) *Monitor {
	return &Monitor{
		deps: deps,
		cfg:  cfg,
		now:  time.Now,
		log:  logger.WithField("component", "monitor"),
	}
}

// Evaluate runs one tick for a single position.
func (m *Monitor) Evaluate(ctx context.Context, p model.Position) StepResult {
	var res StepResult

	invalidErr := validate(p)
	switch {
	case invalidErr != nil:
		res = m.invalid(ctx, p, invalidErr)
	case p.Status == model.PositionStatusOpen || p.Status == model.PositionStatusAdjustProcessing:
		res = m.evaluateOpen(ctx, p)
	case p.Status == model.PositionStatusPending:
		res = m.evaluatePending(ctx, p)
	default:
		res = skipped(p.ID, fmt.Sprintf("status %s is not monitored", p.Status))
	}

	metrics.ObserveEvaluation("monitor", string(res.Outcome))
	m.logResult(p, res)
	return res
}

func validate(p model.Position) error {
	if !p.OrderType.Valid() || p.OrderType == model.OrderTypeFlat {
		return fmt.Errorf("%w: order_type %q", errInvalidPosition, p.OrderType)
	}
	if p.Leverage <= 0 || math.IsNaN(p.Leverage) {
		return fmt.Errorf("%w: leverage %v", errInvalidPosition, p.Leverage)
	}
	return nil
}

func (m *Monitor) invalid(ctx context.Context, p model.Position, err error) StepResult {
	if m.deps.Exceptions != nil {
		m.deps.Exceptions.Capture(ctx, repository.ExceptionContext{
			Service:    "monitor",
			Module:     "state_machine",
			Method:     "Evaluate",
			PositionID: p.ID,
			TraderID:   p.TraderID,
			TradePair:  p.TradePair,
			Extra: map[string]interface{}{
				"status":     p.Status,
				"order_type": p.OrderType,
				"leverage":   p.Leverage,
			},
		}, err)
	}
	return StepResult{PositionID: p.ID, Outcome: OutcomeInvalid, Reason: "invalid terms", Err: err}
}

// evaluateOpen handles OPEN and ADJUST_PROCESSING positions.
func (m *Monitor) evaluateOpen(ctx context.Context, p model.Position) StepResult {
	adjusted := false

	// 1. trailing stop ratchet, persisted before any close decision
	if p.Trailing && p.StopLoss != 0 {
		q, err := m.quote(ctx, p.TradePair)
		if err != nil {
			return StepResult{PositionID: p.ID, Outcome: OutcomeSkipped, Reason: "quote fetch failed", Err: err}
		}

		if q.Available() {
			newEntry, newSL, moved := tp_sl.TrailStopLoss(p.OrderType, p.EntryPrice, p.StopLoss, q.Bid, q.Ask)
			if moved {
				if res, ok := m.persistTrailingStop(ctx, &p, newEntry, newSL); !ok {
					return res
				}
				adjusted = true
			}
		}
	}

	// 2. authoritative venue snapshot
	snap, err := m.venue(ctx, p)
	if err != nil {
		return m.abortOnVenue(p, adjusted, "venue fetch failed", err)
	}
	if !snap.Available() {
		return m.abortOnVenue(p, adjusted, "venue snapshot unavailable", nil)
	}

	// 3. static thresholds against the venue profit/loss
	pl := snap.ProfitLoss
	closeTP := tp_sl.CloseOnTakeProfit(p.Trailing && !m.cfg.TrailingKeepsTakeProfit, pl, p.CumulativeTakeProfit)
	closeSL := tp_sl.CloseOnStopLoss(p.Trailing, pl, p.CumulativeStopLoss)

	maxPL := math.Max(p.MaxProfitLoss, pl)
	fields := venueFields(snap, maxPL)
	if p.VenuePositionID == "" && snap.UUID != "" {
		fields["venue_position_id"] = snap.UUID
	}

	// 4a. refresh
	if !closeTP && !closeSL {
		// ADJUST_PROCESSING keeps its order_level as the reconciler's confirmation baseline
		if p.Status == model.PositionStatusOpen && snap.FillCount > p.OrderLevel {
			fields["order_level"] = snap.FillCount
		}
		if err := m.deps.Positions.UpdateFields(ctx, p.ID, p.Status, fields); err != nil {
			return m.persistFailure(p, err)
		}
		out := OutcomeRefreshed
		if adjusted {
			out = OutcomeAdjusted
		}
		return StepResult{PositionID: p.ID, Outcome: out}
	}

	// 4b. close
	reason := "stop loss"
	if closeTP {
		reason = "take profit"
	}

	if !m.deps.Dispatcher.CloseAll(ctx, p.TraderID, p.TradePair) {
		return StepResult{PositionID: p.ID, Outcome: OutcomeFailed, Reason: "close dispatch failed"}
	}

	fields["close_price"] = snap.Price
	fields["close_time"] = m.now()
	fields["order_level"] = closeBaseline(p, snap)
	if err := m.deps.Positions.Transition(ctx, p.ID, p.Status, model.PositionStatusCloseProcessing, fields); err != nil {
		return m.persistFailure(p, err)
	}
	metrics.ObserveTransition(string(p.Status), string(model.PositionStatusCloseProcessing))

	m.notify(ctx, p, model.NotificationEventClosing, fmt.Sprintf(
		"%s %s closing on %s: profit/loss %.4f%% at %v",
		p.OrderType, p.TradePair, reason, pl, snap.Price,
	))

	return StepResult{PositionID: p.ID, Outcome: OutcomeClosed, Reason: reason}
}

// closeBaseline is the fill count the reconciler must see exceeded before it
// accepts a close. An adjustment still in flight counts as one pending fill.
func closeBaseline(p model.Position, snap model.VenuePosition) int {
	baseline := snap.FillCount
	if p.Status == model.PositionStatusAdjustProcessing && baseline <= p.OrderLevel {
		baseline = p.OrderLevel + 1
	}
	return baseline
}

func (m *Monitor) persistTrailingStop(ctx context.Context, p *model.Position, entry, stopLoss float64) (StepResult, bool) {
	fields := map[string]interface{}{
		"entry_price":          entry,
		"stop_loss":            stopLoss,
		"cumulative_stop_loss": stopLoss,
	}
	if err := m.deps.Positions.UpdateFields(ctx, p.ID, p.Status, fields); err != nil {
		return m.persistFailure(*p, err), false
	}

	p.EntryPrice = entry
	p.StopLoss = stopLoss
	p.CumulativeStopLoss = stopLoss

	m.saveTrailing(ctx, *p)
	m.notify(ctx, *p, model.NotificationEventTrailingAdjusted, fmt.Sprintf(
		"%s %s trailing stop moved to %.4f%% (entry %v)",
		p.OrderType, p.TradePair, stopLoss, entry,
	))

	return StepResult{}, true
}

// evaluatePending handles limit orders waiting for their entry price.
func (m *Monitor) evaluatePending(ctx context.Context, p model.Position) StepResult {
	q, err := m.quote(ctx, p.TradePair)
	if err != nil {
		return StepResult{PositionID: p.ID, Outcome: OutcomeSkipped, Reason: "quote fetch failed", Err: err}
	}
	if !q.Available() {
		return skipped(p.ID, "quote unavailable")
	}

	adjusted := false
	if p.Trailing && p.LimitOrder != 0 && p.InitialPrice != 0 {
		newEntry, newInitial, moved := tp_sl.TrailLimitEntry(p.OrderType, p.EntryPrice, p.InitialPrice, p.LimitOrder, q.Bid, q.Ask)
		if moved {
			fields := map[string]interface{}{
				"entry_price":   newEntry,
				"initial_price": newInitial,
			}
			if err := m.deps.Positions.UpdateFields(ctx, p.ID, p.Status, fields); err != nil {
				return m.persistFailure(p, err)
			}
			p.EntryPrice = newEntry
			p.InitialPrice = newInitial
			m.saveTrailing(ctx, p)
			adjusted = true
		}
	}

	fill, triggered := tp_sl.LimitTriggered(p.OrderType, p.EntryPrice, q.Bid, q.Ask)
	if !triggered {
		if adjusted {
			return StepResult{PositionID: p.ID, Outcome: OutcomeAdjusted, Reason: "limit entry trailed"}
		}
		return skipped(p.ID, "limit not reached")
	}

	if !m.deps.Dispatcher.Submit(ctx, p.TraderID, p.TradePair, p.OrderType, p.Leverage) {
		return StepResult{PositionID: p.ID, Outcome: OutcomeFailed, Reason: "open dispatch failed"}
	}

	fields := map[string]interface{}{
		"entry_price": fill,
		"open_time":   m.now(),
	}
	if err := m.deps.Positions.Transition(ctx, p.ID, model.PositionStatusPending, model.PositionStatusProcessing, fields); err != nil {
		return m.persistFailure(p, err)
	}
	metrics.ObserveTransition(string(model.PositionStatusPending), string(model.PositionStatusProcessing))

	m.notify(ctx, p, model.NotificationEventLimitTriggered, fmt.Sprintf(
		"%s %s limit triggered at %v (leverage %v)",
		p.OrderType, p.TradePair, fill, p.Leverage,
	))

	return StepResult{PositionID: p.ID, Outcome: OutcomeTriggered}
}

func venueFields(snap model.VenuePosition, maxPL float64) map[string]interface{} {
	return map[string]interface{}{
		"profit_loss":                   snap.ProfitLoss,
		"profit_loss_without_fee":       snap.ProfitLossNoFee,
		"venue_profit_loss":             snap.ProfitLoss,
		"venue_profit_loss_without_fee": snap.ProfitLossNoFee,
		"venue_return":                  snap.VenueReturn,
		"venue_return_without_fee":      snap.VenueReturnNoFee,
		"average_entry_price":           snap.AvgEntryPrice,
		"max_profit_loss":               maxPL,
	}
}

func (m *Monitor) abortOnVenue(p model.Position, adjusted bool, reason string, err error) StepResult {
	if adjusted {
		return StepResult{PositionID: p.ID, Outcome: OutcomeAdjusted, Reason: reason, Err: err}
	}
	return StepResult{PositionID: p.ID, Outcome: OutcomeSkipped, Reason: reason, Err: err}
}

func (m *Monitor) persistFailure(p model.Position, err error) StepResult {
	if errors.Is(err, repository.ErrConflict) {
		return StepResult{PositionID: p.ID, Outcome: OutcomeConflict, Reason: "position changed underneath", Err: err}
	}
	return StepResult{PositionID: p.ID, Outcome: OutcomeFailed, Reason: "persist failed", Err: err}
}

func (m *Monitor) quote(ctx context.Context, tradePair string) (model.Quote, error) {
	if m.cfg.QuoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.QuoteTimeout)
		defer cancel()
	}
	return m.deps.Quotes.GetBidAsk(ctx, tradePair)
}

func (m *Monitor) venue(ctx context.Context, p model.Position) (model.VenuePosition, error) {
	if m.cfg.VenueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.VenueTimeout)
		defer cancel()
	}
	return m.deps.Venue.GetVenuePosition(ctx, p.TraderID, p.TradePair, p.VenuePositionID, p.Source)
}

func (m *Monitor) saveTrailing(ctx context.Context, p model.Position) {
	if m.deps.Trailing == nil {
		return
	}
	snap := model.TrailingSnapshot{
		EntryPrice:   p.EntryPrice,
		StopLoss:     p.StopLoss,
		InitialPrice: p.InitialPrice,
		At:           m.now(),
	}
	if err := m.deps.Trailing.SaveTrailing(ctx, p.ID, snap); err != nil {
		m.log.WithError(err).WithField("position_id", p.ID).Warn("Failed to cache trailing snapshot")
	}
}

func (m *Monitor) notify(ctx context.Context, p model.Position, event, message string) {
	if m.deps.Notifier == nil {
		return
	}
	m.deps.Notifier.Record(ctx, p.TraderID, p.TradePair, p.ID, event, message)
}

func (m *Monitor) logResult(p model.Position, res StepResult) {
	entry := m.log.WithFields(map[string]interface{}{
		"position_id": p.ID,
		"trader_id":   p.TraderID,
		"trade_pair":  p.TradePair,
		"status":      p.Status,
		"outcome":     res.Outcome,
		"reason":      res.Reason,
	})
	if res.Err != nil {
		entry = entry.WithError(res.Err)
	}

	switch res.Outcome {
	case OutcomeConflict:
		entry.Warn("Evaluation aborted")
	case OutcomeFailed, OutcomeInvalid:
		entry.Error("Evaluation failed")
	case OutcomeClosed, OutcomeTriggered:
		entry.Info("Position transitioned")
	default:
		entry.Debug("Position evaluated")
	}
}
