package monitor

import (
	"context"
	"errors"
	"fmt"

	"positionmonitor/src/metrics"
	"positionmonitor/src/model"
	"positionmonitor/src/pnl"
	"positionmonitor/src/repository"
)

var (
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrVenueUnavailable = errors.New("venue position unavailable")
	ErrDispatchFailed   = errors.New("signal dispatch failed")
	ErrNotAdjustable    = errors.New("position cannot be adjusted in its current status")
	ErrNotClosable      = errors.New("position cannot be closed in its current status")
)

// Adjustment is a trader-requested change to an OPEN position. Nil fields
// are left as they are.
type Adjustment struct {
	StopLoss   *float64
	TakeProfit *float64
	// Leverage added on the position's side. Zero changes nothing.
	Leverage float64
}

// ManualClose closes a position on request. Pending limit orders are dropped
// without touching the venue.
func (m *Monitor) ManualClose(ctx context.Context, id uint) error {
	p, err := m.load(ctx, id)
	if err != nil {
		return err
	}

	switch p.Status {
	case model.PositionStatusPending:
		fields := map[string]interface{}{"close_time": m.now()}
		if err := m.deps.Positions.Transition(ctx, p.ID, p.Status, model.PositionStatusClosed, fields); err != nil {
			return fmt.Errorf("close pending position %d: %w", p.ID, err)
		}
		metrics.ObserveTransition(string(p.Status), string(model.PositionStatusClosed))
		m.notify(ctx, *p, model.NotificationEventClosed, fmt.Sprintf(
			"%s %s limit order cancelled", p.OrderType, p.TradePair,
		))
		return nil

	case model.PositionStatusOpen, model.PositionStatusAdjustProcessing:
	default:
		return fmt.Errorf("%w: %s", ErrNotClosable, p.Status)
	}

	q, err := m.quote(ctx, p.TradePair)
	if err != nil {
		return fmt.Errorf("fetch quote for %s: %w", p.TradePair, err)
	}
	if !q.Available() {
		return fmt.Errorf("%w: %s", ErrQuoteUnavailable, p.TradePair)
	}

	price := q.Bid
	if p.OrderType == model.OrderTypeSell {
		price = q.Ask
	}
	pl := pnl.ProfitLoss(p.EntryPrice, price, p.Leverage, p.OrderType, p.AssetType)
	plNoFee := pnl.ProfitLossWithoutFee(p.EntryPrice, price, p.Leverage, p.OrderType, p.AssetType)

	// the fill count before FLAT is what the reconciler confirms against
	snap, err := m.venue(ctx, *p)
	if err != nil {
		return fmt.Errorf("fetch venue position %d: %w", p.ID, err)
	}
	if !snap.Available() {
		return fmt.Errorf("%w: position %d", ErrVenueUnavailable, p.ID)
	}

	if !m.deps.Dispatcher.CloseAll(ctx, p.TraderID, p.TradePair) {
		return ErrDispatchFailed
	}

	fields := map[string]interface{}{
		"close_price":             price,
		"close_time":              m.now(),
		"profit_loss":             pl,
		"profit_loss_without_fee": plNoFee,
		"order_level":             closeBaseline(*p, snap),
	}
	if pl > p.MaxProfitLoss {
		fields["max_profit_loss"] = pl
	}
	if err := m.deps.Positions.Transition(ctx, p.ID, p.Status, model.PositionStatusCloseProcessing, fields); err != nil {
		return fmt.Errorf("close position %d: %w", p.ID, err)
	}
	metrics.ObserveTransition(string(p.Status), string(model.PositionStatusCloseProcessing))

	m.notify(ctx, *p, model.NotificationEventClosing, fmt.Sprintf(
		"%s %s closing on request: profit/loss %.4f%% at %v",
		p.OrderType, p.TradePair, pl, price,
	))
	return nil
}

// ManualAdjust applies new risk terms and, for a leverage increase, sends the
// additional order and waits for the reconciler to confirm it.
func (m *Monitor) ManualAdjust(ctx context.Context, id uint, adj Adjustment) error {
	if adj.Leverage < 0 {
		return fmt.Errorf("leverage delta must not be negative: %v", adj.Leverage)
	}

	p, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != model.PositionStatusOpen {
		return fmt.Errorf("%w: %s", ErrNotAdjustable, p.Status)
	}

	fields := map[string]interface{}{}
	if adj.StopLoss != nil {
		fields["stop_loss"] = *adj.StopLoss
		fields["cumulative_stop_loss"] = *adj.StopLoss
	}
	if adj.TakeProfit != nil {
		fields["take_profit"] = *adj.TakeProfit
		fields["cumulative_take_profit"] = *adj.TakeProfit
	}

	if adj.Leverage == 0 {
		if len(fields) == 0 {
			return nil
		}
		if err := m.deps.Positions.UpdateFields(ctx, p.ID, p.Status, fields); err != nil {
			return fmt.Errorf("adjust position %d: %w", p.ID, err)
		}
		m.notify(ctx, *p, model.NotificationEventAdjusted, adjustMessage(*p, adj))
		return nil
	}

	if !m.deps.Dispatcher.Submit(ctx, p.TraderID, p.TradePair, p.OrderType, adj.Leverage) {
		return ErrDispatchFailed
	}

	fields["leverage"] = p.Leverage + adj.Leverage
	fields["adjust_time"] = m.now()
	if err := m.deps.Positions.Transition(ctx, p.ID, p.Status, model.PositionStatusAdjustProcessing, fields); err != nil {
		return fmt.Errorf("adjust position %d: %w", p.ID, err)
	}
	metrics.ObserveTransition(string(p.Status), string(model.PositionStatusAdjustProcessing))

	m.notify(ctx, *p, model.NotificationEventAdjustRequested, adjustMessage(*p, adj))
	return nil
}

func (m *Monitor) load(ctx context.Context, id uint) (*model.Position, error) {
	p, err := m.deps.Positions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load position %d: %w", id, err)
	}
	if p == nil {
		return nil, fmt.Errorf("position %d: %w", id, repository.ErrNotFound)
	}
	return p, nil
}

func adjustMessage(p model.Position, adj Adjustment) string {
	msg := fmt.Sprintf("%s %s adjusted:", p.OrderType, p.TradePair)
	if adj.StopLoss != nil {
		msg += fmt.Sprintf(" stop loss %.4f%%", *adj.StopLoss)
	}
	if adj.TakeProfit != nil {
		msg += fmt.Sprintf(" take profit %.4f%%", *adj.TakeProfit)
	}
	if adj.Leverage > 0 {
		msg += fmt.Sprintf(" leverage +%v", adj.Leverage)
	}
	return msg
}
