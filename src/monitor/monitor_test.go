package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"positionmonitor/src/model"
	"positionmonitor/src/reconciler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatePendingBuyTriggersOnlyAtOrBelowEntry(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:  model.OrderTypeBuy,
		Leverage:   2,
		EntryPrice: 105,
		Status:     model.PositionStatusPending,
	})
	ctx := context.Background()

	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 106, Ask: 106.2}
	res := h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, model.PositionStatusPending, h.reload(t, p.ID).Status)
	assert.Empty(t, h.dispatcher.signals)

	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 104, Ask: 104.2}
	res = h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	require.Equal(t, OutcomeTriggered, res.Outcome, res.Reason)

	got := h.reload(t, p.ID)
	assert.Equal(t, model.PositionStatusProcessing, got.Status)
	assert.Equal(t, model.PositionStatusPending, got.OldStatus)
	assert.Equal(t, 104.0, got.EntryPrice)
	assert.NotNil(t, got.OpenTime)

	require.Len(t, h.dispatcher.signals, 1)
	assert.Equal(t, signal{42, "BTCUSD", model.OrderTypeBuy, 2}, h.dispatcher.signals[0])

	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, model.NotificationEventLimitTriggered, h.notifier.events[0].Event)
}

func TestEvaluatePendingSellTriggersAtOrAboveEntry(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:  model.OrderTypeSell,
		Leverage:   1,
		EntryPrice: 50,
		Status:     model.PositionStatusPending,
	})

	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 49.9, Ask: 50}
	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	require.Equal(t, OutcomeTriggered, res.Outcome)
	assert.Equal(t, 50.0, h.reload(t, p.ID).EntryPrice)
}

func TestEvaluatePendingFailedDispatchStaysPending(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:  model.OrderTypeBuy,
		Leverage:   1,
		EntryPrice: 105,
		Status:     model.PositionStatusPending,
	})
	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 100, Ask: 100.1}
	h.dispatcher.fail = true

	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, model.PositionStatusPending, h.reload(t, p.ID).Status)
	assert.Empty(t, h.notifier.events)
}

func TestEvaluatePendingZeroQuoteSkips(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:  model.OrderTypeBuy,
		Leverage:   1,
		EntryPrice: 105,
		Status:     model.PositionStatusPending,
	})
	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 0, Ask: 100}

	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Empty(t, h.dispatcher.signals)
}

func TestEvaluatePendingTrailsLimitEntry(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:    model.OrderTypeBuy,
		Leverage:     1,
		EntryPrice:   90,
		InitialPrice: 100,
		LimitOrder:   0.01,
		Trailing:     true,
		Status:       model.PositionStatusPending,
	})
	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 98, Ask: 98.1}

	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	assert.Equal(t, OutcomeAdjusted, res.Outcome)

	got := h.reload(t, p.ID)
	assert.Equal(t, model.PositionStatusPending, got.Status)
	assert.InDelta(t, 89.02, got.EntryPrice, 1e-9)
	assert.Equal(t, 98.0, got.InitialPrice)
	assert.Contains(t, h.trailing.saved, p.ID)
}

func TestEvaluateOpenSellStopLossClosesWithOneFlat(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:          model.OrderTypeSell,
		Leverage:           1,
		EntryPrice:         100,
		StopLoss:           5,
		CumulativeStopLoss: 5,
		Status:             model.PositionStatusOpen,
	})
	h.venue.snap = model.VenuePosition{Price: 106, ProfitLoss: -6, ProfitLossNoFee: -5.9, FillCount: 1, UUID: "u-1"}

	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	require.Equal(t, OutcomeClosed, res.Outcome, res.Reason)

	got := h.reload(t, p.ID)
	assert.Equal(t, model.PositionStatusCloseProcessing, got.Status)
	assert.Equal(t, model.PositionStatusOpen, got.OldStatus)
	assert.Equal(t, 106.0, got.ClosePrice)
	assert.Equal(t, -6.0, got.VenueProfitLoss)
	assert.Equal(t, "u-1", got.VenuePositionID)
	assert.NotNil(t, got.CloseTime)

	require.Len(t, h.dispatcher.signals, 1)
	assert.Equal(t, model.OrderTypeFlat, h.dispatcher.signals[0].OrderType)
	assert.Equal(t, 1.0, h.dispatcher.signals[0].Leverage)

	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, model.NotificationEventClosing, h.notifier.events[0].Event)

	// CLOSE_PROCESSING belongs to the reconciler
	res = h.monitor.Evaluate(context.Background(), got)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Len(t, h.dispatcher.signals, 1)
}

func TestEvaluateOpenTakeProfitCloses(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:            model.OrderTypeBuy,
		Leverage:             1,
		EntryPrice:           100,
		TakeProfit:           10,
		CumulativeTakeProfit: 10,
		Status:               model.PositionStatusOpen,
	})
	h.venue.snap = model.VenuePosition{Price: 110, ProfitLoss: 10}

	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	assert.Equal(t, OutcomeClosed, res.Outcome)
	assert.Equal(t, "take profit", res.Reason)
}

func TestEvaluateOpenTrailingSuppressesStaticThresholds(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:            model.OrderTypeBuy,
		Leverage:             1,
		EntryPrice:           100,
		CumulativeStopLoss:   5,
		CumulativeTakeProfit: 10,
		Trailing:             true,
		Status:               model.PositionStatusOpen,
	})
	ctx := context.Background()

	h.venue.snap = model.VenuePosition{Price: 90, ProfitLoss: -6}
	res := h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	assert.Equal(t, OutcomeRefreshed, res.Outcome)

	h.venue.snap = model.VenuePosition{Price: 120, ProfitLoss: 20}
	res = h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	assert.Equal(t, OutcomeRefreshed, res.Outcome)

	assert.Empty(t, h.dispatcher.signals)
	assert.Equal(t, model.PositionStatusOpen, h.reload(t, p.ID).Status)
}

func TestEvaluateOpenTrailingKeepsTakeProfitWhenEnabled(t *testing.T) {
	h := newHarness(t, Config{TrailingKeepsTakeProfit: true})
	p := h.create(t, model.Position{
		OrderType:            model.OrderTypeBuy,
		Leverage:             1,
		EntryPrice:           100,
		CumulativeStopLoss:   5,
		CumulativeTakeProfit: 10,
		Trailing:             true,
		Status:               model.PositionStatusOpen,
	})
	ctx := context.Background()

	h.venue.snap = model.VenuePosition{Price: 90, ProfitLoss: -6}
	assert.Equal(t, OutcomeRefreshed, h.monitor.Evaluate(ctx, h.reload(t, p.ID)).Outcome)

	h.venue.snap = model.VenuePosition{Price: 112, ProfitLoss: 12}
	assert.Equal(t, OutcomeClosed, h.monitor.Evaluate(ctx, h.reload(t, p.ID)).Outcome)
}

func TestEvaluateOpenTrailingStopRatchetsUpOnly(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:          model.OrderTypeBuy,
		Leverage:           1,
		EntryPrice:         100,
		StopLoss:           2,
		CumulativeStopLoss: 2,
		Trailing:           true,
		Status:             model.PositionStatusOpen,
	})
	ctx := context.Background()
	h.venue.snap = model.VenuePosition{Price: 110, ProfitLoss: 1}

	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 110, Ask: 110.1}
	res := h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	require.Equal(t, OutcomeAdjusted, res.Outcome, res.Reason)

	got := h.reload(t, p.ID)
	assert.Equal(t, 110.0, got.EntryPrice)
	assert.InDelta(t, 2.2, got.StopLoss, 1e-9)
	assert.InDelta(t, 2.2, got.CumulativeStopLoss, 1e-9)
	assert.Equal(t, 110.0, h.trailing.saved[p.ID].EntryPrice)
	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, model.NotificationEventTrailingAdjusted, h.notifier.events[0].Event)

	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 105, Ask: 105.1}
	res = h.monitor.Evaluate(ctx, got)
	assert.Equal(t, OutcomeRefreshed, res.Outcome)

	got = h.reload(t, p.ID)
	assert.Equal(t, 110.0, got.EntryPrice)
	assert.InDelta(t, 2.2, got.StopLoss, 1e-9)
}

func TestEvaluateOpenZeroQuoteSkipsTrailingOnly(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:  model.OrderTypeBuy,
		Leverage:   1,
		EntryPrice: 100,
		StopLoss:   2,
		Trailing:   true,
		Status:     model.PositionStatusOpen,
	})
	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 0, Ask: 0}
	h.venue.snap = model.VenuePosition{Price: 101, ProfitLoss: 0.5}

	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	assert.Equal(t, OutcomeRefreshed, res.Outcome)

	got := h.reload(t, p.ID)
	assert.Equal(t, 100.0, got.EntryPrice)
	assert.Equal(t, 0.5, got.ProfitLoss)
	assert.Empty(t, h.trailing.saved)
}

func TestEvaluateOpenQuoteErrorSkips(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:  model.OrderTypeBuy,
		Leverage:   1,
		EntryPrice: 100,
		StopLoss:   2,
		Trailing:   true,
		Status:     model.PositionStatusOpen,
	})
	h.quotes.err = context.DeadlineExceeded

	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestEvaluateOpenVenueUnavailableAbortsTick(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:          model.OrderTypeBuy,
		Leverage:           1,
		EntryPrice:         100,
		CumulativeStopLoss: 1,
		ProfitLoss:         3,
		Status:             model.PositionStatusOpen,
	})
	ctx := context.Background()

	h.venue.snap = model.VenuePosition{Price: 0, ProfitLoss: -50}
	res := h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	assert.Equal(t, OutcomeSkipped, res.Outcome)

	h.venue.snap = model.VenuePosition{}
	h.venue.err = errors.New("connection reset")
	res = h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Error(t, res.Err)

	got := h.reload(t, p.ID)
	assert.Equal(t, model.PositionStatusOpen, got.Status)
	assert.Equal(t, 3.0, got.ProfitLoss)
	assert.Empty(t, h.dispatcher.signals)
}

func TestEvaluateOpenMaxProfitLossIsMonotonic(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:     model.OrderTypeBuy,
		Leverage:      1,
		EntryPrice:    100,
		MaxProfitLoss: 8,
		Status:        model.PositionStatusOpen,
	})
	ctx := context.Background()

	h.venue.snap = model.VenuePosition{Price: 103, ProfitLoss: 3}
	h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	assert.Equal(t, 8.0, h.reload(t, p.ID).MaxProfitLoss)

	h.venue.snap = model.VenuePosition{Price: 109, ProfitLoss: 9}
	h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	assert.Equal(t, 9.0, h.reload(t, p.ID).MaxProfitLoss)

	h.venue.snap = model.VenuePosition{Price: 101, ProfitLoss: 1}
	h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	got := h.reload(t, p.ID)
	assert.Equal(t, 9.0, got.MaxProfitLoss)
	assert.Equal(t, 1.0, got.ProfitLoss)
}

func TestEvaluateRefreshKeepsOrderLevelWhileAdjusting(t *testing.T) {
	h := newHarness(t, Config{})
	open := h.create(t, model.Position{
		OrderType:  model.OrderTypeBuy,
		Leverage:   1,
		EntryPrice: 100,
		OrderLevel: 1,
		Status:     model.PositionStatusOpen,
	})
	adjusting := h.create(t, model.Position{
		OrderType:  model.OrderTypeBuy,
		Leverage:   1,
		EntryPrice: 100,
		OrderLevel: 1,
		Status:     model.PositionStatusAdjustProcessing,
	})
	h.venue.snap = model.VenuePosition{Price: 101, ProfitLoss: 1, FillCount: 2, AvgEntryPrice: 100.5}
	ctx := context.Background()

	h.monitor.Evaluate(ctx, h.reload(t, open.ID))
	h.monitor.Evaluate(ctx, h.reload(t, adjusting.ID))

	assert.Equal(t, 2, h.reload(t, open.ID).OrderLevel)
	got := h.reload(t, adjusting.ID)
	assert.Equal(t, 1, got.OrderLevel)
	assert.Equal(t, 100.5, got.AverageEntryPrice)
}

func TestEvaluateCloseWhileAdjustingWaitsForFlatFill(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:          model.OrderTypeBuy,
		Leverage:           1,
		EntryPrice:         100,
		StopLoss:           5,
		CumulativeStopLoss: 5,
		OrderLevel:         1,
		Status:             model.PositionStatusAdjustProcessing,
	})
	// the adjustment already filled; FLAT has not
	h.venue.snap = model.VenuePosition{Price: 94, ProfitLoss: -6, FillCount: 2}
	ctx := context.Background()

	res := h.monitor.Evaluate(ctx, h.reload(t, p.ID))
	require.Equal(t, OutcomeClosed, res.Outcome, res.Reason)
	closing := h.reload(t, p.ID)
	assert.Equal(t, model.PositionStatusCloseProcessing, closing.Status)
	assert.Equal(t, 2, closing.OrderLevel)

	rec := reconciler.New(reconciler.Deps{
		Positions:  h.repo,
		Venue:      h.venue,
		Dispatcher: h.dispatcher,
		Notifier:   h.notifier,
	}, reconciler.Config{CloseTimeout: time.Hour})

	got := rec.Reconcile(ctx, closing)
	assert.Equal(t, reconciler.OutcomeWaiting, got.Outcome)
	assert.Equal(t, model.PositionStatusCloseProcessing, h.reload(t, p.ID).Status)

	h.venue.snap = model.VenuePosition{Price: 94.5, ProfitLoss: -5.5, FillCount: 3}
	got = rec.Reconcile(ctx, h.reload(t, p.ID))
	assert.Equal(t, reconciler.OutcomeConfirmed, got.Outcome)
	assert.Equal(t, model.PositionStatusClosed, h.reload(t, p.ID).Status)
}

func TestEvaluateCloseWhileAdjustPendingCountsAdjustFill(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:          model.OrderTypeBuy,
		Leverage:           1,
		EntryPrice:         100,
		StopLoss:           5,
		CumulativeStopLoss: 5,
		OrderLevel:         1,
		Status:             model.PositionStatusAdjustProcessing,
	})
	// the adjustment has not reached the venue yet
	h.venue.snap = model.VenuePosition{Price: 94, ProfitLoss: -6, FillCount: 1}

	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	require.Equal(t, OutcomeClosed, res.Outcome, res.Reason)
	assert.Equal(t, 2, h.reload(t, p.ID).OrderLevel)
}

func TestEvaluateInvalidTermsCapturedAndUntouched(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:  model.OrderType("HOLD"),
		Leverage:   1,
		EntryPrice: 100,
		Status:     model.PositionStatusOpen,
	})
	h.venue.snap = model.VenuePosition{Price: 50, ProfitLoss: -50}

	res := h.monitor.Evaluate(context.Background(), h.reload(t, p.ID))
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.ErrorIs(t, res.Err, errInvalidPosition)

	require.Len(t, h.exceptions.captured, 1)
	assert.Equal(t, p.ID, h.exceptions.captured[0].PositionID)
	assert.Empty(t, h.dispatcher.signals)
	assert.Equal(t, model.PositionStatusOpen, h.reload(t, p.ID).Status)
}

func TestEvaluateConflictAbortsWithoutNotification(t *testing.T) {
	h := newHarness(t, Config{})
	p := h.create(t, model.Position{
		OrderType:  model.OrderTypeBuy,
		Leverage:   1,
		EntryPrice: 100,
		StopLoss:   2,
		Trailing:   true,
		Status:     model.PositionStatusOpen,
	})
	stale := h.reload(t, p.ID)

	// closed by another writer after the tick loaded it
	require.NoError(t, h.repo.Transition(context.Background(), p.ID, model.PositionStatusOpen, model.PositionStatusCloseProcessing, nil))

	h.quotes.quotes["BTCUSD"] = model.Quote{Bid: 120, Ask: 120.1}
	h.venue.snap = model.VenuePosition{Price: 120, ProfitLoss: 20}

	res := h.monitor.Evaluate(context.Background(), stale)
	assert.Equal(t, OutcomeConflict, res.Outcome)
	assert.Empty(t, h.notifier.events)
	assert.Empty(t, h.trailing.saved)
	assert.Equal(t, 100.0, h.reload(t, p.ID).EntryPrice)
}
