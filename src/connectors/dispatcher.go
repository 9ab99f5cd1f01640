package connectors

import (
	"context"
	"time"

	"positionmonitor/src/metrics"
	"positionmonitor/src/model"

	logger "github.com/sirupsen/logrus"
)

type signalSender interface {
	SendSignal(ctx context.Context, s Signal) error
	Subscribe(ctx context.Context, tradePair string) error
}

type quoteReader interface {
	GetBidAsk(ctx context.Context, tradePair string) (model.Quote, error)
}

// Dispatcher submits trade instructions and makes sure a live price feed
// exists for the pair first. It never returns errors: false means "retry later".
type Dispatcher struct {
	signals       signalSender
	quotes        quoteReader
	timeout       time.Duration
	subscribeWait time.Duration
	pollInterval  time.Duration
	log           *logger.Entry
}

func NewDispatcher(signals signalSender, quotes quoteReader, cfg Config) *Dispatcher {
	poll := cfg.SignalPollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Dispatcher{
		signals:       signals,
		quotes:        quotes,
		timeout:       cfg.SignalTimeout,
		subscribeWait: cfg.SignalSubscribeWait,
		pollInterval:  poll,
		log:           logger.WithField("component", "dispatcher"),
	}
}

// Submit sends an open/close instruction and reports whether the venue accepted it.
func (d *Dispatcher) Submit(ctx context.Context, traderID uint, tradePair string, orderType model.OrderType, leverage float64) bool {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout+d.subscribeWait)
		defer cancel()
	}

	entry := d.log.WithFields(map[string]interface{}{
		"trader_id":  traderID,
		"trade_pair": tradePair,
		"order_type": orderType,
		"leverage":   leverage,
	})

	d.ensureSubscription(ctx, tradePair, entry)

	err := d.signals.SendSignal(ctx, Signal{
		TraderID:  traderID,
		TradePair: tradePair,
		OrderType: orderType,
		Leverage:  leverage,
	})
	metrics.ObserveSignal(string(orderType), err == nil)
	if err != nil {
		entry.WithError(err).Warn("Signal submission failed")
		return false
	}

	return true
}

// CloseAll flattens the trader's exposure on the pair. Closing is side agnostic
// and always uses unit leverage.
func (d *Dispatcher) CloseAll(ctx context.Context, traderID uint, tradePair string) bool {
	return d.Submit(ctx, traderID, tradePair, model.OrderTypeFlat, 1)
}

// ensureSubscription waits up to subscribeWait for a live quote. The signal is
// sent regardless so defensive closes are never blocked by a missing feed.
func (d *Dispatcher) ensureSubscription(ctx context.Context, tradePair string, entry *logger.Entry) {
	if d.quotes == nil {
		return
	}
	if d.hasQuote(ctx, tradePair) {
		return
	}

	if err := d.signals.Subscribe(ctx, tradePair); err != nil {
		entry.WithError(err).Warn("Price subscription request failed")
		return
	}

	if d.subscribeWait <= 0 {
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.subscribeWait)
	defer cancel()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			entry.Warn("No live quote after subscribing, sending signal anyway")
			return
		case <-ticker.C:
			if d.hasQuote(waitCtx, tradePair) {
				return
			}
		}
	}
}

func (d *Dispatcher) hasQuote(ctx context.Context, tradePair string) bool {
	q, err := d.quotes.GetBidAsk(ctx, tradePair)
	return err == nil && q.Available()
}
