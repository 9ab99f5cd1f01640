// Package notify records position events and fans them out to external
// channels. Recording is fire-and-forget: failures are logged, never returned.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"positionmonitor/src/model"

	logger "github.com/sirupsen/logrus"
)

// Sender is implemented by each external notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type notificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
}

type outbound struct {
	title   string
	message string
	entry   *logger.Entry
}

// Emitter appends notification rows and queues them for the senders. Run
// delivers the queue; Flush delivers whatever is pending right away.
type Emitter struct {
	store       notificationStore
	senders     []Sender
	events      map[string]bool
	queue       chan outbound
	sendTimeout time.Duration
	log         *logger.Entry
}

// NewEmitter builds an Emitter. Only events listed in cfg.Events reach the
// senders; an empty list forwards everything. Every event is always stored.
func NewEmitter(store notificationStore, senders []Sender, cfg Config) *Emitter {
	allowed := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Emitter{
		store:       store,
		senders:     senders,
		events:      allowed,
		queue:       make(chan outbound, cfg.QueueSize),
		sendTimeout: cfg.SendTimeout,
		log:         logger.WithField("component", "notifier"),
	}
}

// Record must only be called once the state it describes has been committed.
// It never waits on a sender.
func (e *Emitter) Record(
	ctx context.Context,
	traderID uint,
	tradePair string,
	positionID uint,
	event string,
	message string,
) {
	entry := e.log.WithFields(map[string]interface{}{
		"trader_id":   traderID,
		"trade_pair":  tradePair,
		"position_id": positionID,
		"event":       event,
	})

	if e.store != nil {
		n := &model.Notification{
			TraderID:   traderID,
			TradePair:  tradePair,
			PositionID: positionID,
			Event:      event,
			Message:    message,
			CreatedAt:  time.Now(),
		}
		if err := e.store.Create(ctx, n); err != nil {
			entry.WithError(err).Error("Failed to store notification")
		}
	}

	if len(e.senders) == 0 {
		return
	}
	if len(e.events) > 0 && !e.events[event] {
		entry.Debug("Event filtered out for senders")
		return
	}

	msg := outbound{
		title:   fmt.Sprintf("[%s] %s #%d", event, tradePair, positionID),
		message: message,
		entry:   entry,
	}
	select {
	case e.queue <- msg:
	default:
		entry.Warn("Notification queue full, dropping message")
	}
}

// Run delivers queued notifications until ctx is cancelled, then flushes.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.Flush()
			return nil
		case msg := <-e.queue:
			e.deliver(msg)
		}
	}
}

// Flush delivers every queued notification and returns.
func (e *Emitter) Flush() {
	for {
		select {
		case msg := <-e.queue:
			e.deliver(msg)
		default:
			return
		}
	}
}

func (e *Emitter) deliver(msg outbound) {
	for _, s := range e.senders {
		ctx, cancel := context.WithTimeout(context.Background(), e.sendTimeout)
		err := s.Send(ctx, msg.title, msg.message)
		cancel()

		if err != nil {
			msg.entry.WithError(err).WithField("sender", s.Name()).Error("Sender failed")
			continue
		}
		msg.entry.WithField("sender", s.Name()).Debug("Notification sent")
	}
}
