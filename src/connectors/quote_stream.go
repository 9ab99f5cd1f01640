package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

type quoteSink interface {
	SetBidAsk(ctx context.Context, tradePair string, bid, ask float64, ts time.Time) error
}

type quoteMessage struct {
	TradePair string  `json:"trade_pair"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"ts"` // unix millis
}

type subscribeMessage struct {
	Action     string   `json:"action"`
	TradePairs []string `json:"trade_pairs"`
}

// QuoteStream consumes a websocket price feed and writes every quote into the
// quote cache. It reconnects until the context is cancelled.
type QuoteStream struct {
	url            string
	pairs          []string
	sink           quoteSink
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	log            *logger.Entry
}

func NewQuoteStream(wsURL string, pairs []string, sink quoteSink) *QuoteStream {
	return &QuoteStream{
		url:   wsURL,
		pairs: pairs,
		sink:  sink,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
			Proxy:             http.ProxyFromEnvironment,
		},
		reconnectDelay: 2 * time.Second,
		log:            logger.WithField("component", "quote_stream"),
	}
}

// Run blocks until ctx is done.
func (s *QuoteStream) Run(ctx context.Context) error {
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.WithError(err).Warn("Quote stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *QuoteStream) consume(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if len(s.pairs) > 0 {
		if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", TradePairs: s.pairs}); err != nil {
			return fmt.Errorf("ws subscribe failed: %w", err)
		}
	}

	s.log.WithField("pairs", s.pairs).Info("Quote stream connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}

		quotes, err := decodeQuotes(msg)
		if err != nil {
			s.log.WithError(err).Debug("Skipping undecodable quote frame")
			continue
		}

		for _, q := range quotes {
			if q.TradePair == "" {
				continue
			}
			ts := time.Now()
			if q.Timestamp > 0 {
				ts = time.UnixMilli(q.Timestamp)
			}
			if err := s.sink.SetBidAsk(ctx, q.TradePair, q.Bid, q.Ask, ts); err != nil {
				s.log.WithError(err).WithField("trade_pair", q.TradePair).Warn("Failed to store quote")
			}
		}
	}
}

// decodeQuotes accepts a single quote object or a batch array.
func decodeQuotes(msg []byte) ([]quoteMessage, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return nil, errors.New("empty frame")
	}

	if msg[0] == '[' {
		var batch []quoteMessage
		if err := json.Unmarshal(msg, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}

	var one quoteMessage
	if err := json.Unmarshal(msg, &one); err != nil {
		return nil, err
	}
	return []quoteMessage{one}, nil
}
