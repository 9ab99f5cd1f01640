package quotefeed

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"positionmonitor/src/cache"
	"positionmonitor/src/connectors"

	"github.com/sirupsen/logrus"
)

// QuoteFeed pipes the websocket price stream into the shared quote cache.
type QuoteFeed struct {
	Log *logrus.Entry
}

func (q *QuoteFeed) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	client, err := cache.New(ctx, cache.GetConfig())
	if err != nil {
		q.Log.WithError(err).Error("Failed to connect to redis")
		return err
	}
	defer func() { _ = client.Close() }()

	url := connectors.GetConfig().QuoteStreamURL
	q.Log.WithFields(logrus.Fields{
		"url":   url,
		"pairs": config.Pairs,
	}).Info("Starting quote feed")

	stream := connectors.NewQuoteStream(url, config.Pairs, cache.NewQuoteCache(client))
	if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		q.Log.WithError(err).Error("Quote feed stopped")
		return err
	}
	return nil
}
