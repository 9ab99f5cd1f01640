package monitor

import (
	"context"
	"fmt"

	"positionmonitor/src/cache"
	"positionmonitor/src/connectors"
	"positionmonitor/src/database"
	"positionmonitor/src/executors"
	"positionmonitor/src/model"
	statemachine "positionmonitor/src/monitor"
	"positionmonitor/src/notify"
	"positionmonitor/src/reconciler"
	"positionmonitor/src/repository"

	"github.com/sirupsen/logrus"
)

// App holds the wired engine. Close flushes pending notifications and
// releases the redis client.
type App struct {
	Positions     *repository.PositionRepository
	Notifications *repository.NotificationRepository
	Redis         *cache.Client
	Quotes        *cache.QuoteCache
	Locks         *cache.LockManager
	Notifier      *notify.Emitter
	Hotkeys       *cache.HotkeyCache
	Monitor       *statemachine.Monitor
	Reconciler    *reconciler.Reconciler
	Scheduler     *executors.Scheduler
}

// NewApp connects the databases and redis and wires every component.
func NewApp(ctx context.Context) (*App, error) {
	if err := database.InitMainDB(); err != nil {
		return nil, fmt.Errorf("connect main database: %w", err)
	}

	redisClient, err := cache.New(ctx, cache.GetConfig())
	if err != nil {
		return nil, err
	}

	connCfg := connectors.GetConfig()
	execCfg := executors.GetConfig()

	positions := repository.NewPositionRepository()
	notifications := repository.NewNotificationRepository()
	ambassadors := repository.NewAmbassadorRepository()
	exceptions := repository.NewExceptionRepository()

	quotes := cache.NewQuoteCache(redisClient)
	hotkeys := cache.NewHotkeyCache(ambassadors, cache.GetConfig().HotkeyCacheTTL)

	creds := connectors.NewAmbassadorCredentials(ambassadors, model.Source(connCfg.SignalSource), connCfg.SignalAPIKey)
	signals := connectors.NewSignalClient(connCfg.SignalBaseURL, connCfg.SignalTimeout, creds)
	dispatcher := connectors.NewDispatcher(signals, quotes, connCfg)
	venue := connectors.NewVenueClient(connCfg, hotkeys)

	notifyCfg := notify.GetConfig()
	senders := notify.SendersFromConfig(notifyCfg)
	emitter := notify.NewEmitter(notifications, senders, notifyCfg)

	mon := statemachine.New(statemachine.Deps{
		Positions:  positions,
		Quotes:     quotes,
		Trailing:   quotes,
		Venue:      venue,
		Dispatcher: dispatcher,
		Notifier:   emitter,
		Exceptions: exceptions,
	}, statemachine.GetConfig())

	rec := reconciler.New(reconciler.Deps{
		Positions:  positions,
		Venue:      venue,
		Dispatcher: dispatcher,
		Notifier:   emitter,
	}, reconciler.GetConfig())

	locks := cache.NewLockManager(redisClient)

	scheduler := executors.NewScheduler(execCfg, positions, mon, rec)
	scheduler.Hotkeys = hotkeys
	scheduler.Trailing = quotes
	scheduler.Locks = locks

	logrus.WithFields(logrus.Fields{
		"signal_url":        connCfg.SignalBaseURL,
		"venue_main_url":    connCfg.VenueMainURL,
		"lock_ttl":          execCfg.LockTTL,
		"notify_sinks":      len(senders),
	}).Info("Engine wired")

	return &App{
		Positions:     positions,
		Notifications: notifications,
		Redis:         redisClient,
		Quotes:        quotes,
		Locks:         locks,
		Notifier:      emitter,
		Hotkeys:       hotkeys,
		Monitor:       mon,
		Reconciler:    rec,
		Scheduler:     scheduler,
	}, nil
}

func (a *App) Close() {
	a.Notifier.Flush()
	if err := a.Redis.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close redis client")
	}
}

// WithPositionLock runs fn while holding the position's distributed lock, so
// manual operations never race the scheduler.
func (a *App) WithPositionLock(ctx context.Context, id uint, fn func() error) error {
	unlock, err := a.Locks.Acquire(ctx, executors.PositionLockKey(id), executors.GetConfig().LockTTL)
	if err != nil {
		return fmt.Errorf("lock position %d: %w", id, err)
	}
	defer unlock()
	return fn()
}
