package monitor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"positionmonitor/src/database"
	"positionmonitor/src/server"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Monitor struct {
	Log *logrus.Entry
}

// Start runs the scheduler, and the status server when enabled, until SIGINT
// or SIGTERM.
func (m *Monitor) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	app, err := NewApp(ctx)
	if err != nil {
		m.Log.WithError(err).Error("Failed to wire engine")
		return err
	}
	defer app.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Scheduler.StartLoop(ctx)
	})
	g.Go(func() error {
		return app.Notifier.Run(ctx)
	})

	if config.ServeStatus {
		// Initialize read-only database
		if err := database.InitReadOnlyDB(); err != nil {
			m.Log.WithError(err).Error("Failed to connect to read-only database")
			return err
		}

		router := server.NewRouter(server.Routes{
			Positions:     app.Positions.WithDB(database.ReadOnlyDB),
			Trailing:      app.Quotes,
			Notifications: app.Notifications,
		})
		g.Go(func() error {
			return server.StartServer(ctx, server.GetConfig(), router)
		})
	}

	m.Log.Info("Position monitor running")
	if err := g.Wait(); err != nil {
		m.Log.WithError(err).Error("Position monitor stopped with error")
		return err
	}
	return nil
}
