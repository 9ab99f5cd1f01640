package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"positionmonitor/src/handler"
	"positionmonitor/src/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

// PositionStore is what the read-only position routes need.
type PositionStore interface {
	FindByID(ctx context.Context, id uint) (*model.Position, error)
	FindByStatuses(ctx context.Context, statuses []model.PositionStatus) ([]model.Position, error)
	FindOpenByTrader(ctx context.Context, traderID uint) ([]model.Position, error)
}

type TrailingStore interface {
	GetTrailing(ctx context.Context, positionID uint) (model.TrailingSnapshot, bool, error)
}

type NotificationStore interface {
	FindByPosition(ctx context.Context, positionID uint) ([]model.Notification, error)
}

// Routes are the stores behind the status surface. Trailing is optional.
type Routes struct {
	Positions     PositionStore
	Trailing      TrailingStore
	Notifications NotificationStore
}

func NewRouter(routes Routes) chi.Router {
	// Router with middleware
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/positions", func(r chi.Router) {
		r.Get("/", handler.ListPositionsHandler(routes.Positions))
		r.Get("/{id}", handler.GetPositionHandler(routes.Positions, routes.Trailing))
		r.Get("/{id}/notifications", handler.PositionNotificationsHandler(routes.Notifications))
	})
	r.Get("/traders/{traderID}/positions", handler.TraderPositionsHandler(routes.Positions))

	return r
}

// StartServer serves h until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *Config, h http.Handler) error {
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
