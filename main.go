package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"positionmonitor/src/cache"
	"positionmonitor/src/database"
	"positionmonitor/src/repository"
	"positionmonitor/src/server"
	"positionmonitor/src/utils"

	logger "github.com/sirupsen/logrus"
)

var (
	APP_NAME = os.Getenv("APP_NAME")
)

// Standalone read-only status API. The engine itself runs from cmd/.
func main() {
	dbConfig := database.GetConfig()
	utils.SetupLogger(dbConfig.LogLevel, dbConfig.LogFormat)
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	routes := server.Routes{
		Positions:     repository.NewPositionRepositoryWithDB(database.ReadOnlyDB),
		Notifications: repository.NewNotificationRepositoryWithDB(database.ReadOnlyDB),
	}

	// trailing snapshots are optional on this surface
	if redisClient, err := cache.New(ctx, cache.GetConfig()); err != nil {
		logger.WithError(err).Warn("Redis unavailable, serving without trailing snapshots")
	} else {
		defer func() { _ = redisClient.Close() }()
		routes.Trailing = cache.NewQuoteCache(redisClient)
	}

	if err := server.StartServer(ctx, server.GetConfig(), server.NewRouter(routes)); err != nil {
		logger.WithError(err).Error("Status server stopped")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
