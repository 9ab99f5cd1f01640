package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"positionmonitor/cmd/keys"
	"positionmonitor/cmd/monitor"
	"positionmonitor/cmd/quotefeed"
	"positionmonitor/src/database"
	"positionmonitor/src/model"
	statemachine "positionmonitor/src/monitor"
	"positionmonitor/src/repository"
	"positionmonitor/src/utils"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	dbConfig := database.GetConfig()
	utils.SetupLogger(dbConfig.LogLevel, dbConfig.LogFormat)

	app := cli.NewApp()
	app.Name = "positionmonitor"
	app.Usage = "Position monitoring and trailing-risk engine"
	app.Version = Version

	app.Commands = []cli.Command{
		monitorCMD,
		quoteFeedCMD,
		setAmbassadorCMD,
		closeCMD,
		adjustCMD,
		migrateCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	monitorCMD = cli.Command{
		Name:        "monitor",
		Usage:       "run the position monitor and reconciler",
		Action:      monitorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the monitor and reconcile loops plus the status API`,
	}
	quoteFeedCMD = cli.Command{
		Name:        "quotefeed",
		Usage:       "stream quotes into redis",
		Action:      quoteFeedAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Consume the websocket quote stream and write bid/ask into the quote cache`,
	}
	setAmbassadorCMD = cli.Command{
		Name:      "set-ambassador",
		Usage:     "store a trader's hotkey and signal key",
		Action:    setAmbassadorAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.UintFlag{Name: "trader", Usage: "trader id"},
			cli.StringFlag{Name: "source", Usage: "main|test (defaults to AMBASSADOR_SOURCE)"},
			cli.StringFlag{Name: "hotkey", Usage: "venue hotkey"},
			cli.StringFlag{Name: "api-key", Usage: "signal API key, stored encrypted", EnvVar: "AMBASSADOR_API_KEY"},
		},
		Description: `Encrypt and upsert the ambassador row for a trader`,
	}
	closeCMD = cli.Command{
		Name:        "close",
		Usage:       "close a position",
		Action:      closeAction,
		ArgsUsage:   "<position id>",
		Flags:       []cli.Flag{},
		Description: `Close a position now: pending limit orders are cancelled, open positions are sent FLAT`,
	}
	adjustCMD = cli.Command{
		Name:      "adjust",
		Usage:     "adjust an open position",
		Action:    adjustAction,
		ArgsUsage: "<position id>",
		Flags: []cli.Flag{
			cli.Float64Flag{Name: "stop-loss", Usage: "new stop-loss percent"},
			cli.Float64Flag{Name: "take-profit", Usage: "new take-profit percent"},
			cli.Float64Flag{Name: "leverage", Usage: "leverage to add on the position's side"},
		},
		Description: `Change the armed thresholds and optionally add leverage`,
	}
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "apply schema and data migrations",
		Action:      migrateAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Connect to the main database and run migrations`,
	}
)

func monitorAction(_ *cli.Context) error {

	logrus.Info("Starting monitor CMD")

	m := &monitor.Monitor{Log: logrus.WithField("cmd", "monitor")}
	err := m.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func quoteFeedAction(_ *cli.Context) error {

	logrus.Info("Starting quotefeed CMD")

	q := &quotefeed.QuoteFeed{Log: logrus.WithField("cmd", "quotefeed")}
	if err := q.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func setAmbassadorAction(c *cli.Context) error {
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}

	source := c.String("source")
	if source == "" {
		source = keys.GetConfig().DefaultSource
	}

	err := keys.SetAmbassador(
		context.Background(),
		repository.NewAmbassadorRepository(),
		c.Uint("trader"),
		model.Source(source),
		c.String("hotkey"),
		c.String("api-key"),
	)
	if err != nil {
		logrus.WithError(err).Error("Failed to store ambassador")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"trader_id": c.Uint("trader"),
		"source":    source,
	}).Info("Ambassador stored")
	return nil
}

func closeAction(c *cli.Context) error {
	id, err := positionArg(c)
	if err != nil {
		return err
	}

	return withApp(func(ctx context.Context, app *monitor.App) error {
		return app.WithPositionLock(ctx, id, func() error {
			return app.Monitor.ManualClose(ctx, id)
		})
	})
}

func adjustAction(c *cli.Context) error {
	id, err := positionArg(c)
	if err != nil {
		return err
	}

	adj := statemachine.Adjustment{Leverage: c.Float64("leverage")}
	if c.IsSet("stop-loss") {
		v := c.Float64("stop-loss")
		adj.StopLoss = &v
	}
	if c.IsSet("take-profit") {
		v := c.Float64("take-profit")
		adj.TakeProfit = &v
	}

	return withApp(func(ctx context.Context, app *monitor.App) error {
		return app.WithPositionLock(ctx, id, func() error {
			return app.Monitor.ManualAdjust(ctx, id, adj)
		})
	})
}

func migrateAction(_ *cli.Context) error {
	// InitMainDB migrates on connect
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to migrate database")
		return err
	}
	logrus.Info("Migrations applied")
	return nil
}

func positionArg(c *cli.Context) (uint, error) {
	if c.NArg() != 1 {
		return 0, errors.New("expected exactly one position id")
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid position id %q", c.Args().First())
	}
	return uint(id), nil
}

func withApp(fn func(ctx context.Context, app *monitor.App) error) error {
	ctx := context.Background()

	app, err := monitor.NewApp(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to wire engine")
		return err
	}
	defer app.Close()

	if err := fn(ctx, app); err != nil {
		logrus.WithError(err).Error("Command failed")
		return err
	}
	return nil
}
