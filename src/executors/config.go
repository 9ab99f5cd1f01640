package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MonitorPeriod       time.Duration `envconfig:"MONITOR_PERIOD" default:"10s"`
	ReconcilePeriod     time.Duration `envconfig:"RECONCILE_PERIOD" default:"30s"`
	HotkeyRefreshPeriod time.Duration `envconfig:"HOTKEY_REFRESH_PERIOD" default:"10m"`
	WorkerPoolSize      int           `envconfig:"WORKER_POOL_SIZE" default:"8"`
	LockTTL             time.Duration `envconfig:"LOCK_TTL" default:"30s"` // extended every LockTTL/3 while held
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
