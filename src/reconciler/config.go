package reconciler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	OpenTimeout   time.Duration `envconfig:"RECONCILE_OPEN_TIMEOUT" default:"5m"`
	AdjustTimeout time.Duration `envconfig:"RECONCILE_ADJUST_TIMEOUT" default:"20m"`
	CloseTimeout  time.Duration `envconfig:"RECONCILE_CLOSE_TIMEOUT" default:"5m"`
	VenueTimeout  time.Duration `envconfig:"VENUE_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
