package monitor

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Serve the status API next to the scheduler.
	ServeStatus bool `envconfig:"MONITOR_SERVE_STATUS" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
