package monitor

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// When true, trailing positions still close on their static take-profit.
	TrailingKeepsTakeProfit bool          `envconfig:"MONITOR_TRAILING_KEEPS_TAKE_PROFIT" default:"false"`
	QuoteTimeout            time.Duration `envconfig:"QUOTE_TIMEOUT" default:"2s"`
	VenueTimeout            time.Duration `envconfig:"VENUE_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
