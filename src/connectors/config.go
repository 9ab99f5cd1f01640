package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SignalBaseURL       string        `envconfig:"SIGNAL_BASE_URL" default:"http://localhost:8080"`
	SignalTimeout       time.Duration `envconfig:"SIGNAL_TIMEOUT" default:"15s"`
	SignalSubscribeWait time.Duration `envconfig:"SIGNAL_SUBSCRIBE_WAIT" default:"5s"`
	SignalPollInterval  time.Duration `envconfig:"SIGNAL_SUBSCRIBE_POLL" default:"250ms"`

	// Used for traders without an ambassador key.
	SignalAPIKey string `envconfig:"SIGNAL_API_KEY" default:""`
	SignalSource string `envconfig:"SIGNAL_SOURCE" default:"main"`

	VenueMainURL string        `envconfig:"VENUE_MAIN_URL" default:"http://localhost:48888"`
	VenueTestURL string        `envconfig:"VENUE_TEST_URL" default:"http://localhost:48889"`
	VenueTimeout time.Duration `envconfig:"VENUE_TIMEOUT" default:"10s"`

	QuoteStreamURL string `envconfig:"QUOTE_STREAM_URL" default:"ws://localhost:8765/quotes"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
