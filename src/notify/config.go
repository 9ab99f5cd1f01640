package notify

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TelegramBotToken    string        `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramChatID      int64         `envconfig:"TELEGRAM_CHAT_ID" default:"0"`
	TelegramAPIEndpoint string        `envconfig:"TELEGRAM_API_ENDPOINT" default:"https://api.telegram.org/bot%s/%s"`
	Events              []string      `envconfig:"NOTIFY_EVENTS" default:""` // empty forwards every event to the sinks
	QueueSize           int           `envconfig:"NOTIFY_QUEUE_SIZE" default:"256"`
	SendTimeout         time.Duration `envconfig:"NOTIFY_SEND_TIMEOUT" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
