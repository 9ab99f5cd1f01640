package cache

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	RedisPoolSize  int           `envconfig:"REDIS_POOL_SIZE" default:"20"`
	RedisRetries   int           `envconfig:"REDIS_MAX_RETRIES" default:"3"`
	RedisTLS       bool          `envconfig:"REDIS_TLS" default:"false"`
	HotkeyCacheTTL time.Duration `envconfig:"HOTKEY_CACHE_TTL" default:"10m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
