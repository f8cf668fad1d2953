// common/redis/config.go
package redis

import (
	"fmt"

	"github.com/Muritor08/TB-WSS/common/backoff"
)

// Config хранит параметры подключения к Redis.
type Config struct {
	URL     string         `mapstructure:"url"` // e.g. "redis://host:6379/0"
	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("redis: URL required")
	}
	return nil
}
