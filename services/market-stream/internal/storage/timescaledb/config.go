// services/market-stream/internal/storage/timescaledb/config.go
package timescaledb

import (
	"fmt"
	"time"

	"github.com/Muritor08/TB-WSS/common/backoff"
)

// Config описывает подключение к TimescaleDB. Пустой DSN, архив выключен.
type Config struct {
	DSN      string         `mapstructure:"dsn"`
	MaxConns int32          `mapstructure:"max_conns"`
	Migrate  bool           `mapstructure:"migrate"`
	Timeout  time.Duration  `mapstructure:"timeout"` // на одну вставку
	Backoff  backoff.Config `mapstructure:"backoff"`
}

// Enabled — архив включён.
func (c Config) Enabled() bool { return c.DSN != "" }

// ApplyDefaults устанавливает значения по умолчанию.
func (c *Config) ApplyDefaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// Validate проверяет конфигурацию включённого архива.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("timescaledb: max_conns must be >= 1")
	}
	return nil
}
