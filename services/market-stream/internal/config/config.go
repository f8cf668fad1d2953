// services/market-stream/internal/config/config.go
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/Muritor08/TB-WSS/common/configloader"
	"github.com/Muritor08/TB-WSS/common/httpserver"
	"github.com/Muritor08/TB-WSS/common/kafka/producer"
	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/common/redis"
	"github.com/Muritor08/TB-WSS/common/telemetry"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/session"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/storage/timescaledb"
	"github.com/Muritor08/TB-WSS/services/market-stream/pkg/tradebridge"
)

// EnvPrefix — префикс переменных окружения: stream.idle_timeout → MARKETSTREAM_STREAM_IDLE_TIMEOUT.
const EnvPrefix = "MARKETSTREAM"

/*
   --------------------------------------------------------------------------
   СТРУКТУРЫ
   --------------------------------------------------------------------------
*/

// Config — все настройки сервиса.
type Config struct {
	ServiceName    string             `mapstructure:"service_name"`
	ServiceVersion string             `mapstructure:"service_version"`
	Stream         StreamConfig       `mapstructure:"stream"`
	Transport      tradebridge.Config `mapstructure:"transport"`
	Redis          RedisConfig        `mapstructure:"redis"`
	Kafka          KafkaConfig        `mapstructure:"kafka"`
	Timescale      TimescaleConfig    `mapstructure:"timescale"`
	Telemetry      telemetry.Config   `mapstructure:"telemetry"`
	Logging        logger.Config      `mapstructure:"logging"`
	HTTP           httpserver.Config  `mapstructure:"http"`
	LogBuffer      int                `mapstructure:"log_buffer"` // строк в окне UI-лога
}

// StreamConfig — параметры сессии и разбора кадров.
type StreamConfig struct {
	session.Config `mapstructure:",squash"`
	// Family переопределяет семейство кадров реестра; пусто → из реестра.
	Family string `mapstructure:"family"`
	// Registry — "legacy", "formatted" или путь к YAML-файлу.
	Registry string `mapstructure:"registry"`
}

// RedisConfig — хранилище учётных данных. Пустой URL → хранение в памяти.
type RedisConfig struct {
	redis.Config `mapstructure:",squash"`
	Key          string `mapstructure:"key"`
}

// KafkaConfig — публикация записей.
type KafkaConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Topic           string `mapstructure:"topic"`
	QueueSize       int    `mapstructure:"queue_size"`
	producer.Config `mapstructure:",squash"`
}

// TimescaleConfig — архив записей. Пустой DSN → архив выключен.
type TimescaleConfig struct {
	timescaledb.Config `mapstructure:",squash"`
	QueueSize          int `mapstructure:"queue_size"`
}

/*
   --------------------------------------------------------------------------
   LOADER
   --------------------------------------------------------------------------
*/

func registerDefaults() {
	configloader.RegisterDefaultsMap(map[string]interface{}{
		"service_name":    "market-stream",
		"service_version": "v1.0.0",

		"stream.url_template":    session.DefaultURLTemplate,
		"stream.symbols":         []string{"2885_NSE"},
		"stream.idle_timeout":    "10s",
		"stream.reconnect_delay": "2s",
		"stream.credential_ttl":  "24h",
		"stream.dial_timeout":    "15s",
		"stream.family":          "",
		"stream.registry":        "formatted",

		"transport.handshake_timeout": "10s",
		"transport.write_timeout":     "5s",
		"transport.ping_interval":     "20s",
		"transport.read_timeout":      "0s",
		"transport.read_limit":        1 << 20,

		"redis.url": "",
		"redis.key": "marketstream:session",

		"kafka.enabled":       false,
		"kafka.brokers":       []string{},
		"kafka.topic":         "marketstream.quotes",
		"kafka.queue_size":    1024,
		"kafka.required_acks": "all",
		"kafka.timeout":       "5s",
		"kafka.compression":   "none",

		"timescale.dsn":        "",
		"timescale.max_conns":  4,
		"timescale.migrate":    true,
		"timescale.timeout":    "5s",
		"timescale.queue_size": 1024,

		"telemetry.endpoint":      "",
		"telemetry.insecure":      true,
		"telemetry.sampler_ratio": 1.0,

		"logging.level":    "info",
		"logging.dev_mode": false,

		"http.addr":             ":8080",
		"http.read_timeout":     "10s",
		"http.write_timeout":    "15s",
		"http.idle_timeout":     "60s",
		"http.shutdown_timeout": "5s",
		"http.metrics_path":     "/metrics",
		"http.healthz_path":     "/healthz",
		"http.readyz_path":      "/readyz",
		"http.cors_origins":     []string{},

		"log_buffer": 300,
	})
}

// Load загружает и валидирует конфиг. Если path пустой, читаются только ENV и defaults.
func Load(path string) (*Config, error) {
	registerDefaults()
	var cfg Config
	if err := configloader.Load(path, EnvPrefix, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

/*
   --------------------------------------------------------------------------
   VALIDATION
   --------------------------------------------------------------------------
*/

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	// Stream
	if len(c.Stream.Symbols) == 0 {
		return fmt.Errorf("stream.symbols must contain at least one entry")
	}
	if !strings.Contains(c.Stream.URLTemplate, "{subdomain}") {
		return fmt.Errorf("stream.url_template must contain {subdomain}")
	}
	if c.Stream.Registry == "" {
		return fmt.Errorf("stream.registry is required")
	}
	if c.Stream.Family != "" {
		if _, err := packetspec.ParseFamily(c.Stream.Family); err != nil {
			return fmt.Errorf("stream.family: %w", err)
		}
	}
	if c.Stream.IdleTimeout <= 0 || c.Stream.ReconnectDelay <= 0 || c.Stream.CredentialTTL <= 0 {
		return fmt.Errorf("stream.idle_timeout, reconnect_delay and credential_ttl must be > 0")
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
		switch strings.ToLower(c.Kafka.RequiredAcks) {
		case "all", "leader", "none":
		default:
			return fmt.Errorf("kafka.required_acks must be one of [all, leader, none]")
		}
	}

	// Timescale
	if err := c.Timescale.Validate(); err != nil {
		return err
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	// HTTP
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	paths := map[string]string{
		"http.metrics_path": c.HTTP.MetricsPath,
		"http.healthz_path": c.HTTP.HealthzPath,
		"http.readyz_path":  c.HTTP.ReadyzPath,
	}
	for k, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/'", k)
		}
	}
	if c.LogBuffer <= 0 {
		return fmt.Errorf("log_buffer must be > 0")
	}
	return nil
}

// Registry загружает реестр пакетов и применяет переопределение семейства.
func (c *Config) Registry() (*packetspec.Registry, packetspec.Family, error) {
	reg, err := packetspec.Resolve(c.Stream.Registry)
	if err != nil {
		return nil, "", err
	}
	fam := reg.Family()
	if c.Stream.Family != "" {
		if fam, err = packetspec.ParseFamily(c.Stream.Family); err != nil {
			return nil, "", err
		}
	}
	return reg, fam, nil
}

/*
   --------------------------------------------------------------------------
   DEBUG PRINT
   --------------------------------------------------------------------------
*/

// Print выводит конфиг в YAML, скрывая строки подключения.
func (c Config) Print(w io.Writer) error {
	if c.Redis.URL != "" {
		c.Redis.URL = "***"
	}
	if c.Timescale.DSN != "" {
		c.Timescale.DSN = "***"
	}
	return configloader.PrintConfig(w, c)
}
