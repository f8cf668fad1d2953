// common/redis/client.go
package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Muritor08/TB-WSS/common/backoff"
	"github.com/Muritor08/TB-WSS/common/logger"
)

var (
	serviceLabel = "unknown"

	connectErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "common", Subsystem: "redis", Name: "connect_errors_total",
		Help: "Redis connect attempts that failed",
	}, []string{"service"})

	tracer = otel.Tracer("redis-client")
)

// SetServiceLabel вызывается из common.InitServiceName(..).
func SetServiceLabel(name string) { serviceLabel = name }

// Nil — ответ «ключ отсутствует».
const Nil = goredis.Nil

// New парсит URL, создаёт клиента и проверяет соединение PING'ом с ретраями.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*goredis.Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("redis")

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse URL: %w", err)
	}
	client := goredis.NewClient(opts)

	op := func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			connectErrors.WithLabelValues(serviceLabel).Inc()
			return err
		}
		return nil
	}
	ctxConn, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.String("addr", opts.Addr)))
	defer span.End()
	if err := backoff.Execute(ctxConn, cfg.Backoff, log, op); err != nil {
		span.RecordError(err)
		_ = client.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	log.Info("redis: connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return client, nil
}
