// services/market-stream/internal/credstore/redis.go
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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
	redisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketstream", Subsystem: "credstore", Name: "errors_total",
		Help: "Credential store operation errors",
	}, []string{"op"})

	tracer = otel.Tracer("credstore-redis")
)

// DefaultKey — ключ записи сессии в Redis.
const DefaultKey = "marketstream:session"

// Redis хранит запись JSON-строкой с TTL = остаток срока жизни.
type Redis struct {
	client     goredis.UniversalClient
	key        string
	ttl        time.Duration
	log        *logger.Logger
	backoffCfg backoff.Config
	now        func() time.Time
}

// NewRedis оборачивает уже подключённый клиент (см. common/redis.New).
func NewRedis(client goredis.UniversalClient, key string, ttl time.Duration, bo backoff.Config, log *logger.Logger) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, key: key, ttl: ttl, log: log.Named("credstore"), backoffCfg: bo, now: time.Now}
}

func (r *Redis) Load(ctx context.Context) (Credentials, error) {
	ctx, span := tracer.Start(ctx, "Load", trace.WithAttributes(attribute.String("key", r.key)))
	defer span.End()

	var data []byte
	op := func(ctx context.Context) error {
		b, err := r.client.Get(ctx, r.key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return backoff.Permanent(ErrNotFound)
		}
		if err != nil {
			return err
		}
		data = b
		return nil
	}
	if err := backoff.Execute(ctx, r.backoffCfg, r.log, op); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Credentials{}, ErrNotFound
		}
		redisErrors.WithLabelValues("load").Inc()
		span.RecordError(err)
		return Credentials{}, fmt.Errorf("credstore: load: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		// битая запись, та же судьба, что у просроченной
		r.log.WithContext(ctx).Warn("credstore: malformed record", zap.Error(err))
		return Credentials{}, fmt.Errorf("%w: malformed record: %v", ErrInvalidCredentials, err)
	}
	return c, nil
}

func (r *Redis) Save(ctx context.Context, c Credentials) error {
	ctx, span := tracer.Start(ctx, "Save", trace.WithAttributes(attribute.String("key", r.key)))
	defer span.End()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("credstore: encode: %w", err)
	}
	ttl := r.ttl - r.now().Sub(c.Timestamp)
	if ttl <= 0 {
		return fmt.Errorf("%w: already expired", ErrInvalidCredentials)
	}

	op := func(ctx context.Context) error { return r.client.Set(ctx, r.key, data, ttl).Err() }
	if err := backoff.Execute(ctx, r.backoffCfg, r.log, op); err != nil {
		redisErrors.WithLabelValues("save").Inc()
		span.RecordError(err)
		return fmt.Errorf("credstore: save: %w", err)
	}
	r.log.WithContext(ctx).Info("credstore: session saved", zap.String("subdomain", c.Subdomain), zap.Duration("ttl", ttl))
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Clear", trace.WithAttributes(attribute.String("key", r.key)))
	defer span.End()

	op := func(ctx context.Context) error { return r.client.Del(ctx, r.key).Err() }
	if err := backoff.Execute(ctx, r.backoffCfg, r.log, op); err != nil {
		redisErrors.WithLabelValues("clear").Inc()
		span.RecordError(err)
		return fmt.Errorf("credstore: clear: %w", err)
	}
	return nil
}
