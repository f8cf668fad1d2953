// services/market-stream/internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Muritor08/TB-WSS/common"
	"github.com/Muritor08/TB-WSS/common/httpserver"
	"github.com/Muritor08/TB-WSS/common/kafka/producer"
	"github.com/Muritor08/TB-WSS/common/logger"
	commonprom "github.com/Muritor08/TB-WSS/common/prometheus"
	"github.com/Muritor08/TB-WSS/common/redis"
	"github.com/Muritor08/TB-WSS/common/shutdown"
	"github.com/Muritor08/TB-WSS/common/telemetry"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/api"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/config"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/credstore"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/metrics"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/session"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/sink"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/storage/timescaledb"
	transport "github.com/Muritor08/TB-WSS/services/market-stream/internal/transport/tradebridge"
	"github.com/Muritor08/TB-WSS/services/market-stream/pkg/tradebridge"
)

// readyCheck — проверка одного внешнего зависимого сервиса.
type readyCheck func(ctx context.Context) error

// Run поднимает сервис и блокируется до отмены ctx.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	common.InitServiceName(cfg.ServiceName)
	metrics.Register()
	transport.RegisterMetrics(commonprom.Pick())

	// Трассировка
	cfg.Telemetry.ServiceName = cfg.ServiceName
	cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdown.GracefulShutdown("telemetry", 5*time.Second, shutdownTracer, log)

	// Реестр пакетов и декодер
	reg, family, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("packet registry: %w", err)
	}
	dec := frame.NewDecoder(reg, frame.WithFamily(family))
	log.Info("packet registry loaded",
		zap.String("registry", cfg.Stream.Registry),
		zap.String("family", string(family)),
		zap.Int("packets", len(reg.Types())),
	)

	var checks []readyCheck

	// Хранилище учётных данных
	var store credstore.Store
	if cfg.Redis.URL != "" {
		client, err := redis.New(ctx, cfg.Redis.Config, log)
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer shutdownSafe(ctx, "redis", client.Close, log)
		store = credstore.NewRedis(client, cfg.Redis.Key, cfg.Stream.CredentialTTL, cfg.Redis.Backoff, log)
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
	} else {
		log.Warn("redis.url is empty: session credentials are kept in memory only")
		store = credstore.NewMemory()
	}

	// Синки
	logs := sink.NewBuffer(cfg.LogBuffer)
	sinks := sink.Fanout{logs, sink.NewLog(log)}
	var workers []*sink.Async

	if cfg.Kafka.Enabled {
		prod, err := producer.New(ctx, cfg.Kafka.Config, log)
		if err != nil {
			return fmt.Errorf("kafka producer init: %w", err)
		}
		defer shutdownSafe(ctx, "kafka-producer", prod.Close, log)
		a := sink.NewAsync("kafka", sink.NewKafka(prod, cfg.Kafka.Topic), cfg.Kafka.QueueSize, log, sink.KindRecord)
		workers = append(workers, a)
		sinks = append(sinks, a)
		checks = append(checks, prod.Ping)
	}

	if cfg.Timescale.Enabled() {
		w, err := timescaledb.New(ctx, cfg.Timescale.Config, log)
		if err != nil {
			return fmt.Errorf("timescaledb init: %w", err)
		}
		defer w.Close()
		a := sink.NewAsync("timescale", w, cfg.Timescale.QueueSize, log, sink.KindRecord)
		workers = append(workers, a)
		sinks = append(sinks, a)
		checks = append(checks, w.Ping)
	}

	// Сессия
	dialer := transport.NewDialer(tradebridge.NewDialer(cfg.Transport, log))
	ctrl, err := session.New(cfg.Stream.Config, dialer, dec, store, sinks, log)
	if err != nil {
		return fmt.Errorf("session init: %w", err)
	}

	// HTTP-сервер
	readiness := func() error {
		select {
		case <-ctrl.Done():
			return session.ErrStopped
		default:
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		for _, check := range checks {
			if err := check(cctx); err != nil {
				return err
			}
		}
		return nil
	}
	httpSrv, err := httpserver.New(cfg.HTTP, readiness, log, api.Routes(api.NewHandler(ctrl, logs, log)))
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.Start(ctx) })
	for _, a := range workers {
		a := a
		g.Go(func() error { return a.Run(ctx) })
	}
	g.Go(func() error { return ctrl.Run(ctx) })
	g.Go(func() error {
		// автоподключение по сохранённой сессии
		err := ctrl.Restore(ctx)
		switch {
		case err == nil, errors.Is(err, credstore.ErrInvalidCredentials):
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		default:
			log.Warn("restore session failed", zap.Error(err))
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithContext(ctx).Info("market-stream stopped by context")
			return nil
		}
		return err
	}
	return nil
}

// shutdownSafe оборачивает вызов Close() с логированием.
func shutdownSafe(ctx context.Context, name string, fn func() error, log *logger.Logger) {
	log.WithContext(ctx).Info(fmt.Sprintf("%s: shutting down", name))
	if err := fn(); err != nil {
		log.WithContext(ctx).Error(fmt.Sprintf("%s shutdown error", name), zap.Error(err))
	} else {
		log.WithContext(ctx).Info(fmt.Sprintf("%s: shutdown complete", name))
	}
}
