// services/market-stream/internal/storage/timescaledb/timescaledb.go

// Package timescaledb архивирует декодированные котировки в TimescaleDB.
package timescaledb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Muritor08/TB-WSS/common/backoff"
	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/common/telemetry"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/sink"
)

var tracer = telemetry.Tracer("market-stream/storage/timescaledb")

const insertQuote = `INSERT INTO quotes (
	time, session_id, symbol, packet_type, packet_name, truncated, fields
) VALUES ($1, $2, $3, $4, $5, $6, $7)`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Writer — sink.Handler, вставляющий записи в таблицу quotes.
type Writer struct {
	db   execer
	pool *pgxpool.Pool
	cfg  Config
	log  *logger.Logger
}

var _ sink.Handler = (*Writer)(nil)

// New применяет миграции (если cfg.Migrate), поднимает пул и проверяет связь.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Writer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.Named("timescaledb")

	pgxCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("timescaledb: parse dsn: %w", err)
	}
	pgxCfg.MaxConns = cfg.MaxConns

	var pool *pgxpool.Pool
	err = backoff.Execute(ctx, cfg.Backoff, log, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, pgxCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("timescaledb: connect: %w", err)
	}

	if cfg.Migrate {
		if err := Migrate(cfg.DSN); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("migrations applied")
	}
	log.Info("connected", zap.Int32("max_conns", cfg.MaxConns))
	return &Writer{db: pool, pool: pool, cfg: cfg, log: log}, nil
}

// Handle сохраняет событие записи; прочие события игнорируются.
func (w *Writer) Handle(ctx context.Context, ev sink.Event) error {
	if ev.Kind != sink.KindRecord || ev.Record == nil {
		return nil
	}
	rec := ev.Record
	ctx, span := tracer.Start(ctx, "timescaledb.insert", trace.WithAttributes(
		attribute.String("symbol", rec.Symbol()),
		attribute.Int("packet_type", int(rec.PacketType)),
	))
	defer span.End()

	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("timescaledb: encode fields: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	_, err = w.db.Exec(ctx, insertQuote,
		ev.Time.UTC(),
		ev.SessionID,
		rec.Symbol(),
		int16(rec.PacketType),
		rec.Name,
		rec.Truncated,
		fields,
	)
	if err != nil {
		span.RecordError(err)
		w.log.WithContext(ctx).Error("insert failed", zap.String("symbol", rec.Symbol()), zap.Error(err))
		return fmt.Errorf("timescaledb insert: %w", err)
	}
	return nil
}

// Ping проверяет доступность БД.
func (w *Writer) Ping(ctx context.Context) error {
	if w.pool == nil {
		return nil
	}
	return w.pool.Ping(ctx)
}

// Close закрывает пул.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}
