// services/market-stream/internal/storage/timescaledb/timescaledb_test.go
package timescaledb

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/sink"
)

type fakeExec struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql, f.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func newTestWriter(db execer) *Writer {
	cfg := Config{DSN: "postgres://localhost/test"}
	cfg.ApplyDefaults()
	return &Writer{db: db, cfg: cfg, log: logger.Nop()}
}

func TestWriter_HandleRecord(t *testing.T) {
	db := &fakeExec{}
	w := newTestWriter(db)
	rec := &frame.Record{PacketType: 49, Name: "quote", Fields: map[string]any{"symbol": "SBIN-EQ", "ltp": "812.40"}}
	at := time.Date(2024, 6, 10, 9, 15, 0, 0, time.FixedZone("IST", 19800))

	if err := w.Handle(context.Background(), sink.Event{Kind: sink.KindRecord, Record: rec, Time: at, SessionID: "s-1"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if db.sql != insertQuote || len(db.args) != 7 {
		t.Fatalf("unexpected exec: %q %v", db.sql, db.args)
	}
	if got := db.args[0].(time.Time); got.Location() != time.UTC || !got.Equal(at) {
		t.Errorf("time = %v", got)
	}
	if db.args[2] != "SBIN-EQ" || db.args[3] != int16(49) || db.args[4] != "quote" {
		t.Errorf("args = %v", db.args)
	}
	var fields map[string]any
	if err := json.Unmarshal(db.args[6].([]byte), &fields); err != nil || fields["ltp"] != "812.40" {
		t.Errorf("fields = %s (%v)", db.args[6], err)
	}
}

func TestWriter_IgnoresOtherEvents(t *testing.T) {
	db := &fakeExec{}
	if err := newTestWriter(db).Handle(context.Background(), sink.Event{Kind: sink.KindIdle}); err != nil {
		t.Fatal(err)
	}
	if db.sql != "" {
		t.Error("non-record event reached the database")
	}
}

func TestWriter_ExecError(t *testing.T) {
	boom := errors.New("connection reset")
	w := newTestWriter(&fakeExec{err: boom})
	err := w.Handle(context.Background(), sink.Event{Kind: sink.KindRecord, Record: &frame.Record{Fields: map[string]any{}}})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestConfig(t *testing.T) {
	var c Config
	if c.Enabled() || c.Validate() != nil {
		t.Error("empty config must be a valid disabled archive")
	}
	c = Config{DSN: "postgres://x", MaxConns: -1}
	if err := c.Validate(); err == nil {
		t.Error("expected max_conns error")
	}
	c.ApplyDefaults()
	if c.MaxConns != 4 || c.Timeout != 5*time.Second {
		t.Errorf("defaults = %+v", c)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil || len(files) == 0 {
		t.Fatalf("no embedded migrations: %v", err)
	}
}
