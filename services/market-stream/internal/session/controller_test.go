// services/market-stream/internal/session/controller_test.go
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/credstore"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/sink"
)

var errPeerClosed = errors.New("peer closed")

type fakeConn struct {
	endpoint string
	in       chan frame.Message
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	written []frame.Message
}

func newFakeConn(endpoint string) *fakeConn {
	return &fakeConn{endpoint: endpoint, in: make(chan frame.Message, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (frame.Message, error) {
	select {
	case m := <-f.in:
		return m, nil
	case <-f.closed:
		return frame.Message{}, errPeerClosed
	}
}

func (f *fakeConn) WriteMessage(m frame.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, m)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeDialer отдаёт новое соединение на каждый Dial; fails первых вызовов падают.
type fakeDialer struct {
	mu     sync.Mutex
	fails  int
	calls  int
	dialed chan *fakeConn
}

func newFakeDialer() *fakeDialer { return &fakeDialer{dialed: make(chan *fakeConn, 16)} }

func (d *fakeDialer) Dial(_ context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	d.calls++
	fail := d.calls <= d.fails
	d.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn(endpoint)
	d.dialed <- c
	return c, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recorder struct {
	mu     sync.Mutex
	events []sink.Event
}

func (r *recorder) Emit(ev sink.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind sink.Kind, prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind && strings.HasPrefix(ev.Message, prefix) {
			n++
		}
	}
	return n
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	c      *Controller
	dialer *fakeDialer
	rec    *recorder
	store  *credstore.Memory
	clock  *clock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"2885_NSE"}
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Hour
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 20 * time.Millisecond
	}
	h := &harness{
		dialer: newFakeDialer(),
		rec:    &recorder{},
		store:  credstore.NewMemory(),
		clock:  &clock{t: time.Date(2024, 6, 10, 9, 15, 0, 0, time.UTC)},
	}
	c, err := New(cfg, h.dialer, frame.NewDecoder(packetspec.Legacy()), h.store, h.rec, logger.Nop(), WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.c = c

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return h
}

func (h *harness) creds() credstore.Credentials {
	return credstore.Credentials{
		Subdomain:   "https://dc5.example.com/",
		APIKey:      "key-1",
		AccessToken: "tok-1",
		Timestamp:   h.clock.Now(),
	}
}

func (h *harness) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-h.dialer.dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no dial")
		return nil
	}
}

func (h *harness) noDial(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case <-h.dialer.dialed:
		t.Fatal("unexpected dial")
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func quoteFrame(t *testing.T, symbol string) frame.Message {
	t.Helper()
	spec, _ := packetspec.Legacy().Lookup(packetspec.LegacyQuote)
	raw, err := frame.Encode(spec, frame.Field{ID: 1, Value: symbol}, frame.Field{ID: 2, Value: 812.4})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return frame.Message{Data: raw}
}

func TestController_ConnectSubscribes(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.c.Connect(context.Background(), h.creds()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := h.nextConn(t)
	waitFor(t, "subscribed", func() bool { return h.c.State() == Subscribed })

	if !strings.HasPrefix(conn.endpoint, "wss://dc5.example.com/market-stream?") ||
		!strings.Contains(conn.endpoint, "token=tok-1") || !strings.Contains(conn.endpoint, "apikey=key-1") {
		t.Errorf("endpoint = %q", conn.endpoint)
	}
	conn.mu.Lock()
	written := conn.written
	conn.mu.Unlock()
	want := `{"request":{"streaming_type":"quote","request_type":"subscribe","data":{"symbols":[{"symbol":"2885_NSE"}]}}}` + "\n"
	if len(written) != 1 || string(written[0].Data) != want || !written[0].Text {
		t.Errorf("written = %v", written)
	}
	if _, err := h.store.Load(context.Background()); err != nil {
		t.Errorf("credentials not persisted: %v", err)
	}
	if h.rec.count(sink.KindConnection, "Connected to TradeBridge WebSocket") != 1 {
		t.Error("missing connected event")
	}

	conn.in <- quoteFrame(t, "SBIN")
	waitFor(t, "active", func() bool { return h.c.Status().Records == 1 })
	if st := h.c.Status(); st.State != Active || st.SessionID == "" || st.Subdomain != "https://dc5.example.com/" {
		t.Errorf("status = %+v", st)
	}
	if h.rec.count(sink.KindRecord, "Decoded Data: quote{symbol=SBIN") != 1 {
		t.Error("missing record event")
	}
}

func TestController_PauseDiscardsResumeContinues(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_ = h.c.Connect(ctx, h.creds())
	conn := h.nextConn(t)

	conn.in <- quoteFrame(t, "A")
	waitFor(t, "first record", func() bool { return h.c.Status().Records == 1 })

	if err := h.c.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if s := h.c.State(); s != Paused {
		t.Errorf("state = %v, want paused", s)
	}
	conn.in <- quoteFrame(t, "B")
	conn.in <- quoteFrame(t, "C")
	waitFor(t, "dropped frames", func() bool { return h.c.Status().Dropped == 2 })
	if st := h.c.Status(); st.Records != 1 || st.Frames != 3 {
		t.Errorf("paused frames decoded: %+v", st)
	}

	if err := h.c.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	conn.in <- quoteFrame(t, "D")
	waitFor(t, "record after resume", func() bool { return h.c.Status().Records == 2 })
	if h.rec.count(sink.KindRecord, "Decoded Data: quote{symbol=B") != 0 {
		t.Error("discarded frame was replayed")
	}
	if h.rec.count(sink.KindRecord, "Decoded Data: quote{symbol=D") != 1 {
		t.Error("frame after resume not emitted")
	}
	if conn.isClosed() {
		t.Error("pause must keep the transport open")
	}
}

func TestController_CloseSchedulesOneReconnect(t *testing.T) {
	h := newHarness(t, Config{})
	_ = h.c.Connect(context.Background(), h.creds())
	first := h.nextConn(t)
	waitFor(t, "subscribed", func() bool { return h.c.State() == Subscribed })

	_ = first.Close()
	second := h.nextConn(t)
	waitFor(t, "resubscribed", func() bool { return h.c.State() == Subscribed })
	h.noDial(t, 100*time.Millisecond)

	if st := h.c.Status(); st.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", st.Attempts)
	}
	if h.rec.count(sink.KindDiagnostic, "WebSocket connection closed") != 1 {
		t.Error("close diagnostic missing")
	}
	if second.isClosed() {
		t.Error("new connection closed")
	}
}

func TestController_DialFailureRetries(t *testing.T) {
	h := newHarness(t, Config{})
	h.dialer.fails = 2
	_ = h.c.Connect(context.Background(), h.creds())

	h.nextConn(t)
	waitFor(t, "subscribed", func() bool { return h.c.State() == Subscribed })
	if got := h.dialer.Calls(); got != 3 {
		t.Errorf("dial calls = %d, want 3", got)
	}
	if h.rec.count(sink.KindDiagnostic, "Failed to connect to WebSocket") != 2 {
		t.Error("dial failures not reported")
	}
}

func TestController_LogoutStopsReconnect(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_ = h.c.Connect(ctx, h.creds())
	conn := h.nextConn(t)
	waitFor(t, "subscribed", func() bool { return h.c.State() == Subscribed })

	if err := h.c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !conn.isClosed() {
		t.Error("transport left open")
	}
	if s := h.c.State(); s != LoggedOut {
		t.Errorf("state = %v", s)
	}
	h.noDial(t, 100*time.Millisecond)

	if _, err := h.store.Load(ctx); !errors.Is(err, credstore.ErrNotFound) {
		t.Errorf("store after logout: %v", err)
	}
	if err := h.c.Pause(ctx); !errors.Is(err, ErrLoggedOut) {
		t.Errorf("Pause after logout = %v", err)
	}
	if err := h.c.Logout(ctx); err != nil {
		t.Errorf("second Logout = %v", err)
	}
}

func TestController_ConnectReplacesHandle(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	_ = h.c.Connect(ctx, h.creds())
	first := h.nextConn(t)
	waitFor(t, "subscribed", func() bool { return h.c.State() == Subscribed })
	sid := h.c.Status().SessionID

	_ = h.c.Connect(ctx, h.creds())
	second := h.nextConn(t)
	waitFor(t, "first closed", first.isClosed)
	waitFor(t, "subscribed again", func() bool { return h.c.State() == Subscribed })

	if h.c.Status().SessionID == sid {
		t.Error("explicit connect must start a new session id")
	}
	// устаревшее соединение не влияет на сессию
	h.noDial(t, 100*time.Millisecond)
	if second.isClosed() {
		t.Error("current connection closed")
	}
}

func TestController_Restore(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		wantErr error
		dial    bool
	}{
		{"fresh", time.Second, nil, true},
		{"expired", 25 * time.Hour, credstore.ErrInvalidCredentials, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			ctx := context.Background()
			c := h.creds()
			c.Timestamp = h.clock.Now().Add(-tt.age)
			_ = h.store.Save(ctx, c)

			err := h.c.Restore(ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Restore = %v, want %v", err, tt.wantErr)
			}
			if tt.dial {
				h.nextConn(t)
				return
			}
			h.noDial(t, 50*time.Millisecond)
			if _, err := h.store.Load(ctx); !errors.Is(err, credstore.ErrNotFound) {
				t.Errorf("expired record not purged: %v", err)
			}
		})
	}
}

func TestController_RestoreEmptyStore(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.c.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	h.noDial(t, 50*time.Millisecond)
	if s := h.c.State(); s != Disconnected {
		t.Errorf("state = %v", s)
	}
}

func TestController_NoReconnectWithExpiredCredentials(t *testing.T) {
	h := newHarness(t, Config{})
	_ = h.c.Connect(context.Background(), h.creds())
	conn := h.nextConn(t)
	waitFor(t, "subscribed", func() bool { return h.c.State() == Subscribed })

	h.clock.Add(25 * time.Hour)
	_ = conn.Close()
	waitFor(t, "disconnected", func() bool { return h.c.State() == Disconnected })
	h.noDial(t, 100*time.Millisecond)
	waitFor(t, "purged", func() bool {
		_, err := h.store.Load(context.Background())
		return errors.Is(err, credstore.ErrNotFound)
	})
}

func TestController_IdleWatchdog(t *testing.T) {
	h := newHarness(t, Config{IdleTimeout: 30 * time.Millisecond})
	_ = h.c.Connect(context.Background(), h.creds())
	conn := h.nextConn(t)

	waitFor(t, "two idle events", func() bool {
		return h.rec.count(sink.KindIdle, "No data received in") >= 2
	})
	if conn.isClosed() {
		t.Error("idle watchdog must not close the transport")
	}
	if s := h.c.State(); s != Subscribed {
		t.Errorf("state = %v", s)
	}
}

func TestController_Diagnostics(t *testing.T) {
	h := newHarness(t, Config{})
	_ = h.c.Connect(context.Background(), h.creds())
	conn := h.nextConn(t)

	conn.in <- frame.Message{Data: []byte{3, 0, 99}}
	conn.in <- frame.Message{Data: []byte(`{"status":"ok"}`), Text: true}
	conn.in <- quoteFrame(t, "SBIN")
	waitFor(t, "record after diagnostics", func() bool { return h.c.Status().Records == 1 })

	if st := h.c.Status(); st.Diagnostics != 2 {
		t.Errorf("diagnostics = %d", st.Diagnostics)
	}
	if h.rec.count(sink.KindDiagnostic, "Unknown packet type: 99") != 1 {
		t.Error("unknown packet diagnostic missing")
	}
	if h.rec.count(sink.KindDiagnostic, `Server response: {"status":"ok"}`) != 1 {
		t.Error("text response diagnostic missing")
	}
	if conn.isClosed() {
		t.Error("decode errors must not close the transport")
	}
}

func TestController_StoppedLoop(t *testing.T) {
	c, err := New(Config{Symbols: []string{"X"}}, newFakeDialer(), frame.NewDecoder(packetspec.Legacy()), credstore.NewMemory(), nil, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if err := c.Pause(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Pause on stopped loop = %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, newFakeDialer(), frame.NewDecoder(packetspec.Legacy()), credstore.NewMemory(), nil, logger.Nop())
	if err == nil {
		t.Error("expected error without symbols")
	}
}
