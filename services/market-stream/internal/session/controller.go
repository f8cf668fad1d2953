// services/market-stream/internal/session/controller.go

// Package session управляет стримом котировок: подключение, подписка,
// разбор кадров, пауза, idle-watchdog и переподключение.
//
// Всё изменяемое состояние принадлежит одной горутине (Run). Команды,
// кадры и срабатывания таймеров приходят в неё сообщениями; каждое
// сообщение помечено поколением соединения, устаревшие отбрасываются.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/common/safe"
	"github.com/Muritor08/TB-WSS/common/telemetry"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/credstore"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/metrics"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/sink"
)

var tracer = telemetry.Tracer("market-stream/session")

// Config — параметры сессии.
type Config struct {
	URLTemplate    string        `mapstructure:"url_template" yaml:"url_template"`
	Symbols        []string      `mapstructure:"symbols" yaml:"symbols"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	CredentialTTL  time.Duration `mapstructure:"credential_ttl" yaml:"credential_ttl"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

func (c *Config) applyDefaults() {
	if c.URLTemplate == "" {
		c.URLTemplate = DefaultURLTemplate
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.CredentialTTL <= 0 {
		c.CredentialTTL = credstore.DefaultTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 15 * time.Second
	}
}

// Validate проверяет конфигурацию после заполнения значений по умолчанию.
func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("session: at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("session: empty symbol")
		}
	}
	return nil
}

// Option настраивает Controller.
type Option func(*Controller)

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

type eventKind int

const (
	evDialed eventKind = iota
	evFrame
	evClosed
	evIdle
	evReconnect
)

// event — сообщение от транспорта или таймера в цикл.
type event struct {
	kind eventKind
	gen  uint64 // поколение соединения
	seq  uint64 // номер взвода таймера
	conn Conn
	msg  frame.Message
	err  error
}

type command struct {
	fn    func() error
	reply chan error
}

// Controller — владелец соединения и его таймеров.
type Controller struct {
	cfg    Config
	dialer Dialer
	dec    *frame.Decoder
	store  credstore.Store
	out    sink.Sink
	log    *logger.Logger
	now    func() time.Time

	cmds   chan command
	events chan event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
	ctx    context.Context // контекст Run, для диалов

	// Ниже — только горутина Run.
	state      State
	paused     bool
	gen        uint64
	conn       Conn
	dialCancel context.CancelFunc
	creds      credstore.Credentials
	hasCreds   bool
	sessionID  string

	idle        *time.Timer
	idleSeq     uint64
	reconnect   *time.Timer
	reconnSeq   uint64
	attempts    int
	frames      uint64
	dropped     uint64
	records     uint64
	diagnostics uint64
	lastFrame   time.Time

	mu   sync.RWMutex
	snap Status
}

// New создаёт контроллер. Цикл запускается через Run.
func New(cfg Config, dialer Dialer, dec *frame.Decoder, store credstore.Store, out sink.Sink, log *logger.Logger, opts ...Option) (*Controller, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil || dec == nil || store == nil {
		return nil, fmt.Errorf("session: dialer, decoder and store are required")
	}
	if out == nil {
		out = sink.Fanout(nil)
	}
	c := &Controller{
		cfg:    cfg,
		dialer: dialer,
		dec:    dec,
		store:  store,
		out:    out,
		log:    log.Named("session"),
		now:    time.Now,
		cmds:   make(chan command),
		events: make(chan event, 256),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		state:  Disconnected,
	}
	for _, o := range opts {
		o(c)
	}
	c.publish()
	return c, nil
}

// Run — цикл контроллера. Возвращает nil после отмены ctx или Close.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx
	defer close(c.done)
	defer c.teardown()

	c.log.Info("session loop started", zap.Strings("symbols", c.cfg.Symbols))
	for {
		select {
		case <-ctx.Done():
			c.log.Info("session loop stopped")
			return nil
		case <-c.quit:
			c.log.Info("session loop closed")
			return nil
		case cmd := <-c.cmds:
			cmd.reply <- cmd.fn()
		case ev := <-c.events:
			c.handle(ev)
		}
		c.publish()
	}
}

// Close останавливает цикл: таймеры снимаются, соединение закрывается.
// Сохранённые учётные данные не трогаются.
func (c *Controller) Close() error {
	c.once.Do(func() { close(c.quit) })
	return nil
}

// Done закрывается после выхода из Run.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Status — последний опубликованный снимок.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.snap
	s.Symbols = append([]string(nil), c.snap.Symbols...)
	return s
}

// State — видимое состояние (Paused поверх подписки).
func (c *Controller) State() State { return c.Status().State }

// Connect сохраняет учётные данные и открывает новое соединение, закрыв
// текущее. Диал асинхронный: итог виден в Status и в событиях.
func (c *Controller) Connect(ctx context.Context, creds credstore.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if creds.Timestamp.IsZero() {
		creds.Timestamp = c.now()
	}
	if err := c.store.Save(ctx, creds); err != nil {
		return fmt.Errorf("session: save credentials: %w", err)
	}
	return c.do(ctx, func() error {
		c.start(creds, true)
		return nil
	})
}

// Restore поднимает сессию из хранилища при старте процесса.
// Нет записи → nil без подключения; просроченная запись удаляется.
func (c *Controller) Restore(ctx context.Context) error {
	creds, err := c.store.Load(ctx)
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		c.log.Info("no saved session")
		return nil
	case errors.Is(err, credstore.ErrInvalidCredentials):
		c.purge(ctx, err)
		return err
	case err != nil:
		return fmt.Errorf("session: load credentials: %w", err)
	}
	if err := creds.Check(c.now(), c.cfg.CredentialTTL); err != nil {
		c.purge(ctx, err)
		return err
	}
	c.log.Info("restoring saved session", zap.Stringer("credentials", creds))
	return c.do(ctx, func() error {
		c.start(creds, true)
		return nil
	})
}

// Pause включает отбрасывание кадров. Соединение остаётся открытым.
func (c *Controller) Pause(ctx context.Context) error {
	return c.do(ctx, func() error { return c.setPaused(true) })
}

// Resume возобновляет разбор со следующего кадра.
func (c *Controller) Resume(ctx context.Context) error {
	return c.do(ctx, func() error { return c.setPaused(false) })
}

// Logout закрывает соединение, снимает таймеры и удаляет учётные данные.
// Повторный вызов безопасен.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.do(ctx, c.logout); err != nil {
		return err
	}
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("session: clear credentials: %w", err)
	}
	return nil
}

// do выполняет fn в горутине цикла.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrStopped
	}
}

// post доставляет событие в цикл; false, если цикл уже завершён.
func (c *Controller) post(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) purge(ctx context.Context, cause error) {
	c.log.Warn("saved session is not usable, purging", zap.Error(cause))
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("purge credentials failed", zap.Error(err))
	}
	// вне цикла: sessionID не читаем
	c.out.Emit(sink.Event{Time: c.now(), Kind: sink.KindControl, Message: "Saved session expired, please log in again", Err: cause})
}

// ---- горутина цикла ----

func (c *Controller) handle(ev event) {
	switch ev.kind {
	case evDialed:
		c.onDialed(ev)
	case evFrame:
		if ev.gen == c.gen && c.conn != nil {
			c.onFrame(ev.msg)
		}
	case evClosed:
		if ev.gen == c.gen && c.conn != nil {
			c.onClose(ev.err)
		}
	case evIdle:
		if ev.gen == c.gen && ev.seq == c.idleSeq && c.conn != nil {
			c.onIdle()
		}
	case evReconnect:
		if ev.seq == c.reconnSeq && c.reconnect != nil {
			c.reconnect = nil
			c.onReconnect()
		}
	}
}

// start закрывает текущее соединение и запускает диал нового поколения.
// fresh — явное подключение: новый id сессии и сброс счётчика попыток.
func (c *Controller) start(creds credstore.Credentials, fresh bool) {
	c.dropConn()
	c.stopReconnect()
	c.creds, c.hasCreds = creds, true
	if fresh || c.sessionID == "" {
		c.sessionID = uuid.NewString()
		c.attempts = 0
		c.paused = false
	}
	c.gen++
	c.state = Connecting

	endpoint, err := Endpoint(c.cfg.URLTemplate, creds)
	if err != nil {
		c.emit(sink.KindDiagnostic, "Failed to connect to WebSocket: "+err.Error(), err)
		c.state = Disconnected
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.DialTimeout)
	c.dialCancel = cancel
	gen, sid := c.gen, c.sessionID
	safe.Go(c.log, "session-dial", func() {
		defer cancel()
		conn, err := c.dial(ctx, endpoint, sid)
		if !c.post(event{kind: evDialed, gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}, nil)
}

// dial открывает соединение и отправляет подписку.
func (c *Controller) dial(ctx context.Context, endpoint, sessionID string) (Conn, error) {
	ctx, span := tracer.Start(ctx, "session.connect")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("symbols", len(c.cfg.Symbols)),
	)

	conn, err := c.dialer.Dial(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return nil, err
	}
	sub, err := SubscribeMessage(c.cfg.Symbols)
	if err == nil {
		err = conn.WriteMessage(frame.Message{Data: sub, Text: true})
	}
	if err != nil {
		_ = conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscribe failed")
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return conn, nil
}

func (c *Controller) onDialed(ev event) {
	if ev.gen != c.gen || c.state != Connecting {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	c.dialCancel = nil
	if ev.err != nil {
		c.log.Warn("dial failed", zap.Error(ev.err))
		c.emit(sink.KindDiagnostic, "Failed to connect to WebSocket: "+ev.err.Error(), ev.err)
		c.state = Disconnected
		c.scheduleReconnect()
		return
	}

	c.conn = ev.conn
	c.state = Subscribed
	c.emit(sink.KindConnection, "Connected to TradeBridge WebSocket", nil)
	c.emit(sink.KindConnection, "Subscription message sent", nil)
	c.armIdle()

	gen, conn := c.gen, c.conn
	safe.Go(c.log, "session-reader", func() { c.read(gen, conn) }, func(err error) {
		c.post(event{kind: evClosed, gen: gen, err: err})
	})
}

// read — читатель одного соединения. Завершается на первой ошибке.
func (c *Controller) read(gen uint64, conn Conn) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			c.post(event{kind: evClosed, gen: gen, err: err})
			return
		}
		if !c.post(event{kind: evFrame, gen: gen, msg: msg}) {
			return
		}
	}
}

func (c *Controller) onFrame(msg frame.Message) {
	c.frames++
	c.lastFrame = c.now()
	c.armIdle()
	if c.state == Subscribed {
		c.state = Active
	}
	if c.paused {
		c.dropped++
		metrics.FramesTotal.WithLabelValues("paused").Inc()
		return
	}

	_, span := tracer.Start(c.ctx, "session.decode")
	start := time.Now()
	rec, err := c.dec.Decode(msg)
	metrics.DecodeLatency.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("bytes", len(msg.Data)), attribute.Bool("text", msg.Text))
	defer span.End()

	if err != nil {
		c.diagnostics++
		metrics.FramesTotal.WithLabelValues("diagnostic").Inc()
		var de *frame.DiagnosticError
		kind := "other"
		if errors.As(err, &de) {
			kind = de.Kind()
		}
		metrics.DecodeErrors.WithLabelValues(kind).Inc()
		span.SetAttributes(attribute.String("diagnostic", kind))
		c.emit(sink.KindDiagnostic, diagnosticLine(msg, de, err), err)
		return
	}

	c.records++
	metrics.FramesTotal.WithLabelValues("record").Inc()
	if rec.Truncated {
		metrics.TruncatedRecords.Inc()
	}
	span.SetAttributes(attribute.String("packet", rec.Name))
	ev := c.event(sink.KindRecord, "Decoded Data: "+rec.String(), nil)
	ev.Record = &rec
	c.out.Emit(ev)
}

// diagnosticLine — строка лога для ошибки разбора.
func diagnosticLine(msg frame.Message, de *frame.DiagnosticError, err error) string {
	switch {
	case de != nil && errors.Is(err, frame.ErrUnknownPacketType):
		return fmt.Sprintf("Unknown packet type: %d", de.PacketType)
	case msg.Text && errors.Is(err, frame.ErrUnsupportedEncoding):
		return "Server response: " + string(msg.Data)
	default:
		return "Decode error: " + err.Error()
	}
}

func (c *Controller) onIdle() {
	metrics.IdleTimeouts.Inc()
	c.emit(sink.KindIdle, fmt.Sprintf("No data received in %d seconds, continuing to wait...", int(c.cfg.IdleTimeout/time.Second)), nil)
	c.armIdle()
}

func (c *Controller) onClose(err error) {
	c.dropConn()
	c.state = Disconnected
	if err == nil {
		err = ErrTransportClosed
	}
	c.log.Warn("transport closed", zap.Error(err))
	c.emit(sink.KindDiagnostic, "WebSocket connection closed: "+err.Error(), fmt.Errorf("%w: %w", ErrTransportClosed, err))
	c.scheduleReconnect()
}

// scheduleReconnect взводит единственный таймер переподключения, если
// учётные данные ещё годны. Просроченные удаляются из хранилища.
func (c *Controller) scheduleReconnect() {
	if c.reconnect != nil || c.state == LoggedOut {
		return
	}
	if !c.credsValid() {
		return
	}
	c.reconnSeq++
	seq := c.reconnSeq
	c.reconnect = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.post(event{kind: evReconnect, seq: seq})
	})
	c.emit(sink.KindConnection, fmt.Sprintf("Reconnecting in %s...", c.cfg.ReconnectDelay), nil)
}

func (c *Controller) onReconnect() {
	if c.state != Disconnected || !c.credsValid() {
		return
	}
	c.attempts++
	metrics.Reconnects.Inc()
	c.log.Info("reconnecting", zap.Int("attempt", c.attempts))
	c.start(c.creds, false)
}

// credsValid проверяет учётные данные в памяти; просроченные удаляются.
func (c *Controller) credsValid() bool {
	if !c.hasCreds {
		return false
	}
	err := c.creds.Check(c.now(), c.cfg.CredentialTTL)
	if err == nil {
		return true
	}
	c.hasCreds = false
	c.creds = credstore.Credentials{}
	store := c.store
	safe.Go(c.log, "session-purge", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Clear(ctx); err != nil {
			c.log.Warn("purge credentials failed", zap.Error(err))
		}
	}, nil)
	c.log.Warn("credentials expired, not reconnecting", zap.Error(err))
	c.emit(sink.KindControl, "Session expired, please log in again", err)
	return false
}

func (c *Controller) setPaused(p bool) error {
	if c.state == LoggedOut {
		return ErrLoggedOut
	}
	if c.paused == p {
		return nil
	}
	c.paused = p
	if p {
		c.emit(sink.KindControl, "Streaming paused", nil)
	} else {
		c.emit(sink.KindControl, "Streaming resumed", nil)
	}
	return nil
}

func (c *Controller) logout() error {
	if c.state == LoggedOut {
		return nil
	}
	c.dropConn()
	c.stopReconnect()
	c.gen++
	c.state = LoggedOut
	c.paused = false
	c.hasCreds = false
	c.creds = credstore.Credentials{}
	c.emit(sink.KindControl, "Logged out", nil)
	c.log.Info("logged out", zap.String("session_id", c.sessionID))
	return nil
}

// dropConn закрывает соединение, отменяет незавершённый диал и idle.
func (c *Controller) dropConn() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Debug("close transport", zap.Error(err))
		}
		c.conn = nil
	}
	c.stopIdle()
}

func (c *Controller) armIdle() {
	c.stopIdle()
	c.idleSeq++
	gen, seq := c.gen, c.idleSeq
	c.idle = time.AfterFunc(c.cfg.IdleTimeout, func() {
		c.post(event{kind: evIdle, gen: gen, seq: seq})
	})
}

func (c *Controller) stopIdle() {
	if c.idle != nil {
		c.idle.Stop()
		c.idle = nil
	}
	c.idleSeq++
}

func (c *Controller) stopReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.reconnSeq++
}

func (c *Controller) teardown() {
	c.dropConn()
	c.stopReconnect()
	c.gen++
	if c.state != LoggedOut {
		c.state = Disconnected
	}
	c.publish()
}

func (c *Controller) event(kind sink.Kind, msg string, err error) sink.Event {
	return sink.Event{Time: c.now(), Kind: kind, Message: msg, Err: err, SessionID: c.sessionID}
}

func (c *Controller) emit(kind sink.Kind, msg string, err error) {
	c.out.Emit(c.event(kind, msg, err))
}

// publish копирует состояние цикла в снимок для Status.
func (c *Controller) publish() {
	st := visible(c.state, c.paused)
	metrics.State.Set(float64(st))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = Status{
		State:       st,
		Paused:      c.paused,
		SessionID:   c.sessionID,
		Subdomain:   c.creds.Subdomain,
		Symbols:     c.cfg.Symbols,
		Attempts:    c.attempts,
		Frames:      c.frames,
		Dropped:     c.dropped,
		Records:     c.records,
		Diagnostics: c.diagnostics,
		LastFrame:   c.lastFrame,
	}
}
