// pkg/tradebridge/ws.go

// Package tradebridge, websocket-транспорт стрима котировок TradeBridge.
package tradebridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Muritor08/TB-WSS/common/logger"
)

// Message — одно сообщение websocket: бинарное или текстовое.
type Message struct {
	Data []byte
	Text bool
}

// Config задаёт параметры соединения.
type Config struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"` // по умолчанию 10s
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`     // дедлайн записи, 5s
	PingInterval     time.Duration `mapstructure:"ping_interval"`     // keepalive, 20s; <0 выключает
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`      // 0, без дедлайна чтения
	ReadLimit        int64         `mapstructure:"read_limit"`        // максимум байт в сообщении, 1 MiB
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
}

// Dialer открывает соединения с общими настройками.
type Dialer struct {
	cfg Config
	ws  *websocket.Dialer
	log *logger.Logger
}

// NewDialer создаёт Dialer. Логгер именуется "tradebridge-ws".
func NewDialer(cfg Config, log *logger.Logger) *Dialer {
	cfg.applyDefaults()
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: true,
		},
		log: log.Named("tradebridge-ws"),
	}
}

// Dial открывает соединение и запускает ping-горутину.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (*Conn, error) {
	ws, resp, err := d.ws.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("tradebridge: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("tradebridge: dial: %w", err)
	}
	ws.SetReadLimit(d.cfg.ReadLimit)

	c := &Conn{ws: ws, cfg: d.cfg, log: d.log, stop: make(chan struct{})}
	c.extendRead()
	ws.SetPongHandler(func(string) error {
		c.extendRead()
		return nil
	})
	if d.cfg.PingInterval > 0 {
		go c.pinger()
	}
	return c, nil
}

// Conn — открытое соединение. ReadMessage вызывается из одной горутины,
// WriteMessage и Close безопасны из любых.
type Conn struct {
	ws  *websocket.Conn
	cfg Config
	log *logger.Logger

	wmu  sync.Mutex
	stop chan struct{}
	once sync.Once
}

// ReadMessage блокируется до следующего сообщения с данными.
func (c *Conn) ReadMessage() (Message, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return Message{}, err
		}
		c.extendRead()
		switch typ {
		case websocket.BinaryMessage:
			return Message{Data: data}, nil
		case websocket.TextMessage:
			return Message{Data: data, Text: true}, nil
		}
	}
}

// WriteMessage отправляет сообщение с дедлайном записи.
func (c *Conn) WriteMessage(m Message) error {
	typ := websocket.BinaryMessage
	if m.Text {
		typ = websocket.TextMessage
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(typ, m.Data)
}

// Close отправляет close-кадр и закрывает сокет. Повторный вызов, no-op.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			c.log.Debug("close frame not sent", zap.Error(werr))
		}
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) extendRead() {
	if c.cfg.ReadTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}

func (c *Conn) pinger() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.log.Warn("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// IsNormalClose — сервер закрыл соединение штатно.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
