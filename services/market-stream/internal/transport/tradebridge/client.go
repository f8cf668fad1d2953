// services/market-stream/internal/transport/tradebridge/client.go

// Package tradebridge подключает websocket-транспорт к контроллеру сессии
// и добавляет к нему трассировку и метрики.
package tradebridge

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"github.com/Muritor08/TB-WSS/common/telemetry"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/session"
	"github.com/Muritor08/TB-WSS/services/market-stream/pkg/tradebridge"
)

var tracer = telemetry.Tracer("market-stream/transport/tradebridge")

// Dialer — session.Dialer поверх pkg/tradebridge.
type Dialer struct {
	ws *tradebridge.Dialer
}

var _ session.Dialer = (*Dialer)(nil)

// NewDialer оборачивает websocket-дайлер.
func NewDialer(ws *tradebridge.Dialer) *Dialer { return &Dialer{ws: ws} }

// Dial открывает соединение; endpoint в спан не пишется (в нём токен).
func (d *Dialer) Dial(ctx context.Context, endpoint string) (session.Conn, error) {
	ctx, span := tracer.Start(ctx, "tradebridge.dial")
	defer span.End()

	c, err := d.ws.Dial(ctx, endpoint)
	if err != nil {
		incConnect("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return nil, err
	}
	incConnect("ok")
	return &conn{c: c}, nil
}

type conn struct {
	c *tradebridge.Conn
}

func (c *conn) ReadMessage() (frame.Message, error) {
	m, err := c.c.ReadMessage()
	if err != nil {
		if !tradebridge.IsNormalClose(err) {
			incError("read")
		}
		return frame.Message{}, err
	}
	incMessage(m.Text, len(m.Data))
	return frame.Message{Data: m.Data, Text: m.Text}, nil
}

func (c *conn) WriteMessage(m frame.Message) error {
	if err := c.c.WriteMessage(tradebridge.Message{Data: m.Data, Text: m.Text}); err != nil {
		incError("write")
		return err
	}
	return nil
}

func (c *conn) Close() error { return c.c.Close() }
