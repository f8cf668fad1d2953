// services/market-stream/internal/session/transport.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/credstore"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
)

// Conn — одно открытое дуплексное соединение.
// ReadMessage вызывается из одной горутины, WriteMessage, из другой.
type Conn interface {
	ReadMessage() (frame.Message, error)
	WriteMessage(msg frame.Message) error
	Close() error
}

// Dialer открывает соединение по адресу.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// DialerFunc адаптирует функцию к Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Conn, error) { return f(ctx, endpoint) }

// DefaultURLTemplate — адрес стрима котировок.
const DefaultURLTemplate = "wss://{subdomain}/market-stream"

// Endpoint подставляет сабдомен в шаблон и добавляет token/apikey.
// Схема в сабдомене ("https://dc5.example.com/") отбрасывается.
func Endpoint(tmpl string, c credstore.Credentials) (string, error) {
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}
	host := c.Subdomain
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimRight(host, "/")
	if host == "" {
		return "", fmt.Errorf("%w: subdomain is empty", credstore.ErrInvalidCredentials)
	}

	u, err := url.Parse(strings.ReplaceAll(tmpl, "{subdomain}", host))
	if err != nil {
		return "", fmt.Errorf("session: bad url template: %w", err)
	}
	q := u.Query()
	q.Set("token", c.AccessToken)
	q.Set("apikey", c.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type subscribeRequest struct {
	Request struct {
		StreamingType string `json:"streaming_type"`
		RequestType   string `json:"request_type"`
		Data          struct {
			Symbols []symbolRef `json:"symbols"`
		} `json:"data"`
	} `json:"request"`
}

type symbolRef struct {
	Symbol string `json:"symbol"`
}

// SubscribeMessage — управляющее сообщение подписки на котировки,
// завершённое переводом строки.
func SubscribeMessage(symbols []string) ([]byte, error) {
	var req subscribeRequest
	req.Request.StreamingType = "quote"
	req.Request.RequestType = "subscribe"
	req.Request.Data.Symbols = make([]symbolRef, 0, len(symbols))
	for _, s := range symbols {
		req.Request.Data.Symbols = append(req.Request.Data.Symbols, symbolRef{Symbol: s})
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("session: marshal subscribe: %w", err)
	}
	return append(b, '\n'), nil
}
