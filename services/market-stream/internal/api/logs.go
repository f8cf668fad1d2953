// services/market-stream/internal/api/logs.go
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	logWriteWait  = 5 * time.Second
	logPingPeriod = 30 * time.Second
	logSubBuffer  = 128
)

var upgrader = websocket.Upgrader{
	// origin проверяет CORS-слой httpserver
	CheckOrigin: func(*http.Request) bool { return true },
}

// LogStream — GET /logs/stream: окно лога, затем новые строки.
func (h *Handler) LogStream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithContext(r.Context()).Warn("log stream upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	lines, cancel := h.logs.Subscribe(logSubBuffer)
	defer cancel()

	// читаем только ради close/pong от клиента
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(typ int, data []byte) error {
		_ = ws.SetWriteDeadline(time.Now().Add(logWriteWait))
		return ws.WriteMessage(typ, data)
	}
	for _, l := range h.logs.Lines() {
		if err := write(websocket.TextMessage, []byte(l)); err != nil {
			return
		}
	}

	ping := time.NewTicker(logPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case l := <-lines:
			if err := write(websocket.TextMessage, []byte(l)); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
