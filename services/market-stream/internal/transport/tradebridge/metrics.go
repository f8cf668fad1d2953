// services/market-stream/internal/transport/tradebridge/metrics.go
package tradebridge

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	wsConnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketstream", Subsystem: "tradebridge", Name: "connects_total",
		Help: "WebSocket connection attempts by status",
	}, []string{"status"})

	wsMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketstream", Subsystem: "tradebridge", Name: "messages_total",
		Help: "Messages received from the TradeBridge stream by frame type",
	}, []string{"type"})

	wsBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "marketstream", Subsystem: "tradebridge", Name: "received_bytes_total",
		Help: "Payload bytes received from the TradeBridge stream",
	})

	wsErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketstream", Subsystem: "tradebridge", Name: "errors_total",
		Help: "Transport errors by type",
	}, []string{"type"})
)

// RegisterMetrics регистрирует метрики транспорта один раз.
func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		for _, c := range []prometheus.Collector{wsConnects, wsMessages, wsBytes, wsErrors} {
			_ = r.Register(c)
		}
	})
}

func incConnect(status string) { wsConnects.WithLabelValues(status).Inc() }
func incError(errType string)  { wsErrors.WithLabelValues(errType).Inc() }

func incMessage(text bool, n int) {
	typ := "binary"
	if text {
		typ = "text"
	}
	wsMessages.WithLabelValues(typ).Inc()
	wsBytes.Add(float64(n))
}
