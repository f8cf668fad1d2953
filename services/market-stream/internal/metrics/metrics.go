// services/market-stream/internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	commonprom "github.com/Muritor08/TB-WSS/common/prometheus"
)

var (
	once sync.Once

	// FramesTotal — входящие кадры по результату: record | diagnostic | paused.
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketstream",
		Subsystem: "session",
		Name:      "frames_total",
		Help:      "Inbound frames by outcome",
	}, []string{"outcome"})

	// DecodeErrors — ошибки разбора по виду.
	DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketstream",
		Subsystem: "decoder",
		Name:      "errors_total",
		Help:      "Frame decode diagnostics by kind",
	}, []string{"kind"})

	// TruncatedRecords — записи, оборванные выходом за границу кадра.
	TruncatedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "marketstream",
		Subsystem: "decoder",
		Name:      "truncated_records_total",
		Help:      "Records whose field walk stopped on an out-of-bounds field",
	})

	// DecodeLatency — время разбора одного кадра.
	DecodeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marketstream",
		Subsystem: "decoder",
		Name:      "decode_seconds",
		Help:      "Time spent decoding one frame",
		Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3},
	})

	// Reconnects — запланированные переподключения.
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "marketstream",
		Subsystem: "session",
		Name:      "reconnects_total",
		Help:      "Reconnect attempts scheduled after a transport close",
	})

	// IdleTimeouts — срабатывания idle-watchdog.
	IdleTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "marketstream",
		Subsystem: "session",
		Name:      "idle_timeouts_total",
		Help:      "Idle watchdog expirations",
	})

	// State — текущее состояние сессии (значение session.State).
	State = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "marketstream",
		Subsystem: "session",
		Name:      "state",
		Help:      "Current session state code",
	})

	// SinkDrops — события, отброшенные из-за переполнения очереди синка.
	SinkDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketstream",
		Subsystem: "sink",
		Name:      "drops_total",
		Help:      "Events dropped because a sink queue was full",
	}, []string{"sink"})

	// SinkErrors — ошибки доставки в синк.
	SinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketstream",
		Subsystem: "sink",
		Name:      "errors_total",
		Help:      "Sink delivery errors",
	}, []string{"sink"})

	// LogSubscribers — открытые websocket-подписки на лог.
	LogSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "marketstream",
		Subsystem: "logs",
		Name:      "subscribers",
		Help:      "Connected live log subscribers",
	})
)

// Register регистрирует все метрики в заданном реестре.
// Можно вызвать без аргументов, чтобы зарегистрировать в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		commonprom.MustRegisterMany(commonprom.Pick(registerers...),
			FramesTotal,
			DecodeErrors,
			TruncatedRecords,
			DecodeLatency,
			Reconnects,
			IdleTimeouts,
			State,
			SinkDrops,
			SinkErrors,
			LogSubscribers,
		)
	})
}
