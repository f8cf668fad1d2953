// services/market-stream/internal/sink/sink.go

// Package sink доставляет события сессии потребителям: окно лога для UI,
// zap-лог, Kafka и архив. Emit никогда не блокирует цикл сессии.
package sink

import (
	"time"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
)

// Kind — категория события.
type Kind string

const (
	KindConnection Kind = "connection"
	KindRecord     Kind = "record"
	KindDiagnostic Kind = "diagnostic"
	KindIdle       Kind = "idle"
	KindControl    Kind = "control"
)

// Event — одно событие сессии.
type Event struct {
	Time      time.Time
	Kind      Kind
	Message   string
	Record    *frame.Record // только для KindRecord
	Err       error         // причина диагностики, если есть
	SessionID string
}

// Line — человекочитаемая строка для окна лога.
func (e Event) Line() string {
	return e.Time.Format("15:04:05") + " " + e.Message
}

// Sink получает события. Реализация не должна блокировать.
type Sink interface {
	Emit(ev Event)
}

// Func адаптирует функцию к Sink.
type Func func(Event)

func (f Func) Emit(ev Event) { f(ev) }

// Fanout рассылает событие во все синки по порядку.
type Fanout []Sink

func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		s.Emit(ev)
	}
}
