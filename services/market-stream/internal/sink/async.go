// services/market-stream/internal/sink/async.go
package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/common/safe"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/metrics"
)

// Handler — блокирующий потребитель событий (сеть, БД).
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc адаптирует функцию к Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// DefaultQueueSize — размер очереди Async по умолчанию.
const DefaultQueueSize = 1024

// Async отвязывает медленный Handler от цикла сессии: ограниченная очередь,
// при переполнении событие отбрасывается и считается.
type Async struct {
	name  string
	h     Handler
	q     chan Event
	kinds map[Kind]bool
	log   *logger.Logger
}

// NewAsync создаёт асинхронный синк. kinds ограничивает принимаемые события
// (пусто → все). Обработка начинается после Run.
func NewAsync(name string, h Handler, size int, log *logger.Logger, kinds ...Kind) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{name: name, h: h, q: make(chan Event, size), log: log.Named("sink-" + name)}
	if len(kinds) > 0 {
		a.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			a.kinds[k] = true
		}
	}
	return a
}

// Emit ставит событие в очередь без блокировки.
func (a *Async) Emit(ev Event) {
	if a.kinds != nil && !a.kinds[ev.Kind] {
		return
	}
	select {
	case a.q <- ev:
	default:
		metrics.SinkDrops.WithLabelValues(a.name).Inc()
	}
}

// Run обрабатывает очередь до отмены ctx. Ошибки Handler логируются и не
// останавливают обработку; паника в Handler теряет одно событие.
func (a *Async) Run(ctx context.Context) error {
	a.log.Info("sink started", zap.Int("queue", cap(a.q)))
	for {
		select {
		case <-ctx.Done():
			a.log.Info("sink stopped", zap.Int("pending", len(a.q)))
			return nil
		case ev := <-a.q:
			a.handle(ctx, ev)
		}
	}
}

func (a *Async) handle(ctx context.Context, ev Event) {
	defer safe.Recover(a.log, a.name, func(error) { metrics.SinkErrors.WithLabelValues(a.name).Inc() })
	if err := a.h.Handle(ctx, ev); err != nil {
		metrics.SinkErrors.WithLabelValues(a.name).Inc()
		a.log.WithContext(ctx).Warn("sink delivery failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
