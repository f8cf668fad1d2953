// services/market-stream/internal/sink/buffer.go
package sink

import (
	"sync"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/metrics"
)

// DefaultBufferLines — окно лога, как в веб-клиенте.
const DefaultBufferLines = 300

// Buffer хранит последние N строк и раздаёт новые строки подписчикам.
// Медленный подписчик теряет строки, остальные, нет.
type Buffer struct {
	mu    sync.RWMutex
	lines []string
	start int // индекс самой старой строки в кольце
	size  int
	limit int

	subs   map[int]chan string
	nextID int
}

// NewBuffer создаёт окно на n строк (n <= 0 → DefaultBufferLines).
func NewBuffer(n int) *Buffer {
	if n <= 0 {
		n = DefaultBufferLines
	}
	return &Buffer{lines: make([]string, n), limit: n, subs: make(map[int]chan string)}
}

// Emit добавляет строку события.
func (b *Buffer) Emit(ev Event) { b.Append(ev.Line()) }

// Append добавляет строку, вытесняя самую старую при переполнении.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < b.limit {
		b.lines[(b.start+b.size)%b.limit] = line
		b.size++
	} else {
		b.lines[b.start] = line
		b.start = (b.start + 1) % b.limit
	}
	for _, ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Lines возвращает копию окна от старых к новым.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.lines[(b.start+i)%b.limit]
	}
	return out
}

// Subscribe возвращает канал новых строк и функцию отписки.
func (b *Buffer) Subscribe(buf int) (<-chan string, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan string, buf)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	metrics.LogSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			metrics.LogSubscribers.Dec()
		})
	}
}
