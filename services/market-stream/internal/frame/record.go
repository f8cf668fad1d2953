// services/market-stream/internal/frame/record.go
package frame

import (
	"fmt"
	"strings"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
)

// Message — одно входящее сообщение транспорта.
type Message struct {
	Data []byte
	Text bool // текстовый websocket-кадр
}

// Record — результат разбора кадра. Пустая запись допустима.
type Record struct {
	PacketType packetspec.PacketType
	Name       string
	Fields     map[string]any
	Order      []string // ключи в порядке появления на проводе
	Truncated  bool     // разбор оборван выходом за границу
	Decoded    int      // прочитано полей, включая precision
}

func newRecord(spec packetspec.Spec) Record {
	return Record{PacketType: spec.Type, Name: spec.Name, Fields: make(map[string]any)}
}

func (r *Record) set(key string, v any) {
	if _, seen := r.Fields[key]; !seen {
		r.Order = append(r.Order, key)
	}
	r.Fields[key] = v
}

// Get возвращает значение поля.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// Symbol — значение поля symbol, если оно есть.
func (r Record) Symbol() string {
	s, _ := r.Fields["symbol"].(string)
	return s
}

// Empty — ни одного поля.
func (r Record) Empty() bool { return len(r.Fields) == 0 }

// String — однострочное представление для лога: quote{symbol=SBIN ltp=812.40}.
func (r Record) String() string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	sb.WriteByte('{')
	for i, k := range r.Order {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=%v", k, r.Fields[k])
	}
	sb.WriteByte('}')
	if r.Truncated {
		sb.WriteString(" (truncated)")
	}
	return sb.String()
}
