// services/market-stream/internal/sink/kafka.go
package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	commonkafka "github.com/Muritor08/TB-WSS/common/kafka"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
)

// Kafka публикует декодированные записи как google.protobuf.Struct.
// Ключ — symbol, заголовки packet_type и packet_name.
type Kafka struct {
	prod  commonkafka.Producer
	topic string
}

// NewKafka создаёт синк поверх продьюсера.
func NewKafka(prod commonkafka.Producer, topic string) *Kafka {
	return &Kafka{prod: prod, topic: topic}
}

// Handle публикует событие записи; прочие события игнорируются.
func (k *Kafka) Handle(ctx context.Context, ev Event) error {
	if ev.Kind != KindRecord || ev.Record == nil {
		return nil
	}
	value, err := MarshalRecord(*ev.Record, ev.Time, ev.SessionID)
	if err != nil {
		return err
	}
	return k.prod.Publish(ctx, commonkafka.Message{
		Topic: k.topic,
		Key:   []byte(ev.Record.Symbol()),
		Value: value,
		Headers: map[string][]byte{
			"packet_type": []byte(strconv.Itoa(int(ev.Record.PacketType))),
			"packet_name": []byte(ev.Record.Name),
		},
	})
}

// RecordStruct переводит запись в structpb.Struct; служебные поля
// received_at и session_id добавляются к полям записи.
func RecordStruct(rec frame.Record, at time.Time, sessionID string) (*structpb.Struct, error) {
	m := make(map[string]any, len(rec.Fields)+2)
	for k, v := range rec.Fields {
		m[k] = v
	}
	m["received_at"] = at.UTC().Format(time.RFC3339Nano)
	if sessionID != "" {
		m["session_id"] = sessionID
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("sink: record to struct: %w", err)
	}
	return s, nil
}

// MarshalRecord — RecordStruct в proto wire format.
func MarshalRecord(rec frame.Record, at time.Time, sessionID string) ([]byte, error) {
	s, err := RecordStruct(rec, at, sessionID)
	if err != nil {
		return nil, err
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("sink: marshal record: %w", err)
	}
	return b, nil
}
