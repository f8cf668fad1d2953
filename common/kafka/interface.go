// common/kafka/interface.go
//
// Пакет kafka задаёт минимальные контракты обмена сообщениями, не тянет
// за собой Sarama и никак не зависит от конкретной реализации.
package kafka

import "context"

// Message — исходящая запись.
type Message struct {
	Topic   string
	Key     []byte            // ключ партиционирования (может быть nil)
	Value   []byte            // полезная нагрузка
	Headers map[string][]byte // заголовки записи (опционально)
}

// Producer публикует сообщения в Kafka.
type Producer interface {
	// Publish гарантирует, что сообщение будет доставлено согласно политике
	// RequiredAcks; возможен внутренний retry согласно стратегии back-off.
	Publish(ctx context.Context, msg Message) error
	// Ping проверяет достижимость кластера (обновление метаданных).
	Ping(ctx context.Context) error
	Close() error
}
