// common/service.go
package common

import (
	"github.com/Muritor08/TB-WSS/common/backoff"
	producer "github.com/Muritor08/TB-WSS/common/kafka/producer"
	"github.com/Muritor08/TB-WSS/common/redis"
)

// ServiceNameKey — ключ лейбла для метрик всех подсистем.
const ServiceNameKey = "service"

// InitServiceName задаёт единое имя сервиса для backoff, Kafka-producer и Redis.
// Нужно вызывать в main() до любых попыток логирования или отправки метрик.
func InitServiceName(name string) {
	backoff.SetServiceLabel(name)
	producer.SetServiceLabel(name)
	redis.SetServiceLabel(name)
}
