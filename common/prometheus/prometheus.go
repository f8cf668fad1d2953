// common/prometheus/prometheus.go
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRegistry — стандартный глобальный реестр метрик.
var DefaultRegistry = prometheus.DefaultRegisterer

// Pick возвращает первый не-nil Registerer или DefaultRegistry.
// Удобно для функций вида Register(regs ...prometheus.Registerer).
func Pick(regs ...prometheus.Registerer) prometheus.Registerer {
	for _, r := range regs {
		if r != nil {
			return r
		}
	}
	return DefaultRegistry
}

// MustRegisterMany регистрирует несколько метрик одной строкой.
func MustRegisterMany(reg prometheus.Registerer, cs ...prometheus.Collector) {
	if reg == nil {
		reg = DefaultRegistry
	}
	reg.MustRegister(cs...)
}
