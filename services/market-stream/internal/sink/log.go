// services/market-stream/internal/sink/log.go
package sink

import (
	"go.uber.org/zap"

	"github.com/Muritor08/TB-WSS/common/logger"
)

// Log пишет события в структурированный лог сервиса.
type Log struct {
	log *logger.Logger
}

// NewLog создаёт zap-синк.
func NewLog(log *logger.Logger) *Log { return &Log{log: log.Named("events")} }

func (l *Log) Emit(ev Event) {
	fields := []zap.Field{zap.String("kind", string(ev.Kind))}
	if ev.SessionID != "" {
		fields = append(fields, zap.String("session_id", ev.SessionID))
	}

	switch ev.Kind {
	case KindRecord:
		if ev.Record != nil {
			fields = append(fields,
				zap.String("packet", ev.Record.Name),
				zap.String("symbol", ev.Record.Symbol()),
				zap.Any("fields", ev.Record.Fields),
				zap.Bool("truncated", ev.Record.Truncated),
			)
		}
		l.log.Debug(ev.Message, fields...)
	case KindDiagnostic:
		if ev.Err != nil {
			fields = append(fields, zap.Error(ev.Err))
		}
		l.log.Warn(ev.Message, fields...)
	case KindIdle:
		l.log.Debug(ev.Message, fields...)
	default:
		l.log.Info(ev.Message, fields...)
	}
}
