// services/market-stream/internal/frame/errors.go
package frame

import (
	"errors"
	"fmt"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
)

var (
	// ErrUnsupportedEncoding — текстовый кадр не разобрался ни как base64+zlib, ни как base64.
	ErrUnsupportedEncoding = errors.New("frame: unsupported encoding")
	// ErrUnknownPacketType — в реестре нет спецификации для типа из заголовка.
	ErrUnknownPacketType = errors.New("frame: unknown packet type")
	// ErrShortFrame — кадр короче заголовка.
	ErrShortFrame = errors.New("frame: short frame")
)

// DiagnosticError — ошибка разбора одного кадра. Сессию не рвёт.
type DiagnosticError struct {
	Err        error // один из Err* выше
	PacketType packetspec.PacketType
	Size       int
	Cause      error // первопричина (например, ошибки попыток декодирования)
}

func (e *DiagnosticError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnknownPacketType):
		return fmt.Sprintf("%v: %d", e.Err, e.PacketType)
	case e.Cause != nil:
		return fmt.Sprintf("%v (%d bytes): %v", e.Err, e.Size, e.Cause)
	default:
		return fmt.Sprintf("%v (%d bytes)", e.Err, e.Size)
	}
}

func (e *DiagnosticError) Unwrap() error { return e.Err }

// Kind — короткое имя для метрик и логов.
func (e *DiagnosticError) Kind() string {
	switch {
	case errors.Is(e.Err, ErrUnsupportedEncoding):
		return "unsupported_encoding"
	case errors.Is(e.Err, ErrUnknownPacketType):
		return "unknown_packet_type"
	case errors.Is(e.Err, ErrShortFrame):
		return "short_frame"
	default:
		return "other"
	}
}
