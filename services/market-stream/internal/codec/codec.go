// services/market-stream/internal/codec/codec.go

// Package codec читает и пишет одно типизированное поле по смещению.
// Все функции чистые и безопасны для параллельного вызова.
//
// Декодированные значения нормализуются: строки → string,
// целые (int32 без Scale, int64, uint8) → int64, дробные → float64.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
)

var (
	// ErrOutOfBounds — поле заявляет больше байт, чем осталось в буфере.
	ErrOutOfBounds = errors.New("codec: field out of bounds")
	// ErrBadValue — значение не подходит под тип поля (только при записи).
	ErrBadValue = errors.New("codec: value does not match field type")
)

// ReadField читает значение поля def начиная с off.
// Возвращает значение и число прочитанных байт (== def.Len).
func ReadField(buf []byte, off int, def packetspec.FieldDef) (any, int, error) {
	n := def.Len
	if off < 0 || n <= 0 || off+n > len(buf) {
		return nil, 0, fmt.Errorf("%w: %s needs %d bytes at %d, have %d", ErrOutOfBounds, def.Key, n, off, len(buf)-off)
	}
	b := buf[off : off+n]

	switch def.Type {
	case packetspec.String:
		s := strings.TrimRight(string(b), "\x00")
		return strings.TrimSpace(s), n, nil
	case packetspec.Int32:
		raw := int32(binary.LittleEndian.Uint32(b))
		if def.Scale > 0 {
			return float64(raw) / def.Scale, n, nil
		}
		return int64(raw), n, nil
	case packetspec.Int64:
		return int64(binary.LittleEndian.Uint64(b)), n, nil
	case packetspec.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), n, nil
	case packetspec.Uint8:
		return int64(b[0]), n, nil
	default:
		return nil, 0, fmt.Errorf("codec: unknown field type %q", def.Type)
	}
}

// AppendField дописывает значение поля в dst. Обратная операция к ReadField.
func AppendField(dst []byte, def packetspec.FieldDef, v any) ([]byte, error) {
	switch def.Type {
	case packetspec.String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants string, got %T", ErrBadValue, def.Key, v)
		}
		b := make([]byte, def.Len)
		copy(b, s)
		return append(dst, b...), nil
	case packetspec.Int32:
		var raw int64
		if def.Scale > 0 {
			f, ok := asFloat(v)
			if !ok {
				return nil, fmt.Errorf("%w: %s wants number, got %T", ErrBadValue, def.Key, v)
			}
			raw = int64(math.Round(f * def.Scale))
		} else {
			i, ok := asInt(v)
			if !ok {
				return nil, fmt.Errorf("%w: %s wants integer, got %T", ErrBadValue, def.Key, v)
			}
			raw = i
		}
		if raw < math.MinInt32 || raw > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %s value %d overflows int32", ErrBadValue, def.Key, raw)
		}
		return binary.LittleEndian.AppendUint32(dst, uint32(int32(raw))), nil
	case packetspec.Int64:
		i, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants integer, got %T", ErrBadValue, def.Key, v)
		}
		return binary.LittleEndian.AppendUint64(dst, uint64(i)), nil
	case packetspec.Float64:
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants number, got %T", ErrBadValue, def.Key, v)
		}
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(f)), nil
	case packetspec.Uint8:
		i, ok := asInt(v)
		if !ok || i < 0 || i > math.MaxUint8 {
			return nil, fmt.Errorf("%w: %s wants uint8, got %v", ErrBadValue, def.Key, v)
		}
		return append(dst, byte(i)), nil
	default:
		return nil, fmt.Errorf("codec: unknown field type %q", def.Type)
	}
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint32:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	if f, ok := v.(float64); ok {
		return f, true
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
