// services/market-stream/internal/frame/encode.go
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zlib"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/codec"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
)

// Field — пара (id, значение) для сборки кадра.
type Field struct {
	ID    packetspec.FieldID
	Value any
}

// Encode собирает кадр с 3-байтным заголовком. Поля пишутся в переданном порядке.
func Encode(spec packetspec.Spec, fields ...Field) ([]byte, error) {
	buf := make([]byte, headerLen, 64)
	buf[2] = byte(spec.Type)
	for _, f := range fields {
		def, ok := spec.Field(f.ID)
		if !ok {
			return nil, fmt.Errorf("frame: packet %d has no field %d", spec.Type, f.ID)
		}
		buf = append(buf, byte(f.ID))
		var err error
		if buf, err = codec.AppendField(buf, def, f.Value); err != nil {
			return nil, err
		}
	}
	if len(buf) > math.MaxInt16 {
		return nil, fmt.Errorf("frame: packet too long (%d bytes)", len(buf))
	}
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(buf)))
	return buf, nil
}

// Deflate сжимает кадр zlib.
func Deflate(b []byte) []byte {
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	_, _ = zw.Write(b)
	_ = zw.Close()
	return out.Bytes()
}

// Envelope оборачивает полезную нагрузку 5-байтным конвертом:
// uint32 LE длина тела и тег алгоритма.
func Envelope(tag byte, body []byte) []byte {
	out := make([]byte, envelopeLen, envelopeLen+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(body)))
	out[envelopeTag] = tag
	return append(out, body...)
}
