// services/market-stream/internal/frame/decoder.go

// Package frame разбирает кадры потока котировок: снятие сжатия и конверта,
// заголовок length+type и обход полей по реестру.
package frame

import (
	"encoding/binary"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/codec"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
)

const headerLen = 3

// Decoder не имеет изменяемого состояния; безопасен для параллельного использования.
type Decoder struct {
	reg    *packetspec.Registry
	family packetspec.Family
}

// Option настраивает Decoder.
type Option func(*Decoder)

// WithFamily переопределяет семейство кадров реестра.
func WithFamily(f packetspec.Family) Option {
	return func(d *Decoder) { d.family = f }
}

// NewDecoder создаёт декодер поверх реестра. Семейство по умолчанию, из реестра.
func NewDecoder(reg *packetspec.Registry, opts ...Option) *Decoder {
	d := &Decoder{reg: reg, family: reg.Family()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Family — семейство кадров, которое ожидает декодер.
func (d *Decoder) Family() packetspec.Family { return d.family }

// Decode разбирает одно сообщение. Ошибка всегда *DiagnosticError
// и касается только этого кадра.
func (d *Decoder) Decode(msg Message) (Record, error) {
	var (
		buf []byte
		err error
	)
	if msg.Text {
		buf, err = unwrapText(msg.Data)
		if err != nil {
			return Record{}, &DiagnosticError{Err: ErrUnsupportedEncoding, Size: len(msg.Data), Cause: err}
		}
	} else {
		buf, _ = unwrapBinary(msg.Data)
	}

	if d.family == packetspec.FamilyEnveloped {
		buf = unenvelope(buf)
	}
	return d.decodePacket(buf)
}

func (d *Decoder) decodePacket(buf []byte) (Record, error) {
	if len(buf) < headerLen {
		return Record{}, &DiagnosticError{Err: ErrShortFrame, Size: len(buf)}
	}
	pktLen := int(int16(binary.LittleEndian.Uint16(buf[0:2])))
	pktType := packetspec.PacketType(buf[2])

	spec, ok := d.reg.Lookup(pktType)
	if !ok {
		return Record{}, &DiagnosticError{Err: ErrUnknownPacketType, PacketType: pktType, Size: len(buf)}
	}

	end := len(buf)
	if pktLen > 0 && pktLen < end {
		end = pktLen
	}
	return walk(spec, buf[:end]), nil
}

// walk обходит поля с offset 3 до конца buf.
// Неизвестный field id, штатный конец известных полей; выход за границу
// обрывает обход и помечает запись Truncated.
func walk(spec packetspec.Spec, buf []byte) Record {
	rec := newRecord(spec)
	precision := packetspec.DefaultPrecision

	for off := headerLen; off < len(buf); {
		def, ok := spec.Field(packetspec.FieldID(buf[off]))
		if !ok {
			break
		}
		v, n, err := codec.ReadField(buf, off+1, def)
		if err != nil {
			rec.Truncated = true
			break
		}
		off += 1 + n
		rec.Decoded++

		if def.IsPrecision() {
			precision = int(v.(int64))
			continue
		}
		rec.set(def.Key, codec.Apply(def, v, precision))
	}
	return rec
}
