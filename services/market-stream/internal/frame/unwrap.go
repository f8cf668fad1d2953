// services/market-stream/internal/frame/unwrap.go
package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	// zlibMagic — первый байт zlib-потока (CMF для deflate с окном 32K).
	zlibMagic = 0x78

	envelopeLen = 5
	envelopeTag = 4

	// TagZlib — тег алгоритма в конверте: полезная нагрузка сжата zlib.
	TagZlib byte = 10
	// TagNone — без сжатия.
	TagNone byte = 0

	// maxInflated ограничивает распакованный кадр.
	maxInflated = 1 << 20
)

var errTooLarge = errors.New("inflated frame exceeds limit")

// attempt — один шаг каскада: байты или ошибка.
type attempt func([]byte) ([]byte, error)

// firstOf пробует шаги по порядку и возвращает первый успешный результат.
// Если не удался ни один, ошибки всех шагов объединяются.
func firstOf(steps ...attempt) attempt {
	return func(b []byte) ([]byte, error) {
		errs := make([]error, 0, len(steps))
		for _, step := range steps {
			out, err := step(b)
			if err == nil {
				return out, nil
			}
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	}
}

// then — композиция: сначала a, затем b над результатом.
func then(a, b attempt) attempt {
	return func(in []byte) ([]byte, error) {
		mid, err := a(in)
		if err != nil {
			return nil, err
		}
		return b(mid)
	}
}

func identity(b []byte) ([]byte, error) { return b, nil }

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxInflated+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(out) > maxInflated {
		return nil, errTooLarge
	}
	return out, nil
}

// sniffInflate распаковывает только при zlib-сигнатуре в первом байте.
func sniffInflate(b []byte) ([]byte, error) {
	if len(b) == 0 || b[0] != zlibMagic {
		return nil, errors.New("no zlib signature")
	}
	return inflate(b)
}

func decodeBase64(b []byte) ([]byte, error) {
	s := bytes.TrimSpace(b)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(s)))
	n, err := base64.StdEncoding.Decode(out, s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return out[:n], nil
}

var (
	// бинарный кадр: zlib по сигнатуре, иначе как есть
	unwrapBinary = firstOf(sniffInflate, identity)
	// текстовый кадр: base64+zlib, затем просто base64
	unwrapText = firstOf(then(decodeBase64, inflate), decodeBase64)
)

// unenvelope снимает 5-байтный конверт. Короткий кадр отдаётся как есть.
func unenvelope(b []byte) []byte {
	if len(b) < envelopeLen {
		return b
	}
	body := b[envelopeLen:]
	if b[envelopeTag] == TagZlib {
		out, _ := firstOf(inflate, identity)(body)
		return out
	}
	return body
}
