// services/market-stream/internal/codec/format.go
package codec

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
)

// Названия месяцев как в терминале брокера (June/July без сокращения).
var months = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "June", "July", "Aug", "Sep", "Oct", "Nov", "Dec"}

// Apply прогоняет значение через форматтер поля.
// precision — текущая точность записи; фиксированная точность форматтера важнее.
// Строки и поля без форматтера возвращаются как есть.
func Apply(def packetspec.FieldDef, v any, precision int) any {
	f := def.Format
	if f == nil || f.Kind == packetspec.Plain || !def.Type.Numeric() || def.IsPrecision() {
		return v
	}
	p := precision
	if f.Precision != nil {
		p = *f.Precision
	}

	switch f.Kind {
	case packetspec.Comma:
		return CommaFormat(v, p)
	case packetspec.Date:
		return DateFormat(v)
	default:
		return v
	}
}

// CommaFormat группирует разряды запятыми с p знаками после точки.
// Целое значение трактуется как фиксированная точка с p неявными знаками:
// 12345 при p=1 → "1,234.5". Дробное только округляется до p знаков.
func CommaFormat(v any, p int) string {
	if p < 0 {
		p = 0
	}
	var x float64
	switch n := v.(type) {
	case int64:
		x = float64(n) / math.Pow10(p)
	case float64:
		x = n
	default:
		return fmt.Sprint(v)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Sprint(x)
	}
	pr := message.NewPrinter(language.English)
	return pr.Sprint(number.Decimal(x, number.Scale(p)))
}

// DateFormat печатает epoch seconds как "02 Jan 2006, 15:04:05 PM" (UTC).
func DateFormat(v any) string {
	var sec int64
	switch n := v.(type) {
	case int64:
		sec = n
	case float64:
		sec = int64(n)
	default:
		return fmt.Sprint(v)
	}
	t := time.Unix(sec, 0).UTC()
	return fmt.Sprintf("%02d %s %d, %s", t.Day(), months[t.Month()-1], t.Year(), t.Format("15:04:05 PM"))
}
