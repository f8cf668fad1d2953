// services/market-stream/internal/packetspec/defaults.go
package packetspec

// Типы пакетов встроенных реестров.
const (
	LegacyQuote PacketType = 1

	Quote  PacketType = 49 // котировка
	Quote2 PacketType = 50 // стакан (лучшие bid/ask)
	Quote3 PacketType = 52 // греки опционов
)

// MustRegistry — NewRegistry, паникующий на ошибке. Только для встроенных таблиц.
func MustRegistry(family Family, specs ...Spec) *Registry {
	r, err := NewRegistry(family, specs...)
	if err != nil {
		panic(err)
	}
	return r
}

func str(key string, n int) FieldDef { return FieldDef{Key: key, Type: String, Len: n} }

func i32(key string, f *Formatter) FieldDef { return FieldDef{Key: key, Type: Int32, Len: 4, Format: f} }

func f64(key string, f *Formatter) FieldDef {
	return FieldDef{Key: key, Type: Float64, Len: 8, Format: f}
}

func cents(key string) FieldDef { return FieldDef{Key: key, Type: Int32, Len: 4, Scale: 100} }

func precisionField() FieldDef { return FieldDef{Key: PrecisionKey, Type: Uint8, Len: 1} }

// Legacy — простой пакет котировки: цены int32 ×100, объём int64.
func Legacy() *Registry {
	return MustRegistry(FamilyLegacy, Spec{
		Type: LegacyQuote,
		Name: "quote",
		Fields: map[FieldID]FieldDef{
			1:  str("symbol", 20),
			2:  cents("ltp"),
			3:  cents("open"),
			4:  cents("high"),
			5:  cents("low"),
			6:  cents("close"),
			7:  {Key: "vol", Type: Int64, Len: 8},
			8:  cents("ltq"),
			9:  cents("chng"),
			10: cents("chngPer"),
		},
	})
}

// Formatted — пакеты 49/50/52 с float64, precision и форматтерами.
func Formatted() *Registry {
	comma := CommaFmt()
	whole := CommaFixed(0)
	pct := CommaFixed(2)

	quote := Spec{
		Type: Quote,
		Name: "quote",
		Fields: map[FieldID]FieldDef{
			65: str("symbol", 20),
			66: precisionField(),
			67: f64("ltp", comma),
			68: f64("open", comma),
			69: f64("high", comma),
			70: f64("low", comma),
			71: f64("close", comma),
			72: f64("chng", comma),
			73: f64("chngPer", pct),
			74: f64("atp", comma),
			75: f64("yHigh", comma),
			76: f64("yLow", comma),
			77: i32("ltq", whole),
			78: i32("vol", whole),
			79: f64("ttv", comma),
			80: f64("ucl", comma),
			81: f64("lcl", comma),
			82: i32("OI", whole),
			83: f64("OIChngPer", pct),
			84: i32("ltt", DateFmt()),
			87: f64("bidprice", comma),
			90: f64("askprice", comma),
		},
	}

	// слоты bid и ask повторяют price/qty/no; ключи разведены префиксами
	depth := Spec{
		Type: Quote2,
		Name: "quote2",
		Fields: map[FieldID]FieldDef{
			65: str("symbol", 20),
			66: precisionField(),
			85: i32("totBuyQty", whole),
			86: i32("totSellQty", whole),
			87: f64("bidPrice", comma),
			88: i32("bidQty", whole),
			89: i32("bidNo", whole),
			90: f64("askPrice", comma),
			91: i32("askQty", whole),
			92: i32("askNo", whole),
			93: {Key: "nDepth", Type: Uint8, Len: 1},
		},
	}

	greeks := Spec{
		Type: Quote3,
		Name: "quote3",
		Fields: map[FieldID]FieldDef{
			65:  str("symbol", 20),
			99:  f64("iv", comma),
			100: f64("atmiv", comma),
			101: f64("delta", comma),
			102: f64("theta", comma),
			103: f64("vega", comma),
			104: f64("gamma", comma),
		},
	}

	return MustRegistry(FamilyEnveloped, quote, depth, greeks)
}

// Builtin возвращает встроенный реестр по имени: "legacy" | "formatted".
func Builtin(name string) (*Registry, bool) {
	switch name {
	case "legacy":
		return Legacy(), true
	case "formatted":
		return Formatted(), true
	}
	return nil, false
}
