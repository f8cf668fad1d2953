// services/market-stream/internal/packetspec/packetspec.go

// Package packetspec описывает таблицы полей бинарных пакетов котировок:
// какой ключ, тип и ширина у каждого field id внутри packet type.
// Реестры неизменяемы после построения.
package packetspec

import (
	"errors"
	"fmt"
	"sort"
)

// PrecisionKey — служебное поле, задающее точность форматирования
// последующих полей той же записи. В вывод не попадает.
const PrecisionKey = "precision"

// DefaultPrecision — точность до появления precision в кадре.
const DefaultPrecision = 2

// ErrInvalidSpec — таблица полей не проходит проверку.
var ErrInvalidSpec = errors.New("packetspec: invalid spec")

// PacketType — тег типа пакета на проводе.
type PacketType uint8

// FieldID — идентификатор поля внутри пакета.
type FieldID uint8

// FieldType — примитивный тип значения на проводе.
type FieldType string

const (
	String  FieldType = "string"
	Int32   FieldType = "int32"
	Int64   FieldType = "int64"
	Float64 FieldType = "float64"
	Uint8   FieldType = "uint8"
)

// Width возвращает натуральную ширину типа в байтах; для string, 0 (задаётся Len).
func (t FieldType) Width() int {
	switch t {
	case Int32:
		return 4
	case Int64, Float64:
		return 8
	case Uint8:
		return 1
	default:
		return 0
	}
}

// Numeric — true для всего, кроме string.
func (t FieldType) Numeric() bool { return t != String }

func (t FieldType) valid() bool {
	switch t {
	case String, Int32, Int64, Float64, Uint8:
		return true
	}
	return false
}

// FormatKind — вид форматтера.
type FormatKind string

const (
	Plain FormatKind = "plain"
	Comma FormatKind = "comma" // группировка разрядов: 1,234.50
	Date  FormatKind = "date"  // epoch seconds → "02 Jan 2006, 15:04:05 PM"
)

// Formatter — закрытый набор стратегий отображения.
// Precision == nil → берётся текущая точность записи.
type Formatter struct {
	Kind      FormatKind `yaml:"kind"`
	Precision *int       `yaml:"precision,omitempty"`
}

// CommaFmt — запятые с точностью записи.
func CommaFmt() *Formatter { return &Formatter{Kind: Comma} }

// CommaFixed — запятые с фиксированной точностью p.
func CommaFixed(p int) *Formatter { return &Formatter{Kind: Comma, Precision: &p} }

// DateFmt — epoch-дата.
func DateFmt() *Formatter { return &Formatter{Kind: Date} }

func (f Formatter) validate() error {
	switch f.Kind {
	case Plain, Comma, Date:
	default:
		return fmt.Errorf("unknown formatter kind %q", f.Kind)
	}
	if f.Precision != nil && (*f.Precision < 0 || *f.Precision > 18) {
		return fmt.Errorf("formatter precision %d out of range", *f.Precision)
	}
	return nil
}

// FieldDef — описание одного поля.
type FieldDef struct {
	Key  string
	Type FieldType
	Len  int
	// Scale > 0, делитель фиксированной точки (legacy-пакеты хранят цены ×100).
	Scale  float64
	Format *Formatter
}

// IsPrecision сообщает, что поле служебное (precision).
func (d FieldDef) IsPrecision() bool { return d.Key == PrecisionKey }

func (d FieldDef) validate() error {
	if d.Key == "" {
		return errors.New("empty key")
	}
	if !d.Type.valid() {
		return fmt.Errorf("%s: unknown type %q", d.Key, d.Type)
	}
	if w := d.Type.Width(); w > 0 && d.Len != w {
		return fmt.Errorf("%s: len %d does not match %s width %d", d.Key, d.Len, d.Type, w)
	}
	if d.Type == String && d.Len <= 0 {
		return fmt.Errorf("%s: string len must be positive", d.Key)
	}
	if d.Scale < 0 {
		return fmt.Errorf("%s: negative scale", d.Key)
	}
	if d.Format != nil {
		if !d.Type.Numeric() {
			return fmt.Errorf("%s: formatter on non-numeric field", d.Key)
		}
		if err := d.Format.validate(); err != nil {
			return fmt.Errorf("%s: %w", d.Key, err)
		}
	}
	if d.IsPrecision() && d.Type != Uint8 {
		return fmt.Errorf("%s: must be uint8", d.Key)
	}
	return nil
}

// Spec — таблица полей одного типа пакета, O(1) по field id.
type Spec struct {
	Type   PacketType
	Name   string
	Fields map[FieldID]FieldDef
}

// Field ищет описание поля.
func (s Spec) Field(id FieldID) (FieldDef, bool) {
	d, ok := s.Fields[id]
	return d, ok
}

// IDs возвращает field id по возрастанию.
func (s Spec) IDs() []FieldID {
	ids := make([]FieldID, 0, len(s.Fields))
	for id := range s.Fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s Spec) validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("packet %d: no fields", s.Type)
	}
	keys := make(map[string]FieldID, len(s.Fields))
	for _, id := range s.IDs() {
		d := s.Fields[id]
		if err := d.validate(); err != nil {
			return fmt.Errorf("packet %d field %d: %w", s.Type, id, err)
		}
		if prev, dup := keys[d.Key]; dup {
			return fmt.Errorf("packet %d: key %q used by fields %d and %d", s.Type, d.Key, prev, id)
		}
		keys[d.Key] = id
	}
	return nil
}

// Family — взаимоисключающее соглашение о заголовке кадра.
type Family string

const (
	// FamilyLegacy — 3 байта length+type, zlib определяется по первому байту.
	FamilyLegacy Family = "legacy"
	// FamilyEnveloped — 5-байтный конверт с тегом сжатия перед заголовком.
	FamilyEnveloped Family = "enveloped"
)

// ParseFamily разбирает имя семейства.
func ParseFamily(s string) (Family, error) {
	switch f := Family(s); f {
	case FamilyLegacy, FamilyEnveloped:
		return f, nil
	}
	return "", fmt.Errorf("packetspec: unknown wire family %q", s)
}

// Registry — неизменяемое отображение PacketType → Spec.
type Registry struct {
	family Family
	specs  map[PacketType]Spec
}

// NewRegistry проверяет таблицы и строит реестр.
func NewRegistry(family Family, specs ...Spec) (*Registry, error) {
	if _, err := ParseFamily(string(family)); err != nil {
		return nil, err
	}
	r := &Registry{family: family, specs: make(map[PacketType]Spec, len(specs))}
	for _, s := range specs {
		if _, dup := r.specs[s.Type]; dup {
			return nil, fmt.Errorf("%w: duplicate packet type %d", ErrInvalidSpec, s.Type)
		}
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		fields := make(map[FieldID]FieldDef, len(s.Fields))
		for id, d := range s.Fields {
			fields[id] = d
		}
		s.Fields = fields
		r.specs[s.Type] = s
	}
	return r, nil
}

// Lookup возвращает спецификацию пакета.
func (r *Registry) Lookup(t PacketType) (Spec, bool) {
	s, ok := r.specs[t]
	return s, ok
}

// Family — семейство кадров, под которое собран реестр.
func (r *Registry) Family() Family { return r.family }

// Types возвращает известные типы пакетов по возрастанию.
func (r *Registry) Types() []PacketType {
	ts := make([]PacketType, 0, len(r.specs))
	for t := range r.specs {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts
}
