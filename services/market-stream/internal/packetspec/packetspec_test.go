// services/market-stream/internal/packetspec/packetspec_test.go
package packetspec

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestBuiltinRegistries(t *testing.T) {
	leg := Legacy()
	if leg.Family() != FamilyLegacy {
		t.Errorf("legacy family = %q", leg.Family())
	}
	s, ok := leg.Lookup(LegacyQuote)
	if !ok {
		t.Fatal("legacy quote spec missing")
	}
	if d, _ := s.Field(7); d.Key != "vol" || d.Type != Int64 {
		t.Errorf("field 7 = %+v, want vol int64", d)
	}
	if d, _ := s.Field(2); d.Scale != 100 {
		t.Errorf("ltp scale = %v, want 100", d.Scale)
	}

	f := Formatted()
	if f.Family() != FamilyEnveloped {
		t.Errorf("formatted family = %q", f.Family())
	}
	if got, want := f.Types(), []PacketType{Quote, Quote2, Quote3}; !reflect.DeepEqual(got, want) {
		t.Errorf("types = %v, want %v", got, want)
	}
	depth, _ := f.Lookup(Quote2)
	if d, _ := depth.Field(90); d.Key != "askPrice" {
		t.Errorf("depth field 90 = %q, want askPrice", d.Key)
	}
	if _, ok := f.Lookup(1); ok {
		t.Error("formatted registry must not know legacy packet 1")
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"width mismatch", Spec{Type: 1, Fields: map[FieldID]FieldDef{1: {Key: "x", Type: Int32, Len: 8}}}},
		{"duplicate key", Spec{Type: 1, Fields: map[FieldID]FieldDef{
			1: {Key: "x", Type: Uint8, Len: 1},
			2: {Key: "x", Type: Uint8, Len: 1},
		}}},
		{"string without len", Spec{Type: 1, Fields: map[FieldID]FieldDef{1: {Key: "s", Type: String}}}},
		{"formatter on string", Spec{Type: 1, Fields: map[FieldID]FieldDef{1: {Key: "s", Type: String, Len: 4, Format: CommaFmt()}}}},
		{"precision not uint8", Spec{Type: 1, Fields: map[FieldID]FieldDef{1: {Key: PrecisionKey, Type: Int32, Len: 4}}}},
		{"unknown type", Spec{Type: 1, Fields: map[FieldID]FieldDef{1: {Key: "x", Type: "decimal", Len: 16}}}},
		{"no fields", Spec{Type: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(FamilyLegacy, tc.spec)
			if !errors.Is(err, ErrInvalidSpec) {
				t.Fatalf("expected ErrInvalidSpec, got %v", err)
			}
		})
	}

	ok := Spec{Type: 1, Fields: map[FieldID]FieldDef{1: {Key: "x", Type: Uint8, Len: 1}}}
	if _, err := NewRegistry(FamilyLegacy, ok, ok); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("duplicate packet type: expected ErrInvalidSpec, got %v", err)
	}
	if _, err := NewRegistry("framed", ok); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestRegistry_IsolatedFromCallerMap(t *testing.T) {
	fields := map[FieldID]FieldDef{1: {Key: "x", Type: Uint8, Len: 1}}
	r, err := NewRegistry(FamilyLegacy, Spec{Type: 7, Fields: fields})
	if err != nil {
		t.Fatal(err)
	}
	fields[2] = FieldDef{Key: "y", Type: Uint8, Len: 1}
	s, _ := r.Lookup(7)
	if _, ok := s.Field(2); ok {
		t.Error("registry must not observe later mutation of the input map")
	}
}

func TestYAML_RoundTrip(t *testing.T) {
	for _, name := range []string{"legacy", "formatted"} {
		t.Run(name, func(t *testing.T) {
			orig, _ := Builtin(name)
			data, err := yaml.Marshal(orig)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			path := filepath.Join(t.TempDir(), "spec.yaml")
			if err := os.WriteFile(path, data, 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := Resolve(path)
			if err != nil {
				t.Fatalf("Resolve(%s): %v", path, err)
			}
			if got.Family() != orig.Family() {
				t.Errorf("family = %q, want %q", got.Family(), orig.Family())
			}
			if !reflect.DeepEqual(got.specs, orig.specs) {
				t.Errorf("round trip mismatch:\n%s", data)
			}
		})
	}
}

func TestParse_DuplicateFieldID(t *testing.T) {
	src := `
family: legacy
packets:
  - type: 1
    name: q
    fields:
      - {id: 1, key: a, type: uint8, len: 1}
      - {id: 1, key: b, type: uint8, len: 1}
`
	if _, err := Parse([]byte(src)); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}
