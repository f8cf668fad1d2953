// services/market-stream/internal/codec/codec_test.go
package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
)

func TestReadField_Types(t *testing.T) {
	f64 := make([]byte, 8)
	binary.LittleEndian.PutUint64(f64, math.Float64bits(-12.75))

	tests := []struct {
		name string
		buf  []byte
		def  packetspec.FieldDef
		want any
	}{
		{
			name: "legacy int32 /100",
			buf:  []byte{0x10, 0x27, 0x00, 0x00},
			def:  packetspec.FieldDef{Key: "ltp", Type: packetspec.Int32, Len: 4, Scale: 100},
			want: float64(100),
		},
		{
			name: "int32 raw negative",
			buf:  []byte{0xFE, 0xFF, 0xFF, 0xFF},
			def:  packetspec.FieldDef{Key: "q", Type: packetspec.Int32, Len: 4},
			want: int64(-2),
		},
		{
			name: "int64 low word only",
			buf:  []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00},
			def:  packetspec.FieldDef{Key: "vol", Type: packetspec.Int64, Len: 8},
			want: int64(4294967295),
		},
		{
			name: "int64 high word",
			buf:  []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00},
			def:  packetspec.FieldDef{Key: "vol", Type: packetspec.Int64, Len: 8},
			want: int64(1) << 32,
		},
		{
			name: "float64",
			buf:  f64,
			def:  packetspec.FieldDef{Key: "ltp", Type: packetspec.Float64, Len: 8},
			want: -12.75,
		},
		{
			name: "uint8",
			buf:  []byte{0xC8},
			def:  packetspec.FieldDef{Key: "nDepth", Type: packetspec.Uint8, Len: 1},
			want: int64(200),
		},
		{
			name: "string null padded",
			buf:  []byte("  SBIN-EQ \x00\x00\x00\x00"),
			def:  packetspec.FieldDef{Key: "symbol", Type: packetspec.String, Len: 14},
			want: "SBIN-EQ",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, n, err := ReadField(tc.buf, 0, tc.def)
			if err != nil {
				t.Fatalf("ReadField: %v", err)
			}
			if n != tc.def.Len {
				t.Errorf("consumed %d, want %d", n, tc.def.Len)
			}
			if got != tc.want {
				t.Errorf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestReadField_OutOfBounds(t *testing.T) {
	def := packetspec.FieldDef{Key: "ltp", Type: packetspec.Float64, Len: 8}
	_, _, err := ReadField(make([]byte, 10), 3, def)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if _, _, err := ReadField(make([]byte, 11), 3, def); err != nil {
		t.Fatalf("exact fit must succeed: %v", err)
	}
}

func TestAppendField_RoundTrip(t *testing.T) {
	defs := []struct {
		def packetspec.FieldDef
		v   any
	}{
		{packetspec.FieldDef{Key: "s", Type: packetspec.String, Len: 20}, "NIFTY24JUNFUT"},
		{packetspec.FieldDef{Key: "a", Type: packetspec.Int32, Len: 4}, int64(-123456)},
		{packetspec.FieldDef{Key: "b", Type: packetspec.Int32, Len: 4, Scale: 100}, 2450.35},
		{packetspec.FieldDef{Key: "c", Type: packetspec.Int64, Len: 8}, int64(math.MaxInt64)},
		{packetspec.FieldDef{Key: "d", Type: packetspec.Float64, Len: 8}, 0.1},
		{packetspec.FieldDef{Key: "e", Type: packetspec.Uint8, Len: 1}, int64(7)},
	}
	for _, tc := range defs {
		buf, err := AppendField(nil, tc.def, tc.v)
		if err != nil {
			t.Fatalf("%s: AppendField: %v", tc.def.Key, err)
		}
		got, _, err := ReadField(buf, 0, tc.def)
		if err != nil {
			t.Fatalf("%s: ReadField: %v", tc.def.Key, err)
		}
		if got != tc.v {
			t.Errorf("%s: got %#v, want %#v", tc.def.Key, got, tc.v)
		}
	}
}

func TestAppendField_Rejects(t *testing.T) {
	cases := []struct {
		def packetspec.FieldDef
		v   any
	}{
		{packetspec.FieldDef{Key: "a", Type: packetspec.Int32, Len: 4}, int64(math.MaxInt32) + 1},
		{packetspec.FieldDef{Key: "u", Type: packetspec.Uint8, Len: 1}, int64(256)},
		{packetspec.FieldDef{Key: "s", Type: packetspec.String, Len: 4}, 12},
		{packetspec.FieldDef{Key: "f", Type: packetspec.Float64, Len: 8}, "1.0"},
	}
	for _, tc := range cases {
		if _, err := AppendField(nil, tc.def, tc.v); !errors.Is(err, ErrBadValue) {
			t.Errorf("%s=%v: expected ErrBadValue, got %v", tc.def.Key, tc.v, err)
		}
	}
}
