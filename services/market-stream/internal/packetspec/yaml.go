// services/market-stream/internal/packetspec/yaml.go
package packetspec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Файловое представление реестра:
//
//	family: enveloped
//	packets:
//	  - type: 49
//	    name: quote
//	    fields:
//	      - {id: 65, key: symbol, type: string, len: 20}
//	      - {id: 67, key: ltp, type: float64, len: 8, format: {kind: comma}}
type fileRegistry struct {
	Family  Family       `yaml:"family"`
	Packets []filePacket `yaml:"packets"`
}

type filePacket struct {
	Type   PacketType  `yaml:"type"`
	Name   string      `yaml:"name"`
	Fields []fileField `yaml:"fields"`
}

type fileField struct {
	ID     FieldID    `yaml:"id"`
	Key    string     `yaml:"key"`
	Type   FieldType  `yaml:"type"`
	Len    int        `yaml:"len"`
	Scale  float64    `yaml:"scale,omitempty"`
	Format *Formatter `yaml:"format,omitempty"`
}

// Parse строит реестр из YAML.
func Parse(data []byte) (*Registry, error) {
	var fr fileRegistry
	if err := yaml.Unmarshal(data, &fr); err != nil {
		return nil, fmt.Errorf("packetspec: parse yaml: %w", err)
	}
	if fr.Family == "" {
		fr.Family = FamilyLegacy
	}

	specs := make([]Spec, 0, len(fr.Packets))
	for _, p := range fr.Packets {
		s := Spec{Type: p.Type, Name: p.Name, Fields: make(map[FieldID]FieldDef, len(p.Fields))}
		for _, f := range p.Fields {
			if _, dup := s.Fields[f.ID]; dup {
				return nil, fmt.Errorf("%w: packet %d: duplicate field id %d", ErrInvalidSpec, p.Type, f.ID)
			}
			s.Fields[f.ID] = FieldDef{Key: f.Key, Type: f.Type, Len: f.Len, Scale: f.Scale, Format: f.Format}
		}
		specs = append(specs, s)
	}
	return NewRegistry(fr.Family, specs...)
}

// LoadFile читает реестр из YAML-файла.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("packetspec: read %q: %w", path, err)
	}
	return Parse(data)
}

// MarshalYAML отдаёт реестр в том же формате, что читает Parse.
func (r *Registry) MarshalYAML() (interface{}, error) {
	fr := fileRegistry{Family: r.family}
	for _, t := range r.Types() {
		s := r.specs[t]
		p := filePacket{Type: s.Type, Name: s.Name}
		for _, id := range s.IDs() {
			d := s.Fields[id]
			p.Fields = append(p.Fields, fileField{
				ID: id, Key: d.Key, Type: d.Type, Len: d.Len, Scale: d.Scale, Format: d.Format,
			})
		}
		fr.Packets = append(fr.Packets, p)
	}
	return fr, nil
}

// Resolve выбирает реестр: имя встроенного ("legacy", "formatted") или путь к YAML.
func Resolve(nameOrPath string) (*Registry, error) {
	if r, ok := Builtin(nameOrPath); ok {
		return r, nil
	}
	return LoadFile(nameOrPath)
}
