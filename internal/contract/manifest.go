// Package contract holds the feature contract: the manifest declaring every
// output feature, the flat output mapping, and the deprecation ledger.
package contract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/affectgate/internal/feature"
)

// ManifestVersion is written by FromCatalog.
const ManifestVersion = "1"

// Range is a declared numeric interval.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Entry declares one feature.
type Entry struct {
	Num       int          `yaml:"id"                  json:"id"`
	Category  string       `yaml:"category"            json:"category"`
	Name      string       `yaml:"name"                json:"name"`
	Secondary string       `yaml:"secondary,omitempty" json:"secondary,omitempty"`
	Kind      feature.Kind `yaml:"kind"                json:"kind"`
	Range     *Range       `yaml:"range,omitempty"     json:"range,omitempty"`
	Enum      []string     `yaml:"enum,omitempty"      json:"enum,omitempty"`
	HexLen    int          `yaml:"hex_len,omitempty"   json:"hex_len,omitempty"`
	Default   any          `yaml:"default"             json:"default"`
	Internal  string       `yaml:"internal"            json:"internal"`
	Doc       string       `yaml:"doc,omitempty"       json:"doc,omitempty"`
}

// Manifest is the structured contract document.
type Manifest struct {
	Version  string  `yaml:"version"  json:"version"`
	Features []Entry `yaml:"features" json:"features"`
}

// FromCatalog renders the manifest a catalog satisfies.
func FromCatalog(cat *feature.Catalog) *Manifest {
	m := &Manifest{Version: ManifestVersion}
	for _, d := range cat.Defs() {
		e := Entry{
			Num:       d.Num,
			Category:  d.Category,
			Name:      d.Name,
			Secondary: d.Secondary,
			Kind:      d.Kind,
			Default:   d.Default.Interface(),
			Internal:  d.ID,
			Doc:       d.Doc,
		}
		switch d.Kind {
		case feature.KindFloat:
			e.Range = &Range{Min: d.Min, Max: d.Max}
		case feature.KindEnum:
			e.Enum = append([]string(nil), d.Enum...)
		case feature.KindHex:
			e.HexLen = d.HexLen
		}
		m.Features = append(m.Features, e)
	}
	return m
}

// LoadManifest reads a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contract: read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML manifest and checks it is self-consistent.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("contract: parse manifest: %w", err)
	}
	if len(m.Features) == 0 {
		return nil, fmt.Errorf("contract: manifest declares no features")
	}
	nums := make(map[int]bool, len(m.Features))
	names := make(map[string]bool, len(m.Features))
	for i, e := range m.Features {
		if e.Name == "" {
			return nil, fmt.Errorf("contract: feature %d has no name", i)
		}
		if nums[e.Num] {
			return nil, fmt.Errorf("contract: duplicate id %d", e.Num)
		}
		if names[e.Name] {
			return nil, fmt.Errorf("contract: duplicate name %q", e.Name)
		}
		nums[e.Num] = true
		names[e.Name] = true
	}
	return &m, nil
}

// Marshal encodes the manifest as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// Write stores the manifest at path.
func (m *Manifest) Write(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("contract: marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("contract: write manifest: %w", err)
	}
	return nil
}

// Names returns the declared canonical names in manifest order.
func (m *Manifest) Names() []string {
	out := make([]string, len(m.Features))
	for i, e := range m.Features {
		out[i] = e.Name
	}
	return out
}
