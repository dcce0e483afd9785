package contract

import (
	"embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/ledger.yaml
var defaultFS embed.FS

// ActionCanonicalize is the only migration action: aliases are renamed on
// ingress and never exported.
const ActionCanonicalize = "canonicalize_on_ingress"

// Alias maps a legacy name to its canonical name.
type Alias struct {
	Alias     string `yaml:"alias"     json:"alias"`
	Canonical string `yaml:"canonical" json:"canonical"`
	Action    string `yaml:"action"    json:"action"`
	Since     string `yaml:"since,omitempty" json:"since,omitempty"`
}

// Ledger is the deprecation table.
type Ledger struct {
	Version string  `yaml:"version" json:"version"`
	Aliases []Alias `yaml:"aliases" json:"aliases"`

	byAlias map[string]Alias
}

// Rename records one applied alias.
type Rename struct {
	Alias     string `json:"alias"`
	Canonical string `json:"canonical"`
	// Dropped is set when the canonical key was also present; the
	// canonical value is kept.
	Dropped bool `json:"dropped,omitempty"`
}

// DefaultLedger returns the embedded ledger.
func DefaultLedger() (*Ledger, error) {
	data, err := defaultFS.ReadFile("defaults/ledger.yaml")
	if err != nil {
		return nil, fmt.Errorf("contract: read embedded ledger: %w", err)
	}
	return ParseLedger(data)
}

// LoadLedger reads a YAML ledger.
func LoadLedger(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contract: read ledger: %w", err)
	}
	return ParseLedger(data)
}

// ParseLedger decodes and validates a ledger.
func ParseLedger(data []byte) (*Ledger, error) {
	var l Ledger
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("contract: parse ledger: %w", err)
	}
	if err := l.index(); err != nil {
		return nil, err
	}
	return &l, nil
}

// NewLedger builds a ledger from aliases.
func NewLedger(aliases []Alias) (*Ledger, error) {
	l := &Ledger{Version: "1", Aliases: aliases}
	if err := l.index(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) index() error {
	l.byAlias = make(map[string]Alias, len(l.Aliases))
	canonical := make(map[string]bool, len(l.Aliases))
	for i, a := range l.Aliases {
		if a.Alias == "" || a.Canonical == "" {
			return fmt.Errorf("contract: ledger entry %d: alias and canonical are required", i)
		}
		if a.Alias == a.Canonical {
			return fmt.Errorf("contract: ledger alias %q maps to itself", a.Alias)
		}
		if a.Action == "" {
			a.Action = ActionCanonicalize
			l.Aliases[i] = a
		}
		if a.Action != ActionCanonicalize {
			return fmt.Errorf("contract: ledger alias %q: unknown action %q", a.Alias, a.Action)
		}
		if _, dup := l.byAlias[a.Alias]; dup {
			return fmt.Errorf("contract: ledger alias %q listed twice", a.Alias)
		}
		l.byAlias[a.Alias] = a
		canonical[a.Canonical] = true
	}
	for alias := range l.byAlias {
		if canonical[alias] {
			return fmt.Errorf("contract: ledger alias %q is also a canonical target", alias)
		}
	}
	return nil
}

// Lookup returns the canonical name for alias.
func (l *Ledger) Lookup(alias string) (string, bool) {
	a, ok := l.byAlias[alias]
	return a.Canonical, ok
}

// Canonicalize renames alias keys to their canonical names. The input is
// not modified. Renames are returned sorted by alias.
func (l *Ledger) Canonicalize(in map[string]any) (map[string]any, []Rename) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if _, isAlias := l.byAlias[k]; !isAlias {
			out[k] = v
		}
	}
	renames := []Rename{}
	for k, v := range in {
		a, ok := l.byAlias[k]
		if !ok {
			continue
		}
		r := Rename{Alias: k, Canonical: a.Canonical}
		if _, present := in[a.Canonical]; present {
			r.Dropped = true
		} else {
			out[a.Canonical] = v
		}
		renames = append(renames, r)
	}
	sort.Slice(renames, func(i, j int) bool { return renames[i].Alias < renames[j].Alias })
	return out, renames
}

// CheckManifest reports ledger entries that contradict a manifest: targets
// the manifest does not declare and aliases the manifest still exports.
func (l *Ledger) CheckManifest(m *Manifest) []error {
	declared := make(map[string]bool, len(m.Features))
	for _, e := range m.Features {
		declared[e.Name] = true
	}
	var errs []error
	for _, a := range l.Aliases {
		if !declared[a.Canonical] {
			errs = append(errs, fmt.Errorf("alias %q targets undeclared feature %q", a.Alias, a.Canonical))
		}
		if declared[a.Alias] {
			errs = append(errs, fmt.Errorf("alias %q is exported by the manifest", a.Alias))
		}
	}
	return errs
}
