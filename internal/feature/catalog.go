package feature

import (
	"fmt"
	"math"
	"slices"
)

// Def declares one feature: its identity, where it is computed and which
// values it may take.
type Def struct {
	Num       int
	ID        string // internal identifier
	Name      string // canonical primary name
	Secondary string // canonical secondary name
	Category  string
	Phase     int
	Kind      Kind
	Min       float64
	Max       float64
	Enum      []string
	HexLen    int
	Default   Value
	Doc       string
}

// Check reports whether v is a legal value for this feature.
func (d Def) Check(v Value) error {
	if v.Kind() != d.Kind {
		return fmt.Errorf("feature %s: kind %s, expected %s", d.ID, v.Kind(), d.Kind)
	}
	switch d.Kind {
	case KindFloat:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("feature %s: non-finite value", d.ID)
		}
		if f < d.Min || f > d.Max {
			return fmt.Errorf("feature %s: %g outside [%g, %g]", d.ID, f, d.Min, d.Max)
		}
	case KindEnum:
		if !slices.Contains(d.Enum, v.Str()) {
			return fmt.Errorf("feature %s: %q not in %v", d.ID, v.Str(), d.Enum)
		}
	case KindHex:
		s := v.Str()
		if len(s) != d.HexLen || !isHex(s) {
			return fmt.Errorf("feature %s: %q is not %d hex chars", d.ID, s, d.HexLen)
		}
	}
	return nil
}

// Catalog is the closed, ordered set of features the pipeline may produce.
// It is immutable after construction.
type Catalog struct {
	defs []Def
	byID map[string]int
}

// NewCatalog validates defs and builds a catalog. Order of defs is the
// canonical output order.
func NewCatalog(defs []Def) (*Catalog, error) {
	c := &Catalog{
		defs: make([]Def, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	copy(c.defs, defs)

	nums := make(map[int]string, len(defs))
	names := make(map[string]string, len(defs))
	for i, d := range c.defs {
		if d.ID == "" {
			return nil, fmt.Errorf("catalog: def %d has no id", i)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate id %q", d.ID)
		}
		if other, dup := nums[d.Num]; dup {
			return nil, fmt.Errorf("catalog: %q reuses number %d of %q", d.ID, d.Num, other)
		}
		if d.Name == "" {
			c.defs[i].Name = d.ID
			d.Name = d.ID
		}
		if other, dup := names[d.Name]; dup {
			return nil, fmt.Errorf("catalog: %q reuses name %q of %q", d.ID, d.Name, other)
		}
		if d.Phase < 1 {
			return nil, fmt.Errorf("catalog: %q has invalid phase %d", d.ID, d.Phase)
		}
		if err := d.Check(d.Default); err != nil {
			return nil, fmt.Errorf("catalog: default: %w", err)
		}
		c.byID[d.ID] = i
		nums[d.Num] = d.ID
		names[d.Name] = d.ID
	}
	return c, nil
}

// Lookup returns the def for an internal identifier.
func (c *Catalog) Lookup(id string) (Def, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Def{}, false
	}
	return c.defs[i], true
}

// Defs returns all defs in canonical order.
func (c *Catalog) Defs() []Def {
	out := make([]Def, len(c.defs))
	copy(out, c.defs)
	return out
}

// Phase returns the defs computed in phase n.
func (c *Catalog) Phase(n int) []Def {
	var out []Def
	for _, d := range c.defs {
		if d.Phase == n {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of declared features.
func (c *Catalog) Len() int { return len(c.defs) }

// Validate checks a single value against its declaration.
func (c *Catalog) Validate(id string, v Value) error {
	d, ok := c.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, id)
	}
	return d.Check(v)
}

func (c *Catalog) index(id string) int {
	if i, ok := c.byID[id]; ok {
		return i
	}
	return -1
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
