package feature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownFeature is returned for identifiers outside the catalog.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrAlreadySet is returned when a value would overwrite an existing one.
	ErrAlreadySet = errors.New("feature already set")
	// ErrSealed is returned when a sealed snapshot is modified.
	ErrSealed = errors.New("snapshot sealed")
)

// Snapshot maps feature identifiers to values for one text. Identifiers are
// validated against the catalog on insert; existing values are never
// overwritten. Raise is the only way to change a value and only moves it up.
type Snapshot struct {
	cat      *Catalog
	vals     map[string]Value
	degraded map[string]bool
	sealed   bool
}

// NewSnapshot returns an empty snapshot bound to cat.
func NewSnapshot(cat *Catalog) *Snapshot {
	return &Snapshot{
		cat:      cat,
		vals:     make(map[string]Value, cat.Len()),
		degraded: make(map[string]bool),
	}
}

// Catalog returns the catalog the snapshot validates against.
func (s *Snapshot) Catalog() *Catalog { return s.cat }

// Set adds a new identifier.
func (s *Snapshot) Set(id string, v Value) error {
	if s.sealed {
		return ErrSealed
	}
	if err := s.cat.Validate(id, v); err != nil {
		return err
	}
	if _, ok := s.vals[id]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadySet, id)
	}
	s.vals[id] = v
	return nil
}

// SetDefault adds the catalog default for id and marks it degraded.
func (s *Snapshot) SetDefault(id string) error {
	d, ok := s.cat.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, id)
	}
	if err := s.Set(id, d.Default); err != nil {
		return err
	}
	s.degraded[id] = true
	return nil
}

// Raise lifts a float feature to at least floor. It reports whether the
// value changed. Values already at or above floor are left alone.
func (s *Snapshot) Raise(id string, floor float64) (bool, error) {
	if s.sealed {
		return false, ErrSealed
	}
	d, ok := s.cat.Lookup(id)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownFeature, id)
	}
	if d.Kind != KindFloat {
		return false, fmt.Errorf("feature %s: raise on %s value", id, d.Kind)
	}
	cur, ok := s.vals[id]
	if !ok {
		return false, fmt.Errorf("feature %s: raise before set", id)
	}
	if cur.Float() >= floor {
		return false, nil
	}
	if floor > d.Max {
		floor = d.Max
	}
	s.vals[id] = Float(floor)
	return true, nil
}

// Seal makes the snapshot read-only.
func (s *Snapshot) Seal() { s.sealed = true }

// Sealed reports whether the snapshot is read-only.
func (s *Snapshot) Sealed() bool { return s.sealed }

// Get returns the value for id.
func (s *Snapshot) Get(id string) (Value, bool) {
	v, ok := s.vals[id]
	return v, ok
}

// Has reports whether id is present.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.vals[id]
	return ok
}

// Float returns the numeric value of id, or the catalog default.
func (s *Snapshot) Float(id string) float64 {
	return s.valueOrDefault(id).Float()
}

// Bool returns the boolean value of id, or the catalog default.
func (s *Snapshot) Bool(id string) bool {
	return s.valueOrDefault(id).Bool()
}

// Str returns the string value of id, or the catalog default.
func (s *Snapshot) Str(id string) string {
	return s.valueOrDefault(id).Str()
}

func (s *Snapshot) valueOrDefault(id string) Value {
	if v, ok := s.vals[id]; ok {
		return v
	}
	if d, ok := s.cat.Lookup(id); ok {
		return d.Default
	}
	return Value{}
}

// IDs returns present identifiers in catalog order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.vals))
	for id := range s.vals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.cat.index(ids[i]) < s.cat.index(ids[j])
	})
	return ids
}

// Len returns the number of present identifiers.
func (s *Snapshot) Len() int { return len(s.vals) }

// Degraded returns identifiers filled with defaults after a computation
// failure, in catalog order.
func (s *Snapshot) Degraded() []string {
	var out []string
	for _, id := range s.IDs() {
		if s.degraded[id] {
			out = append(out, id)
		}
	}
	return out
}

// Clone returns an unsealed deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		cat:      s.cat,
		vals:     make(map[string]Value, len(s.vals)),
		degraded: make(map[string]bool, len(s.degraded)),
	}
	for k, v := range s.vals {
		c.vals[k] = v
	}
	for k, v := range s.degraded {
		c.degraded[k] = v
	}
	return c
}

// Env returns every catalog identifier mapped to its plain value, using
// defaults for identifiers not yet computed. Used as an expression
// environment.
func (s *Snapshot) Env() map[string]any {
	env := make(map[string]any, s.cat.Len())
	for _, d := range s.cat.defs {
		env[d.ID] = s.valueOrDefault(d.ID).Interface()
	}
	return env
}

// Map returns present identifiers mapped to plain values.
func (s *Snapshot) Map() map[string]any {
	m := make(map[string]any, len(s.vals))
	for k, v := range s.vals {
		m[k] = v.Interface()
	}
	return m
}

// MarshalJSON emits an object with keys in catalog order.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return s.encode(s.IDs())
}

// Canonical returns the snapshot as JSON with lexicographically sorted keys.
// The encoding carries no hash of itself and is stable across runs.
func (s *Snapshot) Canonical() ([]byte, error) {
	ids := make([]string, 0, len(s.vals))
	for id := range s.vals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return s.encode(ids)
}

func (s *Snapshot) encode(ids []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.vals[id])
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", id, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode rebuilds a snapshot from a JSON object produced by MarshalJSON or
// Canonical. Unknown identifiers are rejected.
func Decode(cat *Catalog, data []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	s := NewSnapshot(cat)
	for id, r := range raw {
		d, ok := cat.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, id)
		}
		v, err := FromAny(d.Kind, r)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", id, err)
		}
		if err := s.Set(id, v); err != nil {
			return nil, err
		}
	}
	return s, nil
}
