package contract

import (
	"github.com/ppiankov/affectgate/internal/feature"
)

// Output flattens a snapshot into canonical name -> value. Every declared
// feature is present. Features the snapshot lacks, or that were filled
// after a computation failure, take their documented default and are
// returned in filled, in manifest order.
func Output(s *feature.Snapshot, m *Manifest) (out map[string]any, filled []string) {
	out = make(map[string]any, len(m.Features))
	filled = []string{}

	degraded := make(map[string]bool)
	cat := s.Catalog()
	for _, id := range s.Degraded() {
		degraded[id] = true
	}

	for _, e := range m.Features {
		if v, ok := s.Get(e.Internal); ok {
			out[e.Name] = v.Interface()
			if degraded[e.Internal] {
				filled = append(filled, e.Name)
			}
			continue
		}
		out[e.Name] = defaultFor(e, cat)
		filled = append(filled, e.Name)
	}
	return out, filled
}

// defaultFor prefers the manifest's documented default, then the catalog's.
func defaultFor(e Entry, cat *feature.Catalog) any {
	if e.Default != nil {
		if v, err := feature.FromAny(e.Kind, e.Default); err == nil {
			return v.Interface()
		}
	}
	if d, ok := cat.Lookup(e.Internal); ok {
		return d.Default.Interface()
	}
	switch e.Kind {
	case feature.KindFloat:
		return 0.0
	case feature.KindBool:
		return false
	default:
		return ""
	}
}
