package contract

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/affectgate/internal/feature"
)

// Issue codes.
const (
	IssueUnknownFeature     = "unknown_feature"
	IssueUndeclared         = "undeclared"
	IssueIdentifierMismatch = "identifier_mismatch"
	IssueNameMismatch       = "name_mismatch"
	IssueSecondaryMismatch  = "secondary_mismatch"
	IssueKindMismatch       = "kind_mismatch"
	IssueRangeMismatch      = "range_mismatch"
	IssueEnumMismatch       = "enum_mismatch"
	IssueHexLenMismatch     = "hex_len_mismatch"
)

// Issue is one mismatch between a manifest and a catalog.
type Issue struct {
	Num      int    `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Declared string `json:"declared"`
	Actual   string `json:"actual"`
}

// Report is the outcome of Check. Issues are reported, never corrected.
type Report struct {
	Declared int     `json:"declared"`
	Catalog  int     `json:"catalog"`
	Issues   []Issue `json:"issues"`
}

// OK reports whether manifest and catalog agree.
func (r *Report) OK() bool { return len(r.Issues) == 0 }

// Check compares a manifest against a catalog by numeric ID.
func Check(m *Manifest, cat *feature.Catalog) *Report {
	r := &Report{Declared: len(m.Features), Catalog: cat.Len(), Issues: []Issue{}}

	byNum := make(map[int]feature.Def, cat.Len())
	for _, d := range cat.Defs() {
		byNum[d.Num] = d
	}
	seen := make(map[int]bool, len(m.Features))

	for _, e := range m.Features {
		seen[e.Num] = true
		d, ok := byNum[e.Num]
		if !ok {
			r.add(e, IssueUnknownFeature, e.Internal, "")
			continue
		}
		if e.Internal != d.ID {
			r.add(e, IssueIdentifierMismatch, e.Internal, d.ID)
		}
		if e.Name != d.Name {
			r.add(e, IssueNameMismatch, e.Name, d.Name)
		}
		if e.Secondary != "" && e.Secondary != d.Secondary {
			r.add(e, IssueSecondaryMismatch, e.Secondary, d.Secondary)
		}
		if e.Kind != d.Kind {
			r.add(e, IssueKindMismatch, string(e.Kind), string(d.Kind))
			continue
		}
		switch d.Kind {
		case feature.KindFloat:
			if e.Range == nil || e.Range.Min != d.Min || e.Range.Max != d.Max {
				r.add(e, IssueRangeMismatch, formatRange(e.Range), formatRange(&Range{d.Min, d.Max}))
			}
		case feature.KindEnum:
			if !slices.Equal(e.Enum, d.Enum) {
				r.add(e, IssueEnumMismatch, strings.Join(e.Enum, "|"), strings.Join(d.Enum, "|"))
			}
		case feature.KindHex:
			if e.HexLen != d.HexLen {
				r.add(e, IssueHexLenMismatch, fmt.Sprint(e.HexLen), fmt.Sprint(d.HexLen))
			}
		}
	}

	for _, d := range cat.Defs() {
		if !seen[d.Num] {
			r.Issues = append(r.Issues, Issue{Num: d.Num, Name: d.Name, Code: IssueUndeclared, Actual: d.ID})
		}
	}
	return r
}

func (r *Report) add(e Entry, code, declared, actual string) {
	r.Issues = append(r.Issues, Issue{Num: e.Num, Name: e.Name, Code: code, Declared: declared, Actual: actual})
}

func formatRange(r *Range) string {
	if r == nil {
		return "none"
	}
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// FormatText renders the report as human-readable text.
func FormatText(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contract check: %d declared, %d in catalog\n", r.Declared, r.Catalog)
	if r.OK() {
		b.WriteString("\nNo mismatches.\n")
		return b.String()
	}
	b.WriteString("\n")
	for _, is := range r.Issues {
		fmt.Fprintf(&b, "  %4d %-28s %-20s", is.Num, is.Name, is.Code)
		if is.Declared != "" || is.Actual != "" {
			fmt.Fprintf(&b, " declared=%s actual=%s", orNone(is.Declared), orNone(is.Actual))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%d mismatch(es)\n", len(r.Issues))
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
