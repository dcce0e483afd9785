// Package condition compiles "when:" trigger expressions used by override
// and gate rules. Expressions are type-checked against the feature catalog,
// so a misspelled feature is a load-time error.
package condition

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ppiankov/affectgate/internal/feature"
)

// Condition is a compiled boolean expression over feature identifiers.
// It is safe for concurrent use.
type Condition struct {
	src     string
	program *vm.Program
}

// Compile type-checks src against cat. Every catalog identifier is in scope
// with its declared kind; anything else fails to compile.
func Compile(src string, cat *feature.Catalog) (*Condition, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("condition: empty expression")
	}
	env := feature.NewSnapshot(cat).Env()
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	return &Condition{src: src, program: program}, nil
}

// MustCompile is Compile for built-in rules; it panics on error.
func MustCompile(src string, cat *feature.Catalog) *Condition {
	c, err := Compile(src, cat)
	if err != nil {
		panic(err)
	}
	return c
}

// Eval evaluates the condition. Identifiers missing from s evaluate as
// their catalog default.
func (c *Condition) Eval(s *feature.Snapshot) (bool, error) {
	out, err := expr.Run(c.program, s.Env())
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", c.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q: result %T is not bool", c.src, out)
	}
	return b, nil
}

// String returns the source expression.
func (c *Condition) String() string { return c.src }
