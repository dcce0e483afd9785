package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/override"
)

// Scheduler holds a validated phase plan. It is immutable and shared by
// all runs.
type Scheduler struct {
	cat         *feature.Catalog
	phases      []Phase
	policy      *override.Policy
	concurrency int
	logger      *zap.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for degraded features.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcurrency bounds parallel feature evaluation in concurrent phases.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithOverrides applies p when the safety phase completes.
func WithOverrides(p *override.Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// New validates phases against cat. Phases must be ascending, each
// feature must belong to its phase in the catalog and be provided once,
// and every declared input must come from an earlier phase or, within a
// sequential phase, an earlier feature.
func New(cat *feature.Catalog, phases []Phase, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		cat:         cat,
		phases:      phases,
		concurrency: runtime.GOMAXPROCS(0),
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}

	provided := make(map[string]int) // id -> phase num
	last := 0
	for _, ph := range phases {
		if ph.Num <= last {
			return nil, fmt.Errorf("pipeline: phase %d (%s) out of order after phase %d", ph.Num, ph.Name, last)
		}
		last = ph.Num
		for _, id := range ph.Requires {
			n, ok := provided[id]
			if !ok {
				return nil, fmt.Errorf("pipeline: phase %d (%s) requires %q which no earlier phase provides", ph.Num, ph.Name, id)
			}
			if n >= ph.Num {
				return nil, fmt.Errorf("pipeline: phase %d (%s) requires %q from phase %d", ph.Num, ph.Name, id, n)
			}
		}
		for _, f := range ph.Features {
			d, ok := cat.Lookup(f.ID)
			if !ok {
				return nil, fmt.Errorf("pipeline: phase %d: %w: %q", ph.Num, feature.ErrUnknownFeature, f.ID)
			}
			if d.Phase != ph.Num {
				return nil, fmt.Errorf("pipeline: feature %s belongs to phase %d, not %d", f.ID, d.Phase, ph.Num)
			}
			if n, dup := provided[f.ID]; dup {
				return nil, fmt.Errorf("pipeline: feature %s provided twice (phases %d and %d)", f.ID, n, ph.Num)
			}
			if f.Compute == nil {
				return nil, fmt.Errorf("pipeline: feature %s has no compute function", f.ID)
			}
			for _, req := range f.Requires {
				n, ok := provided[req]
				if !ok || n != ph.Num {
					return nil, fmt.Errorf("pipeline: feature %s requires %q which is not an earlier feature of phase %d", f.ID, req, ph.Num)
				}
				if ph.Concurrent {
					return nil, fmt.Errorf("pipeline: feature %s in concurrent phase %d may not require %q", f.ID, ph.Num, req)
				}
			}
			provided[f.ID] = ph.Num
		}
	}
	return s, nil
}

// Catalog returns the scheduler's catalog.
func (s *Scheduler) Catalog() *feature.Catalog { return s.cat }

// Phases returns the phase plan.
func (s *Scheduler) Phases() []Phase { return s.phases }

// Start begins a run over text.
func (s *Scheduler) Start(text string, pctx Context) *Run {
	snap := feature.NewSnapshot(s.cat)
	return &Run{
		s:    s,
		snap: snap,
		in:   &Input{Text: text, Snapshot: snap, Context: pctx},
	}
}

// Evaluate runs every phase up to and including upTo and returns the
// sealed snapshot. On error no snapshot is returned.
func (s *Scheduler) Evaluate(ctx context.Context, text string, pctx Context, upTo int) (*feature.Snapshot, error) {
	r := s.Start(text, pctx)
	if err := r.Advance(ctx, upTo); err != nil {
		return nil, err
	}
	return r.Finish(), nil
}

func (s *Scheduler) runConcurrent(ctx context.Context, in *Input, ph Phase) ([]result, error) {
	results := make([]result, len(ph.Features))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, f := range ph.Features {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := compute(f, in)
			results[i] = result{id: f.ID, val: v, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type result struct {
	id  string
	val feature.Value
	err error
}

func compute(f Feature, in *Input) (v feature.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return f.Compute(in)
}
