package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/override"
)

// Run is one pipeline evaluation over one text. It is not safe for
// concurrent use.
type Run struct {
	s         *Scheduler
	snap      *feature.Snapshot
	in        *Input
	next      int // index of the next phase in s.phases
	applied   []override.Applied
	safetyRun bool
	err       error
}

// Advance runs every pending phase with Num <= upTo, in order.
func (r *Run) Advance(ctx context.Context, upTo int) error {
	for r.next < len(r.s.phases) && r.s.phases[r.next].Num <= upTo {
		if err := r.runPhase(ctx, r.next); err != nil {
			return err
		}
	}
	return nil
}

// RunPhase runs the phase numbered num, skipping any pending phases before
// it. Skipped phases cannot be run later. Missing inputs fail the run with
// a *PipelineError.
func (r *Run) RunPhase(ctx context.Context, num int) error {
	for i := r.next; i < len(r.s.phases); i++ {
		if r.s.phases[i].Num == num {
			return r.runPhase(ctx, i)
		}
	}
	return fmt.Errorf("pipeline: phase %d is not pending", num)
}

// Snapshot returns the accumulated snapshot. Callers must not modify it.
// After a *PipelineError it returns nil.
func (r *Run) Snapshot() *feature.Snapshot {
	if _, ok := r.err.(*PipelineError); ok {
		return nil
	}
	return r.snap
}

// Overrides returns the override rules that fired after the safety phase.
func (r *Run) Overrides() []override.Applied { return r.applied }

// SafetyComplete reports whether the safety phase and its overrides ran.
func (r *Run) SafetyComplete() bool { return r.safetyRun }

// Context returns the run's context, including retrieved summaries.
func (r *Run) Context() Context { return r.in.Context }

// Enrich fetches retrieved context for later phases. It is only allowed
// once the safety phase has completed.
func (r *Run) Enrich(ctx context.Context, ret Retriever) error {
	if !r.safetyRun {
		return ErrSafetyScanPending
	}
	if ret == nil {
		return nil
	}
	summaries, err := ret.Retrieve(ctx, r.in.Text, r.snap)
	if err != nil {
		return fmt.Errorf("pipeline: retrieve: %w", err)
	}
	r.in.Context.Retrieved = append([]string(nil), summaries...)
	return nil
}

// Finish seals and returns the snapshot.
func (r *Run) Finish() *feature.Snapshot {
	r.snap.Seal()
	return r.snap
}

func (r *Run) runPhase(ctx context.Context, idx int) error {
	if r.err != nil {
		return r.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ph := r.s.phases[idx]

	var missing []string
	for _, id := range ph.Requires {
		if !r.snap.Has(id) {
			missing = append(missing, id)
		}
	}
	if ph.Paired && r.in.Context.Prompt == nil {
		missing = append(missing, "prompt snapshot")
	}
	if len(missing) > 0 {
		r.err = &PipelineError{Phase: ph.Num, Name: ph.Name, Missing: missing}
		return r.err
	}
	r.next = idx + 1

	if ph.Concurrent {
		results, err := r.s.runConcurrent(ctx, r.in, ph)
		if err != nil {
			return err
		}
		for _, res := range results {
			r.store(ph, res.id, res.val, res.err)
		}
	} else {
		for _, f := range ph.Features {
			v, err := compute(f, r.in)
			r.store(ph, f.ID, v, err)
		}
	}

	if ph.Num == feature.PhaseSafety {
		if r.s.policy != nil {
			out, applied, err := r.s.policy.Apply(r.snap)
			if err != nil {
				r.err = fmt.Errorf("pipeline: overrides: %w", err)
				return r.err
			}
			r.snap = out
			r.in.Snapshot = out
			r.applied = applied
			for _, a := range applied {
				if a.Raised {
					r.s.logger.Info("safety override raised feature",
						zap.String("rule", a.Rule),
						zap.String("feature", a.Target),
						zap.Float64("before", a.Before),
						zap.Float64("after", a.After),
					)
				}
			}
		}
		r.safetyRun = true
	}
	return nil
}

// store records a computed value, falling back to the catalog default when
// the computation failed or produced an illegal value.
func (r *Run) store(ph Phase, id string, v feature.Value, err error) {
	if err == nil {
		err = r.snap.Set(id, v)
	}
	if err == nil {
		return
	}
	r.s.logger.Warn("feature computation failed, using default",
		zap.String("feature", id),
		zap.Int("phase", ph.Num),
		zap.String("session", r.in.Context.Session),
		zap.Error(err),
	)
	if derr := r.snap.SetDefault(id); derr != nil {
		r.s.logger.Error("feature default rejected",
			zap.String("feature", id),
			zap.Error(derr),
		)
	}
}
