// Package pipeline runs feature phases in dependency order. Each phase only
// adds identifiers to the accumulated snapshot; a phase whose declared
// inputs are missing fails the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/affectgate/internal/feature"
)

// ErrSafetyScanPending is returned when context enrichment is attempted
// before the safety phase has completed.
var ErrSafetyScanPending = errors.New("pipeline: safety scan pending")

// PipelineError reports a phase that could not start because declared
// inputs were missing. It is fatal for the run.
type PipelineError struct {
	Phase   int
	Name    string
	Missing []string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: phase %d (%s) missing inputs: %s", e.Phase, e.Name, strings.Join(e.Missing, ", "))
}

// Feature computes one identifier. Requires lists identifiers of the same
// phase that must be computed first; inputs from earlier phases are
// declared on the Phase.
type Feature struct {
	ID       string
	Requires []string
	Compute  func(*Input) (feature.Value, error)
}

// Phase is one ordered step of the pipeline.
type Phase struct {
	Num      int
	Name     string
	Requires []string
	Features []Feature
	// Concurrent phases evaluate their features in parallel. Their
	// features may not depend on one another.
	Concurrent bool
	// Paired phases need the prompt snapshot in Context.Prompt.
	Paired bool
}

// Context carries per-session state supplied by the caller.
type Context struct {
	Session   string
	TurnIndex int
	Elapsed   time.Duration
	// Previous is the prior turn's snapshot, or nil on the first turn.
	Previous *feature.Snapshot
	// Retrieved holds opaque memory summaries. It is filled by Run.Enrich.
	Retrieved []string
	// Prompt is the prompt snapshot when scoring a response.
	Prompt *feature.Snapshot
	// PromptText is the prompt text when scoring a response.
	PromptText string
}

// Input is what a feature sees: the text, the snapshot accumulated so far
// and the session context. Features must treat all of it as read-only.
type Input struct {
	Text     string
	Snapshot *feature.Snapshot
	Context  Context

	mu   sync.Mutex
	memo map[string]*memoEntry
}

type memoEntry struct {
	once sync.Once
	val  any
}

// Memo returns the value cached under key, computing it with fn on first
// use. It lets concurrent features share intermediate results.
func (in *Input) Memo(key string, fn func() any) any {
	in.mu.Lock()
	if in.memo == nil {
		in.memo = make(map[string]*memoEntry)
	}
	e, ok := in.memo[key]
	if !ok {
		e = &memoEntry{}
		in.memo[key] = e
	}
	in.mu.Unlock()
	e.once.Do(func() { e.val = fn() })
	return e.val
}

// Retriever fetches memory summaries for a text. It is called only after
// the safety phase.
type Retriever interface {
	Retrieve(ctx context.Context, text string, snap *feature.Snapshot) ([]string, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, text string, snap *feature.Snapshot) ([]string, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, text string, snap *feature.Snapshot) ([]string, error) {
	return f(ctx, text, snap)
}
