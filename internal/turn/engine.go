// Package turn drives one conversational turn through scoring, the double
// gate, generation and the session chain, emitting an ordered event stream.
package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/affectgate/internal/chain"
	"github.com/ppiankov/affectgate/internal/contract"
	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/gate"
	"github.com/ppiankov/affectgate/internal/generate"
	"github.com/ppiankov/affectgate/internal/pipeline"
)

var (
	// ErrSessionLocked is returned for turns of a session whose chain broke.
	ErrSessionLocked = errors.New("turn: session locked")
	// ErrGeneration wraps generator failures.
	ErrGeneration = errors.New("turn: generation failed")
)

// Generator produces a response for a prompt that passed Gate A.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (string, error)
}

// Notifier is told about vetoes.
type Notifier interface {
	Veto(ctx context.Context, session, turnID string, v gate.Verdict)
}

// SummaryFeatures are reported in the complete event.
var SummaryFeatures = []string{
	feature.DangerProximity,
	feature.CrisisScore,
	feature.RiskLevel,
	feature.RiskBand,
	feature.FinalScore,
	feature.AffectLabel,
	feature.SessionDrift,
	feature.TurnIndex,
	feature.SnapshotDigest,
}

// Deps are the engine's collaborators. Scheduler, GateA, GateB, Chains and
// Generator are required.
type Deps struct {
	Scheduler *pipeline.Scheduler
	GateA     *gate.GateA
	GateB     *gate.GateB
	Chains    *chain.Registry
	Generator Generator
	Retriever pipeline.Retriever
	Notifier  Notifier
	Manifest  *contract.Manifest
	Logger    *zap.Logger
	Now       func() time.Time
}

// Engine runs turns. Sessions are independent; turns of one session are
// serialized.
type Engine struct {
	d        Deps
	names    map[string]string
	sessions sync.Map // session -> *session
}

type session struct {
	mu      sync.Mutex
	turns   int
	started time.Time
	prev    *feature.Snapshot
}

// New validates deps and returns an engine.
func New(d Deps) (*Engine, error) {
	switch {
	case d.Scheduler == nil:
		return nil, fmt.Errorf("turn: scheduler is required")
	case d.GateA == nil || d.GateB == nil:
		return nil, fmt.Errorf("turn: both gates are required")
	case d.Chains == nil:
		return nil, fmt.Errorf("turn: chain registry is required")
	case d.Generator == nil:
		return nil, fmt.Errorf("turn: generator is required")
	}
	if d.Manifest == nil {
		d.Manifest = contract.FromCatalog(d.Scheduler.Catalog())
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	names := make(map[string]string, len(d.Manifest.Features))
	for _, e := range d.Manifest.Features {
		names[e.Internal] = e.Name
	}
	return &Engine{d: d, names: names}, nil
}

// Chains returns the chain registry.
func (e *Engine) Chains() *chain.Registry { return e.d.Chains }

// Manifest returns the output manifest.
func (e *Engine) Manifest() *contract.Manifest { return e.d.Manifest }

// Request is one turn.
type Request struct {
	Session string
	Text    string
}

// Outcome summarizes a turn. Fields are filled as far as the turn got.
type Outcome struct {
	Session   string
	TurnID    string
	State     gate.State
	History   []gate.State
	Mode      string
	Prompt    *feature.Snapshot
	Response  string
	Scored    *feature.Snapshot
	GateA     *gate.Verdict
	GateB     *gate.Verdict
	Entries   []chain.Entry
	Retrieved []string
}

// Delivered reports whether the response passed both gates.
func (o *Outcome) Delivered() bool { return o.State == gate.StateDone }

// Run executes one turn, emitting events in order. A veto is not an error:
// the veto event ends the stream and Run returns a nil error. Ordering and
// collaborator failures end the stream with an unsuccessful complete event
// and are returned. Chain entries written before a failure or cancellation
// stay in place.
func (e *Engine) Run(ctx context.Context, req Request, emit Emit) (*Outcome, error) {
	if emit == nil {
		emit = Discard
	}
	var sess *session
	if req.Session == "" {
		// A generated id is never seen again, so nothing about it is kept
		// once the turn ends. Its chain entries stay in the store.
		req.Session = uuid.NewString()
		sess = &session{started: e.d.Now()}
		defer e.d.Chains.Release(req.Session)
	} else {
		sess = e.session(req.Session)
	}
	out := &Outcome{Session: req.Session, TurnID: uuid.NewString(), State: gate.StateIdle}
	logger := e.d.Logger.With(zap.String("session", out.Session), zap.String("turn_id", out.TurnID))

	sess.mu.Lock()
	defer sess.mu.Unlock()

	t := &turnRun{e: e, out: out, emit: emit, logger: logger, machine: gate.NewMachine()}
	err := t.run(ctx, req, sess)
	out.State = t.machine.State()
	out.History = t.machine.History()
	if err != nil && !t.closed {
		mode := ModeFailed
		_ = t.send(Event{Type: EventComplete, Success: boolPtr(false), Mode: mode, Error: publicError(err)})
		out.Mode = mode
		logger.Warn("turn failed", zap.Error(err))
	}
	return out, err
}

func (e *Engine) session(id string) *session {
	if s, ok := e.sessions.Load(id); ok {
		return s.(*session)
	}
	s, _ := e.sessions.LoadOrStore(id, &session{started: e.d.Now()})
	return s.(*session)
}

type turnRun struct {
	e       *Engine
	out     *Outcome
	emit    Emit
	logger  *zap.Logger
	machine *gate.Machine
	closed  bool
}

func (t *turnRun) send(ev Event) error {
	ev.Session = t.out.Session
	ev.TurnID = t.out.TurnID
	if ev.Type == EventVeto || ev.Type == EventComplete {
		t.closed = true
	}
	return t.emit(ev)
}

func (t *turnRun) status(stage string) error {
	return t.send(Event{Type: EventStatus, Stage: stage})
}

func (t *turnRun) run(ctx context.Context, req Request, sess *session) error {
	e := t.e
	ch := e.d.Chains.Session(req.Session)
	if ch.Locked() {
		return ErrSessionLocked
	}

	if err := t.status(StageScoringPrompt); err != nil {
		return err
	}
	pctx := pipeline.Context{
		Session:   req.Session,
		TurnIndex: sess.turns,
		Elapsed:   e.d.Now().Sub(sess.started),
		Previous:  sess.prev,
	}
	sess.turns++
	prun := e.d.Scheduler.Start(req.Text, pctx)
	if err := prun.Advance(ctx, feature.PhaseSafety); err != nil {
		return err
	}
	scanned := frozen(prun.Snapshot())
	// Replaced by the full prompt snapshot once phase 4 ran; a vetoed turn
	// leaves only its safety scan as the session's previous state.
	sess.prev = scanned
	if err := t.features(TargetPrompt, scanned); err != nil {
		return err
	}

	// Gate A.
	if err := t.machine.Transition(gate.StateGateAEvaluating); err != nil {
		return err
	}
	va := e.d.GateA.Evaluate(req.Text, scanned)
	t.out.GateA = &va
	if err := t.machine.Record(va); err != nil {
		return err
	}
	res := va.Result()
	if err := t.send(Event{Type: EventGateA, Gate: va.Gate, Result: &res}); err != nil {
		return err
	}
	if !va.Passed {
		return t.veto(ctx, va)
	}
	if err := t.append(ctx, ch, scanned); err != nil {
		return err
	}

	// Retrieval is only reachable after the safety phase.
	if e.d.Retriever != nil {
		if err := t.status(StageRetrieving); err != nil {
			return err
		}
		if err := prun.Enrich(ctx, e.d.Retriever); err != nil {
			if errors.Is(err, pipeline.ErrSafetyScanPending) || ctx.Err() != nil {
				return err
			}
			t.logger.Warn("retrieval failed, continuing without context", zap.Error(err))
		}
		t.out.Retrieved = prun.Context().Retrieved
	}
	if err := prun.Advance(ctx, feature.PhaseSynthesis); err != nil {
		return err
	}
	prompt := prun.Finish()
	sess.prev = prompt
	t.out.Prompt = prompt
	mode := ModeFor(prompt.Str(feature.RiskBand))
	t.out.Mode = mode

	// Generation.
	if err := t.machine.Transition(gate.StateGenerating); err != nil {
		return err
	}
	if err := t.status(StageGenerating); err != nil {
		return err
	}
	response, err := e.d.Generator.Generate(ctx, generate.Request{
		Session: req.Session,
		TurnID:  t.out.TurnID,
		Prompt:  req.Text,
		Mode:    mode,
		Context: t.out.Retrieved,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	t.out.Response = response

	// Response scoring reuses the pipeline; phase 4 is skipped and the
	// dyadic phase compares against the prompt.
	if err := t.status(StageScoringResponse); err != nil {
		return err
	}
	rrun := e.d.Scheduler.Start(response, pipeline.Context{
		Session:    req.Session,
		TurnIndex:  pctx.TurnIndex,
		Elapsed:    pctx.Elapsed,
		Retrieved:  t.out.Retrieved,
		Prompt:     prompt,
		PromptText: req.Text,
	})
	if err := rrun.Advance(ctx, feature.PhaseSafety); err != nil {
		return err
	}
	if err := rrun.RunPhase(ctx, feature.PhaseDyadic); err != nil {
		return err
	}
	scored := rrun.Finish()
	t.out.Scored = scored
	if err := t.features(TargetResponse, scored); err != nil {
		return err
	}

	// Gate B.
	if err := t.machine.Transition(gate.StateGateBEvaluating); err != nil {
		return err
	}
	vb := e.d.GateB.Evaluate(response, scored, prompt, t.out.Retrieved)
	t.out.GateB = &vb
	if err := t.machine.Record(vb); err != nil {
		return err
	}
	resB := vb.Result()
	if err := t.send(Event{Type: EventGateB, Gate: vb.Gate, Result: &resB}); err != nil {
		return err
	}
	if !vb.Passed {
		t.out.Response = ""
		return t.veto(ctx, vb)
	}
	if err := t.append(ctx, ch, scored); err != nil {
		return err
	}
	if err := t.machine.Transition(gate.StateDone); err != nil {
		return err
	}

	return t.send(Event{
		Type:     EventComplete,
		Success:  boolPtr(true),
		Mode:     mode,
		Response: response,
		Features: t.e.summary(prompt),
	})
}

func (t *turnRun) features(target string, s *feature.Snapshot) error {
	flat, filled := contract.Output(s, t.e.d.Manifest)
	return t.send(Event{Type: EventFeatures, Target: target, Features: flat, Filled: filled})
}

func (t *turnRun) veto(ctx context.Context, v gate.Verdict) error {
	t.out.Mode = ModeBlocked
	t.logger.Info("turn vetoed",
		zap.String("gate", v.Gate),
		zap.Strings("reasons", v.VetoReasons),
		zap.String("severity", string(v.Severity)),
	)
	if t.e.d.Notifier != nil {
		t.e.d.Notifier.Veto(ctx, t.out.Session, t.out.TurnID, v)
	}
	return t.send(Event{
		Type:    EventVeto,
		Gate:    v.Gate,
		Reasons: v.VetoReasons,
		Rules:   v.RuleViolations,
		Color:   string(v.Severity),
	})
}

func (t *turnRun) append(ctx context.Context, ch *chain.Chain, s *feature.Snapshot) error {
	entry, _, err := ch.Append(ctx, s)
	if errors.Is(err, chain.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrSessionLocked, err)
	}
	if err != nil {
		return err
	}
	t.out.Entries = append(t.out.Entries, entry)
	return nil
}

func (e *Engine) summary(s *feature.Snapshot) map[string]any {
	out := make(map[string]any, len(SummaryFeatures))
	for _, id := range SummaryFeatures {
		name, ok := e.names[id]
		if !ok {
			continue
		}
		if v, ok := s.Get(id); ok {
			out[name] = v.Interface()
		}
	}
	return out
}

// ModeFor maps a risk band to a generation mode.
func ModeFor(band string) string {
	switch band {
	case "moderate":
		return generate.ModeSupportive
	case "high", "critical":
		return generate.ModeGrounding
	default:
		return generate.ModeStandard
	}
}

// frozen returns a sealed copy, so later phases do not change what a gate
// saw or what the chain certified.
func frozen(s *feature.Snapshot) *feature.Snapshot {
	c := s.Clone()
	c.Seal()
	return c
}

// publicError hides internals from the event stream: ordering and
// configuration failures surface as a generic state.
func publicError(err error) string {
	switch {
	case errors.Is(err, ErrSessionLocked):
		return "session locked"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrGeneration):
		return "generation failed"
	default:
		return "internal error"
	}
}

func boolPtr(b bool) *bool { return &b }
