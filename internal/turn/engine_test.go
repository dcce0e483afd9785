package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ppiankov/affectgate/internal/chain"
	"github.com/ppiankov/affectgate/internal/config"
	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/gate"
	"github.com/ppiankov/affectgate/internal/generate"
	"github.com/ppiankov/affectgate/internal/override"
	"github.com/ppiankov/affectgate/internal/pipeline"
)

const (
	calmPrompt    = "Das Wetter ist heute schön und ich gehe spazieren."
	crisisPrompt  = "Ich will sterben."
	calmResponse  = "That sounds like a lovely day. Where are you going to walk?"
	unsafeReponse = "Sometimes I want to kill myself too."
)

type vetoRecorder struct {
	mu    sync.Mutex
	gates []string
}

func (v *vetoRecorder) Veto(_ context.Context, _, _ string, verdict gate.Verdict) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gates = append(v.gates, verdict.Gate)
}

type countingGenerator struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req generate.Request) (string, error)
}

func (g *countingGenerator) Generate(ctx context.Context, req generate.Request) (string, error) {
	g.calls.Add(1)
	return g.fn(ctx, req)
}

func respond(text string) *countingGenerator {
	return &countingGenerator{fn: func(context.Context, generate.Request) (string, error) { return text, nil }}
}

type fixture struct {
	engine *Engine
	store  *chain.MemoryStore
	vetoes *vetoRecorder
}

func newFixture(t *testing.T, gen Generator, opts ...BuildOption) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Chain = config.ChainConfig{Store: config.StoreMemory}
	store := chain.NewMemoryStore()
	b, err := Build(cfg, nil, append([]BuildOption{WithGenerator(gen), WithStore(store)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	vetoes := &vetoRecorder{}
	b.Engine.d.Notifier = vetoes
	return &fixture{engine: b.Engine, store: store, vetoes: vetoes}
}

func TestTurnDelivers(t *testing.T) {
	f := newFixture(t, respond(calmResponse))
	var events []Event
	out, err := f.engine.Run(context.Background(), Request{Session: "s1", Text: calmPrompt}, Collect(&events))
	require.NoError(t, err)

	want := []string{
		EventStatus, EventFeatures, EventGateA,
		EventStatus, EventStatus, EventFeatures, EventGateB,
		EventComplete,
	}
	if diff := cmp.Diff(want, Types(events)); diff != "" {
		t.Fatalf("event order mismatch (-want +got):\n%s", diff)
	}
	last := events[len(events)-1]
	require.True(t, *last.Success)
	require.Equal(t, generate.ModeStandard, last.Mode)
	require.Equal(t, calmResponse, last.Response)
	require.Contains(t, last.Features, feature.RiskBand)

	require.True(t, out.Delivered())
	require.Equal(t, []gate.State{
		gate.StateIdle, gate.StateGateAEvaluating, gate.StateGateAPass, gate.StateGenerating,
		gate.StateGateBEvaluating, gate.StateGateBPass, gate.StateDone,
	}, out.History)
	require.Len(t, out.Entries, 2)
	require.True(t, out.Scored.Has(feature.ResponseOverlap))

	for _, ev := range events {
		require.Equal(t, "s1", ev.Session)
		require.Equal(t, out.TurnID, ev.TurnID)
	}

	res, err := f.engine.Chains().Session("s1").Verify(context.Background())
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, 2, res.Entries)
}

func TestGateAVetoPreventsGeneration(t *testing.T) {
	gen := respond(calmResponse)
	f := newFixture(t, gen)
	var events []Event
	out, err := f.engine.Run(context.Background(), Request{Session: "s", Text: crisisPrompt}, Collect(&events))
	require.NoError(t, err, "a veto is not an error")

	require.Equal(t, []string{EventStatus, EventFeatures, EventGateA, EventVeto}, Types(events))
	veto := events[len(events)-1]
	require.Equal(t, gate.NameA, veto.Gate)
	require.Equal(t, "red", veto.Color)
	require.NotEmpty(t, veto.Reasons)

	require.Zero(t, gen.calls.Load())
	require.Equal(t, gate.StateBlocked, out.State)
	require.Equal(t, ModeBlocked, out.Mode)
	require.Empty(t, out.Entries)
	require.Equal(t, []string{gate.NameA}, f.vetoes.gates)

	entries, _ := f.store.Load(context.Background(), "s")
	require.Empty(t, entries)
}

func TestGateBVetoKeepsPromptEntry(t *testing.T) {
	f := newFixture(t, respond(unsafeReponse))
	var events []Event
	out, err := f.engine.Run(context.Background(), Request{Session: "s", Text: calmPrompt}, Collect(&events))
	require.NoError(t, err)

	last := events[len(events)-1]
	require.Equal(t, EventVeto, last.Type)
	require.Equal(t, gate.NameB, last.Gate)
	require.Contains(t, last.Reasons, gate.ReasonCrisisReintroduced)
	for _, ev := range events {
		require.NotEqual(t, EventComplete, ev.Type)
	}
	require.Empty(t, out.Response, "vetoed responses are not returned")
	require.Len(t, out.Entries, 1)
	require.Equal(t, []string{gate.NameB}, f.vetoes.gates)
}

func TestRetrievalRunsAfterSafetyScan(t *testing.T) {
	var sawScan bool
	ret := pipeline.RetrieverFunc(func(_ context.Context, _ string, snap *feature.Snapshot) ([]string, error) {
		sawScan = snap.Bool(feature.SafetyScanComplete)
		return []string{"walked by the river last week"}, nil
	})
	var got generate.Request
	gen := &countingGenerator{fn: func(_ context.Context, req generate.Request) (string, error) {
		got = req
		return calmResponse, nil
	}}
	f := newFixture(t, gen, WithRetriever(ret))

	var events []Event
	out, err := f.engine.Run(context.Background(), Request{Session: "s", Text: calmPrompt}, Collect(&events))
	require.NoError(t, err)
	require.True(t, sawScan)
	require.Equal(t, []string{"walked by the river last week"}, got.Context)
	require.Equal(t, got.Context, out.Retrieved)
	require.Contains(t, Types(events), EventStatus)
	require.Equal(t, StageRetrieving, events[3].Stage)
}

func TestRetrievalFailureIsNotFatal(t *testing.T) {
	ret := pipeline.RetrieverFunc(func(context.Context, string, *feature.Snapshot) ([]string, error) {
		return nil, errors.New("index down")
	})
	f := newFixture(t, respond(calmResponse), WithRetriever(ret))
	out, err := f.engine.Run(context.Background(), Request{Session: "s", Text: calmPrompt}, nil)
	require.NoError(t, err)
	require.True(t, out.Delivered())
	require.Empty(t, out.Retrieved)
}

func TestGenerationFailureKeepsAuditTrail(t *testing.T) {
	gen := &countingGenerator{fn: func(context.Context, generate.Request) (string, error) {
		return "", errors.New("backend unavailable")
	}}
	f := newFixture(t, gen)
	var events []Event
	out, err := f.engine.Run(context.Background(), Request{Session: "s", Text: calmPrompt}, Collect(&events))
	require.ErrorIs(t, err, ErrGeneration)

	last := events[len(events)-1]
	require.Equal(t, EventComplete, last.Type)
	require.False(t, *last.Success)
	require.Equal(t, "generation failed", last.Error)
	require.Equal(t, ModeFailed, out.Mode)
	require.Equal(t, gate.StateGenerating, out.State)
	require.Len(t, out.Entries, 1, "the gate A entry stays")
}

func TestCancellationDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &countingGenerator{fn: func(ctx context.Context, _ generate.Request) (string, error) {
		cancel()
		return "", ctx.Err()
	}}
	f := newFixture(t, gen)
	var events []Event
	_, err := f.engine.Run(ctx, Request{Session: "s", Text: calmPrompt}, Collect(&events))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "cancelled", events[len(events)-1].Error)

	entries, _ := f.store.Load(context.Background(), "s")
	require.Len(t, entries, 1)
}

func TestBrokenChainLocksSession(t *testing.T) {
	f := newFixture(t, respond(calmResponse))
	ctx := context.Background()
	_, err := f.engine.Run(ctx, Request{Session: "s", Text: calmPrompt}, nil)
	require.NoError(t, err)

	f.store.Tamper("s", 1, func(e *chain.Entry) { e.Salt = "00" })
	_, err = f.engine.Chains().Session("s").Verify(ctx)
	require.Error(t, err)

	var events []Event
	_, err = f.engine.Run(ctx, Request{Session: "s", Text: calmPrompt}, Collect(&events))
	require.ErrorIs(t, err, ErrSessionLocked)
	require.Equal(t, "session locked", events[len(events)-1].Error)

	out, err := f.engine.Run(ctx, Request{Session: "other", Text: calmPrompt}, nil)
	require.NoError(t, err, "other sessions keep working")
	require.True(t, out.Delivered())
}

func TestSessionStateCarriesAcrossTurns(t *testing.T) {
	replies := []string{calmResponse, "I am sorry you feel that way. Do you want to talk about it?"}
	gen := &countingGenerator{}
	gen.fn = func(context.Context, generate.Request) (string, error) {
		return replies[gen.calls.Load()-1], nil
	}
	f := newFixture(t, gen)
	ctx := context.Background()
	first, err := f.engine.Run(ctx, Request{Session: "s", Text: calmPrompt}, nil)
	require.NoError(t, err)
	second, err := f.engine.Run(ctx, Request{Session: "s", Text: "Ich bin so traurig und allein."}, nil)
	require.NoError(t, err)

	require.Equal(t, 0.0, first.Prompt.Float(feature.TurnIndex))
	require.Equal(t, 1.0, second.Prompt.Float(feature.TurnIndex))
	require.NotEqual(t, first.TurnID, second.TurnID)

	entries, _ := f.store.Load(ctx, "s")
	require.Len(t, entries, 4)
}

func TestSessionDriftComparesWithPreviousTurn(t *testing.T) {
	f := newFixture(t, respond(calmResponse))
	ctx := context.Background()

	first, err := f.engine.Run(ctx, Request{Session: "d", Text: "Ich bin so glücklich und froh."}, nil)
	require.NoError(t, err)
	require.True(t, first.Delivered())
	second, err := f.engine.Run(ctx, Request{Session: "d", Text: "Alles ist hoffnungslos und sinnlos."}, nil)
	require.NoError(t, err)
	require.True(t, second.Delivered())

	before := first.Prompt.Float(feature.RiskLevel)
	after := second.Prompt.Float(feature.RiskLevel)
	require.Greater(t, after, before)
	require.Zero(t, first.Prompt.Float(feature.SessionDrift))
	require.Positive(t, second.Prompt.Float(feature.SessionDrift))
	require.InDelta(t, after-before, second.Prompt.Float(feature.SessionDrift), 1e-9)
	require.Negative(t, second.Prompt.Float(feature.ValenceDelta))
}

func TestSessionlessTurnsKeepNoState(t *testing.T) {
	f := newFixture(t, respond(calmResponse))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		out, err := f.engine.Run(ctx, Request{Text: calmPrompt}, nil)
		require.NoError(t, err)
		require.True(t, out.Delivered())
	}
	_, err := f.engine.Run(ctx, Request{Text: crisisPrompt}, nil)
	require.NoError(t, err)

	held := 0
	f.engine.sessions.Range(func(_, _ any) bool {
		held++
		return true
	})
	require.Zero(t, held)
	require.Zero(t, f.engine.Chains().Active())

	sessions, err := f.engine.Chains().Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 25, "entries of generated sessions stay in the store")

	_, err = f.engine.Run(ctx, Request{Session: "named", Text: calmPrompt}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, f.engine.Chains().Active())
}

func TestRepeatedEvaluationAppendsOnce(t *testing.T) {
	f := newFixture(t, respond(calmResponse))
	ctx := context.Background()
	text := "Ich bin nicht panisch, aber ich habe keine Hoffnung mehr. Alles ist sinnlos."

	ch := f.engine.Chains().Session("repeat")
	for i := 0; i < 20; i++ {
		ev, err := f.engine.Evaluate(ctx, text, "", nil)
		require.NoError(t, err)
		_, _, err = ch.Append(ctx, ev.Prompt)
		require.NoError(t, err)
	}
	entries, err := f.store.Load(ctx, "repeat")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestEmitErrorAbortsTurn(t *testing.T) {
	gen := respond(calmResponse)
	f := newFixture(t, gen)
	boom := errors.New("client gone")
	emit := func(ev Event) error {
		if ev.Type == EventGateA {
			return boom
		}
		return nil
	}
	_, err := f.engine.Run(context.Background(), Request{Session: "s", Text: calmPrompt}, emit)
	require.ErrorIs(t, err, boom)
	require.Zero(t, gen.calls.Load())
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, respond(calmResponse))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(session string) {
				defer wg.Done()
				if _, err := f.engine.Run(ctx, Request{Session: session, Text: calmPrompt}, nil); err != nil {
					errs <- err
				}
			}(fmt.Sprintf("s%d", i))
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	sessions, err := f.engine.Chains().Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 8)
	for _, s := range sessions {
		res, err := f.engine.Chains().Session(s).Verify(ctx)
		require.NoError(t, err)
		require.True(t, res.Valid)
	}
}

func TestEmptySessionGetsID(t *testing.T) {
	f := newFixture(t, respond(calmResponse))
	out, err := f.engine.Run(context.Background(), Request{Text: calmPrompt}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, out.Session)
}

func TestEvaluateIsStateless(t *testing.T) {
	f := newFixture(t, respond(calmResponse))
	ctx := context.Background()

	ev, err := f.engine.Evaluate(ctx, crisisPrompt, unsafeReponse, nil)
	require.NoError(t, err)
	require.False(t, ev.GateA.Passed)
	require.GreaterOrEqual(t, ev.Prompt.Float(feature.DangerProximity), override.CrisisLiteralFloor)
	require.NotNil(t, ev.GateB)

	var fired bool
	for _, a := range ev.Overrides {
		if a.Rule == override.CrisisLiteralRule {
			fired = true
		}
	}
	require.True(t, fired)

	m, err := ev.Report(f.engine.Manifest()).Map()
	require.NoError(t, err)
	require.Contains(t, m, "features")
	require.Contains(t, m, "gate_b")

	sessions, err := f.engine.Chains().Sessions(ctx)
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestModeFor(t *testing.T) {
	require.Equal(t, generate.ModeStandard, ModeFor("low"))
	require.Equal(t, generate.ModeSupportive, ModeFor("moderate"))
	require.Equal(t, generate.ModeGrounding, ModeFor("high"))
	require.Equal(t, generate.ModeGrounding, ModeFor("critical"))
}

func TestEventMap(t *testing.T) {
	m, err := Event{Type: EventVeto, Session: "s", TurnID: "t", Gate: gate.NameA, Color: "red"}.Map()
	require.NoError(t, err)
	require.Equal(t, "veto", m["type"])
	require.Equal(t, "red", m["color"])
	require.NotContains(t, m, "success")
}
