package turn

import (
	"context"
	"encoding/json"

	"github.com/ppiankov/affectgate/internal/contract"
	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/gate"
	"github.com/ppiankov/affectgate/internal/override"
	"github.com/ppiankov/affectgate/internal/pipeline"
)

// Evaluation is a stateless scoring of a prompt and, optionally, a
// response. It touches neither sessions nor chains.
type Evaluation struct {
	Prompt    *feature.Snapshot
	Overrides []override.Applied
	GateA     gate.Verdict
	Response  *feature.Snapshot
	GateB     *gate.Verdict
}

// Report is the flat wire form of an Evaluation.
type Report struct {
	Features         map[string]any     `json:"features"`
	Filled           []string           `json:"filled"`
	Overrides        []override.Applied `json:"overrides"`
	GateA            gate.Result        `json:"gate_a"`
	GateASeverity    string             `json:"gate_a_severity,omitempty"`
	ResponseFeatures map[string]any     `json:"response_features,omitempty"`
	ResponseFilled   []string           `json:"response_filled,omitempty"`
	GateB            *gate.Result       `json:"gate_b,omitempty"`
	GateBSeverity    string             `json:"gate_b_severity,omitempty"`
}

// Evaluate scores prompt through phase 4 and runs Gate A on its safety
// snapshot. A non-empty response is scored through phases 1 to 3 and 5 and
// judged by Gate B. Retrieved summaries are attached after the safety
// phase, as in a turn.
func (e *Engine) Evaluate(ctx context.Context, prompt, response string, retrieved []string) (*Evaluation, error) {
	run := e.d.Scheduler.Start(prompt, pipeline.Context{})
	if err := run.Advance(ctx, feature.PhaseSafety); err != nil {
		return nil, err
	}
	scanned := frozen(run.Snapshot())
	ev := &Evaluation{Overrides: run.Overrides()}
	ev.GateA = e.d.GateA.Evaluate(prompt, scanned)

	if len(retrieved) > 0 {
		static := pipeline.RetrieverFunc(func(context.Context, string, *feature.Snapshot) ([]string, error) {
			return retrieved, nil
		})
		if err := run.Enrich(ctx, static); err != nil {
			return nil, err
		}
	}
	if err := run.Advance(ctx, feature.PhaseSynthesis); err != nil {
		return nil, err
	}
	ev.Prompt = run.Finish()

	if response == "" {
		return ev, nil
	}
	rrun := e.d.Scheduler.Start(response, pipeline.Context{
		Retrieved:  retrieved,
		Prompt:     ev.Prompt,
		PromptText: prompt,
	})
	if err := rrun.Advance(ctx, feature.PhaseSafety); err != nil {
		return nil, err
	}
	if err := rrun.RunPhase(ctx, feature.PhaseDyadic); err != nil {
		return nil, err
	}
	ev.Response = rrun.Finish()
	vb := e.d.GateB.Evaluate(response, ev.Response, ev.Prompt, retrieved)
	ev.GateB = &vb
	return ev, nil
}

// Report flattens the evaluation using m for canonical names.
func (ev *Evaluation) Report(m *contract.Manifest) Report {
	r := Report{
		Overrides:     append([]override.Applied{}, ev.Overrides...),
		GateA:         ev.GateA.Result(),
		GateASeverity: string(ev.GateA.Severity),
	}
	r.Features, r.Filled = contract.Output(ev.Prompt, m)
	if ev.Response != nil {
		r.ResponseFeatures, r.ResponseFilled = contract.Output(ev.Response, m)
	}
	if ev.GateB != nil {
		res := ev.GateB.Result()
		r.GateB = &res
		r.GateBSeverity = string(ev.GateB.Severity)
	}
	return r
}

// Map returns the report as a generic JSON object.
func (r Report) Map() (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
