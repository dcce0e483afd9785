package turn

import (
	"encoding/json"

	"github.com/ppiankov/affectgate/internal/gate"
)

// Event types, in stream order.
const (
	EventStatus   = "status"
	EventFeatures = "features"
	EventGateA    = "gate_a"
	EventGateB    = "gate_b"
	EventVeto     = "veto"
	EventComplete = "complete"
)

// Status stages.
const (
	StageScoringPrompt   = "scoring_prompt"
	StageRetrieving      = "retrieving"
	StageGenerating      = "generating"
	StageScoringResponse = "scoring_response"
)

// Feature targets.
const (
	TargetPrompt   = "prompt"
	TargetResponse = "response"
)

// ModeBlocked and ModeFailed are reported by turns that did not deliver a
// response.
const (
	ModeBlocked = "blocked"
	ModeFailed  = "failed"
)

// Event is one element of a turn's stream. Only the fields relevant to
// Type are set.
type Event struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	TurnID  string `json:"turn_id"`

	Stage string `json:"stage,omitempty"`

	Target   string         `json:"target,omitempty"`
	Features map[string]any `json:"features,omitempty"`
	Filled   []string       `json:"filled,omitempty"`

	Gate   string       `json:"gate,omitempty"`
	Result *gate.Result `json:"result,omitempty"`

	Reasons []string `json:"reasons,omitempty"`
	Rules   []string `json:"rules,omitempty"`
	Color   string   `json:"color,omitempty"`

	Success  *bool  `json:"success,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Emit receives events. A non-nil error aborts the turn.
type Emit func(Event) error

// Discard drops every event.
func Discard(Event) error { return nil }

// Collect returns an Emit appending to *out.
func Collect(out *[]Event) Emit {
	return func(e Event) error {
		*out = append(*out, e)
		return nil
	}
}

// Types returns the type of each event, in order.
func Types(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// Map returns the event as a generic JSON object.
func (e Event) Map() (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
