package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/affectgate/internal/chain"
	"github.com/ppiankov/affectgate/internal/turn"
)

// --- Input/Output types ---

// ScoreInput defines parameters for the affectgate_score tool.
type ScoreInput struct {
	Text      string   `json:"text" jsonschema:"prompt text to score"`
	Response  string   `json:"response,omitempty" jsonschema:"candidate response, judged by the post-generation gate"`
	Retrieved []string `json:"retrieved,omitempty" jsonschema:"retrieved context summaries"`
}

// GateInput defines parameters for the affectgate_gate_a tool.
type GateInput struct {
	Text string `json:"text" jsonschema:"prompt text to check"`
}

// GateOutput is a gate decision.
type GateOutput struct {
	Passed         bool     `json:"passed"`
	Severity       string   `json:"severity,omitempty"`
	VetoReasons    []string `json:"veto_reasons"`
	RuleViolations []string `json:"rule_violations"`
}

// ChainVerifyInput defines parameters for the affectgate_chain_verify tool.
type ChainVerifyInput struct {
	Session string `json:"session,omitempty" jsonschema:"session id, omit to verify every stored session"`
}

// ChainVerifyOutput lists one result per verified session.
type ChainVerifyOutput struct {
	Valid    bool                 `json:"valid"`
	Sessions []chain.VerifyResult `json:"sessions"`
}

// --- Handlers ---

func (s *Server) handleScore(ctx context.Context, req *mcpsdk.CallToolRequest, input ScoreInput) (*mcpsdk.CallToolResult, turn.Report, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, turn.Report{}, errors.New("text is required")
	}
	eng := s.built.Engine
	ev, err := eng.Evaluate(ctx, input.Text, input.Response, input.Retrieved)
	if err != nil {
		return nil, turn.Report{}, err
	}
	return nil, ev.Report(eng.Manifest()), nil
}

func (s *Server) handleGateA(ctx context.Context, req *mcpsdk.CallToolRequest, input GateInput) (*mcpsdk.CallToolResult, GateOutput, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, GateOutput{}, errors.New("text is required")
	}
	ev, err := s.built.Engine.Evaluate(ctx, input.Text, "", nil)
	if err != nil {
		return nil, GateOutput{}, err
	}
	res := ev.GateA.Result()
	out := GateOutput{
		Passed:         res.Passed,
		Severity:       string(ev.GateA.Severity),
		VetoReasons:    res.VetoReasons,
		RuleViolations: res.RuleViolations,
	}
	if !out.Passed {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleChainVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input ChainVerifyInput) (*mcpsdk.CallToolResult, ChainVerifyOutput, error) {
	chains := s.built.Engine.Chains()

	sessions := []string{input.Session}
	if input.Session == "" {
		var err error
		sessions, err = chains.Sessions(ctx)
		if err != nil {
			return nil, ChainVerifyOutput{}, fmt.Errorf("list sessions: %w", err)
		}
	} else if !chain.ValidSession(input.Session) {
		return nil, ChainVerifyOutput{}, fmt.Errorf("invalid session id %q", input.Session)
	}

	out := ChainVerifyOutput{Valid: true, Sessions: []chain.VerifyResult{}}
	for _, id := range sessions {
		res, err := chains.Session(id).Verify(ctx)
		var brk *chain.BreakError
		if err != nil && !errors.As(err, &brk) {
			return nil, ChainVerifyOutput{}, err
		}
		if !res.Valid {
			out.Valid = false
		}
		out.Sessions = append(out.Sessions, res)
	}
	if !out.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}
