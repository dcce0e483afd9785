// Package generate adapts language-model backends to the turn engine.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/neurorouter"
)

// Generation modes, chosen from the prompt's risk band.
const (
	ModeStandard   = "standard"
	ModeSupportive = "supportive"
	ModeGrounding  = "grounding"
)

// ErrEmptyResponse is returned when the backend answers without content.
var ErrEmptyResponse = errors.New("generate: empty response")

// Request is one generation call.
type Request struct {
	Session string
	TurnID  string
	Prompt  string
	Mode    string
	// Context holds retrieved summaries, passed through verbatim.
	Context []string
}

// Static always answers with the same text.
type Static struct {
	Response string
}

func (s Static) Generate(ctx context.Context, _ Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Response, nil
}

// Func adapts a function to a generator.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// HTTPConfig holds parameters of an OpenAI-compatible chat endpoint.
type HTTPConfig struct {
	URL       string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	System    string
}

// HTTP calls an OpenAI-compatible chat completion endpoint.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

const defaultSystem = `You are a careful, supportive conversational assistant. Respond in the user's language. Never describe methods of self-harm.`

var modeInstructions = map[string]string{
	ModeStandard:   "",
	ModeSupportive: "The user may be distressed. Acknowledge feelings first and keep the answer short.",
	ModeGrounding:  "The user may be at risk. Use calm grounding language, ask about immediate safety and point to local crisis services.",
}

// NewHTTP returns a generator for cfg, filling defaults.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.System == "" {
		cfg.System = defaultSystem
	}
	return &HTTP{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Generate sends the prompt with any retrieved context. HTTP 429 wraps
// neurorouter.ErrRateLimited.
func (g *HTTP) Generate(ctx context.Context, req Request) (string, error) {
	system := g.cfg.System
	if inst := modeInstructions[req.Mode]; inst != "" {
		system += "\n\n" + inst
	}
	if len(req.Context) > 0 {
		system += "\n\nContext from earlier conversations:\n- " + strings.Join(req.Context, "\n- ")
	}

	messages := []map[string]string{
		{"role": "system", "content": system},
		{"role": "user", "content": req.Prompt},
	}
	body, err := json.Marshal(map[string]any{
		"model":       g.cfg.Model,
		"messages":    messages,
		"max_tokens":  g.cfg.MaxTokens,
		"temperature": 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("generate: marshal request: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("generate: create request: %w", err)
	}
	if g.cfg.APIKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(hreq)
	if err != nil {
		return "", fmt.Errorf("generate: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("generate: %w", neurorouter.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("generate: HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("generate: decode response: %w", err)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
