package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/affectgate/internal/chain"
	"github.com/ppiankov/affectgate/internal/config"
	"github.com/ppiankov/affectgate/internal/turn"
)

// readText returns the joined arguments, or stdin when there are none or
// the only argument is "-".
func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no text given")
	}
	return text, nil
}

// localEngine builds an engine for stateless evaluation. Chains are kept
// in memory so scoring never writes to the configured store.
func localEngine() (*turn.Built, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return turn.Build(cfg, logger, turn.WithStore(chain.NewMemoryStore()))
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// formatReport renders a score report for humans.
func formatReport(m map[string]any) string {
	var b strings.Builder
	writeGate(&b, "Gate A", m["gate_a"], m["gate_a_severity"])
	if gb, ok := m["gate_b"]; ok {
		writeGate(&b, "Gate B", gb, m["gate_b_severity"])
	}
	writeFeatures(&b, "Prompt features", m["features"], m["filled"])
	if rf, ok := m["response_features"]; ok {
		writeFeatures(&b, "Response features", rf, m["response_filled"])
	}
	if ov, ok := m["overrides"].([]any); ok && len(ov) > 0 {
		b.WriteString("\nOverrides:\n")
		for _, o := range ov {
			om, _ := o.(map[string]any)
			fmt.Fprintf(&b, "  %v: %v %v -> %v\n", om["rule"], om["target"], om["before"], om["after"])
		}
	}
	return b.String()
}

func writeGate(b *strings.Builder, name string, v, severity any) {
	g, _ := v.(map[string]any)
	if passed, _ := g["passed"].(bool); passed {
		fmt.Fprintf(b, "%s: PASS\n", name)
		return
	}
	fmt.Fprintf(b, "%s: VETO", name)
	if s, _ := severity.(string); s != "" {
		fmt.Fprintf(b, " (%s)", s)
	}
	b.WriteString("\n")
	for _, key := range []string{"veto_reasons", "rule_violations"} {
		list, _ := g[key].([]any)
		for _, r := range list {
			fmt.Fprintf(b, "  - %v\n", r)
		}
	}
}

func writeFeatures(b *strings.Builder, title string, v, filled any) {
	features, _ := v.(map[string]any)
	isFilled := map[string]bool{}
	if list, ok := filled.([]any); ok {
		for _, f := range list {
			if s, ok := f.(string); ok {
				isFilled[s] = true
			}
		}
	}
	names := make([]string, 0, len(features))
	for n := range features {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintf(b, "\n%s:\n", title)
	for _, n := range names {
		mark := ""
		if isFilled[n] {
			mark = "  (default)"
		}
		fmt.Fprintf(b, "  %-28s %v%s\n", n, formatValue(features[n]), mark)
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.3f", x)
	case nil:
		return "-"
	default:
		return fmt.Sprint(x)
	}
}
