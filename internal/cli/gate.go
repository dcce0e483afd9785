package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gateFormat string

func init() {
	rootCmd.AddCommand(gateCmd)
	gateCmd.Flags().StringVarP(&gateFormat, "format", "f", "text", "Output format (text|json)")
}

var gateCmd = &cobra.Command{
	Use:   "gate [text...]",
	Short: "Run the pre-generation gate on a prompt",
	Long: "Scores the prompt through the safety phase and evaluates Gate A.\n\n" +
		"Exit code 0 if the prompt passes, 1 if it is vetoed.",
	RunE: runGate,
}

func runGate(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd, args)
	if err != nil {
		return err
	}
	b, err := localEngine()
	if err != nil {
		return err
	}
	defer b.Close()

	ev, err := b.Engine.Evaluate(cmd.Context(), text, "", nil)
	if err != nil {
		return err
	}
	v := ev.GateA

	switch gateFormat {
	case "json":
		out := map[string]any{
			"result":   v.Result(),
			"severity": string(v.Severity),
		}
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	default:
		if v.Passed {
			fmt.Fprintln(cmd.OutOrStdout(), "PASS")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "VETO (%s)\n", v.Severity)
			for _, r := range v.VetoReasons {
				fmt.Fprintf(cmd.OutOrStdout(), "  reason: %s\n", r)
			}
			for _, r := range v.RuleViolations {
				fmt.Fprintf(cmd.OutOrStdout(), "  rule:   %s\n", r)
			}
		}
	}

	if !v.Passed {
		return errFailed
	}
	return nil
}
