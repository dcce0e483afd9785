package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/affectgate/internal/contract"
	"github.com/ppiankov/affectgate/internal/feature"
)

var (
	contractOutput string
	contractFormat string
	contractLedger string
)

func init() {
	contractExportCmd.Flags().StringVarP(&contractOutput, "output", "o", "", "Write the manifest to a file instead of stdout")
	contractCheckCmd.Flags().StringVarP(&contractFormat, "format", "f", "text", "Output format (text|json)")
	contractCheckCmd.Flags().StringVar(&contractLedger, "ledger", "", "Deprecation ledger YAML (default: built-in)")
	contractCanonicalizeCmd.Flags().StringVar(&contractLedger, "ledger", "", "Deprecation ledger YAML (default: built-in)")
	contractCmd.AddCommand(contractExportCmd, contractCheckCmd, contractCanonicalizeCmd)
	rootCmd.AddCommand(contractCmd)
}

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Export, check and canonicalize the output feature contract",
}

var contractExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the manifest of the built-in feature catalog",
	Args:  cobra.NoArgs,
	RunE:  runContractExport,
}

var contractCheckCmd = &cobra.Command{
	Use:   "check <manifest.yaml>",
	Short: "Compare a manifest with the built-in catalog",
	Long: "Reports every disagreement between the manifest and the catalog, and every\n" +
		"manifest name that the deprecation ledger treats as an alias. Nothing is corrected.\n\n" +
		"Exit code 0 if they agree, 1 otherwise.",
	Args: cobra.ExactArgs(1),
	RunE: runContractCheck,
}

var contractCanonicalizeCmd = &cobra.Command{
	Use:   "canonicalize [file.json]",
	Short: "Rewrite deprecated feature names in a JSON object",
	Long:  "Reads a JSON object of feature values (file or stdin), rewrites deprecated\nnames to their canonical form and prints the result. Renames go to stderr.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runContractCanonicalize,
}

func runContractExport(cmd *cobra.Command, args []string) error {
	m := contract.FromCatalog(feature.Builtin())
	if contractOutput != "" {
		if err := m.Write(contractOutput); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d features)\n", contractOutput, len(m.Features))
		return nil
	}
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func loadLedger() (*contract.Ledger, error) {
	if contractLedger != "" {
		return contract.LoadLedger(contractLedger)
	}
	return contract.DefaultLedger()
}

func runContractCheck(cmd *cobra.Command, args []string) error {
	m, err := contract.LoadManifest(args[0])
	if err != nil {
		return err
	}
	ledger, err := loadLedger()
	if err != nil {
		return err
	}
	report := contract.Check(m, feature.Builtin())
	ledgerErrs := ledger.CheckManifest(m)

	switch contractFormat {
	case "json":
		msgs := make([]string, len(ledgerErrs))
		for i, e := range ledgerErrs {
			msgs[i] = e.Error()
		}
		out := map[string]any{"report": report, "ledger": msgs}
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	default:
		fmt.Fprint(cmd.OutOrStdout(), contract.FormatText(report))
		for _, e := range ledgerErrs {
			fmt.Fprintf(cmd.OutOrStdout(), "  ledger: %v\n", e)
		}
	}

	if !report.OK() || len(ledgerErrs) > 0 {
		return errFailed
	}
	return nil
}

func runContractCanonicalize(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var in map[string]any
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("input must be a JSON object: %w", err)
	}
	ledger, err := loadLedger()
	if err != nil {
		return err
	}
	out, renames := ledger.Canonicalize(in)
	for _, r := range renames {
		if r.Dropped {
			fmt.Fprintf(cmd.ErrOrStderr(), "dropped %s (canonical %s present)\n", r.Alias, r.Canonical)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "renamed %s -> %s\n", r.Alias, r.Canonical)
		}
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
