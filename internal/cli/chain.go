package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/affectgate/internal/chain"
	"github.com/ppiankov/affectgate/internal/config"
	"github.com/ppiankov/affectgate/internal/turn"
)

var (
	chainFiles  []string
	chainFormat string
	chainTailN  int
)

func init() {
	chainVerifyCmd.Flags().StringSliceVar(&chainFiles, "file", nil, "Verify JSONL chain files directly instead of the configured store")
	chainVerifyCmd.Flags().StringVarP(&chainFormat, "format", "f", "text", "Output format (text|json)")
	chainTailCmd.Flags().IntVarP(&chainTailN, "lines", "n", 10, "Number of entries to show")
	chainCmd.AddCommand(chainVerifyCmd, chainTailCmd)
	rootCmd.AddCommand(chainCmd)
}

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Inspect session integrity chains",
	Long:  "Reads session chains from the configured store (file or sqlite).\nA memory store holds nothing between runs.",
}

var chainVerifyCmd = &cobra.Command{
	Use:   "verify [session...]",
	Short: "Verify session chains",
	Long: "Recomputes every link of the named sessions, or of every stored session.\n\n" +
		"Exit code 0 if all chains are intact, 1 if any is broken.",
	RunE: runChainVerify,
}

var chainTailCmd = &cobra.Command{
	Use:   "tail <session>",
	Short: "Print the last entries of a session chain as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runChainTail,
}

func openChainStore() (chain.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return turn.OpenStore(cfg.Chain)
}

func runChainVerify(cmd *cobra.Command, args []string) error {
	var results []chain.VerifyResult
	if len(chainFiles) > 0 {
		for _, f := range chainFiles {
			results = append(results, chain.VerifyFile(f))
		}
	} else {
		store, err := openChainStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sessions := args
		if len(sessions) == 0 {
			sessions, err = store.Sessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
		}
		for _, id := range sessions {
			if !chain.ValidSession(id) {
				return fmt.Errorf("invalid session id %q", id)
			}
			entries, err := store.Load(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("load %s: %w", id, err)
			}
			results = append(results, chain.Result(id, entries, chain.VerifyEntries(id, entries)))
		}
	}

	if chainFormat == "json" {
		if results == nil {
			results = []chain.VerifyResult{}
		}
		if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		writeVerifyText(cmd.OutOrStdout(), results)
	}

	for _, r := range results {
		if !r.Valid {
			return errFailed
		}
	}
	return nil
}

func writeVerifyText(w io.Writer, results []chain.VerifyResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(w, "OK      %s (%d entries)\n", r.Session, r.Entries)
			continue
		}
		if r.Seq > 0 {
			fmt.Fprintf(w, "BROKEN  %s at seq %d: %s\n", r.Session, r.Seq, r.Error)
		} else {
			fmt.Fprintf(w, "BROKEN  %s: %s\n", r.Session, r.Error)
		}
	}
}

func runChainTail(cmd *cobra.Command, args []string) error {
	session := args[0]
	if !chain.ValidSession(session) {
		return fmt.Errorf("invalid session id %q", session)
	}
	store, err := openChainStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Load(cmd.Context(), session)
	if err != nil {
		return err
	}
	if chainTailN > 0 && len(entries) > chainTailN {
		entries = entries[len(entries)-chainTailN:]
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
