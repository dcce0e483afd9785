package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/affectgate/internal/server"
)

var (
	scoreResponse  string
	scoreRetrieved []string
	scoreRemote    string
	scoreTimeout   time.Duration
	scoreFormat    string
)

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().StringVar(&scoreResponse, "response", "", "Candidate response to judge with Gate B")
	scoreCmd.Flags().StringSliceVar(&scoreRetrieved, "retrieved", nil, "Retrieved context summaries (repeatable)")
	scoreCmd.Flags().StringVar(&scoreRemote, "remote", "", "Score on a running server at host:port instead of locally")
	scoreCmd.Flags().DurationVar(&scoreTimeout, "timeout", 30*time.Second, "Remote call timeout")
	scoreCmd.Flags().StringVarP(&scoreFormat, "format", "f", "text", "Output format (text|json)")
}

var scoreCmd = &cobra.Command{
	Use:   "score [text...]",
	Short: "Score a prompt and optionally a response",
	Long: "Runs the feature phases on a prompt and reports manifest-named features and\n" +
		"the Gate A verdict. With --response the response is scored and judged by\n" +
		"Gate B as well. No session state or chain is touched.\n\n" +
		"Reads the text from stdin when no argument (or \"-\") is given.",
	RunE: runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd, args)
	if err != nil {
		return err
	}

	var report map[string]any
	if scoreRemote != "" {
		report, err = scoreRemoteReport(cmd.Context(), text)
	} else {
		report, err = scoreLocalReport(cmd.Context(), text)
	}
	if err != nil {
		return err
	}

	switch scoreFormat {
	case "json":
		return writeJSON(cmd.OutOrStdout(), report)
	default:
		fmt.Fprint(cmd.OutOrStdout(), formatReport(report))
		return nil
	}
}

func scoreLocalReport(ctx context.Context, text string) (map[string]any, error) {
	b, err := localEngine()
	if err != nil {
		return nil, err
	}
	defer b.Close()

	ev, err := b.Engine.Evaluate(ctx, text, scoreResponse, scoreRetrieved)
	if err != nil {
		return nil, err
	}
	return ev.Report(b.Engine.Manifest()).Map()
}

func scoreRemoteReport(ctx context.Context, text string) (map[string]any, error) {
	conn, err := grpc.NewClient(scoreRemote, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", scoreRemote, err)
	}
	defer conn.Close()

	retrieved := make([]any, len(scoreRetrieved))
	for i, r := range scoreRetrieved {
		retrieved[i] = r
	}
	req, err := structpb.NewStruct(map[string]any{
		"text":      text,
		"response":  scoreResponse,
		"retrieved": retrieved,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, scoreTimeout)
	defer cancel()
	resp, err := server.NewClient(conn).Score(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("remote score: %w", err)
	}
	return resp.AsMap(), nil
}
