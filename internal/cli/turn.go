package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/affectgate/internal/config"
	"github.com/ppiankov/affectgate/internal/server"
	"github.com/ppiankov/affectgate/internal/turn"
)

var (
	turnSession string
	turnRemote  string
)

func init() {
	rootCmd.AddCommand(turnCmd)
	turnCmd.Flags().StringVarP(&turnSession, "session", "s", "", "Session id (default: a new one)")
	turnCmd.Flags().StringVar(&turnRemote, "remote", "", "Run the turn on a server at host:port")
}

var turnCmd = &cobra.Command{
	Use:   "turn [text...]",
	Short: "Run one gated turn and print its events as JSON lines",
	Long: "Scores the prompt, applies Gate A, generates with the configured generator,\n" +
		"scores the response and applies Gate B. Accepted snapshots are appended to\n" +
		"the session chain in the configured store.",
	RunE: runTurn,
}

func runTurn(cmd *cobra.Command, args []string) error {
	text, err := readText(cmd, args)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	if turnRemote != "" {
		return remoteTurn(cmd.Context(), text, enc)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	b, err := turn.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	out, err := b.Engine.Run(cmd.Context(), turn.Request{Session: turnSession, Text: text}, func(ev turn.Event) error {
		return enc.Encode(ev)
	})
	if err != nil {
		return err
	}
	if !out.Delivered() {
		return errFailed
	}
	return nil
}

func remoteTurn(ctx context.Context, text string, enc *json.Encoder) error {
	conn, err := grpc.NewClient(turnRemote, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", turnRemote, err)
	}
	defer conn.Close()

	req, err := structpb.NewStruct(map[string]any{"session": turnSession, "text": text})
	if err != nil {
		return err
	}
	stream, err := server.NewClient(conn).Turn(ctx, req)
	if err != nil {
		return fmt.Errorf("remote turn: %w", err)
	}
	delivered := false
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("remote turn: %w", err)
		}
		ev := msg.AsMap()
		if ev["type"] == turn.EventComplete && ev["success"] == true {
			delivered = true
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	if !delivered {
		return errFailed
	}
	return nil
}
