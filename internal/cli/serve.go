package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/affectgate/internal/server"
)

var serveListen string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "gRPC listen address (overrides server.listen)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC gate server",
	Long:  "Serves affectgate.v1.GateService over gRPC: unary Score and streaming Turn.\nThe config, lexicon and contract files are watched and hot-reloaded;\na failed reload keeps the running engine.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := server.New(server.Config{
		ConfigPath: configPath,
		Listen:     serveListen,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloader, err := server.NewReloader(srv)
	if err != nil {
		logger.Warn("hot reload disabled", zap.Error(err))
	} else {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			logger.Info("shutting down")
			cancel()
			srv.GracefulStop()
		case <-ctx.Done():
		}
	}()

	logger.Info("affectgate server starting", zap.String("config_hash", srv.ConfigHash()))
	return srv.Serve()
}
