package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/affectgate/internal/config"
	"github.com/ppiankov/affectgate/internal/turn"
)

// Config holds MCP server configuration.
type Config struct {
	ConfigPath string
	Version    string
	Logger     *zap.Logger
	Options    []turn.BuildOption
}

// Server exposes scoring, Gate A and chain verification as MCP tools.
type Server struct {
	mcpServer *mcpsdk.Server
	built     *turn.Built
	logger    *zap.Logger
}

// New builds an engine from the configuration and registers the tools.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	b, err := turn.Build(c, cfg.Logger, cfg.Options...)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		built:  b,
		logger: cfg.Logger.Named("mcp"),
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "affectgate",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Debug("serving on stdio")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves on an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

// Close waits for pending alerts and closes the chain store.
func (s *Server) Close() error {
	return s.built.Close()
}

// registerTools adds all affectgate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "affectgate_score",
		Description: "Score a prompt, and optionally a candidate response, without touching any session. Returns manifest-named features and both gate results.",
	}, s.handleScore)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "affectgate_gate_a",
		Description: "Run the pre-generation safety gate on a prompt. A vetoed prompt returns an error result with the veto reasons.",
	}, s.handleGateA)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "affectgate_chain_verify",
		Description: "Verify the integrity chain of one session, or of every stored session when none is given.",
	}, s.handleChainVerify)
}
