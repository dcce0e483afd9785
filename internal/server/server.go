package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/affectgate/internal/chain"
	"github.com/ppiankov/affectgate/internal/config"
	"github.com/ppiankov/affectgate/internal/turn"
)

// Config holds gRPC server configuration.
type Config struct {
	// ConfigPath is the YAML configuration file. A missing file means
	// defaults.
	ConfigPath string
	// Listen overrides server.listen from the configuration.
	Listen string
	Logger *zap.Logger
	// Options are applied to every engine build, after the shared store.
	Options []turn.BuildOption
}

// Server implements affectgate.v1.GateService.
type Server struct {
	cfg    Config
	logger *zap.Logger

	// store outlives reloads so chains survive an engine swap.
	store    chain.Store
	chainCfg config.ChainConfig

	// cur is the engine in service. Requests pin it without a lock, so a
	// reload never waits on a slow stream and never blocks new requests.
	cur atomic.Pointer[instance]
	// swap serializes Reload and Close.
	swap sync.Mutex

	grpcServer *grpc.Server
}

// instance is one built engine with its request count. A retired instance
// is closed once its last request returns.
type instance struct {
	built  *turn.Built
	hash   string
	listen string
	watch  []string

	refs    atomic.Int64
	retired atomic.Bool
	once    sync.Once
	drained chan struct{}
}

func (in *instance) release() {
	if in.refs.Add(-1) == 0 && in.retired.Load() {
		in.once.Do(func() { close(in.drained) })
	}
}

// retire marks in as out of service. It must be swapped out of Server.cur
// first, so no new request can pin it.
func (in *instance) retire() {
	in.retired.Store(true)
	if in.refs.Load() == 0 {
		in.once.Do(func() { close(in.drained) })
	}
}

// New loads the configuration, opens the chain store and builds the first
// engine.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c, hash, err := config.LoadWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := turn.OpenStore(c.Chain)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain store: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		logger:     cfg.Logger.Named("server"),
		store:      store,
		chainCfg:   c.Chain,
		grpcServer: grpc.NewServer(),
	}
	b, err := s.build(c)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s.install(b, hash, c)

	RegisterGateServiceServer(s.grpcServer, s)
	return s, nil
}

func (s *Server) build(c *config.Config) (*turn.Built, error) {
	opts := append([]turn.BuildOption{turn.WithStore(s.store)}, s.cfg.Options...)
	return turn.Build(c, s.cfg.Logger, opts...)
}

// install puts b in service and returns the instance it replaced.
func (s *Server) install(b *turn.Built, hash string, c *config.Config) *instance {
	listen := c.Server.Listen
	if s.cfg.Listen != "" {
		listen = s.cfg.Listen
	}
	return s.cur.Swap(&instance{
		built:   b,
		hash:    hash,
		listen:  listen,
		watch:   c.WatchPaths(s.cfg.ConfigPath),
		drained: make(chan struct{}),
	})
}

// Reload rebuilds the engine from disk and swaps it in. New requests go to
// the new engine at once; the previous engine is closed after its
// in-flight requests finish. On error the previous engine stays in
// service. The chain store is not reopened; a changed chain section takes
// effect on restart.
func (s *Server) Reload() error {
	s.swap.Lock()
	defer s.swap.Unlock()
	if s.cur.Load() == nil {
		return fmt.Errorf("server closed")
	}

	c, hash, err := config.LoadWithHash(s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	b, err := s.build(c)
	if err != nil {
		return fmt.Errorf("failed to rebuild engine: %w", err)
	}
	if c.Chain != s.chainCfg {
		s.logger.Warn("chain store change ignored until restart",
			zap.String("store", c.Chain.Store), zap.String("path", c.Chain.Path))
	}
	if old := s.install(b, hash, c); old != nil {
		s.retireAsync(old)
	}
	s.logger.Info("engine reloaded", zap.String("config_hash", hash))
	return nil
}

func (s *Server) retireAsync(old *instance) {
	old.retire()
	closeOld := func() {
		if err := old.built.Close(); err != nil {
			s.logger.Warn("close previous engine", zap.Error(err))
		}
	}
	select {
	case <-old.drained:
		closeOld()
	default:
		go func() {
			<-old.drained
			closeOld()
		}()
	}
}

// ConfigHash returns the hash of the configuration in service.
func (s *Server) ConfigHash() string {
	if in := s.cur.Load(); in != nil {
		return in.hash
	}
	return ""
}

// WatchPaths returns the files whose change should trigger a reload.
func (s *Server) WatchPaths() []string {
	if in := s.cur.Load(); in != nil {
		return append([]string(nil), in.watch...)
	}
	return nil
}

// Serve listens on the configured address. Blocks until stopped.
func (s *Server) Serve() error {
	in := s.cur.Load()
	if in == nil {
		return fmt.Errorf("server closed")
	}
	lis, err := net.Listen("tcp", in.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", in.listen, err)
	}
	s.logger.Info("serving", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// ServeOn serves on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Close waits for in-flight requests, then releases the engine and the
// chain store.
func (s *Server) Close() error {
	s.swap.Lock()
	defer s.swap.Unlock()
	in := s.cur.Swap(nil)
	if in == nil {
		return nil
	}
	in.retire()
	<-in.drained
	return errors.Join(in.built.Close(), s.store.Close())
}

// acquire pins the engine in service. The caller must call release.
func (s *Server) acquire() (*instance, error) {
	for {
		in := s.cur.Load()
		if in == nil {
			return nil, status.Error(codes.Unavailable, "server closed")
		}
		in.refs.Add(1)
		if s.cur.Load() == in {
			return in, nil
		}
		// Swapped between load and pin; the new engine serves instead.
		in.release()
	}
}

// Score implements the Score RPC. The request carries "text" and
// optionally "response" and "retrieved".
func (s *Server) Score(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := in.AsMap()
	text, _ := req["text"].(string)
	if text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	response, _ := req["response"].(string)
	retrieved, err := stringList(req["retrieved"])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	inst, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer inst.release()
	eng := inst.built.Engine

	ev, err := eng.Evaluate(ctx, text, response, retrieved)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		s.logger.Warn("score failed", zap.Error(err))
		return nil, status.Error(codes.Internal, "scoring failed")
	}
	m, err := ev.Report(eng.Manifest()).Map()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(m)
}

// Turn implements the Turn RPC. The request carries "text" and optionally
// "session". Each turn event is sent as one message. Vetoes and turn
// failures are reported in the stream, not as RPC errors.
func (s *Server) Turn(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	req := in.AsMap()
	text, _ := req["text"].(string)
	if text == "" {
		return status.Error(codes.InvalidArgument, "text is required")
	}
	session, _ := req["session"].(string)
	if session != "" && !chain.ValidSession(session) {
		return status.Errorf(codes.InvalidArgument, "invalid session id %q", session)
	}

	inst, err := s.acquire()
	if err != nil {
		return err
	}
	defer inst.release()
	eng := inst.built.Engine

	ctx := stream.Context()
	var sendErr error
	emit := func(ev turn.Event) error {
		m, err := ev.Map()
		if err != nil {
			return err
		}
		msg, err := structpb.NewStruct(m)
		if err != nil {
			return err
		}
		if err := stream.Send(msg); err != nil {
			sendErr = err
			return err
		}
		return nil
	}

	_, err = eng.Run(ctx, turn.Request{Session: session, Text: text}, emit)
	switch {
	case err == nil:
		return nil
	case sendErr != nil:
		return sendErr
	case ctx.Err() != nil:
		return status.FromContextError(ctx.Err()).Err()
	default:
		return nil
	}
}

func stringList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("retrieved must be a list of strings")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("retrieved must be a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
