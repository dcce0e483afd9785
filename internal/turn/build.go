package turn

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ppiankov/affectgate/internal/adjust"
	"github.com/ppiankov/affectgate/internal/alert"
	"github.com/ppiankov/affectgate/internal/chain"
	"github.com/ppiankov/affectgate/internal/config"
	"github.com/ppiankov/affectgate/internal/contract"
	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/gate"
	"github.com/ppiankov/affectgate/internal/generate"
	"github.com/ppiankov/affectgate/internal/lexicon"
	"github.com/ppiankov/affectgate/internal/override"
	"github.com/ppiankov/affectgate/internal/phases"
	"github.com/ppiankov/affectgate/internal/pipeline"
)

// Built is an engine assembled from configuration together with the
// resources it owns.
type Built struct {
	Engine     *Engine
	Dispatcher *alert.Dispatcher
	Store      chain.Store
}

// Close waits for pending alerts and closes the chain store.
func (b *Built) Close() error {
	b.Dispatcher.Wait()
	if b.Store != nil {
		return b.Store.Close()
	}
	return nil
}

type buildOptions struct {
	retriever pipeline.Retriever
	generator Generator
	store     chain.Store
}

// BuildOption replaces a configured collaborator.
type BuildOption func(*buildOptions)

// WithRetriever installs a retrieval collaborator.
func WithRetriever(r pipeline.Retriever) BuildOption {
	return func(o *buildOptions) { o.retriever = r }
}

// WithGenerator replaces the configured generator.
func WithGenerator(g Generator) BuildOption {
	return func(o *buildOptions) { o.generator = g }
}

// WithStore replaces the configured chain store. The caller keeps
// ownership of it.
func WithStore(s chain.Store) BuildOption {
	return func(o *buildOptions) { o.store = s }
}

// Build assembles an engine from cfg. Missing or malformed lexicons,
// invalid rules and unreadable contract files are errors.
func Build(cfg *config.Config, logger *zap.Logger, opts ...BuildOption) (*Built, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var bo buildOptions
	for _, o := range opts {
		o(&bo)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cat := feature.Builtin()

	lex, err := lexicon.Load(cfg.LexiconPaths)
	if err != nil {
		return nil, err
	}
	policy, err := override.NewPolicy(cat, cfg.Overrides)
	if err != nil {
		return nil, err
	}
	sched, err := phases.NewScheduler(
		phases.Deps{Lexicons: lex, Adjuster: adjust.New(cfg.Adjust), Weights: cfg.Weights},
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithOverrides(policy),
	)
	if err != nil {
		return nil, err
	}
	ga, err := gate.NewGateA(cat, cfg.GateA.Rules)
	if err != nil {
		return nil, fmt.Errorf("gate_a: %w", err)
	}
	gb, err := gate.NewGateB(cat, cfg.GateB)
	if err != nil {
		return nil, fmt.Errorf("gate_b: %w", err)
	}

	manifest, err := loadManifest(cfg, cat, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := alert.NewDispatcher(cfg.Alerts, logger.Named("alert"))

	d := Deps{
		Scheduler: sched,
		GateA:     ga,
		GateB:     gb,
		Manifest:  manifest,
		Logger:    logger.Named("turn"),
	}
	if dispatcher != nil {
		d.Notifier = dispatcher
	}
	d.Retriever = bo.retriever
	d.Generator = bo.generator
	if d.Generator == nil {
		d.Generator = newGenerator(cfg.Generator)
	}

	b := &Built{Dispatcher: dispatcher}
	store := bo.store
	if store == nil {
		store, err = OpenStore(cfg.Chain)
		if err != nil {
			return nil, err
		}
		b.Store = store
	}
	copts := []chain.Option{chain.WithLogger(logger.Named("chain"))}
	if dispatcher != nil {
		copts = append(copts, chain.WithLockdown(dispatcher))
	}
	d.Chains = chain.NewRegistry(store, copts...)

	eng, err := New(d)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Engine = eng
	return b, nil
}

// OpenStore opens the configured chain store.
func OpenStore(c config.ChainConfig) (chain.Store, error) {
	switch c.Store {
	case config.StoreMemory:
		return chain.NewMemoryStore(), nil
	case config.StoreFile:
		return chain.OpenFileStore(c.Path)
	case config.StoreSQLite:
		return chain.OpenSQLite(c.Path)
	default:
		return nil, fmt.Errorf("unknown chain store %q", c.Store)
	}
}

func newGenerator(c config.GeneratorConfig) Generator {
	if c.Kind == config.GeneratorHTTP {
		return generate.NewHTTP(generate.HTTPConfig{
			URL:       c.URL,
			APIKey:    os.Getenv(c.APIKeyEnv),
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
			Timeout:   c.Timeout,
			System:    c.System,
		})
	}
	return generate.Static{Response: c.Response}
}

// loadManifest reads the configured manifest and reports, without
// correcting, any disagreement with the catalog.
func loadManifest(cfg *config.Config, cat *feature.Catalog, logger *zap.Logger) (*contract.Manifest, error) {
	if cfg.Contract.Manifest == "" {
		return contract.FromCatalog(cat), nil
	}
	m, err := contract.LoadManifest(cfg.Contract.Manifest)
	if err != nil {
		return nil, err
	}
	report := contract.Check(m, cat)
	for _, is := range report.Issues {
		logger.Warn("contract mismatch",
			zap.Int("id", is.Num),
			zap.String("name", is.Name),
			zap.String("code", is.Code),
			zap.String("declared", is.Declared),
			zap.String("actual", is.Actual),
		)
	}
	if cfg.Contract.Ledger != "" {
		l, err := contract.LoadLedger(cfg.Contract.Ledger)
		if err != nil {
			return nil, err
		}
		if errs := l.CheckManifest(m); len(errs) > 0 {
			return nil, fmt.Errorf("contract ledger: %w", errors.Join(errs...))
		}
	}
	return m, nil
}
