// Package config loads the affectgate YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/affectgate/internal/adjust"
	"github.com/ppiankov/affectgate/internal/alert"
	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/gate"
	"github.com/ppiankov/affectgate/internal/override"
	"github.com/ppiankov/affectgate/internal/phases"
)

// Version is the only supported config version.
const Version = "1"

// Chain store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Generator kinds.
const (
	GeneratorStatic = "static"
	GeneratorHTTP   = "http"
)

// ChainConfig selects where session chains are kept.
type ChainConfig struct {
	Store string `yaml:"store"`
	Path  string `yaml:"path"`
}

// GateAConfig holds the pre-generation rules.
type GateAConfig struct {
	Rules []gate.Rule `yaml:"rules"`
}

// GeneratorConfig selects the generation collaborator.
type GeneratorConfig struct {
	Kind      string        `yaml:"kind"`
	URL       string        `yaml:"url"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
	Response  string        `yaml:"response"`
	System    string        `yaml:"system"`
}

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// ContractConfig points at contract documents. Empty paths use the
// built-in catalog and ledger.
type ContractConfig struct {
	Manifest string `yaml:"manifest"`
	Ledger   string `yaml:"ledger"`
}

// Config is the whole configuration document.
type Config struct {
	Version      string          `yaml:"version"`
	LexiconPaths []string        `yaml:"lexicon_paths"`
	Adjust       adjust.Config   `yaml:"adjust"`
	Weights      phases.Weights  `yaml:"weights"`
	Overrides    []override.Rule `yaml:"overrides"`
	GateA        GateAConfig     `yaml:"gate_a"`
	GateB        gate.BConfig    `yaml:"gate_b"`
	Chain        ChainConfig     `yaml:"chain"`
	Alerts       []alert.Config  `yaml:"alerts"`
	Generator    GeneratorConfig `yaml:"generator"`
	Server       ServerConfig    `yaml:"server"`
	Contract     ContractConfig  `yaml:"contract"`
	Concurrency  int             `yaml:"concurrency"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:   Version,
		Adjust:    adjust.DefaultConfig(),
		Weights:   phases.DefaultWeights(),
		Overrides: override.DefaultRules(),
		GateA:     GateAConfig{Rules: gate.DefaultARules()},
		GateB:     gate.DefaultBConfig(),
		Chain:     ChainConfig{Store: StoreFile, Path: filepath.Join(Dir(), "chains")},
		Generator: GeneratorConfig{
			Kind:      GeneratorStatic,
			Response:  "I hear you. Can you tell me more about what is going on right now?",
			MaxTokens: 512,
			Timeout:   60 * time.Second,
		},
		Server:      ServerConfig{Listen: "127.0.0.1:7433"},
		Concurrency: 8,
	}
}

// Dir returns ~/.affectgate, or .affectgate when the home directory is
// unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".affectgate"
	}
	return filepath.Join(home, ".affectgate")
}

// DefaultPath returns ~/.affectgate/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the configuration. Empty path falls back to DefaultPath.
// A missing file returns defaults. Invalid YAML or invalid values are
// errors.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads the configuration and returns the SHA-256 of the raw
// bytes on disk. When no file exists the hash is that of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), hashOf(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, hashOf(data), nil
}

// Parse decodes YAML over the defaults and validates the result. Lists
// given in the document replace the default lists.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Init writes the default configuration to path. An existing file is left
// alone unless force is set.
func Init(path string, force bool) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists: %s", path)
	}
	data, err := Default().Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// ValidationError collects all validation failures of a config.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

func (e *ValidationError) add(msg string) {
	e.Errors = append(e.Errors, msg)
}

func (e *ValidationError) addAll(errs []error) {
	for _, err := range errs {
		e.add(err.Error())
	}
}

// Validate checks every section. Rule expressions are compiled against the
// built-in catalog. Returns nil or a *ValidationError listing all problems.
func (c *Config) Validate() error {
	ve := &ValidationError{}
	cat := feature.Builtin()

	if c.Version != Version {
		ve.add(fmt.Sprintf("version %q is not supported (expected %q)", c.Version, Version))
	}

	ve.addAll(c.Adjust.Validate())
	ve.addAll(c.Weights.Validate())

	if _, err := override.NewPolicy(cat, c.Overrides); err != nil {
		ve.add(err.Error())
	}
	if _, err := gate.NewGateA(cat, c.GateA.Rules); err != nil {
		ve.add(fmt.Sprintf("gate_a: %v", err))
	}
	if _, err := gate.NewGateB(cat, c.GateB); err != nil {
		ve.add(fmt.Sprintf("gate_b: %v", err))
	}

	switch c.Chain.Store {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if c.Chain.Path == "" {
			ve.add(fmt.Sprintf("chain.path is required for store %q", c.Chain.Store))
		}
	default:
		ve.add(fmt.Sprintf("chain.store: unknown store %q", c.Chain.Store))
	}

	for i, a := range c.Alerts {
		if a.URL == "" {
			ve.add(fmt.Sprintf("alerts[%d]: url is required", i))
		}
		switch a.Format {
		case "", "generic", "slack", "pagerduty":
		default:
			ve.add(fmt.Sprintf("alerts[%d]: unknown format %q", i, a.Format))
		}
		if len(a.Events) == 0 {
			ve.add(fmt.Sprintf("alerts[%d]: at least one event is required", i))
		}
	}

	switch c.Generator.Kind {
	case GeneratorStatic:
	case GeneratorHTTP:
		if c.Generator.URL == "" {
			ve.add("generator.url is required for kind http")
		}
		if c.Generator.Model == "" {
			ve.add("generator.model is required for kind http")
		}
	default:
		ve.add(fmt.Sprintf("generator.kind: unknown kind %q", c.Generator.Kind))
	}
	if c.Generator.Timeout < 0 {
		ve.add("generator.timeout must not be negative")
	}

	if c.Concurrency < 0 {
		ve.add(fmt.Sprintf("concurrency must not be negative, got %d", c.Concurrency))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// WatchPaths returns the files whose change should trigger a reload: the
// config file itself and every lexicon path.
func (c *Config) WatchPaths(configPath string) []string {
	out := []string{configPath}
	out = append(out, c.LexiconPaths...)
	if c.Contract.Manifest != "" {
		out = append(out, c.Contract.Manifest)
	}
	if c.Contract.Ledger != "" {
		out = append(out, c.Contract.Ledger)
	}
	return out
}
