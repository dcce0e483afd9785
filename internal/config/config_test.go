package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, hash, err := LoadWithHash(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	require.Equal(t, StoreFile, cfg.Chain.Store)
	require.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hash)
	require.NoError(t, cfg.Validate())
}

func TestPartialYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `version: "1"
chain:
  store: sqlite
  path: /tmp/chain.db
generator:
  timeout: 5s
adjust:
  negation:
    factor: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, hash, err := LoadWithHash(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "sha256:"))
	require.Equal(t, StoreSQLite, cfg.Chain.Store)
	require.Equal(t, 5*time.Second, cfg.Generator.Timeout)
	require.Equal(t, 0.1, cfg.Adjust.Negation.Factor)
	require.Equal(t, 3, cfg.Adjust.Negation.Window, "unset fields keep their defaults")
	require.NotEmpty(t, cfg.Overrides)
	require.Equal(t, GeneratorStatic, cfg.Generator.Kind)
}

func TestHashChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(a, []byte("version: \"1\"\nconcurrency: 2\n"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("version: \"1\"\nconcurrency: 3\n"), 0o600))

	_, ha, err := LoadWithHash(a)
	require.NoError(t, err)
	_, hb, err := LoadWithHash(b)
	require.NoError(t, err)
	require.NotEqual(t, ha, hb)
}

func TestMalformedYAMLFails(t *testing.T) {
	_, err := Parse([]byte("version: [\n"))
	require.Error(t, err)
}

func TestValidationCollectsAllProblems(t *testing.T) {
	_, err := Parse([]byte(`version: "2"
chain:
  store: redis
generator:
  kind: http
concurrency: -1
overrides:
  - id: bad
    when: "no_such_feature > 1"
    target: danger_proximity
    floor: 0.5
gate_a:
  rules:
    - id: r
      reason: R
      severity: purple
      when: "crisis_literal"
alerts:
  - format: teams
`))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)

	joined := strings.Join(ve.Errors, "\n")
	for _, want := range []string{
		"version",
		"chain.store",
		"generator.url",
		"generator.model",
		"concurrency",
		"override bad",
		"gate_a",
		"alerts[0]: url",
		"alerts[0]: unknown format",
		"alerts[0]: at least one event",
	} {
		require.Contains(t, joined, want)
	}
}

func TestInitWritesLoadableDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "existing file must not be overwritten")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default().Weights, cfg.Weights)
	require.Equal(t, Default().Overrides, cfg.Overrides)
	require.Equal(t, Default().GateB, cfg.GateB)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWatchPaths(t *testing.T) {
	cfg := Default()
	cfg.LexiconPaths = []string{"/etc/lex"}
	cfg.Contract.Ledger = "/etc/ledger.yaml"
	require.Equal(t, []string{"/c.yaml", "/etc/lex", "/etc/ledger.yaml"}, cfg.WatchPaths("/c.yaml"))
}
