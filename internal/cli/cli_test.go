package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ppiankov/affectgate/internal/contract"
	"github.com/ppiankov/affectgate/internal/server"
)

const (
	calmPrompt   = "Das Wetter ist heute schön und ich gehe spazieren."
	crisisPrompt = "Ich will sterben."
)

// resetFlags restores package flag variables between runs of rootCmd.
func resetFlags() {
	configPath = ""
	verbose = false
	serveListen = ""
	scoreResponse = ""
	scoreRemote = ""
	scoreFormat = "text"
	gateFormat = "text"
	chainFormat = "text"
	chainTailN = 10
	contractOutput = ""
	contractFormat = "text"
	contractLedger = ""
	initForce = false
	turnSession = ""
	turnRemote = ""
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, chainSection string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "version: \"1\"\n" + chainSection + "generator:\n  kind: static\n  response: \"Where are you walking today?\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func memoryConfig(t *testing.T) string {
	return writeConfig(t, "chain:\n  store: memory\n")
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, `"name": "affectgate"`)
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	out, _, err := execute(t, "", "init-config", "--config", path)
	require.NoError(t, err)
	require.Contains(t, out, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, _, err = execute(t, "", "init-config", "--config", path)
	require.Error(t, err, "existing config must not be overwritten without --force")

	_, _, err = execute(t, "", "init-config", "--config", path, "--force")
	require.NoError(t, err)
}

func TestScoreJSON(t *testing.T) {
	out, _, err := execute(t, "", "score", "-c", memoryConfig(t), "-f", "json", calmPrompt)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Contains(t, report["features"], "risk_band")
	require.Equal(t, true, report["gate_a"].(map[string]any)["passed"])
}

func TestScoreTextWithResponse(t *testing.T) {
	out, _, err := execute(t, "", "score", "-c", memoryConfig(t), "--response", "Sometimes I want to kill myself too.", calmPrompt)
	require.NoError(t, err)
	require.Contains(t, out, "Gate A: PASS")
	require.Contains(t, out, "Gate B: VETO")
	require.Contains(t, out, "Response features:")
}

func TestScoreRemote(t *testing.T) {
	srv, err := server.New(server.Config{ConfigPath: memoryConfig(t)})
	require.NoError(t, err)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeOn(lis)
	defer func() {
		srv.GracefulStop()
		srv.Close()
	}()

	out, _, err := execute(t, "", "score", "--remote", lis.Addr().String(), "-f", "json", crisisPrompt)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, false, report["gate_a"].(map[string]any)["passed"])
}

func TestGateVetoFails(t *testing.T) {
	out, _, err := execute(t, "", "gate", "-c", memoryConfig(t), crisisPrompt)
	require.True(t, errors.Is(err, errFailed), "got %v", err)
	require.Contains(t, out, "VETO")
	require.Contains(t, out, "reason:")
}

func TestGateReadsStdin(t *testing.T) {
	out, _, err := execute(t, calmPrompt+"\n", "gate", "-c", memoryConfig(t), "-f", "json")
	require.NoError(t, err)
	require.Contains(t, out, `"passed": true`)
}

func TestGateEmptyStdin(t *testing.T) {
	_, _, err := execute(t, "  \n", "gate", "-c", memoryConfig(t))
	require.Error(t, err)
	require.False(t, errors.Is(err, errFailed))
}

func TestTurnThenChainVerifyAndTail(t *testing.T) {
	chainDir := filepath.Join(t.TempDir(), "chains")
	cfg := writeConfig(t, "chain:\n  store: file\n  path: "+chainDir+"\n")

	out, _, err := execute(t, "", "turn", "-c", cfg, "-s", "s1", calmPrompt)
	require.NoError(t, err)
	require.Contains(t, out, `"type":"complete"`)
	require.Contains(t, out, "Where are you walking today?")

	out, _, err = execute(t, "", "chain", "verify", "-c", cfg)
	require.NoError(t, err)
	require.Contains(t, out, "OK      s1 (2 entries)")

	out, _, err = execute(t, "", "chain", "tail", "-c", cfg, "-n", "1", "s1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], `"seq":2`)

	path := filepath.Join(chainDir, "s1.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"digest":"sha256:`, `"digest":"sha256:ff`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	out, _, err = execute(t, "", "chain", "verify", "-c", cfg, "s1")
	require.True(t, errors.Is(err, errFailed), "got %v", err)
	require.Contains(t, out, "BROKEN  s1 at seq 1")
}

func TestTurnVetoFails(t *testing.T) {
	out, _, err := execute(t, "", "turn", "-c", memoryConfig(t), crisisPrompt)
	require.True(t, errors.Is(err, errFailed), "got %v", err)
	require.Contains(t, out, `"type":"veto"`)
}

func TestContractExportAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")

	_, errOut, err := execute(t, "", "contract", "export", "-o", path)
	require.NoError(t, err)
	require.Contains(t, errOut, "wrote "+path)

	out, _, err := execute(t, "", "contract", "check", path)
	require.NoError(t, err)
	require.Contains(t, out, "No mismatches.")

	m, err := contract.LoadManifest(path)
	require.NoError(t, err)
	m.Features[0].Name = "renamed_feature"
	require.NoError(t, m.Write(path))

	out, _, err = execute(t, "", "contract", "check", path)
	require.True(t, errors.Is(err, errFailed), "got %v", err)
	require.Contains(t, out, "name_mismatch")
}

func TestContractExportStdout(t *testing.T) {
	out, _, err := execute(t, "", "contract", "export")
	require.NoError(t, err)
	m, err := contract.ParseManifest([]byte(out))
	require.NoError(t, err)
	require.NotEmpty(t, m.Features)
}

func TestContractCanonicalize(t *testing.T) {
	out, errOut, err := execute(t, `{"panic_index": 0.5, "uppercase_ratio": 0.1}`, "contract", "canonicalize")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, map[string]any{"panic_composite": 0.5, "uppercase_ratio": 0.1}, got)
	require.Contains(t, errOut, "renamed panic_index -> panic_composite")
}

func TestContractCanonicalizeRejectsNonObject(t *testing.T) {
	_, _, err := execute(t, `[1,2]`, "contract", "canonicalize")
	require.Error(t, err)
}
