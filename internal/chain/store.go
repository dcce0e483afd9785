package chain

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Store persists chain entries. Implementations must keep entries of a
// session in append order.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Load(ctx context.Context, session string) ([]Entry, error)
	Sessions(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryStore keeps entries in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Session] = append(m.entries[e.Session], e)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, session string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries[session]...), nil
}

func (m *MemoryStore) Sessions(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for s := range m.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// Tamper replaces a stored entry. It exists for integrity tests and
// drills.
func (m *MemoryStore) Tamper(session string, seq int, fn func(*Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	es := m.entries[session]
	if seq >= 1 && seq <= len(es) {
		fn(&es[seq-1])
	}
}

var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidSession reports whether id is usable as a session identifier.
func ValidSession(id string) bool {
	return sessionPattern.MatchString(id) && !strings.Contains(id, "..")
}

// FileStore writes one JSONL file per session under a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// OpenFileStore creates dir if needed.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("chain: create directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file backing session.
func (f *FileStore) Path(session string) string {
	return filepath.Join(f.dir, session+".jsonl")
}

func (f *FileStore) Append(_ context.Context, e Entry) error {
	if !ValidSession(e.Session) {
		return fmt.Errorf("chain: invalid session id %q", e.Session)
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("chain: marshal entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(f.Path(e.Session), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("chain: open file: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("chain: write entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("chain: sync: %w", err)
	}
	return nil
}

func (f *FileStore) Load(_ context.Context, session string) ([]Entry, error) {
	if !ValidSession(session) {
		return nil, fmt.Errorf("chain: invalid session id %q", session)
	}
	return ReadFile(f.Path(session))
}

func (f *FileStore) Sessions(context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".jsonl"))
	}
	sort.Strings(out)
	return out, nil
}

func (f *FileStore) Close() error { return nil }

// ReadFile parses a session JSONL file. A missing file is an empty chain.
func ReadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chain: open: %w", err)
	}
	defer file.Close()

	var out []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("chain: %s line %d: %w", path, line, err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("chain: scan: %w", err)
	}
	return out, nil
}

// VerifyFile verifies a session JSONL file on its own. The session is
// taken from the file name.
func VerifyFile(path string) VerifyResult {
	session := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	entries, err := ReadFile(path)
	if err != nil {
		return VerifyResult{Session: session, Error: err.Error()}
	}
	return Result(session, entries, VerifyEntries(session, entries))
}
