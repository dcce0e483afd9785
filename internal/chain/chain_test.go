package chain

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/affectgate/internal/feature"
)

type lockRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (l *lockRecorder) Lockdown(_ context.Context, session, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, session)
	return nil
}

func (l *lockRecorder) sessions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var n int
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func newRegistry(store Store, opts ...Option) *Registry {
	base := []Option{
		WithClock(fixedClock()),
		WithRand(bytes.NewReader(bytes.Repeat([]byte{0xab}, 4096))),
	}
	return NewRegistry(store, append(base, opts...)...)
}

func snapshot(t *testing.T, tokens float64) *feature.Snapshot {
	t.Helper()
	s := feature.NewSnapshot(feature.Builtin())
	if err := s.Set(feature.TokenCount, feature.Float(tokens)); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(feature.CrisisLiteral, feature.Bool(false)); err != nil {
		t.Fatal(err)
	}
	s.Seal()
	return s
}

func TestAppendLinksEntries(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(NewMemoryStore())
	c := reg.Session("s1")

	e1, ok, err := c.Append(ctx, snapshot(t, 3))
	if err != nil || !ok {
		t.Fatalf("append 1: ok=%v err=%v", ok, err)
	}
	e2, ok, err := c.Append(ctx, snapshot(t, 4))
	if err != nil || !ok {
		t.Fatalf("append 2: ok=%v err=%v", ok, err)
	}

	if e1.Seq != 1 || e2.Seq != 2 {
		t.Fatalf("unexpected seqs %d, %d", e1.Seq, e2.Seq)
	}
	if e1.PrevHash != GenesisHash {
		t.Fatalf("first entry must link to genesis, got %s", e1.PrevHash)
	}
	if e2.PrevHash != e1.Hash {
		t.Fatalf("second entry must link to first")
	}
	if got := ComputeHash(e2.PrevHash, e2.Digest, e2.Salt, e2.Timestamp); got != e2.Hash {
		t.Fatalf("hash not reproducible: %s vs %s", got, e2.Hash)
	}

	res, err := c.Verify(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	want := VerifyResult{Session: "s1", Valid: true, Entries: 2}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("verify result mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendIsIdempotentPerSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := newRegistry(store).Session("s1")

	first, _, err := c.Append(ctx, snapshot(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	again, appended, err := c.Append(ctx, snapshot(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	if appended {
		t.Fatal("identical snapshot must not be appended twice")
	}
	if again.Hash != first.Hash {
		t.Fatal("duplicate append must return the existing entry")
	}
	entries, _ := store.Load(ctx, "s1")
	if len(entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(entries))
	}
}

func TestTamperLocksSessionOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	core, logs := observer.New(zap.ErrorLevel)
	locks := &lockRecorder{}
	reg := newRegistry(store, WithLockdown(locks), WithLogger(zap.New(core)))

	a := reg.Session("a")
	b := reg.Session("b")
	for i := 1; i <= 3; i++ {
		if _, _, err := a.Append(ctx, snapshot(t, float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := b.Append(ctx, snapshot(t, 1)); err != nil {
		t.Fatal(err)
	}

	store.Tamper("a", 2, func(e *Entry) { e.Snapshot = []byte(`{"token_count":99}`) })

	res, err := a.Verify(ctx)
	var brk *BreakError
	if !errors.As(err, &brk) {
		t.Fatalf("expected BreakError, got %v", err)
	}
	if brk.Seq != 2 || res.Valid || res.Seq != 2 {
		t.Fatalf("expected break at seq 2, got %+v", res)
	}
	if !a.Locked() {
		t.Fatal("session a must be locked")
	}
	if _, _, err := a.Append(ctx, snapshot(t, 10)); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	// A second verification must not notify again.
	_, _ = a.Verify(ctx)
	if diff := cmp.Diff([]string{"a"}, locks.sessions()); diff != "" {
		t.Fatalf("lockdown calls mismatch (-want +got):\n%s", diff)
	}
	if logs.FilterMessage("session chain broken").Len() == 0 {
		t.Fatal("expected an error log for the break")
	}

	if b.Locked() {
		t.Fatal("session b must stay unlocked")
	}
	if _, ok, err := b.Append(ctx, snapshot(t, 2)); err != nil || !ok {
		t.Fatalf("session b append: ok=%v err=%v", ok, err)
	}
}

func TestReloadDetectsStoredBreak(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, _, err := newRegistry(store).Session("s").Append(ctx, snapshot(t, 1)); err != nil {
		t.Fatal(err)
	}
	store.Tamper("s", 1, func(e *Entry) { e.Salt = "00" })

	locks := &lockRecorder{}
	c := newRegistry(store, WithLockdown(locks)).Session("s")
	if _, _, err := c.Append(ctx, snapshot(t, 2)); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked after loading a broken chain, got %v", err)
	}
	if len(locks.sessions()) != 1 {
		t.Fatal("expected one lockdown notification")
	}
}

func TestVerifyEntriesReasons(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := newRegistry(store).Session("s")
	for i := 1; i <= 2; i++ {
		if _, _, err := c.Append(ctx, snapshot(t, float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	good, _ := store.Load(ctx, "s")

	tests := []struct {
		name   string
		mutate func([]Entry)
		seq    int
	}{
		{"wrong session", func(es []Entry) { es[0].Session = "x" }, 1},
		{"sequence gap", func(es []Entry) { es[1].Seq = 3 }, 3},
		{"prev link", func(es []Entry) { es[1].PrevHash = GenesisHash }, 2},
		{"digest", func(es []Entry) { es[0].Digest = HashBytes([]byte("x")) }, 1},
		{"hash", func(es []Entry) { es[1].Timestamp = "2000-01-01T00:00:00Z" }, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			es := append([]Entry(nil), good...)
			tt.mutate(es)
			var brk *BreakError
			if err := VerifyEntries("s", es); !errors.As(err, &brk) || brk.Seq != tt.seq {
				t.Fatalf("expected break at %d, got %v", tt.seq, err)
			}
		})
	}
	if err := VerifyEntries("s", nil); err != nil {
		t.Fatalf("empty chain must verify, got %v", err)
	}
}

func TestConcurrentAppendsStayLinked(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	reg := NewRegistry(store)

	snaps := make([]*feature.Snapshot, 20)
	for i := range snaps {
		snaps[i] = snapshot(t, float64(i))
	}
	var wg sync.WaitGroup
	for _, s := range snaps {
		wg.Add(1)
		go func(s *feature.Snapshot) {
			defer wg.Done()
			if _, _, err := reg.Session("s").Append(ctx, s); err != nil {
				t.Error(err)
			}
		}(s)
	}
	wg.Wait()

	entries, _ := store.Load(ctx, "s")
	if len(entries) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(entries))
	}
	if err := VerifyEntries("s", entries); err != nil {
		t.Fatalf("concurrent appends broke the chain: %v", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := OpenFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	c := newRegistry(store).Session("sess-1")
	for i := 1; i <= 3; i++ {
		if _, _, err := c.Append(ctx, snapshot(t, float64(i))); err != nil {
			t.Fatal(err)
		}
	}

	res := VerifyFile(store.Path("sess-1"))
	if !res.Valid || res.Entries != 3 || res.Session != "sess-1" {
		t.Fatalf("unexpected file verify result %+v", res)
	}

	// A fresh registry resumes from the file tail.
	e, ok, err := newRegistry(store).Session("sess-1").Append(ctx, snapshot(t, 4))
	if err != nil || !ok || e.Seq != 4 {
		t.Fatalf("resume: seq=%d ok=%v err=%v", e.Seq, ok, err)
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"sess-1"}, sessions); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(store.Path("sess-1"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %o", info.Mode().Perm())
	}
}

func TestFileStoreTamperDetected(t *testing.T) {
	ctx := context.Background()
	store, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := newRegistry(store).Session("s")
	for i := 1; i <= 2; i++ {
		if _, _, err := c.Append(ctx, snapshot(t, float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	path := store.Path("s")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data = bytes.Replace(data, []byte(`"token_count":2`), []byte(`"token_count":7`), 1)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	if res := VerifyFile(path); res.Valid || res.Seq != 2 {
		t.Fatalf("expected break at seq 2, got %+v", res)
	}
}

func TestFileStoreRejectsUnsafeSession(t *testing.T) {
	store, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"../x", "a/b", "", ".hidden"} {
		if err := store.Append(context.Background(), Entry{Session: id}); err == nil {
			t.Errorf("expected rejection of session %q", id)
		}
	}
}

func TestVerifyFileMissing(t *testing.T) {
	res := VerifyFile(filepath.Join(t.TempDir(), "none.jsonl"))
	if !res.Valid || res.Entries != 0 {
		t.Fatalf("missing file is an empty chain, got %+v", res)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "chain.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	locks := &lockRecorder{}
	reg := newRegistry(store, WithLockdown(locks))
	for _, id := range []string{"b", "a"} {
		for i := 1; i <= 2; i++ {
			if _, _, err := reg.Session(id).Append(ctx, snapshot(t, float64(i))); err != nil {
				t.Fatal(err)
			}
		}
	}

	sessions, err := reg.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, sessions); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}
	if res, err := reg.Session("a").Verify(ctx); err != nil || !res.Valid {
		t.Fatalf("verify a: %+v %v", res, err)
	}

	if err := store.Exec(ctx, `UPDATE chain_entries SET salt = 'ff' WHERE session = 'b' AND seq = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Session("b").Verify(ctx); err == nil {
		t.Fatal("expected tampered sqlite chain to fail verification")
	}
	if diff := cmp.Diff([]string{"b"}, locks.sessions()); diff != "" {
		t.Fatalf("lockdown calls mismatch (-want +got):\n%s", diff)
	}
}
