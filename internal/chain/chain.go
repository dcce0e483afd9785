package chain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/affectgate/internal/feature"
)

// Lockdown is notified when a session chain is found broken. It decides
// remediation; the chain only reports.
type Lockdown interface {
	Lockdown(ctx context.Context, session, reason string) error
}

// LockdownFunc adapts a function to Lockdown.
type LockdownFunc func(ctx context.Context, session, reason string) error

func (f LockdownFunc) Lockdown(ctx context.Context, session, reason string) error {
	return f(ctx, session, reason)
}

// Chain is one session's chain. Appends are serialized per session.
type Chain struct {
	session  string
	store    Store
	lockdown Lockdown
	logger   *zap.Logger
	now      func() time.Time
	rand     io.Reader

	mu      sync.Mutex
	loaded  bool
	tail    string
	seq     int
	digests map[string]Entry
	broken  *BreakError
}

// Session returns the session identifier.
func (c *Chain) Session() string { return c.session }

// Append certifies snap. Re-appending a snapshot whose canonical form is
// already in the chain is a no-op and returns the existing entry with
// appended=false.
func (c *Chain) Append(ctx context.Context, snap *feature.Snapshot) (Entry, bool, error) {
	canonical, err := snap.Canonical()
	if err != nil {
		return Entry{}, false, fmt.Errorf("chain: canonicalize: %w", err)
	}
	return c.AppendCanonical(ctx, canonical)
}

// AppendCanonical certifies an already canonical snapshot encoding.
func (c *Chain) AppendCanonical(ctx context.Context, canonical []byte) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(ctx); err != nil {
		return Entry{}, false, err
	}
	if c.broken != nil {
		return Entry{}, false, fmt.Errorf("%w: %s", ErrLocked, c.broken.Error())
	}

	digest := HashBytes(canonical)
	if e, dup := c.digests[digest]; dup {
		return e, false, nil
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return Entry{}, false, fmt.Errorf("chain: salt: %w", err)
	}
	e := Entry{
		Session:   c.session,
		Seq:       c.seq + 1,
		PrevHash:  c.tail,
		Salt:      hex.EncodeToString(salt),
		Timestamp: c.now().UTC().Format(time.RFC3339Nano),
		Digest:    digest,
		Snapshot:  append([]byte(nil), canonical...),
	}
	e.Hash = ComputeHash(e.PrevHash, e.Digest, e.Salt, e.Timestamp)

	if err := c.store.Append(ctx, e); err != nil {
		return Entry{}, false, fmt.Errorf("chain: store: %w", err)
	}
	c.tail = e.Hash
	c.seq = e.Seq
	c.digests[digest] = e
	return e, true, nil
}

// Verify re-reads the session from the store and checks every link. A
// break locks the session and notifies the lockdown collaborator.
func (c *Chain) Verify(ctx context.Context) (VerifyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.store.Load(ctx, c.session)
	if err != nil {
		return VerifyResult{Session: c.session, Error: err.Error()}, fmt.Errorf("chain: load: %w", err)
	}
	verr := VerifyEntries(c.session, entries)
	if verr != nil {
		c.breakLocked(ctx, verr)
	}
	return Result(c.session, entries, verr), verr
}

// Entries returns the stored entries.
func (c *Chain) Entries(ctx context.Context) ([]Entry, error) {
	return c.store.Load(ctx, c.session)
}

// Locked reports whether the session refuses appends.
func (c *Chain) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken != nil
}

// loadLocked recovers the tail from the store on first use. A stored chain
// that fails verification locks the session.
func (c *Chain) loadLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	entries, err := c.store.Load(ctx, c.session)
	if err != nil {
		return fmt.Errorf("chain: load: %w", err)
	}
	c.loaded = true
	c.tail = GenesisHash
	c.seq = 0
	c.digests = make(map[string]Entry, len(entries))
	if verr := VerifyEntries(c.session, entries); verr != nil {
		c.breakLocked(ctx, verr)
		return nil
	}
	for _, e := range entries {
		c.digests[e.Digest] = e
	}
	if n := len(entries); n > 0 {
		c.tail = entries[n-1].Hash
		c.seq = entries[n-1].Seq
	}
	return nil
}

func (c *Chain) breakLocked(ctx context.Context, err error) {
	var brk *BreakError
	if !errors.As(err, &brk) {
		brk = &BreakError{Session: c.session, Reason: err.Error()}
	}
	first := c.broken == nil
	c.broken = brk
	c.logger.Error("session chain broken",
		zap.String("session", c.session),
		zap.Int("seq", brk.Seq),
		zap.String("reason", brk.Reason),
	)
	if !first || c.lockdown == nil {
		return
	}
	if lerr := c.lockdown.Lockdown(ctx, c.session, brk.Error()); lerr != nil {
		c.logger.Error("lockdown notification failed",
			zap.String("session", c.session),
			zap.Error(lerr),
		)
	}
}

// Registry hands out one Chain per session. Sessions share nothing but
// the store.
type Registry struct {
	store    Store
	lockdown Lockdown
	logger   *zap.Logger
	now      func() time.Time
	rand     io.Reader

	chains sync.Map // session -> *Chain
}

// Option configures a Registry.
type Option func(*Registry)

// WithLockdown sets the collaborator notified of chain breaks.
func WithLockdown(l Lockdown) Option { return func(r *Registry) { r.lockdown = l } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// WithRand overrides the salt source.
func WithRand(src io.Reader) Option { return func(r *Registry) { r.rand = src } }

// NewRegistry returns a registry over store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		rand:   rand.Reader,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Session returns the chain for id, creating it on first use.
func (r *Registry) Session(id string) *Chain {
	if c, ok := r.chains.Load(id); ok {
		return c.(*Chain)
	}
	c, _ := r.chains.LoadOrStore(id, &Chain{
		session:  id,
		store:    r.store,
		lockdown: r.lockdown,
		logger:   r.logger,
		now:      r.now,
		rand:     r.rand,
	})
	return c.(*Chain)
}

// Release forgets the in-memory chain of a session that will not be used
// again. Stored entries are untouched. A broken chain stays registered so
// the session remains locked.
func (r *Registry) Release(id string) {
	if c, ok := r.chains.Load(id); ok && !c.(*Chain).Locked() {
		r.chains.CompareAndDelete(id, c)
	}
}

// Active returns the number of sessions held in memory.
func (r *Registry) Active() int {
	n := 0
	r.chains.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sessions lists the sessions known to the store.
func (r *Registry) Sessions(ctx context.Context) ([]string, error) {
	return r.store.Sessions(ctx)
}

// Store returns the underlying store.
func (r *Registry) Store() Store { return r.store }
