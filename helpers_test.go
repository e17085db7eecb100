package authcore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/revocation"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "Correct-horse1"
)

var testEpoch = time.Unix(1_700_000_000, 0)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fakeStore is a mutex-guarded in-memory store with failure injection.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*Account

	findErr   error
	saveErr   error
	updateErr error
	createErr error

	updateCalls int
	saveCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[string]*Account)}
}

func (s *fakeStore) put(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a.Clone()
}

func (s *fakeStore) get(id string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].Clone()
}

func (s *fakeStore) find(match func(*Account) bool) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, a := range s.accounts {
		if match(a) {
			return a.Clone(), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *fakeStore) FindByUsername(_ context.Context, username string) (*Account, error) {
	return s.find(func(a *Account) bool { return a.Username == username })
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	return s.find(func(a *Account) bool { return a.Email == email })
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*Account, error) {
	return s.find(func(a *Account) bool { return a.ID == id })
}

func (s *fakeStore) Save(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	if _, ok := s.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	if s.takenLocked(account) {
		return ErrAccountExists
	}
	s.accounts[account.ID] = account.Clone()
	return nil
}

// takenLocked reports whether another account already uses a's username or email.
func (s *fakeStore) takenLocked(a *Account) bool {
	for id, other := range s.accounts {
		if id != a.ID && (other.Username == a.Username || other.Email == a.Email) {
			return true
		}
	}
	return false
}

func (s *fakeStore) Update(_ context.Context, id string, fn func(*Account) error) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	current, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	if s.takenLocked(next) {
		return nil, ErrAccountExists
	}
	s.accounts[id] = next
	return next.Clone(), nil
}

func (s *fakeStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, a := range s.accounts {
		if a.Username == account.Username || a.Email == account.Email {
			return ErrAccountExists
		}
	}
	s.accounts[account.ID] = account.Clone()
	return nil
}

func (s *fakeStore) List(_ context.Context, offset, limit int) ([]*Account, error) {
	return s.filter(func(*Account) bool { return true }, offset, limit)
}

func (s *fakeStore) Search(_ context.Context, query string, offset, limit int) ([]*Account, error) {
	q := strings.ToLower(query)
	return s.filter(func(a *Account) bool {
		return strings.Contains(strings.ToLower(a.Username), q) || strings.Contains(strings.ToLower(a.Email), q)
	}, offset, limit)
}

func (s *fakeStore) filter(keep func(*Account) bool, offset, limit int) ([]*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []*Account
	for _, a := range s.accounts {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// plainStore hides the optional interfaces of fakeStore so the engine falls
// back to read-modify-write.
type plainStore struct {
	inner *fakeStore
}

func (p plainStore) FindByUsername(ctx context.Context, v string) (*Account, error) {
	return p.inner.FindByUsername(ctx, v)
}

func (p plainStore) FindByEmail(ctx context.Context, v string) (*Account, error) {
	return p.inner.FindByEmail(ctx, v)
}

func (p plainStore) FindByID(ctx context.Context, v string) (*Account, error) {
	return p.inner.FindByID(ctx, v)
}

func (p plainStore) Save(ctx context.Context, a *Account) error {
	return p.inner.Save(ctx, a)
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error {
	return errors.New("revocation backend down")
}

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("revocation backend down")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(testSecret)
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Metrics.Enabled = true
	return cfg
}

type testEngine struct {
	*Engine
	store       *fakeStore
	clock       *testClock
	revocations *revocation.Memory
}

func newTestEngine(t testing.TB, cfg Config, configure ...func(*Builder)) *testEngine {
	t.Helper()

	store := newFakeStore()
	clock := newTestClock()
	revs := revocation.NewMemory(clock.Now)

	b := New().
		WithConfig(cfg).
		WithStore(store).
		WithRevocationSet(revs).
		WithClock(clock.Now)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, store: store, clock: clock, revocations: revs}
}

func (te *testEngine) seed(t testing.TB, username, role string, mutate ...func(*Account)) *Account {
	t.Helper()

	hash, err := te.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a := &Account{
		ID:           "id-" + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		IsVerified:   true,
		CreatedAt:    te.clock.Now(),
	}
	for _, fn := range mutate {
		fn(a)
	}
	te.store.put(a)
	return a.Clone()
}
