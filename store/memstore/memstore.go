// Package memstore is an in-memory credential store. Every mutation runs under a
// single mutex, so lockout counting through Update never loses increments.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	authcore "github.com/MrEthical07/authcore"
)

var (
	_ authcore.CredentialStore = (*Store)(nil)
	_ authcore.AtomicUpdater   = (*Store)(nil)
	_ authcore.AccountCreator  = (*Store)(nil)
	_ authcore.AccountLister   = (*Store)(nil)
	_ authcore.AccountSearcher = (*Store)(nil)
)

// Store keeps accounts in memory. Usernames and emails are matched exactly as
// stored. Returned accounts are copies.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*authcore.Account
	byUsername map[string]string
	byEmail    map[string]string
}

func New() *Store {
	return &Store{
		byID:       make(map[string]*authcore.Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*authcore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byUsername[username])
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail[email])
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(id)
}

func (s *Store) lookup(id string) (*authcore.Account, error) {
	a, ok := s.byID[id]
	if !ok || id == "" {
		return nil, authcore.ErrAccountNotFound
	}
	return a.Clone(), nil
}

// Save replaces an existing account. Username and email changes are reindexed
// and rejected with [authcore.ErrAccountExists] when they collide.
func (s *Store) Save(ctx context.Context, account *authcore.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[account.ID]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	return s.replaceLocked(current, account.Clone())
}

// Update applies fn to the stored account while holding the write lock.
func (s *Store) Update(ctx context.Context, id string, fn func(*authcore.Account) error) (*authcore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	if err := s.replaceLocked(current, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (s *Store) replaceLocked(current, next *authcore.Account) error {
	if next.Username != current.Username {
		if _, taken := s.byUsername[next.Username]; taken {
			return authcore.ErrAccountExists
		}
	}
	if next.Email != current.Email {
		if _, taken := s.byEmail[next.Email]; taken {
			return authcore.ErrAccountExists
		}
	}

	delete(s.byUsername, current.Username)
	delete(s.byEmail, current.Email)
	s.byUsername[next.Username] = next.ID
	s.byEmail[next.Email] = next.ID
	s.byID[next.ID] = next
	return nil
}

// Create inserts account. Duplicate ids, usernames or emails yield
// [authcore.ErrAccountExists].
func (s *Store) Create(ctx context.Context, account *authcore.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[account.ID]; ok {
		return authcore.ErrAccountExists
	}
	if _, ok := s.byUsername[account.Username]; ok {
		return authcore.ErrAccountExists
	}
	if _, ok := s.byEmail[account.Email]; ok {
		return authcore.ErrAccountExists
	}

	s.byID[account.ID] = account.Clone()
	s.byUsername[account.Username] = account.ID
	s.byEmail[account.Email] = account.ID
	return nil
}

// List returns accounts ordered by creation time, then id.
func (s *Store) List(ctx context.Context, offset, limit int) ([]*authcore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return page(s.collect(nil), offset, limit), nil
}

// Search is List restricted to accounts whose username or email contains query,
// ignoring case.
func (s *Store) Search(ctx context.Context, query string, offset, limit int) ([]*authcore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	return page(s.collect(func(a *authcore.Account) bool {
		return strings.Contains(strings.ToLower(a.Username), needle) ||
			strings.Contains(strings.ToLower(a.Email), needle)
	}), offset, limit), nil
}

func (s *Store) collect(keep func(*authcore.Account) bool) []*authcore.Account {
	s.mu.RLock()
	all := make([]*authcore.Account, 0, len(s.byID))
	for _, a := range s.byID {
		if keep == nil || keep(a) {
			all = append(all, a.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return all
}

func page(all []*authcore.Account, offset, limit int) []*authcore.Account {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*authcore.Account{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
