package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"warnet-server-go/internal/domain/ledger/model"
)

type memoryStore struct {
	mutex    sync.RWMutex
	accounts map[string]model.Account
	sessions []model.SessionEntry
}

// NewMemory builds an in-memory ledger store. It backs the tests and the
// standalone demo mode; nothing survives a restart.
func NewMemory() Store {
	return &memoryStore{
		accounts: make(map[string]model.Account),
	}
}

func (s *memoryStore) CreateAccount(_ context.Context, account model.Account) error {
	if account.Username == "" {
		return fmt.Errorf("username required")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.accounts[account.Username]; exists {
		return ErrAccountExists
	}
	s.accounts[account.Username] = account
	return nil
}

func (s *memoryStore) DeleteAccount(_ context.Context, username string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.accounts[username]; !exists {
		return ErrAccountNotFound
	}
	delete(s.accounts, username)
	return nil
}

func (s *memoryStore) GetAccount(_ context.Context, username string) (model.Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	account, ok := s.accounts[username]
	if !ok {
		return model.Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *memoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]model.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *memoryStore) CreditBalance(_ context.Context, username string, minutes int, tier string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	account, ok := s.accounts[username]
	if !ok {
		return ErrAccountNotFound
	}
	account.Balance += minutes
	account.Tier = tier
	s.accounts[username] = account
	return nil
}

// Settle debits the balance and appends the log row under one lock, so a
// reader never observes one without the other.
func (s *memoryStore) Settle(_ context.Context, entry model.SessionEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	account, ok := s.accounts[entry.Username]
	if !ok {
		return ErrAccountNotFound
	}
	account.Balance -= entry.DurationMinutes
	s.accounts[entry.Username] = account
	s.sessions = append(s.sessions, entry)
	return nil
}

func (s *memoryStore) ListSessions(_ context.Context, username string, limit int) ([]model.SessionEntry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]model.SessionEntry, 0, len(s.sessions))
	for i := len(s.sessions) - 1; i >= 0; i-- {
		entry := s.sessions[i]
		if username != "" && entry.Username != username {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
