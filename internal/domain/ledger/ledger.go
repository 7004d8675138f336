// Package ledger is the billing core: account administration, login
// verification and session settlement on top of a pluggable store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"warnet-server-go/internal/domain/billing"
	"warnet-server-go/internal/domain/ledger/model"
	"warnet-server-go/internal/domain/ledger/store"
	platformerrors "warnet-server-go/internal/platform/errors"
	"warnet-server-go/internal/platform/logging"
)

// Wire-facing rejection reasons. The text is sent to terminals verbatim, so
// it stays stable across releases. Unknown usernames and wrong passwords
// share one message so the response does not leak which part failed.
var (
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrNoBalance          = errors.New("No balance remaining")
	ErrAccountInUse       = errors.New("Account already in session")
)

// TierMismatchError rejects a login from a PC class the account is not
// assigned to, naming the class it may use.
type TierMismatchError struct {
	Assigned string
}

func (e *TierMismatchError) Error() string {
	return fmt.Sprintf("This account can only be used on %s PCs", e.Assigned)
}

// Service owns all balance mutations. Terminals talk to it through
// Authenticate and Settle; the admin API uses the account operations.
type Service struct {
	store  store.Store
	tiers  *billing.Table
	logger *logging.Logger

	mutex  sync.Mutex
	active map[string]struct{}
}

// NewService wires the ledger over the given store and tier table.
func NewService(st store.Store, tiers *billing.Table, logger *logging.Logger) *Service {
	if tiers == nil {
		tiers = billing.DefaultTable()
	}
	return &Service{
		store:  st,
		tiers:  tiers,
		logger: logger,
		active: make(map[string]struct{}),
	}
}

// Tiers exposes the configured tier table.
func (s *Service) Tiers() *billing.Table {
	return s.tiers
}

// AddUser creates an account with an initial entitlement purchased in hours.
func (s *Service) AddUser(ctx context.Context, username, password string, hours float64, tierName string) error {
	const op = "ledger.AddUser"

	username = strings.TrimSpace(username)
	if username == "" {
		return platformerrors.Validation(op, "username must not be empty")
	}
	if password == "" {
		return platformerrors.Validation(op, "password must not be empty")
	}
	if !billing.ValidHours(hours) {
		return platformerrors.Validation(op, "hours must be a positive number")
	}
	tier, ok := s.tiers.Lookup(tierName)
	if !ok {
		return platformerrors.Validation(op, "unknown tier: %s", tierName)
	}

	account := model.Account{
		Username: username,
		Password: password,
		Balance:  billing.MinutesFromHours(hours, tier),
		Tier:     tier.Name,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			return platformerrors.Validation(op, "user %s already exists", username)
		}
		return platformerrors.Wrap(platformerrors.KindStorage, op, "create account failed", err)
	}

	s.logger.InfoTag("LEDGER", "user created",
		"username", username, "tier", tier.Name, "balance_minutes", account.Balance)
	return nil
}

// DeleteUser removes an account. An in-flight session for the account keeps
// running; its settlement will then fail against the missing row and is
// logged, not retried.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	const op = "ledger.DeleteUser"

	if err := s.store.DeleteAccount(ctx, username); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return platformerrors.Validation(op, "user %s not found", username)
		}
		return platformerrors.Wrap(platformerrors.KindStorage, op, "delete account failed", err)
	}
	s.logger.InfoTag("LEDGER", "user deleted", "username", username)
	return nil
}

// AddBalance credits purchased hours to an account, re-stamping its tier,
// and returns the quoted price for the purchase.
func (s *Service) AddBalance(ctx context.Context, username string, hours float64, tierName string) (float64, error) {
	const op = "ledger.AddBalance"

	if !billing.ValidHours(hours) {
		return 0, platformerrors.Validation(op, "hours must be a positive number")
	}
	tier, ok := s.tiers.Lookup(tierName)
	if !ok {
		return 0, platformerrors.Validation(op, "unknown tier: %s", tierName)
	}

	minutes := billing.MinutesFromHours(hours, tier)
	if err := s.store.CreditBalance(ctx, username, minutes, tier.Name); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return 0, platformerrors.Validation(op, "user %s not found", username)
		}
		return 0, platformerrors.Wrap(platformerrors.KindStorage, op, "credit balance failed", err)
	}

	price := billing.PriceFromHours(hours, tier)
	s.logger.InfoTag("LEDGER", "balance credited",
		"username", username, "minutes", minutes, "tier", tier.Name, "price", price)
	return price, nil
}

// Quote prices a purchase without touching any account.
func (s *Service) Quote(hours float64, tierName string) (float64, error) {
	const op = "ledger.Quote"

	if !billing.ValidHours(hours) {
		return 0, platformerrors.Validation(op, "hours must be a positive number")
	}
	tier, ok := s.tiers.Lookup(tierName)
	if !ok {
		return 0, platformerrors.Validation(op, "unknown tier: %s", tierName)
	}
	return billing.PriceFromHours(hours, tier), nil
}

// GetUser fetches one account.
func (s *Service) GetUser(ctx context.Context, username string) (model.Account, error) {
	const op = "ledger.GetUser"

	account, err := s.store.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return model.Account{}, platformerrors.Validation(op, "user %s not found", username)
		}
		return model.Account{}, platformerrors.Wrap(platformerrors.KindStorage, op, "get account failed", err)
	}
	return account, nil
}

// ListUsers returns every account sorted by username.
func (s *Service) ListUsers(ctx context.Context) ([]model.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "ledger.ListUsers", "list accounts failed", err)
	}
	return accounts, nil
}

// ListSessions returns settled sessions, newest first. Empty username means
// all accounts; limit 0 means no limit.
func (s *Service) ListSessions(ctx context.Context, username string, limit int) ([]model.SessionEntry, error) {
	entries, err := s.store.ListSessions(ctx, username, limit)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "ledger.ListSessions", "list sessions failed", err)
	}
	return entries, nil
}

// Authenticate verifies a terminal login and reserves the account for one
// session. The checks run in a fixed order so the terminal always sees the
// same rejection for the same account state: credentials, then balance,
// then tier, then the single-session reservation. On success it returns the
// balance converted to fractional hours for the terminal countdown.
func (s *Service) Authenticate(ctx context.Context, username, password, pcType string) (float64, error) {
	account, err := s.store.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, platformerrors.Wrap(platformerrors.KindStorage, "ledger.Authenticate", "get account failed", err)
	}
	if account.Password != password {
		return 0, ErrInvalidCredentials
	}
	if account.Balance <= 0 {
		return 0, ErrNoBalance
	}
	if account.Tier != pcType {
		return 0, &TierMismatchError{Assigned: account.Tier}
	}

	s.mutex.Lock()
	if _, busy := s.active[username]; busy {
		s.mutex.Unlock()
		return 0, ErrAccountInUse
	}
	s.active[username] = struct{}{}
	s.mutex.Unlock()

	s.logger.InfoTag("LEDGER", "login accepted",
		"username", username, "tier", account.Tier, "balance_minutes", account.Balance)
	return billing.HoursFromMinutes(account.Balance), nil
}

// Settle records one finished session: it debits the elapsed minutes,
// appends the session log row and releases the account reservation. The
// reservation is released even when the store write fails; the session is
// gone either way.
func (s *Service) Settle(ctx context.Context, entry model.SessionEntry) error {
	defer func() {
		s.mutex.Lock()
		delete(s.active, entry.Username)
		s.mutex.Unlock()
	}()

	if err := s.store.Settle(ctx, entry); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "ledger.Settle", "settle session failed", err)
	}
	s.logger.InfoTag("LEDGER", "session settled",
		"username", entry.Username, "minutes", entry.DurationMinutes,
		"client_ip", entry.ClientIP, "tier", entry.Tier)
	return nil
}

// ActiveUsernames snapshots the accounts currently reserved by a session.
func (s *Service) ActiveUsernames() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]string, 0, len(s.active))
	for username := range s.active {
		out = append(out, username)
	}
	return out
}
