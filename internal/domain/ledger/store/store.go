package store

import (
	"context"
	"errors"

	"warnet-server-go/internal/domain/ledger/model"
)

// Sentinel errors shared by every driver.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// Store is the durable ledger behind the billing service: the accounts
// table plus the append-only session log.
//
// Settle applies the balance debit and the log append of one settlement as
// a single atomic transaction: a failure between the two must leave neither
// applied.
type Store interface {
	CreateAccount(ctx context.Context, account model.Account) error
	DeleteAccount(ctx context.Context, username string) error
	GetAccount(ctx context.Context, username string) (model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// CreditBalance adds minutes to an account and re-stamps its tier,
	// mirroring the administrative top-up behaviour.
	CreditBalance(ctx context.Context, username string, minutes int, tier string) error

	Settle(ctx context.Context, entry model.SessionEntry) error
	ListSessions(ctx context.Context, username string, limit int) ([]model.SessionEntry, error)

	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
}

// RedisConfig captures connection options for the redis driver.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
