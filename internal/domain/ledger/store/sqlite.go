package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warnet-server-go/internal/domain/ledger/model"
	"warnet-server-go/internal/platform/storage"

	"gorm.io/gorm"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a SQLite-backed ledger store on an already migrated
// database handle.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) CreateAccount(ctx context.Context, account model.Account) error {
	if account.Username == "" {
		return fmt.Errorf("username required")
	}
	tier := account.Tier
	if tier == "" {
		tier = "Normal"
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&storage.UserAccount{}).
			Where("username = ?", account.Username).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAccountExists
		}
		record := &storage.UserAccount{
			Username: account.Username,
			Password: account.Password,
			Balance:  account.Balance,
			Tier:     tier,
		}
		return tx.Create(record).Error
	})
}

func (s *sqliteStore) DeleteAccount(ctx context.Context, username string) error {
	res := s.db.WithContext(ctx).
		Where("username = ?", username).
		Delete(&storage.UserAccount{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *sqliteStore) GetAccount(ctx context.Context, username string) (model.Account, error) {
	var record storage.UserAccount
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	return accountFromRecord(record), nil
}

func (s *sqliteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var records []storage.UserAccount
	if err := s.db.WithContext(ctx).Order("username").Find(&records).Error; err != nil {
		return nil, err
	}
	accounts := make([]model.Account, 0, len(records))
	for _, record := range records {
		accounts = append(accounts, accountFromRecord(record))
	}
	return accounts, nil
}

func (s *sqliteStore) CreditBalance(ctx context.Context, username string, minutes int, tier string) error {
	res := s.db.WithContext(ctx).Model(&storage.UserAccount{}).
		Where("username = ?", username).
		Updates(map[string]any{
			"balance": gorm.Expr("balance + ?", minutes),
			"tier":    tier,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Settle wraps the balance debit and the session-log append in one
// transaction; a failure in either rolls back both.
func (s *sqliteStore) Settle(ctx context.Context, entry model.SessionEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&storage.UserAccount{}).
			Where("username = ?", entry.Username).
			UpdateColumn("balance", gorm.Expr("balance - ?", entry.DurationMinutes))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		record := &storage.SessionRecord{
			ClientIP:        entry.ClientIP,
			Username:        entry.Username,
			StartTime:       entry.StartTime,
			DurationMinutes: entry.DurationMinutes,
			Tier:            entry.Tier,
		}
		return tx.Create(record).Error
	})
}

func (s *sqliteStore) ListSessions(ctx context.Context, username string, limit int) ([]model.SessionEntry, error) {
	query := s.db.WithContext(ctx).Model(&storage.SessionRecord{}).Order("id DESC")
	if username != "" {
		query = query.Where("username = ?", username)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []storage.SessionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	entries := make([]model.SessionEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, model.SessionEntry{
			ClientIP:        record.ClientIP,
			Username:        record.Username,
			StartTime:       record.StartTime,
			DurationMinutes: record.DurationMinutes,
			Tier:            record.Tier,
		})
	}
	return entries, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func accountFromRecord(record storage.UserAccount) model.Account {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return model.Account{
		Username:  record.Username,
		Password:  record.Password,
		Balance:   record.Balance,
		Tier:      record.Tier,
		CreatedAt: createdAt,
	}
}
