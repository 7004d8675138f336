package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"warnet-server-go/internal/domain/ledger/model"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps the ledger in redis so several branch servers can share
// one balance pool. Accounts are hashes, the session log is a list.
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed ledger store.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "warnet:"
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) accountKey(username string) string {
	return s.prefix + "account:" + username
}

func (s *redisStore) sessionsKey() string {
	return s.prefix + "sessions"
}

func (s *redisStore) CreateAccount(ctx context.Context, account model.Account) error {
	if account.Username == "" {
		return fmt.Errorf("username required")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	tier := account.Tier
	if tier == "" {
		tier = "Normal"
	}

	// WATCH makes the existence check and the hash write one atomic unit,
	// so a failure cannot leave a partially written account behind.
	key := s.accountKey(account.Username)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists != 0 {
			return ErrAccountExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"username", account.Username,
				"password", account.Password,
				"balance", account.Balance,
				"tier", tier,
				"created_at", account.CreatedAt.Format(time.RFC3339Nano),
			)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// A concurrent creation touched the key between check and write.
		return ErrAccountExists
	}
	return err
}

func (s *redisStore) DeleteAccount(ctx context.Context, username string) error {
	removed, err := s.client.Del(ctx, s.accountKey(username)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *redisStore) GetAccount(ctx context.Context, username string) (model.Account, error) {
	fields, err := s.client.HGetAll(ctx, s.accountKey(username)).Result()
	if err != nil {
		return model.Account{}, err
	}
	if len(fields) == 0 {
		return model.Account{}, ErrAccountNotFound
	}
	return accountFromFields(fields), nil
}

func (s *redisStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var cursor uint64
	accounts := make([]model.Account, 0)
	pattern := s.prefix + "account:*"
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			fields, err := s.client.HGetAll(ctx, key).Result()
			if err != nil {
				return nil, err
			}
			if len(fields) == 0 {
				continue
			}
			accounts = append(accounts, accountFromFields(fields))
		}
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
	return accounts, nil
}

func (s *redisStore) CreditBalance(ctx context.Context, username string, minutes int, tier string) error {
	if err := s.requireAccount(ctx, username); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, s.accountKey(username), "balance", int64(minutes))
	pipe.HSet(ctx, s.accountKey(username), "tier", tier)
	_, err := pipe.Exec(ctx)
	return err
}

// Settle performs the debit and the log append in one MULTI/EXEC block.
// Each account is only mutated by its single active session plus the admin,
// so the separate existence check is not racy in practice.
func (s *redisStore) Settle(ctx context.Context, entry model.SessionEntry) error {
	if err := s.requireAccount(ctx, entry.Username); err != nil {
		return err
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, s.accountKey(entry.Username), "balance", -int64(entry.DurationMinutes))
	pipe.RPush(ctx, s.sessionsKey(), payload)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) ListSessions(ctx context.Context, username string, limit int) ([]model.SessionEntry, error) {
	raw, err := s.client.LRange(ctx, s.sessionsKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.SessionEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var entry model.SessionEntry
		if err := json.Unmarshal([]byte(raw[i]), &entry); err != nil {
			continue
		}
		if username != "" && entry.Username != username {
			continue
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}

func (s *redisStore) requireAccount(ctx context.Context, username string) error {
	exists, err := s.client.Exists(ctx, s.accountKey(username)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func accountFromFields(fields map[string]string) model.Account {
	balance, _ := strconv.Atoi(fields["balance"])
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return model.Account{
		Username:  strings.TrimSpace(fields["username"]),
		Password:  fields["password"],
		Balance:   balance,
		Tier:      fields["tier"],
		CreatedAt: createdAt,
	}
}
