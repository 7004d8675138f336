package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"warnet-server-go/internal/domain/ledger/model"
)

// runStoreSuite exercises the behaviour every driver must share.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		err := s.CreateAccount(ctx, model.Account{
			Username: "alice",
			Password: "secret",
			Balance:  120,
			Tier:     "Normal",
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		account, err := s.GetAccount(ctx, "alice")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if account.Balance != 120 || account.Tier != "Normal" {
			t.Fatalf("unexpected account: %+v", account)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.CreateAccount(ctx, model.Account{Username: "bob"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		err := s.CreateAccount(ctx, model.Account{Username: "bob"})
		if !errors.Is(err, ErrAccountExists) {
			t.Fatalf("expected ErrAccountExists, got %v", err)
		}
	})

	t.Run("CreateDuplicateKeepsOriginal", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		original := model.Account{Username: "ivy", Password: "first", Balance: 240, Tier: "VIP"}
		if err := s.CreateAccount(ctx, original); err != nil {
			t.Fatalf("create: %v", err)
		}
		err := s.CreateAccount(ctx, model.Account{Username: "ivy", Password: "second", Balance: 1, Tier: "Normal"})
		if !errors.Is(err, ErrAccountExists) {
			t.Fatalf("expected ErrAccountExists, got %v", err)
		}

		account, err := s.GetAccount(ctx, "ivy")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if account.Password != "first" || account.Balance != 240 || account.Tier != "VIP" {
			t.Fatalf("duplicate create altered the account: %+v", account)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)

		_, err := s.GetAccount(context.Background(), "ghost")
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.CreateAccount(ctx, model.Account{Username: "carol"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.DeleteAccount(ctx, "carol"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.DeleteAccount(ctx, "carol"); !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("ListAccountsSorted", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		for _, name := range []string{"zed", "alice", "mike"} {
			if err := s.CreateAccount(ctx, model.Account{Username: name}); err != nil {
				t.Fatalf("create %s: %v", name, err)
			}
		}
		accounts, err := s.ListAccounts(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(accounts) != 3 {
			t.Fatalf("expected 3 accounts, got %d", len(accounts))
		}
		for i, want := range []string{"alice", "mike", "zed"} {
			if accounts[i].Username != want {
				t.Fatalf("position %d: expected %s, got %s", i, want, accounts[i].Username)
			}
		}
	})

	t.Run("CreditRestampsTier", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.CreateAccount(ctx, model.Account{Username: "dan", Balance: 30, Tier: "Normal"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.CreditBalance(ctx, "dan", 60, "VIP"); err != nil {
			t.Fatalf("credit: %v", err)
		}
		account, err := s.GetAccount(ctx, "dan")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if account.Balance != 90 {
			t.Fatalf("expected balance 90, got %d", account.Balance)
		}
		if account.Tier != "VIP" {
			t.Fatalf("expected tier VIP, got %s", account.Tier)
		}
	})

	t.Run("CreditMissing", func(t *testing.T) {
		s := open(t)

		err := s.CreditBalance(context.Background(), "ghost", 60, "Normal")
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("SettleDebitsAndLogs", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.CreateAccount(ctx, model.Account{Username: "erin", Balance: 180, Tier: "Gamer"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		entry := model.SessionEntry{
			ClientIP:        "10.0.0.7",
			Username:        "erin",
			StartTime:       time.Now().Add(-30 * time.Minute),
			DurationMinutes: 30,
			Tier:            "Gamer",
		}
		if err := s.Settle(ctx, entry); err != nil {
			t.Fatalf("settle: %v", err)
		}

		account, err := s.GetAccount(ctx, "erin")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if account.Balance != 150 {
			t.Fatalf("expected balance 150, got %d", account.Balance)
		}

		sessions, err := s.ListSessions(ctx, "erin", 0)
		if err != nil {
			t.Fatalf("list sessions: %v", err)
		}
		if len(sessions) != 1 {
			t.Fatalf("expected 1 session, got %d", len(sessions))
		}
		if sessions[0].DurationMinutes != 30 || sessions[0].ClientIP != "10.0.0.7" {
			t.Fatalf("unexpected session: %+v", sessions[0])
		}
	})

	t.Run("SettleBelowZero", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.CreateAccount(ctx, model.Account{Username: "finn", Balance: 10, Tier: "Normal"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		entry := model.SessionEntry{
			Username:        "finn",
			StartTime:       time.Now(),
			DurationMinutes: 25,
			Tier:            "Normal",
		}
		if err := s.Settle(ctx, entry); err != nil {
			t.Fatalf("settle: %v", err)
		}
		account, err := s.GetAccount(ctx, "finn")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if account.Balance != -15 {
			t.Fatalf("expected balance -15, got %d", account.Balance)
		}
	})

	t.Run("SettleMissing", func(t *testing.T) {
		s := open(t)

		err := s.Settle(context.Background(), model.SessionEntry{Username: "ghost", DurationMinutes: 5})
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("ListSessionsFilteredNewestFirst", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		for _, name := range []string{"gail", "hank"} {
			if err := s.CreateAccount(ctx, model.Account{Username: name, Balance: 600}); err != nil {
				t.Fatalf("create %s: %v", name, err)
			}
		}
		base := time.Now().Add(-time.Hour)
		durations := []struct {
			username string
			minutes  int
		}{
			{"gail", 10},
			{"hank", 20},
			{"gail", 30},
		}
		for i, d := range durations {
			err := s.Settle(ctx, model.SessionEntry{
				Username:        d.username,
				StartTime:       base.Add(time.Duration(i) * time.Minute),
				DurationMinutes: d.minutes,
				Tier:            "Normal",
			})
			if err != nil {
				t.Fatalf("settle %d: %v", i, err)
			}
		}

		sessions, err := s.ListSessions(ctx, "gail", 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(sessions) != 2 {
			t.Fatalf("expected 2 sessions, got %d", len(sessions))
		}
		if sessions[0].DurationMinutes != 30 || sessions[1].DurationMinutes != 10 {
			t.Fatalf("expected newest first, got %+v", sessions)
		}

		limited, err := s.ListSessions(ctx, "", 2)
		if err != nil {
			t.Fatalf("list limited: %v", err)
		}
		if len(limited) != 2 {
			t.Fatalf("expected 2 sessions with limit, got %d", len(limited))
		}
		if limited[0].DurationMinutes != 30 {
			t.Fatalf("expected newest first with limit, got %+v", limited)
		}
	})
}
