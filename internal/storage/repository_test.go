package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"financeflow/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *SQLiteRepository, email string) *core.User {
	t.Helper()
	u := &core.User{Name: "Test User", Email: email, PasswordHash: "hash", IsVerified: true}
	err := repo.InTx(context.Background(), func(tx *Tx) error {
		return tx.CreateUser(context.Background(), u)
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedAccount(t *testing.T, repo *SQLiteRepository, userID int64, name string, balance int64) *core.Account {
	t.Helper()
	a := &core.Account{
		UserID:              userID,
		Name:                name,
		Type:                core.Current,
		InitialBalanceCents: balance,
		BalanceCents:        balance,
	}
	err := repo.InTx(context.Background(), func(tx *Tx) error {
		return tx.CreateAccount(context.Background(), a)
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func TestAccountRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "a@example.com")
	acc := seedAccount(t, repo, user.ID, "Checking", 100_000)

	got, err := repo.GetAccountForUser(ctx, acc.ID, user.ID)
	if err != nil {
		t.Fatalf("GetAccountForUser: %v", err)
	}
	if got.Name != "Checking" || got.BalanceCents != 100_000 || got.InitialBalanceCents != 100_000 {
		t.Errorf("unexpected account: %+v", got)
	}

	if _, err := repo.GetAccountForUser(ctx, acc.ID, user.ID+1); err != ErrNotFound {
		t.Errorf("wrong owner: want ErrNotFound, got %v", err)
	}
}

func TestUpdateAccountBalances(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "b@example.com")
	acc := seedAccount(t, repo, user.ID, "Main", 50_000)

	acc.ApplyDelta(core.Money{Cents: 20_000}, core.Expense, false)
	err := repo.InTx(ctx, func(tx *Tx) error {
		return tx.UpdateAccountBalances(ctx, acc)
	})
	if err != nil {
		t.Fatalf("UpdateAccountBalances: %v", err)
	}

	got, err := repo.GetAccountForUser(ctx, acc.ID, user.ID)
	if err != nil {
		t.Fatalf("GetAccountForUser: %v", err)
	}
	if got.BalanceCents != 30_000 {
		t.Errorf("balance = %d, want 30000", got.BalanceCents)
	}
	if got.InitialBalanceCents != 50_000 {
		t.Errorf("initial balance = %d, want 50000", got.InitialBalanceCents)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "c@example.com")
	acc := seedAccount(t, repo, user.ID, "Main", 0)

	occurred := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	tr := &core.Transaction{
		AccountID:   acc.ID,
		UserID:      user.ID,
		Type:        core.Expense,
		Amount:      core.Money{Cents: 1999},
		Category:    "Food",
		Description: "lunch",
		OccurredAt:  occurred,
	}
	err := repo.InTx(ctx, func(tx *Tx) error {
		return tx.CreateTransaction(ctx, tr)
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if tr.ID == 0 {
		t.Fatal("transaction id not assigned")
	}

	got, err := repo.GetTransaction(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Amount.Cents != 1999 || got.Category != "Food" || !got.OccurredAt.Equal(occurred) {
		t.Errorf("unexpected transaction: %+v", got)
	}
	if got.IsRecurring || got.RecurringInterval != "" || !got.NextRecurringDate.IsZero() {
		t.Errorf("recurrence fields should be empty: %+v", got)
	}
}

func TestListDueRecurring(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "d@example.com")
	acc := seedAccount(t, repo, user.ID, "Main", 0)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mk := func(desc string, next time.Time) {
		tr := &core.Transaction{
			AccountID:         acc.ID,
			UserID:            user.ID,
			Type:              core.Expense,
			Amount:            core.Money{Cents: 500},
			Category:          "Subscriptions",
			Description:       desc,
			OccurredAt:        next.AddDate(0, -1, 0),
			IsRecurring:       true,
			RecurringInterval: core.Monthly,
			NextRecurringDate: next,
		}
		if err := repo.InTx(ctx, func(tx *Tx) error { return tx.CreateTransaction(ctx, tr) }); err != nil {
			t.Fatalf("create recurring: %v", err)
		}
	}
	mk("due-past", now.AddDate(0, 0, -3))
	mk("due-now", now)
	mk("future", now.AddDate(0, 0, 10))

	due, err := repo.ListDueRecurring(ctx, now)
	if err != nil {
		t.Fatalf("ListDueRecurring: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due count = %d, want 2", len(due))
	}
	if due[0].Description != "due-past" || due[1].Description != "due-now" {
		t.Errorf("unexpected due order: %q, %q", due[0].Description, due[1].Description)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "e@example.com")

	boom := &core.Account{UserID: user.ID, Name: "Doomed", Type: core.Savings}
	err := repo.InTx(ctx, func(tx *Tx) error {
		if err := tx.CreateAccount(ctx, boom); err != nil {
			return err
		}
		return context.Canceled
	})
	if err == nil {
		t.Fatal("expected error from InTx")
	}

	accounts, err := repo.ListAccountsByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListAccountsByUser: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("rollback left %d accounts", len(accounts))
	}
}

func TestBudgetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "f@example.com")

	b := &core.Budget{UserID: user.ID, AmountCents: 100_000, CurrentBalanceCents: 100_000}
	err := repo.InTx(ctx, func(tx *Tx) error { return tx.CreateBudget(ctx, b) })
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	b.ApplyDelta(core.Money{Cents: 25_000}, core.Expense, false)
	err = repo.InTx(ctx, func(tx *Tx) error { return tx.UpdateBudget(ctx, b) })
	if err != nil {
		t.Fatalf("UpdateBudget: %v", err)
	}

	got, err := repo.GetBudgetByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetBudgetByUser: %v", err)
	}
	if got.CurrentBalanceCents != 75_000 || got.AmountCents != 100_000 {
		t.Errorf("budget = %+v", got)
	}
	if !got.LastAlertSent.IsZero() {
		t.Errorf("last alert should be zero, got %v", got.LastAlertSent)
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "g@example.com")
	now := time.Now()

	err := repo.InTx(ctx, func(tx *Tx) error {
		return tx.CreateSession(ctx, "tok-1", user.ID, now.Add(time.Hour))
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	uid, err := repo.GetSessionUser(ctx, "tok-1", now)
	if err != nil {
		t.Fatalf("GetSessionUser: %v", err)
	}
	if uid != user.ID {
		t.Errorf("session user = %d, want %d", uid, user.ID)
	}

	if _, err := repo.GetSessionUser(ctx, "tok-1", now.Add(2*time.Hour)); err != ErrNotFound {
		t.Errorf("expired session: want ErrNotFound, got %v", err)
	}

	if err := repo.DeleteSession(ctx, "tok-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := repo.GetSessionUser(ctx, "tok-1", now); err != ErrNotFound {
		t.Errorf("deleted session: want ErrNotFound, got %v", err)
	}
}

func TestPendingSignupUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	exp := time.Now().Add(10 * time.Minute)

	put := func(otp string) {
		err := repo.InTx(ctx, func(tx *Tx) error {
			return tx.UpsertPendingSignup(ctx, PendingSignup{
				Email: "h@example.com", Name: "H", PasswordHash: "hash", OTP: otp, ExpiresAt: exp,
			})
		})
		if err != nil {
			t.Fatalf("UpsertPendingSignup: %v", err)
		}
	}
	put("111111")
	put("222222")

	var got *PendingSignup
	err := repo.InTx(ctx, func(tx *Tx) error {
		var err error
		got, err = tx.GetPendingSignup(ctx, "h@example.com")
		return err
	})
	if err != nil {
		t.Fatalf("GetPendingSignup: %v", err)
	}
	if got.OTP != "222222" {
		t.Errorf("otp = %q, want replacement to win", got.OTP)
	}
}

func TestYearAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "i@example.com")
	acc := seedAccount(t, repo, user.ID, "Main", 0)

	add := func(ty core.TransactionType, cents int64, cat string, at time.Time) {
		tr := &core.Transaction{
			AccountID: acc.ID, UserID: user.ID, Type: ty,
			Amount: core.Money{Cents: cents}, Category: cat, OccurredAt: at,
		}
		if err := repo.InTx(ctx, func(tx *Tx) error { return tx.CreateTransaction(ctx, tr) }); err != nil {
			t.Fatalf("create transaction: %v", err)
		}
	}
	add(core.Expense, 3_000, "Food", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	add(core.Expense, 2_000, "Food", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	add(core.Expense, 7_000, "Rent", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	add(core.Income, 50_000, "Salary", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	add(core.Expense, 9_999, "Food", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))

	sums, err := repo.YearCategorySums(ctx, acc.ID, 2024)
	if err != nil {
		t.Fatalf("YearCategorySums: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("category count = %d, want 2", len(sums))
	}
	if sums[0].Name != "Rent" || sums[0].Amount.Cents != 7_000 {
		t.Errorf("top category = %+v", sums[0])
	}
	if sums[1].Name != "Food" || sums[1].Amount.Cents != 5_000 {
		t.Errorf("second category = %+v", sums[1])
	}

	series, err := repo.MonthlyExpenseSeries(ctx, acc.ID, 2024)
	if err != nil {
		t.Fatalf("MonthlyExpenseSeries: %v", err)
	}
	if series[0] != 3_000 || series[2] != 9_000 {
		t.Errorf("series = %v", series)
	}

	years, err := repo.TransactionYears(ctx, acc.ID)
	if err != nil {
		t.Fatalf("TransactionYears: %v", err)
	}
	if len(years) != 2 || years[0] != 2024 || years[1] != 2023 {
		t.Errorf("years = %v", years)
	}
}
