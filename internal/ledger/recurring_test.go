package ledger

import (
	"context"
	"testing"
	"time"

	"financeflow/internal/core"
)

func newTestProcessor(t *testing.T, svc *Service, now time.Time) *RecurringProcessor {
	t.Helper()
	p := NewRecurringProcessor(svc.repo, nil)
	p.now = func() time.Time { return now }
	return p
}

func recurringFixture(t *testing.T, svc *Service, email string) (*core.User, *core.Account, *core.Transaction) {
	t.Helper()
	ctx := context.Background()
	user := newTestUser(t, svc, email)
	account := mustAccount(t, svc, user.ID, "1000")
	template, err := svc.CreateTransaction(ctx, user.ID, TransactionInput{
		AccountID: account.ID, Type: "Expense", Amount: "15.99",
		Category: "Subscriptions", Description: "streaming",
		Date: "2024-01-31", IsRecurring: true, Interval: "Monthly",
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return user, account, template
}

func TestProcessDuePostsOccurrence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user, account, template := recurringFixture(t, svc, "r1@example.com")

	// Template anchored Jan 31; next occurrence clamped to leap-year Feb 29.
	sweep := time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)
	processor := newTestProcessor(t, svc, sweep)

	n, err := processor.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed = %d, want 1", n)
	}

	// 1000 - 15.99 (template) - 15.99 (occurrence).
	if got := getAccount(t, svc, user.ID, account.ID); got.BalanceCents != 96_802 {
		t.Errorf("balance = %d, want 96802", got.BalanceCents)
	}

	transactions, err := svc.ListTransactions(ctx, user.ID, account.ID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("transactions = %d, want template plus occurrence", len(transactions))
	}

	updated, err := svc.repo.GetTransaction(ctx, template.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if updated.LastProcessed.IsZero() || updated.LastProcessed.Day() != 29 {
		t.Errorf("LastProcessed = %v, want the Feb 29 due date", updated.LastProcessed)
	}
	if updated.NextRecurringDate.Month() != time.March || updated.NextRecurringDate.Day() != 29 {
		t.Errorf("NextRecurringDate = %v, want 2024-03-29", updated.NextRecurringDate)
	}
}

func TestProcessDueIsIdempotentWithinPeriod(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user, account, _ := recurringFixture(t, svc, "r2@example.com")

	sweep := time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)
	processor := newTestProcessor(t, svc, sweep)

	if _, err := processor.ProcessDue(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	n, err := processor.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep posted %d occurrences, want 0", n)
	}

	transactions, err := svc.ListTransactions(ctx, user.ID, account.ID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(transactions) != 2 {
		t.Errorf("transactions = %d, want 2", len(transactions))
	}
}

func TestProcessDueSkipsMissedPeriods(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user, account, template := recurringFixture(t, svc, "r3@example.com")

	// Several months pass without a sweep. One occurrence posts at the
	// overdue anchor and the anchor jumps past the missed months.
	sweep := time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC)
	processor := newTestProcessor(t, svc, sweep)

	n, err := processor.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed = %d, want 1", n)
	}

	transactions, err := svc.ListTransactions(ctx, user.ID, account.ID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(transactions) != 2 {
		t.Errorf("transactions = %d, want 2", len(transactions))
	}

	updated, err := svc.repo.GetTransaction(ctx, template.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	next := updated.NextRecurringDate
	if next.Month() != time.May || next.Day() != 29 || next.Year() != 2024 {
		t.Errorf("NextRecurringDate = %v, want 2024-05-29", next)
	}
}

func TestProcessDueNothingDue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	recurringFixture(t, svc, "r4@example.com")

	processor := newTestProcessor(t, svc, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
	n, err := processor.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if n != 0 {
		t.Errorf("processed = %d, want 0", n)
	}
}
