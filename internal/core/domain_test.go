package core

import (
	"testing"
	"time"
)

func validTransaction() Transaction {
	return Transaction{
		AccountID:  1,
		UserID:     1,
		Type:       Expense,
		Amount:     Money{Cents: 20000},
		Category:   "Food",
		OccurredAt: time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestTransactionValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := validTransaction().Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("zero amount", func(t *testing.T) {
		tx := validTransaction()
		tx.Amount = Money{}
		if err := tx.Validate(); err != ErrInvalidAmount {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("bad type", func(t *testing.T) {
		tx := validTransaction()
		tx.Type = "Transfer"
		if err := tx.Validate(); err != ErrInvalidType {
			t.Fatalf("expected ErrInvalidType, got %v", err)
		}
	})

	t.Run("empty category", func(t *testing.T) {
		tx := validTransaction()
		tx.Category = "  "
		if err := tx.Validate(); err != ErrEmptyCategory {
			t.Fatalf("expected ErrEmptyCategory, got %v", err)
		}
	})

	t.Run("recurring without interval", func(t *testing.T) {
		tx := validTransaction()
		tx.IsRecurring = true
		if err := tx.Validate(); err != ErrRecurrenceMissing {
			t.Fatalf("expected ErrRecurrenceMissing, got %v", err)
		}
	})

	t.Run("recurring bad interval", func(t *testing.T) {
		tx := validTransaction()
		tx.IsRecurring = true
		tx.RecurringInterval = "Fortnightly"
		if err := tx.Validate(); err != ErrInvalidInterval {
			t.Fatalf("expected ErrInvalidInterval, got %v", err)
		}
	})

	t.Run("recurrence fields on non-recurring", func(t *testing.T) {
		tx := validTransaction()
		tx.RecurringInterval = Monthly
		if err := tx.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestAccountApplyDelta(t *testing.T) {
	acc := Account{InitialBalanceCents: 100000, BalanceCents: 100000}

	acc.ApplyDelta(Money{Cents: 20000}, Expense, false)
	if acc.BalanceCents != 80000 || acc.InitialBalanceCents != 100000 {
		t.Fatalf("after expense: balance=%d initial=%d", acc.BalanceCents, acc.InitialBalanceCents)
	}

	acc.ApplyDelta(Money{Cents: 5000}, Income, false)
	if acc.BalanceCents != 85000 || acc.InitialBalanceCents != 105000 {
		t.Fatalf("after income: balance=%d initial=%d", acc.BalanceCents, acc.InitialBalanceCents)
	}

	// Reverting both events restores the starting state exactly.
	acc.ApplyDelta(Money{Cents: 5000}, Income, true)
	acc.ApplyDelta(Money{Cents: 20000}, Expense, true)
	if acc.BalanceCents != 100000 || acc.InitialBalanceCents != 100000 {
		t.Fatalf("after revert: balance=%d initial=%d", acc.BalanceCents, acc.InitialBalanceCents)
	}
}

func TestAccountApplyDeltaAllowsOverdraft(t *testing.T) {
	acc := Account{BalanceCents: 1000}
	acc.ApplyDelta(Money{Cents: 5000}, Expense, false)
	if acc.BalanceCents != -4000 {
		t.Fatalf("expected -4000, got %d", acc.BalanceCents)
	}
}

func TestBudgetApplyDelta(t *testing.T) {
	b := Budget{AmountCents: 100000, CurrentBalanceCents: 100000}

	b.ApplyDelta(Money{Cents: 20000}, Expense, false)
	if b.CurrentBalanceCents != 80000 || b.AmountCents != 100000 {
		t.Fatalf("after expense: current=%d amount=%d", b.CurrentBalanceCents, b.AmountCents)
	}

	b.ApplyDelta(Money{Cents: 30000}, Income, false)
	if b.CurrentBalanceCents != 110000 || b.AmountCents != 130000 {
		t.Fatalf("after income: current=%d amount=%d", b.CurrentBalanceCents, b.AmountCents)
	}

	b.ApplyDelta(Money{Cents: 30000}, Income, true)
	b.ApplyDelta(Money{Cents: 20000}, Expense, true)
	if b.CurrentBalanceCents != 100000 || b.AmountCents != 100000 {
		t.Fatalf("after revert: current=%d amount=%d", b.CurrentBalanceCents, b.AmountCents)
	}
}

func TestValidateWhatsAppNumber(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"", true},
		{"whatsapp:+911234567890", true},
		{"whatsapp:+12025550123", true},
		{"+911234567890", false},
		{"whatsapp:911234567890", false},
		{"whatsapp:+123", false},
	}
	for _, tc := range cases {
		err := ValidateWhatsAppNumber(tc.in)
		if tc.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%q: expected error", tc.in)
		}
	}
}
