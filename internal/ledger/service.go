// Package ledger implements the money-movement rules: every transaction
// create, edit or delete adjusts the owning account and the per-user budget
// inside one database transaction, so balances never drift from the
// transaction history.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
	"financeflow/internal/errs"
	"financeflow/internal/storage"
)

// Publisher emits events for committed postings. Publishing is best effort;
// a broker failure never unwinds a committed ledger change.
type Publisher interface {
	PublishTransactionPosted(ctx context.Context, msg *amqp.TransactionPostedMessage) error
}

type Service struct {
	repo      *storage.SQLiteRepository
	publisher Publisher // nil when no broker is configured
	now       func() time.Time
}

func NewService(repo *storage.SQLiteRepository, publisher Publisher) *Service {
	return &Service{repo: repo, publisher: publisher, now: time.Now}
}

// CreateAccountInput carries the user-supplied fields for a new account.
// Balance is a decimal string as typed by the user, e.g. "1000" or "99.50".
type CreateAccountInput struct {
	Name    string
	Type    string
	Balance string
}

func (s *Service) CreateAccount(ctx context.Context, userID int64, in CreateAccountInput) (*core.Account, error) {
	balance := int64(0)
	if in.Balance != "" {
		cents, err := core.ParseDecimalToCents(in.Balance)
		if err != nil {
			return nil, errs.Validation("invalid balance: %v", err)
		}
		balance = cents
	}

	account := &core.Account{
		UserID:              userID,
		Name:                in.Name,
		Type:                core.AccountType(in.Type),
		InitialBalanceCents: balance,
		BalanceCents:        balance,
	}
	if err := account.Validate(); err != nil {
		return nil, errs.Invalid(err)
	}

	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.CreateAccount(ctx, account)
	})
	if err != nil {
		return nil, errs.Internal("create account", err)
	}

	slog.InfoContext(ctx, "Account created",
		"account_id", account.ID, "user_id", userID, "type", account.Type)
	return account, nil
}

// DeleteAccount removes an account together with its transaction history.
// A positive remaining balance is withdrawn from the budget aggregate (cap
// and current balance), in the same database transaction; an overdrawn
// account leaves the budget alone.
func (s *Service) DeleteAccount(ctx context.Context, userID, accountID int64) error {
	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		account, err := tx.GetAccountForUser(ctx, accountID, userID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTransactionsByAccount(ctx, accountID); err != nil {
			return err
		}
		if account.BalanceCents > 0 {
			budget, err := tx.GetBudgetByUser(ctx, userID)
			switch {
			case err == nil:
				budget.AmountCents -= account.BalanceCents
				budget.CurrentBalanceCents -= account.BalanceCents
				if err := tx.UpdateBudget(ctx, budget); err != nil {
					return err
				}
			case !errors.Is(err, storage.ErrNotFound):
				return err
			}
		}
		return tx.DeleteAccount(ctx, accountID)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errs.NotFound("account not found")
		}
		return errs.Internal("delete account", err)
	}

	slog.InfoContext(ctx, "Account deleted", "account_id", accountID, "user_id", userID)
	return nil
}

func (s *Service) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	accounts, err := s.repo.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, errs.Internal("list accounts", err)
	}
	return accounts, nil
}

func (s *Service) GetAccount(ctx context.Context, userID, accountID int64) (*core.Account, error) {
	account, err := s.repo.GetAccountForUser(ctx, accountID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.NotFound("account not found")
		}
		return nil, errs.Internal("get account", err)
	}
	return account, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID, accountID int64) ([]core.Transaction, error) {
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	transactions, err := s.repo.ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, errs.Internal("list transactions", err)
	}
	return transactions, nil
}

// TransactionInput carries the user-supplied fields of a transaction.
// Amount is a decimal string; Date is a calendar date in "2006-01-02" form.
type TransactionInput struct {
	AccountID   int64
	Type        string
	Amount      string
	Category    string
	Description string
	Date        string
	IsRecurring bool
	Interval    string
}

func (s *Service) parseInput(in TransactionInput, timeOfDay time.Time) (*core.Transaction, error) {
	cents, err := core.ParseDecimalToCents(in.Amount)
	if err != nil {
		return nil, errs.Validation("invalid amount: %v", err)
	}
	date, err := time.ParseInLocation("2006-01-02", in.Date, time.UTC)
	if err != nil {
		return nil, errs.Validation("invalid date %q, want YYYY-MM-DD", in.Date)
	}

	tr := &core.Transaction{
		AccountID:   in.AccountID,
		Type:        core.TransactionType(in.Type),
		Amount:      core.Money{Cents: cents},
		Category:    in.Category,
		Description: in.Description,
		OccurredAt:  core.CombineDateTime(date, timeOfDay),
		IsRecurring: in.IsRecurring,
	}
	if in.IsRecurring {
		tr.RecurringInterval = core.RecurringInterval(in.Interval)
		if tr.RecurringInterval.Valid() {
			tr.NextRecurringDate = core.NextOccurrence(tr.RecurringInterval, tr.OccurredAt)
		}
	}
	if err := tr.Validate(); err != nil {
		return nil, errs.Invalid(err)
	}
	return tr, nil
}

// CreateTransaction validates and posts a new transaction, adjusting the
// account and budget in the same database transaction. The stored timestamp
// combines the chosen calendar date with the current wall-clock time, so
// same-day entries keep their entry order.
func (s *Service) CreateTransaction(ctx context.Context, userID int64, in TransactionInput) (*core.Transaction, error) {
	tr, err := s.parseInput(in, s.now())
	if err != nil {
		return nil, err
	}
	tr.UserID = userID

	err = s.repo.InTx(ctx, func(tx *storage.Tx) error {
		account, err := tx.GetAccountForUser(ctx, tr.AccountID, userID)
		if err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, tr); err != nil {
			return err
		}
		account.ApplyDelta(tr.Amount, tr.Type, false)
		if err := tx.UpdateAccountBalances(ctx, account); err != nil {
			return err
		}
		return applyBudgetDelta(ctx, tx, userID, tr.Amount, tr.Type, false, account.BalanceCents)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.NotFound("account not found")
		}
		return nil, errs.Internal("create transaction", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", tr.ID, "account_id", tr.AccountID,
		"type", tr.Type, "amount", tr.Amount, "recurring", tr.IsRecurring)
	s.publishPosted(ctx, tr)
	return tr, nil
}

// EditTransaction replaces a transaction's fields, reverting the old posting
// and applying the new one so account and budget end up as if the new values
// had been entered originally. The new timestamp keeps the prior entry's
// time of day on the new calendar date.
func (s *Service) EditTransaction(ctx context.Context, userID, transactionID int64, in TransactionInput) (*core.Transaction, error) {
	var updated *core.Transaction
	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		old, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if old.UserID != userID {
			return storage.ErrNotFound
		}

		in.AccountID = old.AccountID
		next, err := s.parseInput(in, old.OccurredAt)
		if err != nil {
			return err
		}
		next.ID = old.ID
		next.UserID = old.UserID
		next.CreatedAt = old.CreatedAt
		if next.IsRecurring && old.IsRecurring && next.RecurringInterval == old.RecurringInterval {
			// Unchanged cadence keeps its anchor and history.
			next.NextRecurringDate = old.NextRecurringDate
			next.LastProcessed = old.LastProcessed
		}

		account, err := tx.GetAccountForUser(ctx, old.AccountID, userID)
		if err != nil {
			return err
		}
		account.ApplyDelta(old.Amount, old.Type, true)
		account.ApplyDelta(next.Amount, next.Type, false)
		if err := tx.UpdateAccountBalances(ctx, account); err != nil {
			return err
		}
		if err := applyBudgetDelta(ctx, tx, userID, old.Amount, old.Type, true, account.BalanceCents); err != nil {
			return err
		}
		if err := applyBudgetDelta(ctx, tx, userID, next.Amount, next.Type, false, account.BalanceCents); err != nil {
			return err
		}
		if err := tx.UpdateTransaction(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.NotFound("transaction not found")
		}
		if errs.KindOf(err) != errs.KindInternal {
			return nil, err
		}
		return nil, errs.Internal("edit transaction", err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", updated.ID, "account_id", updated.AccountID)
	s.publishPosted(ctx, updated)
	return updated, nil
}

// DeleteTransaction removes a transaction and reverts its effect on the
// account and budget.
func (s *Service) DeleteTransaction(ctx context.Context, userID, transactionID int64) error {
	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		tr, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if tr.UserID != userID {
			return storage.ErrNotFound
		}
		account, err := tx.GetAccountForUser(ctx, tr.AccountID, userID)
		if err != nil {
			return err
		}
		account.ApplyDelta(tr.Amount, tr.Type, true)
		if err := tx.UpdateAccountBalances(ctx, account); err != nil {
			return err
		}
		if err := applyBudgetDelta(ctx, tx, userID, tr.Amount, tr.Type, true, account.BalanceCents); err != nil {
			return err
		}
		return tx.DeleteTransaction(ctx, transactionID)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errs.NotFound("transaction not found")
		}
		return errs.Internal("delete transaction", err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"transaction_id", transactionID, "user_id", userID)
	return nil
}

// applyBudgetDelta mirrors an account delta onto the user's budget row. The
// budget is created lazily on first use, seeded from the triggering
// account's balance after the delta has been applied.
func applyBudgetDelta(ctx context.Context, tx *storage.Tx, userID int64, amount core.Money, txType core.TransactionType, invert bool, seedBalanceCents int64) error {
	budget, err := tx.GetBudgetByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.CreateBudget(ctx, &core.Budget{
			UserID:              userID,
			AmountCents:         seedBalanceCents,
			CurrentBalanceCents: seedBalanceCents,
		})
	}
	budget.ApplyDelta(amount, txType, invert)
	return tx.UpdateBudget(ctx, budget)
}

// GetBudget returns the user's budget aggregate, or nil when no transaction
// has seeded one yet.
func (s *Service) GetBudget(ctx context.Context, userID int64) (*core.Budget, error) {
	budget, err := s.repo.GetBudgetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, errs.Internal("get budget", err)
	}
	return budget, nil
}

// SetBudgetAmount replaces the budget cap, seeding the row when missing.
func (s *Service) SetBudgetAmount(ctx context.Context, userID int64, amount string) (*core.Budget, error) {
	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return nil, errs.Validation("invalid budget amount: %v", err)
	}

	var budget *core.Budget
	err = s.repo.InTx(ctx, func(tx *storage.Tx) error {
		b, err := tx.GetBudgetByUser(ctx, userID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			b = &core.Budget{UserID: userID, AmountCents: cents, CurrentBalanceCents: cents}
			budget = b
			return tx.CreateBudget(ctx, b)
		}
		b.AmountCents = cents
		budget = b
		return tx.UpdateBudget(ctx, b)
	})
	if err != nil {
		return nil, errs.Internal("set budget amount", err)
	}
	return budget, nil
}

// Analytics builds the year view for one account: balances, a monthly
// spending series and per-category expense totals.
func (s *Service) Analytics(ctx context.Context, userID, accountID int64, year int) (*core.YearAnalytics, error) {
	account, err := s.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	series, err := s.repo.MonthlyExpenseSeries(ctx, accountID, year)
	if err != nil {
		return nil, errs.Internal("monthly series", err)
	}
	byCategory, err := s.repo.YearCategorySums(ctx, accountID, year)
	if err != nil {
		return nil, errs.Internal("category sums", err)
	}
	return &core.YearAnalytics{
		Year:                year,
		AccountName:         account.Name,
		InitialBalanceCents: account.InitialBalanceCents,
		CurrentBalanceCents: account.BalanceCents,
		MonthlySpending:     series,
		ByCategory:          byCategory,
	}, nil
}

// TransactionYears lists the calendar years an account has activity in.
func (s *Service) TransactionYears(ctx context.Context, userID, accountID int64) ([]int, error) {
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	years, err := s.repo.TransactionYears(ctx, accountID)
	if err != nil {
		return nil, errs.Internal("transaction years", err)
	}
	return years, nil
}

// MonthReport aggregates one user's month across all accounts, for the
// periodic summary mail.
func (s *Service) MonthReport(ctx context.Context, userID int64, year int, month time.Month) (*core.MonthReport, error) {
	accounts, err := s.repo.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, errs.Internal("list accounts", err)
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	byCategory, err := s.repo.UserMonthCategorySums(ctx, userID, start, end)
	if err != nil {
		return nil, errs.Internal("month category sums", err)
	}

	report := &core.MonthReport{Year: year, Month: int(month), ByCategory: byCategory}
	for _, a := range accounts {
		report.InitialBalanceCents += a.InitialBalanceCents
		report.CurrentBalanceCents += a.BalanceCents
	}
	for _, c := range byCategory {
		report.ExpenseTotal.Cents += c.Amount.Cents
	}
	return report, nil
}

func (s *Service) publishPosted(ctx context.Context, tr *core.Transaction) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewTransactionPostedMessage(tr.ID, tr.AccountID, tr.UserID, tr.IsRecurring)
	if err := s.publisher.PublishTransactionPosted(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"transaction_id", tr.ID, "error", err)
	}
}

// Repo exposes the underlying repository for read-only collaborators.
func (s *Service) Repo() *storage.SQLiteRepository { return s.repo }
