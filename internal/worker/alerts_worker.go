// Package worker contains the background alert mailer that consumes ledger
// events and sends each user a monthly spending report.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
	"financeflow/internal/ledger"
	"financeflow/internal/log"
	"financeflow/internal/mail"
	"financeflow/internal/storage"
)

// InsightsProvider produces a short commentary on a user's spending. The
// assistant service implements it; a nil provider skips the commentary.
type InsightsProvider interface {
	Insights(ctx context.Context, userID int64) (string, error)
}

type AlertsWorker struct {
	repo     *storage.SQLiteRepository
	ledger   *ledger.Service
	mailer   mail.Sender
	insights InsightsProvider

	now func() time.Time
}

func NewAlertsWorker(repo *storage.SQLiteRepository, ledgerSvc *ledger.Service, mailer mail.Sender, insights InsightsProvider) *AlertsWorker {
	return &AlertsWorker{
		repo:     repo,
		ledger:   ledgerSvc,
		mailer:   mailer,
		insights: insights,
		now:      time.Now,
	}
}

// HandleTransactionPosted processes one ledger event. Messages carry only
// identifiers, so the transaction is refetched; a missing row means it was
// deleted after publishing and the event is dropped.
func (w *AlertsWorker) HandleTransactionPosted(ctx context.Context, msg *amqp.TransactionPostedMessage) error {
	tr, err := w.repo.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.InfoContext(ctx, "Dropping event for deleted transaction",
				"transaction_id", msg.TransactionID)
			return nil
		}
		return fmt.Errorf("get transaction %d: %w", msg.TransactionID, err)
	}

	fields := log.NewFields().
		WithComponent(log.ComponentWorker).
		WithUser(tr.UserID).
		WithTransaction(tr.ID, tr.AccountID, tr.Amount.Cents, tr.Category)
	slog.InfoContext(ctx, "Transaction event processed", fields.ToSlice()...)
	return nil
}

// Run triggers the monthly report pass on every tick until the context is
// cancelled. The pass itself is idempotent, so the interval only bounds how
// quickly a new month's reports go out.
func (w *AlertsWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := w.SendMonthlyReports(ctx); err != nil {
		slog.ErrorContext(ctx, "Monthly report pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.SendMonthlyReports(ctx); err != nil {
				slog.ErrorContext(ctx, "Monthly report pass failed", "error", err)
			}
		}
	}
}

// SendMonthlyReports mails every user a summary of the previous month.
// budgets.last_alert_sent gates the send: a user gets at most one report per
// calendar month, and users with no budget row have no activity to report.
func (w *AlertsWorker) SendMonthlyReports(ctx context.Context) error {
	users, err := w.repo.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	now := w.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	previous := monthStart.AddDate(0, -1, 0)

	sent := 0
	for i := range users {
		user := &users[i]
		if err := w.sendReportFor(ctx, user, monthStart, previous); err != nil {
			slog.ErrorContext(ctx, "Failed to send monthly report",
				"user_id", user.ID, "error", err)
			continue
		}
		sent++
	}

	slog.InfoContext(ctx, "Monthly report pass completed",
		"users", len(users), "processed", sent,
		"month", previous.Format("2006-01"))
	return nil
}

func (w *AlertsWorker) sendReportFor(ctx context.Context, user *core.User, monthStart, previous time.Time) error {
	budget, err := w.repo.GetBudgetByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get budget: %w", err)
	}
	if !budget.LastAlertSent.Before(monthStart) {
		return nil
	}

	report, err := w.ledger.MonthReport(ctx, user.ID, previous.Year(), previous.Month())
	if err != nil {
		return fmt.Errorf("month report: %w", err)
	}
	if report.ExpenseTotal.Cents == 0 && len(report.ByCategory) == 0 {
		return nil
	}

	body := w.renderReport(ctx, user, report)
	subject := fmt.Sprintf("Your %s spending report", previous.Format("January 2006"))
	if err := w.mailer.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	// Mark the send inside a transaction so a concurrent pass cannot
	// double-send after our read.
	err = w.repo.InTx(ctx, func(tx *storage.Tx) error {
		current, err := tx.GetBudgetByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		current.LastAlertSent = w.now()
		return tx.UpdateBudget(ctx, current)
	})
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}

	slog.InfoContext(ctx, "Monthly report sent",
		"user_id", user.ID, "month", previous.Format("2006-01"),
		"expense_total_cents", report.ExpenseTotal.Cents)
	return nil
}

func (w *AlertsWorker) renderReport(ctx context.Context, user *core.User, report *core.MonthReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", user.Name)
	fmt.Fprintf(&b, "Here is your spending summary for %s %d.\n\n",
		time.Month(report.Month).String(), report.Year)
	fmt.Fprintf(&b, "Total spent: %s\n", report.ExpenseTotal)
	fmt.Fprintf(&b, "Balance across accounts: %s\n\n", core.FormatCents(report.CurrentBalanceCents))

	if len(report.ByCategory) > 0 {
		b.WriteString("By category:\n")
		for _, c := range report.ByCategory {
			fmt.Fprintf(&b, "  %s: %s\n", c.Name, c.Amount)
		}
		b.WriteString("\n")
	}

	if w.insights != nil {
		if commentary, err := w.insights.Insights(ctx, user.ID); err == nil && commentary != "" {
			b.WriteString(commentary)
			b.WriteString("\n\n")
		} else if err != nil {
			slog.WarnContext(ctx, "Insights unavailable for report",
				"user_id", user.ID, "error", err)
		}
	}

	b.WriteString("FinanceFlow")
	return b.String()
}
