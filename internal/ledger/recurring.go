package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
	"financeflow/internal/storage"
)

// RecurringProcessor posts due occurrences of recurring transactions. One
// sweep posts at most one occurrence per template; when several periods
// were missed the anchor advances past all of them in one step, keeping
// the original cadence instead of stacking catch-up postings.
type RecurringProcessor struct {
	repo      *storage.SQLiteRepository
	publisher Publisher
	now       func() time.Time
}

func NewRecurringProcessor(repo *storage.SQLiteRepository, publisher Publisher) *RecurringProcessor {
	return &RecurringProcessor{repo: repo, publisher: publisher, now: time.Now}
}

// ProcessDue finds all recurring transactions whose next occurrence is due
// and posts each one in its own database transaction, so a failure on one
// template never blocks the rest. Returns the number of occurrences posted.
func (p *RecurringProcessor) ProcessDue(ctx context.Context) (int, error) {
	if p.repo == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	now := p.now()

	due, err := p.repo.ListDueRecurring(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due recurring: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"due", len(due), "processing_date", now.Format("2006-01-02"))

	processed := 0
	for _, template := range due {
		posted, err := p.processOne(ctx, template.ID, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process recurring transaction",
				"template_id", template.ID,
				"description", template.Description,
				"error", err)
			continue
		}
		if posted != nil {
			processed++
			slog.InfoContext(ctx, "Posted recurring occurrence",
				"template_id", template.ID,
				"transaction_id", posted.ID,
				"amount_cents", posted.Amount.Cents,
				"interval", template.RecurringInterval)
			p.publish(ctx, posted)
		}
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"processed", processed, "total_checked", len(due))
	return processed, nil
}

// Run sweeps immediately and then on every tick until the context is
// cancelled.
func (p *RecurringProcessor) Run(ctx context.Context, interval time.Duration) error {
	if _, err := p.ProcessDue(ctx); err != nil {
		slog.ErrorContext(ctx, "Recurring sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.ProcessDue(ctx); err != nil {
				slog.ErrorContext(ctx, "Recurring sweep failed", "error", err)
			}
		}
	}
}

// processOne posts a single occurrence. The template row is re-read inside
// the transaction and its dueness re-checked, so a concurrent sweep that
// already advanced the anchor makes this a no-op instead of a double post.
func (p *RecurringProcessor) processOne(ctx context.Context, templateID int64, now time.Time) (*core.Transaction, error) {
	var posted *core.Transaction
	err := p.repo.InTx(ctx, func(tx *storage.Tx) error {
		template, err := tx.GetTransaction(ctx, templateID)
		if err != nil {
			return err
		}
		if !template.IsRecurring || template.NextRecurringDate.IsZero() ||
			template.NextRecurringDate.After(now) {
			return nil // no longer due
		}
		if !template.RecurringInterval.Valid() {
			return fmt.Errorf("unknown interval %q", template.RecurringInterval)
		}

		dueDate := template.NextRecurringDate
		occurrence := &core.Transaction{
			AccountID:   template.AccountID,
			UserID:      template.UserID,
			Type:        template.Type,
			Amount:      template.Amount,
			Category:    template.Category,
			Description: template.Description,
			OccurredAt:  dueDate,
		}
		if err := tx.CreateTransaction(ctx, occurrence); err != nil {
			return err
		}

		account, err := tx.GetAccount(ctx, template.AccountID)
		if err != nil {
			return err
		}
		account.ApplyDelta(occurrence.Amount, occurrence.Type, false)
		if err := tx.UpdateAccountBalances(ctx, account); err != nil {
			return err
		}
		if err := applyBudgetDelta(ctx, tx, template.UserID, occurrence.Amount, occurrence.Type, false, account.BalanceCents); err != nil {
			return err
		}

		template.LastProcessed = dueDate
		template.NextRecurringDate = core.AdvancePast(template.RecurringInterval, dueDate, now)
		if err := tx.UpdateTransaction(ctx, template); err != nil {
			return err
		}

		posted = occurrence
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

func (p *RecurringProcessor) publish(ctx context.Context, tr *core.Transaction) {
	if p.publisher == nil {
		return
	}
	msg := amqp.NewTransactionPostedMessage(tr.ID, tr.AccountID, tr.UserID, true)
	if err := p.publisher.PublishTransactionPosted(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish recurring event",
			"transaction_id", tr.ID, "error", err)
	}
}
