// Package whatsapp turns inbound chat messages into ledger entries through
// a two-turn dialogue: the user reports an expense, the bot asks which
// account to charge, the user picks one by number. The half-finished entry
// is parked on the user row so the dialogue survives restarts.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/ledger"
	"financeflow/internal/storage"
)

// Messages like "spent 200 on groceries" or "Spent 49.99 on new shoes".
var spentRe = regexp.MustCompile(`(?i)^\s*spent\s+(\d+(?:[.,]\d{1,2})?)\s+on\s+(.+?)\s*$`)

const expenseCategory = "WhatsApp"

type Service struct {
	repo   *storage.SQLiteRepository
	ledger *ledger.Service
	now    func() time.Time
}

func NewService(repo *storage.SQLiteRepository, ledgerSvc *ledger.Service) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, now: time.Now}
}

// HandleInbound processes one message and returns the reply text. Errors are
// reserved for infrastructure failures; user mistakes come back as replies.
func (s *Service) HandleInbound(ctx context.Context, from, body string) (string, error) {
	user, err := s.repo.GetUserByWhatsApp(ctx, from)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "This number is not linked to a FinanceFlow account. Add it in your profile settings first.", nil
		}
		return "", fmt.Errorf("resolve sender: %w", err)
	}

	body = strings.TrimSpace(body)
	if strings.EqualFold(body, "cancel") {
		if err := s.resetPending(ctx, user.ID); err != nil {
			return "", err
		}
		return "Okay, cancelled.", nil
	}

	switch user.PendingWAState {
	case core.WhatsAppAwaitingAccount:
		return s.handleAccountChoice(ctx, user, body)
	default:
		return s.handleNewExpense(ctx, user, body)
	}
}

func (s *Service) handleNewExpense(ctx context.Context, user *core.User, body string) (string, error) {
	m := spentRe.FindStringSubmatch(body)
	if m == nil {
		return "I didn't catch that. Try: \"spent 200 on groceries\".", nil
	}
	amount := strings.ReplaceAll(m[1], ",", ".")
	description := m[2]

	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return "That amount doesn't look right. Try: \"spent 200 on groceries\".", nil
	}

	accounts, err := s.repo.ListAccountsByUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "You don't have any accounts yet. Create one in the app first.", nil
	}

	err = s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.SetPendingWhatsApp(ctx, user.ID, cents, description, core.WhatsAppAwaitingAccount)
	})
	if err != nil {
		return "", fmt.Errorf("park pending expense: %w", err)
	}

	var reply strings.Builder
	fmt.Fprintf(&reply, "Got it: %s for %q. Which account?\n", core.FormatCents(cents), description)
	for i, a := range accounts {
		fmt.Fprintf(&reply, "%d. %s (%s)\n", i+1, a.Name, core.FormatCents(a.BalanceCents))
	}
	reply.WriteString("Reply with a number, or \"cancel\".")
	return reply.String(), nil
}

func (s *Service) handleAccountChoice(ctx context.Context, user *core.User, body string) (string, error) {
	choice, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return "Please reply with the account number from the list, or \"cancel\".", nil
	}

	accounts, err := s.repo.ListAccountsByUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}
	if choice < 1 || choice > len(accounts) {
		return fmt.Sprintf("There is no account %d. Pick 1-%d, or \"cancel\".", choice, len(accounts)), nil
	}
	account := accounts[choice-1]

	tr, err := s.ledger.CreateTransaction(ctx, user.ID, ledger.TransactionInput{
		AccountID:   account.ID,
		Type:        string(core.Expense),
		Amount:      core.FormatCents(user.PendingWAAmountCents),
		Category:    expenseCategory,
		Description: user.PendingWADescription,
		Date:        s.now().Format("2006-01-02"),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to post WhatsApp expense",
			"user_id", user.ID, "account_id", account.ID, "error", err)
		return "Something went wrong recording that expense. It was not saved.", nil
	}

	if err := s.resetPending(ctx, user.ID); err != nil {
		return "", err
	}

	updated, err := s.repo.GetAccountForUser(ctx, account.ID, user.ID)
	if err != nil {
		return fmt.Sprintf("Recorded %s for %q.", tr.Amount, tr.Description), nil
	}
	return fmt.Sprintf("Recorded %s for %q on %s. New balance: %s.",
		tr.Amount, tr.Description, account.Name, core.FormatCents(updated.BalanceCents)), nil
}

func (s *Service) resetPending(ctx context.Context, userID int64) error {
	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.SetPendingWhatsApp(ctx, userID, 0, "", core.WhatsAppIdle)
	})
	if err != nil {
		return fmt.Errorf("reset pending state: %w", err)
	}
	return nil
}
