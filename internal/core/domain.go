package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	Income  TransactionType = "Income"
	Expense TransactionType = "Expense"
)

const (
	Current AccountType = "Current"
	Savings AccountType = "Savings"
)

const (
	Daily   RecurringInterval = "Daily"
	Weekly  RecurringInterval = "Weekly"
	Monthly RecurringInterval = "Monthly"
	Yearly  RecurringInterval = "Yearly"
)

// Pending WhatsApp dialogue states stored on the user record.
const (
	WhatsAppIdle            = "none"
	WhatsAppAwaitingAccount = "awaiting_account"
)

type (
	TransactionType   string
	AccountType       string
	RecurringInterval string

	Money struct {
		Cents int64
	}

	Account struct {
		ID                  int64
		UserID              int64
		Name                string
		Type                AccountType
		InitialBalanceCents int64
		BalanceCents        int64
		CreatedAt           time.Time
		UpdatedAt           time.Time
	}

	Transaction struct {
		ID                int64
		AccountID         int64
		UserID            int64
		Type              TransactionType
		Amount            Money
		Category          string
		Description       string
		OccurredAt        time.Time
		IsRecurring       bool
		RecurringInterval RecurringInterval // empty when not recurring
		NextRecurringDate time.Time         // zero when not recurring
		LastProcessed     time.Time         // zero until the sweep posts an occurrence
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	Budget struct {
		ID                  int64
		UserID              int64
		AmountCents         int64
		CurrentBalanceCents int64
		LastAlertSent       time.Time
		CreatedAt           time.Time
		UpdatedAt           time.Time
	}

	User struct {
		ID             int64
		Name           string
		Email          string
		PasswordHash   string
		IsVerified     bool
		WhatsAppNumber string

		// Two-turn WhatsApp dialogue: amount/description parked until the
		// user picks an account.
		PendingWAAmountCents int64
		PendingWADescription string
		PendingWAState       string

		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidType       = errors.New("invalid transaction type")
	ErrInvalidAccType    = errors.New("invalid account type")
	ErrInvalidInterval   = errors.New("invalid recurring interval")
	ErrInvalidDate       = errors.New("invalid date")
	ErrEmptyName         = errors.New("empty name")
	ErrEmptyCategory     = errors.New("empty category")
	ErrInvalidWhatsApp   = errors.New("invalid whatsapp number format")
	ErrRecurrenceMissing = errors.New("recurring transaction requires an interval")
)

var whatsappNumberRe = regexp.MustCompile(`^whatsapp:\+\d{10,15}$`)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t AccountType) Valid() bool {
	return t == Current || t == Savings
}

func (i RecurringInterval) Valid() bool {
	switch i {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ApplyDelta mutates the account balances for one ledger event. An expense
// decrements the spendable balance only; income raises both the balance and
// the cumulative income baseline. With invert set the opposite signs apply,
// which is how edits and deletes revert a prior posting. Overdrafts are
// allowed; negative balances are surfaced, not rejected.
func (a *Account) ApplyDelta(amount Money, txType TransactionType, invert bool) {
	delta := amount.Cents
	if invert {
		delta = -delta
	}
	switch txType {
	case Expense:
		a.BalanceCents -= delta
	case Income:
		a.BalanceCents += delta
		a.InitialBalanceCents += delta
	}
}

// ApplyDelta mirrors the account rule on the per-user budget aggregate: an
// expense lowers the current balance, income raises both the current balance
// and the soft cap.
func (b *Budget) ApplyDelta(amount Money, txType TransactionType, invert bool) {
	delta := amount.Cents
	if invert {
		delta = -delta
	}
	switch txType {
	case Expense:
		b.CurrentBalanceCents -= delta
	case Income:
		b.CurrentBalanceCents += delta
		b.AmountCents += delta
	}
}

func (a Account) Validate() error {
	if len(strings.TrimSpace(a.Name)) == 0 {
		return ErrEmptyName
	}
	if len(a.Name) > 100 {
		return errors.New("account name too long (max 100 characters)")
	}
	if !a.Type.Valid() {
		return ErrInvalidAccType
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Category)) == 0 {
		return ErrEmptyCategory
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if t.OccurredAt.IsZero() {
		return ErrInvalidDate
	}
	if t.IsRecurring {
		if !t.RecurringInterval.Valid() {
			if t.RecurringInterval == "" {
				return ErrRecurrenceMissing
			}
			return ErrInvalidInterval
		}
	} else if t.RecurringInterval != "" || !t.NextRecurringDate.IsZero() {
		return errors.New("recurrence fields set on a non-recurring transaction")
	}
	return nil
}

// ValidateWhatsAppNumber checks the channel address format used by the
// messaging webhook, e.g. "whatsapp:+911234567890". Empty is allowed.
func ValidateWhatsAppNumber(n string) error {
	if n == "" {
		return nil
	}
	if !whatsappNumberRe.MatchString(n) {
		return ErrInvalidWhatsApp
	}
	return nil
}
