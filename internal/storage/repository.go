// Package storage persists the ledger in SQLite. All multi-step ledger
// mutations run through InTx, which opens an immediate transaction so
// concurrent writers serialize instead of corrupting balances.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"financeflow/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

// PendingSignup stages a signup until the emailed OTP is confirmed.
type PendingSignup struct {
	Email          string
	Name           string
	PasswordHash   string
	OTP            string
	WhatsAppNumber string
	ExpiresAt      time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	// _txlock=immediate makes every write transaction take the write lock up
	// front, which is what gives the revert-then-reapply sequences their
	// isolation. busy_timeout lets a second writer wait instead of failing.
	dsn := dbPath + "?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping checks database reachability, used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Tx exposes the same row operations as the repository, scoped to one
// database transaction.
type Tx struct {
	q querier
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InTx runs fn inside a single transaction, rolling back on error. Nested
// use is not supported.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) tx() *Tx { return &Tx{q: r.db} }

// Timestamps are stored as unix milliseconds; zero times map to NULL for
// the nullable recurrence columns.

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func toNullMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromNullMillis(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return fromMillis(ms.Int64)
}

// --- users ---

const userColumns = `id, name, email, password_hash, is_verified, whatsapp_number,
	pending_wa_amount_cents, pending_wa_description, pending_wa_state, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*core.User, error) {
	var u core.User
	var created, updated int64
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsVerified, &u.WhatsAppNumber,
		&u.PendingWAAmountCents, &u.PendingWADescription, &u.PendingWAState, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

func (t *Tx) CreateUser(ctx context.Context, u *core.User) error {
	now := time.Now()
	res, err := t.q.ExecContext(ctx, `INSERT INTO users
		(name, email, password_hash, is_verified, whatsapp_number, pending_wa_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.PasswordHash, u.IsVerified, u.WhatsAppNumber, core.WhatsAppIdle,
		toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (t *Tx) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	u, err := scanUser(t.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (t *Tx) GetUser(ctx context.Context, id int64) (*core.User, error) {
	u, err := scanUser(t.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (t *Tx) GetUserByWhatsApp(ctx context.Context, number string) (*core.User, error) {
	u, err := scanUser(t.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE whatsapp_number = ? AND whatsapp_number != ''`, number))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user by whatsapp: %w", err)
	}
	return u, nil
}

// SetPendingWhatsApp parks (or clears) the half-finished conversational
// transaction on the user row.
func (t *Tx) SetPendingWhatsApp(ctx context.Context, userID, amountCents int64, description, state string) error {
	_, err := t.q.ExecContext(ctx, `UPDATE users SET
		pending_wa_amount_cents = ?, pending_wa_description = ?, pending_wa_state = ?, updated_at = ?
		WHERE id = ?`,
		amountCents, description, state, toMillis(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("set pending whatsapp state: %w", err)
	}
	return nil
}

func (t *Tx) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// --- pending signups ---

func (t *Tx) UpsertPendingSignup(ctx context.Context, p PendingSignup) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO pending_signups
		(email, name, password_hash, otp, whatsapp_number, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name, password_hash = excluded.password_hash,
			otp = excluded.otp, whatsapp_number = excluded.whatsapp_number,
			expires_at = excluded.expires_at`,
		p.Email, p.Name, p.PasswordHash, p.OTP, p.WhatsAppNumber, toMillis(p.ExpiresAt))
	if err != nil {
		return fmt.Errorf("upsert pending signup: %w", err)
	}
	return nil
}

func (t *Tx) GetPendingSignup(ctx context.Context, email string) (*PendingSignup, error) {
	var p PendingSignup
	var expires int64
	err := t.q.QueryRowContext(ctx, `SELECT email, name, password_hash, otp, whatsapp_number, expires_at
		FROM pending_signups WHERE email = ?`, email).
		Scan(&p.Email, &p.Name, &p.PasswordHash, &p.OTP, &p.WhatsAppNumber, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pending signup: %w", err)
	}
	p.ExpiresAt = fromMillis(expires)
	return &p, nil
}

func (t *Tx) DeletePendingSignup(ctx context.Context, email string) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM pending_signups WHERE email = ?`, email); err != nil {
		return fmt.Errorf("delete pending signup: %w", err)
	}
	return nil
}

// --- sessions ---

func (t *Tx) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, toMillis(expiresAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionUser resolves a session token to a user id; expired sessions are
// treated as missing.
func (t *Tx) GetSessionUser(ctx context.Context, token string, now time.Time) (int64, error) {
	var userID int64
	err := t.q.QueryRowContext(ctx, `SELECT user_id FROM sessions WHERE token = ? AND expires_at > ?`,
		token, toMillis(now)).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("get session: %w", err)
	}
	return userID, nil
}

func (t *Tx) DeleteSession(ctx context.Context, token string) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired drops stale sessions and pending signups.
func (t *Tx) PurgeExpired(ctx context.Context, now time.Time) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now)); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM pending_signups WHERE expires_at <= ?`, toMillis(now)); err != nil {
		return fmt.Errorf("purge pending signups: %w", err)
	}
	return nil
}

// --- accounts ---

const accountColumns = `id, user_id, name, type, initial_balance_cents, balance_cents, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*core.Account, error) {
	var a core.Account
	var created, updated int64
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.InitialBalanceCents, &a.BalanceCents, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

func (t *Tx) CreateAccount(ctx context.Context, a *core.Account) error {
	now := time.Now()
	res, err := t.q.ExecContext(ctx, `INSERT INTO accounts
		(user_id, name, type, initial_balance_cents, balance_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Name, a.Type, a.InitialBalanceCents, a.BalanceCents, toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("account id: %w", err)
	}
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

func (t *Tx) GetAccount(ctx context.Context, id int64) (*core.Account, error) {
	a, err := scanAccount(t.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetAccountForUser enforces ownership at the query level.
func (t *Tx) GetAccountForUser(ctx context.Context, id, userID int64) (*core.Account, error) {
	a, err := scanAccount(t.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get account for user: %w", err)
	}
	return a, nil
}

func (t *Tx) ListAccountsByUser(ctx context.Context, userID int64) ([]core.Account, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccountBalances persists the balance fields after a ledger delta.
func (t *Tx) UpdateAccountBalances(ctx context.Context, a *core.Account) error {
	res, err := t.q.ExecContext(ctx, `UPDATE accounts SET
		initial_balance_cents = ?, balance_cents = ?, updated_at = ? WHERE id = ?`,
		a.InitialBalanceCents, a.BalanceCents, toMillis(time.Now()), a.ID)
	if err != nil {
		return fmt.Errorf("update account balances: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteAccount(ctx context.Context, id int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- transactions ---

const transactionColumns = `id, account_id, user_id, type, amount_cents, category, description,
	occurred_at, is_recurring, recurring_interval, next_recurring_date, last_processed, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*core.Transaction, error) {
	var tr core.Transaction
	var occurred, created, updated int64
	var interval sql.NullString
	var next, processed sql.NullInt64
	err := row.Scan(&tr.ID, &tr.AccountID, &tr.UserID, &tr.Type, &tr.Amount.Cents, &tr.Category,
		&tr.Description, &occurred, &tr.IsRecurring, &interval, &next, &processed, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tr.OccurredAt = fromMillis(occurred)
	if interval.Valid {
		tr.RecurringInterval = core.RecurringInterval(interval.String)
	}
	tr.NextRecurringDate = fromNullMillis(next)
	tr.LastProcessed = fromNullMillis(processed)
	tr.CreatedAt = fromMillis(created)
	tr.UpdatedAt = fromMillis(updated)
	return &tr, nil
}

func nullInterval(i core.RecurringInterval) any {
	if i == "" {
		return nil
	}
	return string(i)
}

func (t *Tx) CreateTransaction(ctx context.Context, tr *core.Transaction) error {
	now := time.Now()
	res, err := t.q.ExecContext(ctx, `INSERT INTO transactions
		(account_id, user_id, type, amount_cents, category, description, occurred_at,
		 is_recurring, recurring_interval, next_recurring_date, last_processed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.AccountID, tr.UserID, tr.Type, tr.Amount.Cents, tr.Category, tr.Description,
		toMillis(tr.OccurredAt), tr.IsRecurring, nullInterval(tr.RecurringInterval),
		toNullMillis(tr.NextRecurringDate), toNullMillis(tr.LastProcessed), toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	tr.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	tr.CreatedAt, tr.UpdatedAt = now, now
	return nil
}

func (t *Tx) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	tr, err := scanTransaction(t.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tr, nil
}

func (t *Tx) UpdateTransaction(ctx context.Context, tr *core.Transaction) error {
	res, err := t.q.ExecContext(ctx, `UPDATE transactions SET
		type = ?, amount_cents = ?, category = ?, description = ?, occurred_at = ?,
		is_recurring = ?, recurring_interval = ?, next_recurring_date = ?, last_processed = ?, updated_at = ?
		WHERE id = ?`,
		tr.Type, tr.Amount.Cents, tr.Category, tr.Description, toMillis(tr.OccurredAt),
		tr.IsRecurring, nullInterval(tr.RecurringInterval), toNullMillis(tr.NextRecurringDate),
		toNullMillis(tr.LastProcessed), toMillis(time.Now()), tr.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteTransactionsByAccount(ctx context.Context, accountID int64) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("delete transactions by account: %w", err)
	}
	return nil
}

func (t *Tx) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ? ORDER BY occurred_at DESC, id DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListDueRecurring returns recurring transactions whose next occurrence is
// at or before now.
func (t *Tx) ListDueRecurring(ctx context.Context, now time.Time) ([]core.Transaction, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE is_recurring = 1 AND next_recurring_date IS NOT NULL AND next_recurring_date <= ?
		 ORDER BY next_recurring_date, id`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("list due recurring: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

// --- budgets ---

const budgetColumns = `id, user_id, amount_cents, current_balance_cents, last_alert_sent, created_at, updated_at`

func scanBudget(row interface{ Scan(...any) error }) (*core.Budget, error) {
	var b core.Budget
	var alert sql.NullInt64
	var created, updated int64
	err := row.Scan(&b.ID, &b.UserID, &b.AmountCents, &b.CurrentBalanceCents, &alert, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.LastAlertSent = fromNullMillis(alert)
	b.CreatedAt = fromMillis(created)
	b.UpdatedAt = fromMillis(updated)
	return &b, nil
}

func (t *Tx) GetBudgetByUser(ctx context.Context, userID int64) (*core.Budget, error) {
	b, err := scanBudget(t.q.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ?`, userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (t *Tx) CreateBudget(ctx context.Context, b *core.Budget) error {
	now := time.Now()
	res, err := t.q.ExecContext(ctx, `INSERT INTO budgets
		(user_id, amount_cents, current_balance_cents, last_alert_sent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.UserID, b.AmountCents, b.CurrentBalanceCents, toNullMillis(b.LastAlertSent),
		toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	b.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("budget id: %w", err)
	}
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

func (t *Tx) UpdateBudget(ctx context.Context, b *core.Budget) error {
	res, err := t.q.ExecContext(ctx, `UPDATE budgets SET
		amount_cents = ?, current_balance_cents = ?, last_alert_sent = ?, updated_at = ?
		WHERE id = ?`,
		b.AmountCents, b.CurrentBalanceCents, toNullMillis(b.LastAlertSent), toMillis(time.Now()), b.ID)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- aggregates ---

// YearCategorySums totals expense cents per category for one account/year.
func (t *Tx) YearCategorySums(ctx context.Context, accountID int64, year int) ([]core.CategoryAmount, error) {
	start, end := yearRange(year)
	rows, err := t.q.QueryContext(ctx, `SELECT category, SUM(amount_cents)
		FROM transactions
		WHERE account_id = ? AND type = 'Expense' AND occurred_at >= ? AND occurred_at < ?
		GROUP BY category ORDER BY SUM(amount_cents) DESC`,
		accountID, toMillis(start), toMillis(end))
	if err != nil {
		return nil, fmt.Errorf("year category sums: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryAmount
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan category sum: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

// MonthlyExpenseSeries returns expense cents per month for one account/year,
// index 0 = January.
func (t *Tx) MonthlyExpenseSeries(ctx context.Context, accountID int64, year int) ([12]int64, error) {
	var series [12]int64
	start, end := yearRange(year)
	rows, err := t.q.QueryContext(ctx,
		`SELECT occurred_at, amount_cents FROM transactions
		 WHERE account_id = ? AND type = 'Expense' AND occurred_at >= ? AND occurred_at < ?`,
		accountID, toMillis(start), toMillis(end))
	if err != nil {
		return series, fmt.Errorf("monthly expense series: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var occurred, cents int64
		if err := rows.Scan(&occurred, &cents); err != nil {
			return series, fmt.Errorf("scan expense: %w", err)
		}
		series[fromMillis(occurred).Month()-1] += cents
	}
	return series, rows.Err()
}

// TransactionYears lists the distinct calendar years an account has activity
// in, newest first.
func (t *Tx) TransactionYears(ctx context.Context, accountID int64) ([]int, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT occurred_at FROM transactions WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("transaction years: %w", err)
	}
	defer rows.Close()

	seen := map[int]bool{}
	for rows.Next() {
		var occurred int64
		if err := rows.Scan(&occurred); err != nil {
			return nil, fmt.Errorf("scan year: %w", err)
		}
		seen[fromMillis(occurred).Year()] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var years []int
	for y := range seen {
		years = append(years, y)
	}
	for i := 0; i < len(years); i++ {
		for j := i + 1; j < len(years); j++ {
			if years[j] > years[i] {
				years[i], years[j] = years[j], years[i]
			}
		}
	}
	return years, nil
}

// UserMonthCategorySums totals expense cents per category across all of a
// user's accounts inside [start, end).
func (t *Tx) UserMonthCategorySums(ctx context.Context, userID int64, start, end time.Time) ([]core.CategoryAmount, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT category, SUM(amount_cents)
		FROM transactions
		WHERE user_id = ? AND type = 'Expense' AND occurred_at >= ? AND occurred_at < ?
		GROUP BY category ORDER BY SUM(amount_cents) DESC`,
		userID, toMillis(start), toMillis(end))
	if err != nil {
		return nil, fmt.Errorf("user month category sums: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryAmount
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan category sum: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

func yearRange(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

// Repository-level mirrors of the transaction-scoped operations for
// callers that do not need multi-step atomicity.

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (*core.User, error) {
	return r.tx().GetUser(ctx, id)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.tx().GetUserByEmail(ctx, email)
}

func (r *SQLiteRepository) GetUserByWhatsApp(ctx context.Context, number string) (*core.User, error) {
	return r.tx().GetUserByWhatsApp(ctx, number)
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	return r.tx().ListUsers(ctx)
}

func (r *SQLiteRepository) GetSessionUser(ctx context.Context, token string, now time.Time) (int64, error) {
	return r.tx().GetSessionUser(ctx, token, now)
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	return r.tx().DeleteSession(ctx, token)
}

func (r *SQLiteRepository) PurgeExpired(ctx context.Context, now time.Time) error {
	return r.tx().PurgeExpired(ctx, now)
}

func (r *SQLiteRepository) GetAccountForUser(ctx context.Context, id, userID int64) (*core.Account, error) {
	return r.tx().GetAccountForUser(ctx, id, userID)
}

func (r *SQLiteRepository) ListAccountsByUser(ctx context.Context, userID int64) ([]core.Account, error) {
	return r.tx().ListAccountsByUser(ctx, userID)
}

func (r *SQLiteRepository) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	return r.tx().ListTransactionsByAccount(ctx, accountID)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	return r.tx().GetTransaction(ctx, id)
}

func (r *SQLiteRepository) ListDueRecurring(ctx context.Context, now time.Time) ([]core.Transaction, error) {
	return r.tx().ListDueRecurring(ctx, now)
}

func (r *SQLiteRepository) GetBudgetByUser(ctx context.Context, userID int64) (*core.Budget, error) {
	return r.tx().GetBudgetByUser(ctx, userID)
}

func (r *SQLiteRepository) YearCategorySums(ctx context.Context, accountID int64, year int) ([]core.CategoryAmount, error) {
	return r.tx().YearCategorySums(ctx, accountID, year)
}

func (r *SQLiteRepository) MonthlyExpenseSeries(ctx context.Context, accountID int64, year int) ([12]int64, error) {
	return r.tx().MonthlyExpenseSeries(ctx, accountID, year)
}

func (r *SQLiteRepository) TransactionYears(ctx context.Context, accountID int64) ([]int, error) {
	return r.tx().TransactionYears(ctx, accountID)
}

func (r *SQLiteRepository) UserMonthCategorySums(ctx context.Context, userID int64, start, end time.Time) ([]core.CategoryAmount, error) {
	return r.tx().UserMonthCategorySums(ctx, userID, start, end)
}
