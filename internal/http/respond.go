package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/errs"
	"financeflow/internal/log"
)

const maxBodyBytes = 1 << 20

type contextKey string

const userContextKey contextKey = "user"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Internal errors are
// logged with their cause and answered with a generic message.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindUnauthorized:
		status = http.StatusUnauthorized
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	default:
		log.FromContext(ctx).ErrorContext(ctx, "Request failed", "error", err)
		message = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errs.Validation("failed to read request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errs.Validation("invalid JSON body")
	}
	return nil
}

// requireAuth resolves the session token from the Authorization header or
// the session cookie and puts the user into the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie(sessionCookieName); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			writeError(r.Context(), w, errs.Unauthorized("missing session token"))
			return
		}

		user, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, sessionTokenKey, token)
		next(w, r.WithContext(ctx))
	}
}

const sessionTokenKey contextKey = "session_token"

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func userFrom(ctx context.Context) *core.User {
	user, _ := ctx.Value(userContextKey).(*core.User)
	return user
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(sessionTokenKey).(string)
	return token
}

var errBadID = errs.Validation("invalid id")

type userResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	WhatsAppNumber string `json:"whatsapp_number,omitempty"`
}

func toUserResponse(u *core.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		WhatsAppNumber: u.WhatsAppNumber,
	}
}

type accountResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Balance        string `json:"balance"`
	InitialBalance string `json:"initial_balance"`
	CreatedAt      string `json:"created_at"`
}

func toAccountResponse(a *core.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Name:           a.Name,
		Type:           string(a.Type),
		Balance:        core.FormatCents(a.BalanceCents),
		InitialBalance: core.FormatCents(a.InitialBalanceCents),
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type transactionResponse struct {
	ID                int64  `json:"id"`
	AccountID         int64  `json:"account_id"`
	Type              string `json:"type"`
	Amount            string `json:"amount"`
	Category          string `json:"category"`
	Description       string `json:"description,omitempty"`
	Date              string `json:"date"`
	IsRecurring       bool   `json:"is_recurring"`
	RecurringInterval string `json:"recurring_interval,omitempty"`
	NextRecurringDate string `json:"next_recurring_date,omitempty"`
}

func toTransactionResponse(t *core.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Type:        string(t.Type),
		Amount:      t.Amount.String(),
		Category:    t.Category,
		Description: t.Description,
		Date:        t.OccurredAt.UTC().Format(time.RFC3339),
		IsRecurring: t.IsRecurring,
	}
	if t.IsRecurring {
		resp.RecurringInterval = string(t.RecurringInterval)
		resp.NextRecurringDate = t.NextRecurringDate.UTC().Format("2006-01-02")
	}
	return resp
}

type budgetResponse struct {
	Amount         string `json:"amount"`
	CurrentBalance string `json:"current_balance"`
}

func toBudgetResponse(b *core.Budget) budgetResponse {
	return budgetResponse{
		Amount:         core.FormatCents(b.AmountCents),
		CurrentBalance: core.FormatCents(b.CurrentBalanceCents),
	}
}
