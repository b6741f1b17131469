package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/ledger"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	accounts, err := s.ledger.ListAccounts(r.Context(), user.ID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		resp = append(resp, toAccountResponse(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req struct {
		Name    string `json:"name"`
		Type    string `json:"type"`
		Balance string `json:"balance"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	account, err := s.ledger.CreateAccount(r.Context(), user.ID, ledger.CreateAccountInput{
		Name:    req.Name,
		Type:    req.Type,
		Balance: req.Balance,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	if err := s.ledger.DeleteAccount(r.Context(), user.ID, id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	s.analyticsCache.Purge()
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	transactions, err := s.ledger.ListTransactions(r.Context(), user.ID, id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		resp = append(resp, toTransactionResponse(&transactions[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type transactionRequest struct {
	AccountID   int64  `json:"account_id"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date"`
	IsRecurring bool   `json:"is_recurring"`
	Interval    string `json:"recurring_interval"`
}

func (req transactionRequest) toInput() ledger.TransactionInput {
	return ledger.TransactionInput{
		AccountID:   req.AccountID,
		Type:        req.Type,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
		Date:        req.Date,
		IsRecurring: req.IsRecurring,
		Interval:    req.Interval,
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	transaction, err := s.ledger.CreateTransaction(r.Context(), user.ID, req.toInput())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	s.analyticsCache.Purge()
	writeJSON(w, http.StatusCreated, toTransactionResponse(transaction))
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	transaction, err := s.ledger.EditTransaction(r.Context(), user.ID, id, req.toInput())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	s.analyticsCache.Purge()
	writeJSON(w, http.StatusOK, toTransactionResponse(transaction))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	if err := s.ledger.DeleteTransaction(r.Context(), user.ID, id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	s.analyticsCache.Purge()
	writeJSON(w, http.StatusOK, map[string]string{"message": "transaction deleted"})
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	budget, err := s.ledger.GetBudget(r.Context(), user.ID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if budget == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetResponse(budget))
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	budget, err := s.ledger.SetBudgetAmount(r.Context(), user.ID, req.Amount)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetResponse(budget))
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		writeError(r.Context(), w, errBadID)
		return
	}

	year := time.Now().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		year, err = strconv.Atoi(v)
		if err != nil || year < 1970 || year > 9999 {
			writeError(r.Context(), w, errBadID)
			return
		}
	}

	cacheKey := fmt.Sprintf("%d-%d-%d", user.ID, accountID, year)
	analytics, ok := s.analyticsCache.Get(cacheKey)
	if !ok {
		analytics, err = s.ledger.Analytics(r.Context(), user.ID, accountID, year)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		s.analyticsCache.Set(cacheKey, analytics)
	}

	type categoryRow struct {
		Category string `json:"category"`
		Amount   string `json:"amount"`
	}
	resp := struct {
		Year            int           `json:"year"`
		AccountName     string        `json:"account_name"`
		InitialBalance  string        `json:"initial_balance"`
		CurrentBalance  string        `json:"current_balance"`
		MonthlySpending [12]string    `json:"monthly_spending"`
		ByCategory      []categoryRow `json:"by_category"`
	}{
		Year:           analytics.Year,
		AccountName:    analytics.AccountName,
		InitialBalance: core.FormatCents(analytics.InitialBalanceCents),
		CurrentBalance: core.FormatCents(analytics.CurrentBalanceCents),
		ByCategory:     make([]categoryRow, 0, len(analytics.ByCategory)),
	}
	for i, cents := range analytics.MonthlySpending {
		resp.MonthlySpending[i] = core.FormatCents(cents)
	}
	for _, c := range analytics.ByCategory {
		resp.ByCategory = append(resp.ByCategory, categoryRow{Category: c.Name, Amount: c.Amount.String()})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransactionYears(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		writeError(r.Context(), w, errBadID)
		return
	}

	years, err := s.ledger.TransactionYears(r.Context(), user.ID, accountID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if years == nil {
		years = []int{}
	}
	writeJSON(w, http.StatusOK, map[string][]int{"years": years})
}
