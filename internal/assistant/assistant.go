package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/errs"
	"financeflow/internal/ledger"
)

type Service struct {
	generator Generator
	ledger    *ledger.Service
	now       func() time.Time
}

func NewService(generator Generator, ledgerSvc *ledger.Service) *Service {
	return &Service{generator: generator, ledger: ledgerSvc, now: time.Now}
}

// ReceiptProposal is the model's reading of a receipt. It is a suggestion
// only; nothing is posted until the user confirms and the fields pass the
// same validation as manual entry.
type ReceiptProposal struct {
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

const receiptPrompt = `Read this receipt image and answer with a single JSON object, no prose:
{"amount": "<total as decimal string>", "category": "<one of: Food, Groceries, Transport, Shopping, Health, Entertainment, Utilities, Other>", "description": "<merchant name>", "date": "<YYYY-MM-DD, empty if unreadable>"}`

// ScanReceipt extracts transaction fields from a receipt image. The reply is
// parsed defensively; a malformed or out-of-range model answer is reported
// as a validation error, never posted.
func (s *Service) ScanReceipt(ctx context.Context, image Image) (*ReceiptProposal, error) {
	if s.generator == nil {
		return nil, errs.Validation("assistant is not configured")
	}
	raw, err := s.generator.Generate(ctx, receiptPrompt, &image)
	if err != nil {
		return nil, errs.Internal("scan receipt", err)
	}

	proposal, err := parseReceiptReply(raw, s.now())
	if err != nil {
		slog.WarnContext(ctx, "Unusable receipt reply from model", "error", err)
		return nil, errs.Validation("could not read the receipt: %v", err)
	}
	return proposal, nil
}

// parseReceiptReply validates the model output as if a user had typed it.
func parseReceiptReply(raw string, now time.Time) (*ReceiptProposal, error) {
	blob, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var p ReceiptProposal
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}

	if _, err := core.ParseDecimalToCents(p.Amount); err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", p.Amount, err)
	}
	p.Category = strings.TrimSpace(p.Category)
	if p.Category == "" {
		p.Category = "Other"
	}
	p.Description = strings.TrimSpace(p.Description)

	if p.Date == "" {
		p.Date = now.Format("2006-01-02")
	} else {
		d, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q", p.Date)
		}
		// A receipt cannot be from the future; fall back to today.
		if d.After(now) {
			p.Date = now.Format("2006-01-02")
		}
	}
	return &p, nil
}

// Chat answers a free-form money question grounded on the user's current
// month. The model sees aggregates only, never credentials.
func (s *Service) Chat(ctx context.Context, userID int64, question string) (string, error) {
	if s.generator == nil {
		return "", errs.Validation("assistant is not configured")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errs.Validation("empty question")
	}
	if len(question) > 2000 {
		return "", errs.Validation("question too long")
	}

	summary, err := s.monthSummary(ctx, userID)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf(`You are a personal finance assistant. Be concise and practical.
User's current month:
%s

Question: %s`, summary, question)

	answer, err := s.generator.Generate(ctx, prompt, nil)
	if err != nil {
		return "", errs.Internal("chat", err)
	}
	return strings.TrimSpace(answer), nil
}

// Insights produces a short spending review of the current month.
func (s *Service) Insights(ctx context.Context, userID int64) (string, error) {
	if s.generator == nil {
		return "", errs.Validation("assistant is not configured")
	}
	summary, err := s.monthSummary(ctx, userID)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf(`You are a personal finance assistant. Given this month's spending,
write at most three short observations and one suggestion. Plain text, no markdown.

%s`, summary)

	answer, err := s.generator.Generate(ctx, prompt, nil)
	if err != nil {
		return "", errs.Internal("insights", err)
	}
	return strings.TrimSpace(answer), nil
}

func (s *Service) monthSummary(ctx context.Context, userID int64) (string, error) {
	now := s.now()
	report, err := s.ledger.MonthReport(ctx, userID, now.Year(), now.Month())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Month: %04d-%02d\n", report.Year, report.Month)
	fmt.Fprintf(&b, "Total balance: %s\n", core.FormatCents(report.CurrentBalanceCents))
	fmt.Fprintf(&b, "Spent this month: %s\n", report.ExpenseTotal)
	for _, c := range report.ByCategory {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Amount)
	}
	if len(report.ByCategory) == 0 {
		b.WriteString("No expenses recorded yet this month.\n")
	}
	return b.String(), nil
}

// extractJSON pulls the first JSON object out of a model reply, tolerating
// code fences and surrounding prose.
func extractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", errors.New("no JSON object in reply")
	}
	return raw[start : end+1], nil
}
