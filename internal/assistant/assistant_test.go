package assistant

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/errs"
	"financeflow/internal/ledger"
	"financeflow/internal/storage"
)

type scriptedGenerator struct {
	reply      string
	err        error
	lastPrompt string
	lastImage  *Image
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, image *Image) (string, error) {
	g.lastPrompt = prompt
	g.lastImage = image
	return g.reply, g.err
}

func fixedNow() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }

func newTestAssistant(t *testing.T, gen Generator) (*Service, *ledger.Service, *core.User) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	user := &core.User{Name: "A", Email: "a@example.com", PasswordHash: "x", IsVerified: true}
	err = repo.InTx(context.Background(), func(tx *storage.Tx) error {
		return tx.CreateUser(context.Background(), user)
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	ledgerSvc := ledger.NewService(repo, nil)
	svc := NewService(gen, ledgerSvc)
	svc.now = fixedNow
	return svc, ledgerSvc, user
}

func TestScanReceiptParsesCleanReply(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"amount": "42.50", "category": "Groceries", "description": "MegaMart", "date": "2024-06-14"}`}
	svc, _, _ := newTestAssistant(t, gen)

	proposal, err := svc.ScanReceipt(context.Background(), Image{MimeType: "image/jpeg", Data: []byte{1}})
	if err != nil {
		t.Fatalf("ScanReceipt: %v", err)
	}
	if proposal.Amount != "42.50" || proposal.Category != "Groceries" ||
		proposal.Description != "MegaMart" || proposal.Date != "2024-06-14" {
		t.Errorf("proposal = %+v", proposal)
	}
	if gen.lastImage == nil || gen.lastImage.MimeType != "image/jpeg" {
		t.Errorf("image not forwarded: %+v", gen.lastImage)
	}
}

func TestScanReceiptToleratesFencedReply(t *testing.T) {
	gen := &scriptedGenerator{reply: "Sure! Here is the extraction:\n```json\n{\"amount\": \"9.99\", \"category\": \"Food\", \"description\": \"Cafe\", \"date\": \"\"}\n```"}
	svc, _, _ := newTestAssistant(t, gen)

	proposal, err := svc.ScanReceipt(context.Background(), Image{MimeType: "image/png", Data: []byte{1}})
	if err != nil {
		t.Fatalf("ScanReceipt: %v", err)
	}
	if proposal.Amount != "9.99" {
		t.Errorf("amount = %q", proposal.Amount)
	}
	// Empty date falls back to today.
	if proposal.Date != "2024-06-15" {
		t.Errorf("date = %q, want 2024-06-15", proposal.Date)
	}
}

func TestScanReceiptRejectsBadModelOutput(t *testing.T) {
	cases := []string{
		"I could not read this receipt.",
		`{"amount": "zero", "category": "Food"}`,
		`{"amount": "-10", "category": "Food"}`,
		`{"amount": "10", "date": "14/06/2024"}`,
	}
	for _, reply := range cases {
		gen := &scriptedGenerator{reply: reply}
		svc, _, _ := newTestAssistant(t, gen)
		if _, err := svc.ScanReceipt(context.Background(), Image{MimeType: "image/jpeg", Data: []byte{1}}); !errs.IsValidation(err) {
			t.Errorf("reply %q: want validation error, got %v", reply, err)
		}
	}
}

func TestScanReceiptClampsFutureDate(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"amount": "5", "category": "Food", "description": "x", "date": "2030-01-01"}`}
	svc, _, _ := newTestAssistant(t, gen)

	proposal, err := svc.ScanReceipt(context.Background(), Image{MimeType: "image/jpeg", Data: []byte{1}})
	if err != nil {
		t.Fatalf("ScanReceipt: %v", err)
	}
	if proposal.Date != "2024-06-15" {
		t.Errorf("date = %q, want clamp to today", proposal.Date)
	}
}

func TestChatGroundsPromptOnMonthData(t *testing.T) {
	gen := &scriptedGenerator{reply: "You spent most on Rent."}
	svc, ledgerSvc, user := newTestAssistant(t, gen)
	ctx := context.Background()

	account, err := ledgerSvc.CreateAccount(ctx, user.ID, ledger.CreateAccountInput{
		Name: "Main", Type: "Current", Balance: "1000",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, err := ledgerSvc.CreateTransaction(ctx, user.ID, ledger.TransactionInput{
		AccountID: account.ID, Type: "Expense", Amount: "300",
		Category: "Rent", Date: "2024-06-05",
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	answer, err := svc.Chat(ctx, user.ID, "where does my money go?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "You spent most on Rent." {
		t.Errorf("answer = %q", answer)
	}
	if !strings.Contains(gen.lastPrompt, "Rent: 300.00") {
		t.Errorf("prompt missing grounding data:\n%s", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "where does my money go?") {
		t.Errorf("prompt missing question:\n%s", gen.lastPrompt)
	}
}

func TestChatValidation(t *testing.T) {
	svc, _, user := newTestAssistant(t, &scriptedGenerator{reply: "ok"})
	ctx := context.Background()

	if _, err := svc.Chat(ctx, user.ID, "   "); !errs.IsValidation(err) {
		t.Errorf("empty question: want validation error, got %v", err)
	}
	if _, err := svc.Chat(ctx, user.ID, strings.Repeat("x", 2001)); !errs.IsValidation(err) {
		t.Errorf("oversized question: want validation error, got %v", err)
	}

	unconfigured, _, _ := newTestAssistant(t, nil)
	if _, err := unconfigured.Chat(ctx, user.ID, "hi"); !errs.IsValidation(err) {
		t.Errorf("unconfigured: want validation error, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare object", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", in: `Here you go: {"a":1} hope that helps`, want: `{"a":1}`},
		{name: "no object", in: "sorry, no data", wantErr: true},
		{name: "reversed braces", in: "} {", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("want error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
