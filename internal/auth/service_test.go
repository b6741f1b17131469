package auth

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"financeflow/internal/errs"
	"financeflow/internal/storage"
)

type capturedMail struct {
	to      []string
	bodies  []string
	lastOTP string
}

var otpRe = regexp.MustCompile(`\b(\d{6})\b`)

func (c *capturedMail) Send(_ context.Context, to, _ string, body string) error {
	c.to = append(c.to, to)
	c.bodies = append(c.bodies, body)
	if m := otpRe.FindStringSubmatch(body); m != nil {
		c.lastOTP = m[1]
	}
	return nil
}

func newTestAuth(t *testing.T) (*Service, *capturedMail) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	mailbox := &capturedMail{}
	return NewService(repo, mailbox), mailbox
}

func signupAndVerify(t *testing.T, svc *Service, mailbox *capturedMail, email string) {
	t.Helper()
	ctx := context.Background()
	err := svc.Signup(ctx, SignupInput{
		Name: "Test User", Email: email, Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := svc.VerifyOTP(ctx, email, mailbox.lastOTP); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
}

func TestSignupAndVerify(t *testing.T) {
	svc, mailbox := newTestAuth(t)
	ctx := context.Background()

	err := svc.Signup(ctx, SignupInput{
		Name: "Ada", Email: "Ada@Example.com", Password: "long enough",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if len(mailbox.to) != 1 || mailbox.to[0] != "ada@example.com" {
		t.Fatalf("mail sent to %v", mailbox.to)
	}
	if mailbox.lastOTP == "" {
		t.Fatal("no OTP in mail body")
	}

	// User does not exist until the code is confirmed.
	if _, _, err := svc.Login(ctx, "ada@example.com", "long enough"); errs.KindOf(err) != errs.KindUnauthorized {
		t.Errorf("login before verify: want unauthorized, got %v", err)
	}

	user, err := svc.VerifyOTP(ctx, "ada@example.com", mailbox.lastOTP)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if !user.IsVerified || user.Email != "ada@example.com" {
		t.Errorf("user = %+v", user)
	}

	// OTP mail plus welcome mail.
	if len(mailbox.bodies) != 2 || !strings.Contains(mailbox.bodies[1], "Welcome") && !strings.Contains(mailbox.bodies[1], "ready") {
		t.Errorf("mailbox after verify = %d mails", len(mailbox.bodies))
	}

	// The pending row is consumed.
	if _, err := svc.VerifyOTP(ctx, "ada@example.com", mailbox.lastOTP); !errs.IsNotFound(err) {
		t.Errorf("second verify: want not-found, got %v", err)
	}
}

func TestVerifyWrongOTP(t *testing.T) {
	svc, mailbox := newTestAuth(t)
	ctx := context.Background()

	if err := svc.Signup(ctx, SignupInput{Name: "B", Email: "b@example.com", Password: "long enough"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	wrong := "000000"
	if wrong == mailbox.lastOTP {
		wrong = "000001"
	}
	if _, err := svc.VerifyOTP(ctx, "b@example.com", wrong); !errs.IsValidation(err) {
		t.Errorf("want validation error, got %v", err)
	}
}

func TestVerifyExpiredOTP(t *testing.T) {
	svc, mailbox := newTestAuth(t)
	ctx := context.Background()

	if err := svc.Signup(ctx, SignupInput{Name: "C", Email: "c@example.com", Password: "long enough"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(otpTTL + time.Minute) }
	if _, err := svc.VerifyOTP(ctx, "c@example.com", mailbox.lastOTP); !errs.IsValidation(err) {
		t.Errorf("want validation error for expired code, got %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	cases := []SignupInput{
		{Name: "X", Email: "not-an-email", Password: "long enough"},
		{Name: "", Email: "x@example.com", Password: "long enough"},
		{Name: "X", Email: "x@example.com", Password: "short"},
		{Name: "X", Email: "x@example.com", Password: "long enough", WhatsAppNumber: "12345"},
	}
	for _, in := range cases {
		if err := svc.Signup(ctx, in); !errs.IsValidation(err) {
			t.Errorf("input %+v: want validation error, got %v", in, err)
		}
	}
}

func TestSignupConflictAfterVerify(t *testing.T) {
	svc, mailbox := newTestAuth(t)
	signupAndVerify(t, svc, mailbox, "d@example.com")

	err := svc.Signup(context.Background(), SignupInput{
		Name: "Dup", Email: "d@example.com", Password: "another pass",
	})
	if errs.KindOf(err) != errs.KindConflict {
		t.Errorf("want conflict, got %v", err)
	}
}

func TestLoginAndSessionLifecycle(t *testing.T) {
	svc, mailbox := newTestAuth(t)
	ctx := context.Background()
	signupAndVerify(t, svc, mailbox, "e@example.com")

	token, user, err := svc.Login(ctx, "e@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("empty session token")
	}

	got, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("authenticated user = %d, want %d", got.ID, user.ID)
	}

	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); errs.KindOf(err) != errs.KindUnauthorized {
		t.Errorf("after logout: want unauthorized, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, mailbox := newTestAuth(t)
	ctx := context.Background()
	signupAndVerify(t, svc, mailbox, "f@example.com")

	if _, _, err := svc.Login(ctx, "f@example.com", "wrong"); errs.KindOf(err) != errs.KindUnauthorized {
		t.Errorf("want unauthorized, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "ghost@example.com", "whatever"); errs.KindOf(err) != errs.KindUnauthorized {
		t.Errorf("unknown email: want unauthorized, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	svc, mailbox := newTestAuth(t)
	ctx := context.Background()
	signupAndVerify(t, svc, mailbox, "g@example.com")

	token, _, err := svc.Login(ctx, "g@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(sessionTTL + time.Hour) }
	if _, err := svc.Authenticate(ctx, token); errs.KindOf(err) != errs.KindUnauthorized {
		t.Errorf("expired session: want unauthorized, got %v", err)
	}
}
