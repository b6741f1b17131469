// Package auth implements signup with email verification, password login
// and opaque session tokens stored server side.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"financeflow/internal/core"
	"financeflow/internal/errs"
	"financeflow/internal/mail"
	"financeflow/internal/storage"
)

const (
	otpTTL     = 10 * time.Minute
	sessionTTL = 7 * 24 * time.Hour
)

type Service struct {
	repo   *storage.SQLiteRepository
	mailer mail.Sender // nil disables OTP delivery (tokens still logged)
	now    func() time.Time
}

func NewService(repo *storage.SQLiteRepository, mailer mail.Sender) *Service {
	return &Service{repo: repo, mailer: mailer, now: time.Now}
}

type SignupInput struct {
	Name           string
	Email          string
	Password       string
	WhatsAppNumber string
}

// Signup stages a registration and mails a one-time code. The user row is
// only created once the code is confirmed, so unverified emails never own
// accounts. Repeating a signup replaces the previous pending code.
func (s *Service) Signup(ctx context.Context, in SignupInput) error {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return errs.Validation("invalid email address")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errs.Validation("name is required")
	}
	if len(in.Password) < 8 {
		return errs.Validation("password must be at least 8 characters")
	}
	if err := core.ValidateWhatsAppNumber(in.WhatsAppNumber); err != nil {
		return errs.Invalid(err)
	}

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return errs.Conflict("email already registered")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return errs.Internal("check existing user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return errs.Internal("hash password", err)
	}
	otp, err := generateOTP()
	if err != nil {
		return errs.Internal("generate otp", err)
	}

	pending := storage.PendingSignup{
		Email:          email,
		Name:           strings.TrimSpace(in.Name),
		PasswordHash:   string(hash),
		OTP:            otp,
		WhatsAppNumber: in.WhatsAppNumber,
		ExpiresAt:      s.now().Add(otpTTL),
	}
	err = s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.UpsertPendingSignup(ctx, pending)
	})
	if err != nil {
		return errs.Internal("stage signup", err)
	}

	s.sendOTP(ctx, email, otp)
	slog.InfoContext(ctx, "Signup staged", "email", email)
	return nil
}

// VerifyOTP confirms a staged signup and creates the user.
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) (*core.User, error) {
	email = normalizeEmail(email)
	var user *core.User
	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		pending, err := tx.GetPendingSignup(ctx, email)
		if err != nil {
			return err
		}
		if s.now().After(pending.ExpiresAt) {
			return errs.Validation("verification code expired, sign up again")
		}
		if pending.OTP != otp {
			return errs.Validation("incorrect verification code")
		}

		user = &core.User{
			Name:           pending.Name,
			Email:          pending.Email,
			PasswordHash:   pending.PasswordHash,
			IsVerified:     true,
			WhatsAppNumber: pending.WhatsAppNumber,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return tx.DeletePendingSignup(ctx, email)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.NotFound("no pending signup for this email")
		}
		if errs.KindOf(err) != errs.KindInternal {
			return nil, err
		}
		return nil, errs.Internal("verify otp", err)
	}

	slog.InfoContext(ctx, "User verified", "user_id", user.ID, "email", email)
	s.sendWelcome(ctx, user)
	return user, nil
}

// sendWelcome is best effort; a mail failure never fails the verification.
func (s *Service) sendWelcome(ctx context.Context, user *core.User) {
	if s.mailer == nil {
		return
	}
	body := fmt.Sprintf("Hi %s,\n\nYour FinanceFlow account is ready. Log in to add your first account and start tracking.\n\nFinanceFlow", user.Name)
	if err := s.mailer.Send(ctx, user.Email, "Welcome to FinanceFlow", body); err != nil {
		slog.ErrorContext(ctx, "Failed to send welcome mail", "email", user.Email, "error", err)
	}
}

// Login checks credentials and mints a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *core.User, error) {
	email = normalizeEmail(email)
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, errs.Unauthorized("invalid email or password")
		}
		return "", nil, errs.Internal("load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, errs.Unauthorized("invalid email or password")
	}

	token := uuid.NewString()
	err = s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.CreateSession(ctx, token, user.ID, s.now().Add(sessionTTL))
	})
	if err != nil {
		return "", nil, errs.Internal("create session", err)
	}

	slog.InfoContext(ctx, "User logged in", "user_id", user.ID)
	return token, user, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.repo.DeleteSession(ctx, token); err != nil {
		return errs.Internal("delete session", err)
	}
	return nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*core.User, error) {
	if token == "" {
		return nil, errs.Unauthorized("missing session token")
	}
	userID, err := s.repo.GetSessionUser(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.Unauthorized("session expired or invalid")
		}
		return nil, errs.Internal("resolve session", err)
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, errs.Internal("load session user", err)
	}
	return user, nil
}

// PurgeExpired drops stale sessions and pending signups; called from the
// maintenance loop.
func (s *Service) PurgeExpired(ctx context.Context) error {
	return s.repo.PurgeExpired(ctx, s.now())
}

func (s *Service) sendOTP(ctx context.Context, email, otp string) {
	if s.mailer == nil {
		slog.WarnContext(ctx, "Mailer not configured, skipping OTP delivery", "email", email)
		return
	}
	body := fmt.Sprintf("Your FinanceFlow verification code is %s.\nIt expires in %d minutes.",
		otp, int(otpTTL.Minutes()))
	if err := s.mailer.Send(ctx, email, "Verify your FinanceFlow account", body); err != nil {
		slog.ErrorContext(ctx, "Failed to send OTP mail", "email", email, "error", err)
	}
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
