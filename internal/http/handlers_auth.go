package http

import (
	"net/http"
	"time"

	"financeflow/internal/auth"
)

const sessionCookieName = "session"

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		Email          string `json:"email"`
		Password       string `json:"password"`
		WhatsAppNumber string `json:"whatsapp_number"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	err := s.auth.Signup(r.Context(), auth.SignupInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		WhatsAppNumber: req.WhatsAppNumber,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "verification code sent",
	})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	user, err := s.auth.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	token, user, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(7 * 24 * time.Hour),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toUserResponse(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), tokenFrom(r.Context())); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(userFrom(r.Context())))
}
