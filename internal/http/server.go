// Package http exposes the JSON API: auth, dashboard, assistant and the
// WhatsApp webhook.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"financeflow/internal/assistant"
	"financeflow/internal/auth"
	"financeflow/internal/cache"
	"financeflow/internal/core"
	"financeflow/internal/ledger"
	"financeflow/internal/log"
	"financeflow/internal/middleware/ratelimit"
	"financeflow/internal/middleware/security"
	"financeflow/internal/middleware/trace"
	"financeflow/internal/whatsapp"
)

type Server struct {
	http.Server

	auth      *auth.Service
	ledger    *ledger.Service
	assistant *assistant.Service
	whatsapp  *whatsapp.Service

	limiter  *ratelimit.Limiter
	detector *security.Detector

	// Year analytics are expensive aggregates; any ledger mutation purges
	// the whole cache instead of tracking which entries a posting touches.
	analyticsCache *cache.LRU[*core.YearAnalytics]

	shutdownOnce sync.Once
}

// NewServer wires routes and the middleware chain. The assistant service may
// be nil when no model API key is configured; its routes then answer 400.
func NewServer(addr string, authSvc *auth.Service, ledgerSvc *ledger.Service, assistantSvc *assistant.Service, whatsappSvc *whatsapp.Service) *Server {
	mux := http.NewServeMux()

	s := &Server{
		auth:      authSvc,
		ledger:    ledgerSvc,
		assistant: assistantSvc,
		whatsapp:  whatsappSvc,
		limiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:  security.NewDetector(),

		analyticsCache: cache.NewLRU[*core.YearAnalytics](200, 5*time.Minute),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/verify-otp", s.handleVerifyOTP)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.requireAuth(s.handleLogout))
	mux.HandleFunc("GET /api/auth/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("GET /api/dashboard/accounts", s.requireAuth(s.handleListAccounts))
	mux.HandleFunc("POST /api/dashboard/accounts", s.requireAuth(s.handleCreateAccount))
	mux.HandleFunc("DELETE /api/dashboard/accounts/{id}", s.requireAuth(s.handleDeleteAccount))
	mux.HandleFunc("GET /api/dashboard/accounts/{id}/transactions", s.requireAuth(s.handleListTransactions))
	mux.HandleFunc("POST /api/dashboard/transactions", s.requireAuth(s.handleCreateTransaction))
	mux.HandleFunc("PUT /api/dashboard/transactions/{id}", s.requireAuth(s.handleEditTransaction))
	mux.HandleFunc("DELETE /api/dashboard/transactions/{id}", s.requireAuth(s.handleDeleteTransaction))
	mux.HandleFunc("GET /api/dashboard/budget", s.requireAuth(s.handleGetBudget))
	mux.HandleFunc("PUT /api/dashboard/budget", s.requireAuth(s.handleSetBudget))
	mux.HandleFunc("GET /api/dashboard/analytics", s.requireAuth(s.handleAnalytics))
	mux.HandleFunc("GET /api/dashboard/years", s.requireAuth(s.handleTransactionYears))

	mux.HandleFunc("POST /api/assistant/chat", s.requireAuth(s.handleAssistantChat))
	mux.HandleFunc("GET /api/assistant/insights", s.requireAuth(s.handleAssistantInsights))
	mux.HandleFunc("POST /api/assistant/scan-receipt", s.requireAuth(s.handleScanReceipt))

	mux.HandleFunc("POST /api/whatsapp/webhook", s.handleWhatsAppWebhook)

	httpLogger := log.New(log.Config{Component: log.ComponentHTTP})
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, log.NewRequestLogger(httpLogger))
	ctxLogger := log.Middleware(httpLogger)
	withRequestID := log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})
	limited := limitMutations(s.limiter.Middleware(s.detector.ExtractClientIP, nil))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           headers.Middleware(tracer.Middleware(ctxLogger(withRequestID(limited(mux))))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// limitMutations applies a rate limiting middleware to mutating requests
// only. Reads and health probes pass through uncounted.
func limitMutations(limit func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				limited.ServeHTTP(w, r)
			}
		})
	}
}

// Shutdown stops the limiter's cleanup goroutine and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Repo().Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
