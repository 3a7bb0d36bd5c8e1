package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

// Treasury is the set of operations the HTTP layer exposes.
type Treasury interface {
	InitializeTreasury(ctx context.Context, in service.InitializeInput) (treasury.Treasury, error)
	Deposit(ctx context.Context, caller string, amount uint64) (treasury.TransactionRecord, error)
	AuthorizeWithdrawal(ctx context.Context, caller string, in service.AuthorizeInput) (treasury.Authorization, error)
	ExecuteWithdrawal(ctx context.Context, caller, authorizationID string) (service.Execution, error)
	PauseTreasury(ctx context.Context, caller string) (treasury.Treasury, error)
	ResumeTreasury(ctx context.Context, caller string) (treasury.Treasury, error)
	UpdateTreasurySettings(ctx context.Context, caller string, settings treasury.Settings) (treasury.Treasury, error)
	GetTreasury(ctx context.Context) (treasury.Treasury, error)
	GetAuthorization(ctx context.Context, id string) (treasury.Authorization, error)
	ListTransactions(ctx context.Context, user string, limit int) ([]treasury.TransactionRecord, error)
}

type Server struct {
	treasury Treasury
	verifier *TokenVerifier
	logger   *zap.Logger
}

func NewServer(t Treasury, verifier *TokenVerifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		treasury: t,
		verifier: verifier,
		logger:   logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(v chi.Router) {
		v.Use(s.authMiddleware)

		v.Route("/treasury", func(tr chi.Router) {
			tr.Post("/", s.handleInitializeTreasury)
			tr.Get("/", s.handleGetTreasury)
			tr.Post("/deposits", s.handleDeposit)
			tr.Post("/pause", s.handlePause)
			tr.Post("/resume", s.handleResume)
			tr.Patch("/settings", s.handleUpdateSettings)
		})

		v.Route("/withdrawals", func(wr chi.Router) {
			wr.Post("/", s.handleAuthorizeWithdrawal)
			wr.Get("/{id}", s.handleGetAuthorization)
			wr.Post("/{id}/execute", s.handleExecuteWithdrawal)
		})

		v.Get("/transactions", s.handleListTransactions)
	})
	return r
}
