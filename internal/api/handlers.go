package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

type initializeTreasuryRequest struct {
	// Authority defaults to the caller.
	Authority             string `json:"authority"`
	WithdrawalLimitPerDay uint64 `json:"withdrawal_limit_per_day"`
	MinTreasuryBalance    uint64 `json:"min_treasury_balance"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

type authorizeWithdrawalRequest struct {
	User           string `json:"user"`
	Amount         uint64 `json:"amount"`
	WithdrawalType string `json:"withdrawal_type"`
}

type updateSettingsRequest struct {
	WithdrawalLimitPerDay *uint64 `json:"withdrawal_limit_per_day"`
	MinTreasuryBalance    *uint64 `json:"min_treasury_balance"`
}

type treasuryResponse struct {
	Authority             string    `json:"authority"`
	Vault                 string    `json:"vault"`
	TotalDeposits         uint64    `json:"total_deposits"`
	TotalWithdrawals      uint64    `json:"total_withdrawals"`
	WithdrawalLimitPerDay uint64    `json:"withdrawal_limit_per_day"`
	MinTreasuryBalance    uint64    `json:"min_treasury_balance"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	LastUpdate            time.Time `json:"last_update"`
}

type authorizationResponse struct {
	ID             string     `json:"id"`
	User           string     `json:"user"`
	Amount         uint64     `json:"amount"`
	WithdrawalType string     `json:"withdrawal_type"`
	AuthorizedBy   string     `json:"authorized_by"`
	AuthorizedAt   time.Time  `json:"authorized_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	IsExecuted     bool       `json:"is_executed"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
}

type recordResponse struct {
	ID              string    `json:"id"`
	User            string    `json:"user"`
	Amount          uint64    `json:"amount"`
	Timestamp       time.Time `json:"timestamp"`
	TransactionType string    `json:"transaction_type"`
	WithdrawalType  string    `json:"withdrawal_type,omitempty"`
	AuthorizationID string    `json:"authorization_id,omitempty"`
}

type executionResponse struct {
	Authorization authorizationResponse `json:"authorization"`
	Record        recordResponse        `json:"record"`
}

type transactionsResponse struct {
	Transactions []recordResponse `json:"transactions"`
}

func (s *Server) handleInitializeTreasury(w http.ResponseWriter, r *http.Request) {
	var req initializeTreasuryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEvent(r, "treasury_initialize_failed", zap.String("reason", "invalid_request"))
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	authority := req.Authority
	if authority == "" {
		authority = Principal(r.Context())
	}

	t, err := s.treasury.InitializeTreasury(r.Context(), service.InitializeInput{
		Authority:             authority,
		WithdrawalLimitPerDay: req.WithdrawalLimitPerDay,
		MinTreasuryBalance:    req.MinTreasuryBalance,
	})
	if err != nil {
		s.fail(w, r, "treasury_initialize_failed", err)
		return
	}

	s.logEvent(r, "treasury_initialized", zap.String("authority", t.Authority))
	writeJSON(w, http.StatusCreated, toTreasuryResponse(t))
}

func (s *Server) handleGetTreasury(w http.ResponseWriter, r *http.Request) {
	t, err := s.treasury.GetTreasury(r.Context())
	if err != nil {
		s.fail(w, r, "treasury_get_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toTreasuryResponse(t))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEvent(r, "deposit_failed", zap.String("reason", "invalid_request"))
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	rec, err := s.treasury.Deposit(r.Context(), Principal(r.Context()), req.Amount)
	if err != nil {
		s.fail(w, r, "deposit_failed", err, zap.Uint64("amount", req.Amount))
		return
	}

	s.logEvent(r, "deposit_recorded",
		zap.String("record_id", rec.ID),
		zap.Uint64("amount", rec.Amount),
	)
	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, "treasury_paused", s.treasury.PauseTreasury)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, "treasury_resumed", s.treasury.ResumeTreasury)
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request, event string, op func(ctx context.Context, caller string) (treasury.Treasury, error)) {
	t, err := op(r.Context(), Principal(r.Context()))
	if err != nil {
		s.fail(w, r, event+"_failed", err)
		return
	}

	s.logEvent(r, event, zap.Bool("is_active", t.IsActive))
	writeJSON(w, http.StatusOK, toTreasuryResponse(t))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEvent(r, "treasury_settings_update_failed", zap.String("reason", "invalid_request"))
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	t, err := s.treasury.UpdateTreasurySettings(r.Context(), Principal(r.Context()), treasury.Settings{
		WithdrawalLimitPerDay: req.WithdrawalLimitPerDay,
		MinTreasuryBalance:    req.MinTreasuryBalance,
	})
	if err != nil {
		s.fail(w, r, "treasury_settings_update_failed", err)
		return
	}

	s.logEvent(r, "treasury_settings_updated",
		zap.Uint64("withdrawal_limit_per_day", t.WithdrawalLimitPerDay),
		zap.Uint64("min_treasury_balance", t.MinTreasuryBalance),
	)
	writeJSON(w, http.StatusOK, toTreasuryResponse(t))
}

func (s *Server) handleAuthorizeWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req authorizeWithdrawalRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEvent(r, "withdrawal_authorize_failed", zap.String("reason", "invalid_request"))
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	wtype, err := treasury.ParseWithdrawalType(req.WithdrawalType)
	if err != nil {
		// Left to the treasury, which rejects it after its earlier checks.
		wtype = treasury.WithdrawalType(req.WithdrawalType)
	}

	a, err := s.treasury.AuthorizeWithdrawal(r.Context(), Principal(r.Context()), service.AuthorizeInput{
		User:           strings.TrimSpace(req.User),
		Amount:         req.Amount,
		WithdrawalType: wtype,
	})
	if err != nil {
		s.fail(w, r, "withdrawal_authorize_failed", err,
			zap.String("user", req.User),
			zap.Uint64("amount", req.Amount),
		)
		return
	}

	s.logEvent(r, "withdrawal_authorized",
		zap.String("authorization_id", a.ID),
		zap.String("user", a.User),
		zap.Uint64("amount", a.Amount),
	)
	writeJSON(w, http.StatusCreated, toAuthorizationResponse(a))
}

func (s *Server) handleGetAuthorization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.treasury.GetAuthorization(r.Context(), id)
	if err != nil {
		s.fail(w, r, "withdrawal_get_failed", err, zap.String("authorization_id", id))
		return
	}
	writeJSON(w, http.StatusOK, toAuthorizationResponse(a))
}

func (s *Server) handleExecuteWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out, err := s.treasury.ExecuteWithdrawal(r.Context(), Principal(r.Context()), id)
	if err != nil {
		s.fail(w, r, "withdrawal_execute_failed", err, zap.String("authorization_id", id))
		return
	}

	s.logEvent(r, "withdrawal_executed",
		zap.String("authorization_id", out.Authorization.ID),
		zap.String("record_id", out.Record.ID),
		zap.Uint64("amount", out.Record.Amount),
	)
	writeJSON(w, http.StatusOK, executionResponse{
		Authorization: toAuthorizationResponse(out.Authorization),
		Record:        toRecordResponse(out.Record),
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		limit = n
	}

	recs, err := s.treasury.ListTransactions(r.Context(), strings.TrimSpace(q.Get("user")), limit)
	if err != nil {
		s.fail(w, r, "transactions_list_failed", err)
		return
	}

	resp := transactionsResponse{Transactions: make([]recordResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Transactions = append(resp.Transactions, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toTreasuryResponse(t treasury.Treasury) treasuryResponse {
	return treasuryResponse{
		Authority:             t.Authority,
		Vault:                 t.Vault,
		TotalDeposits:         t.TotalDeposits,
		TotalWithdrawals:      t.TotalWithdrawals,
		WithdrawalLimitPerDay: t.WithdrawalLimitPerDay,
		MinTreasuryBalance:    t.MinTreasuryBalance,
		IsActive:              t.IsActive,
		CreatedAt:             t.CreatedAt,
		LastUpdate:            t.LastUpdate,
	}
}

func toAuthorizationResponse(a treasury.Authorization) authorizationResponse {
	resp := authorizationResponse{
		ID:             a.ID,
		User:           a.User,
		Amount:         a.Amount,
		WithdrawalType: string(a.WithdrawalType),
		AuthorizedBy:   a.AuthorizedBy,
		AuthorizedAt:   a.AuthorizedAt,
		ExpiresAt:      a.ExpiresAt,
	}
	if at, ok := a.ExecutedAt(); ok {
		resp.IsExecuted = true
		resp.ExecutedAt = &at
	}
	return resp
}

func toRecordResponse(rec treasury.TransactionRecord) recordResponse {
	return recordResponse{
		ID:              rec.ID,
		User:            rec.User,
		Amount:          rec.Amount,
		Timestamp:       rec.Timestamp,
		TransactionType: string(rec.TransactionType),
		WithdrawalType:  string(rec.WithdrawalType),
		AuthorizationID: rec.AuthorizationID,
	}
}
