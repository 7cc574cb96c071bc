// Package server is the HTTP boundary: it validates and types request
// payloads, resolves the caller's account from the bearer token, calls the
// ledger engine, and maps domain errors to response codes. No ledger rule
// lives here.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/bankcore/ledger-service/internal/auth"
	"github.com/bankcore/ledger-service/internal/ledger"
	"github.com/bankcore/ledger-service/internal/models"
)

// Authenticator resolves a request to the authenticated account ID.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type Server struct {
	ledger *ledger.Ledger
	auth   Authenticator
}

func New(l *ledger.Ledger, a Authenticator) *Server {
	return &Server{ledger: l, auth: a}
}

// Router wires every route onto a fresh mux.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/accounts", s.createAccount)
	mux.HandleFunc("/deposit", s.deposit)
	mux.HandleFunc("/withdraw", s.withdraw)
	mux.HandleFunc("/transfer", s.transfer)
	mux.HandleFunc("/transactions", s.history)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AccountID      string          `json:"account_id"`
		OpeningBalance decimal.Decimal `json:"opening_balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	acct, err := s.ledger.CreateAccount(r.Context(), req.AccountID, req.OpeningBalance)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	accountID, amount, ok := s.mutationRequest(w, r)
	if !ok {
		return
	}

	res, err := s.ledger.Deposit(r.Context(), accountID, amount, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operationResponse{
		Balance:     res.Balance,
		Transaction: &res.Transactions[0],
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	accountID, amount, ok := s.mutationRequest(w, r)
	if !ok {
		return
	}

	res, err := s.ledger.Withdraw(r.Context(), accountID, amount, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operationResponse{
		Balance:     res.Balance,
		Transaction: &res.Transactions[0],
	})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	accountID, err := s.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "access denied", http.StatusUnauthorized)
		return
	}

	var req struct {
		RecipientID string          `json:"recipient_id"`
		Amount      decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.ledger.Transfer(r.Context(), accountID, req.RecipientID, req.Amount, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operationResponse{Balance: res.Balance})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	accountID, err := s.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "access denied", http.StatusUnauthorized)
		return
	}

	acct, txs, err := s.ledger.GetHistory(r.Context(), accountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, struct {
		Balance      decimal.Decimal      `json:"balance"`
		Transactions []models.Transaction `json:"transactions"`
	}{acct.Balance, txs})
}

// mutationRequest handles the shared shape of deposit and withdraw: POST
// only, authenticated caller, JSON body carrying an amount.
func (s *Server) mutationRequest(w http.ResponseWriter, r *http.Request) (string, decimal.Decimal, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", decimal.Decimal{}, false
	}
	accountID, err := s.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "access denied", http.StatusUnauthorized)
		return "", decimal.Decimal{}, false
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return "", decimal.Decimal{}, false
	}
	return accountID, req.Amount, true
}

type operationResponse struct {
	Balance     decimal.Decimal     `json:"balance"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps domain errors to response codes. Caller errors are 400,
// missing accounts 404, replays and duplicate accounts 409, and a store
// outage 503 so clients know the operation is retryable.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidTransfer),
		errors.Is(err, models.ErrInvalidAccountID),
		errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAccountExists),
		errors.Is(err, models.ErrDuplicateOperation):
		return http.StatusConflict
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var _ Authenticator = (*auth.TokenAuthenticator)(nil)
