package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/money"
)

type depositRequest struct {
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	TxHash    string  `json:"tx_hash"`
	Signature string  `json:"signature"`
}

func (s *Server) handleDepositXEC(w http.ResponseWriter, r *http.Request) {
	s.handleDeposit(w, r, domain.AssetXEC, domain.TxDepositXEC)
}

func (s *Server) handleDepositFIRMA(w http.ResponseWriter, r *http.Request) {
	s.handleDeposit(w, r, domain.AssetFIRMA, domain.TxDepositFIRMA)
}

// handleDepositUSDTSolana invokes the 1:1 USD->FIRMA bridge: the incoming
// USDT amount credits the user's FIRMA balance directly.
func (s *Server) handleDepositUSDTSolana(w http.ResponseWriter, r *http.Request) {
	s.handleDeposit(w, r, domain.AssetFIRMA, domain.TxDepositUSDTSolana)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, asset domain.Asset, kind domain.TransactionKind) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and a positive amount are required"})
		return
	}
	amount := money.FromFloat(req.Amount)
	now := time.Now().UTC()
	externalHash := req.TxHash
	if externalHash == "" {
		externalHash = req.Signature
	}
	if externalHash == "" {
		externalHash = syntheticTxHash(string(kind), req.UserID, string(asset), amount.String(), now.UnixNano())
	}

	valueUSD := s.oracle.ToUSD(r.Context(), asset, amount)
	record := &domain.Transaction{
		ID:             domain.NewID(),
		UserID:         req.UserID,
		Kind:           kind,
		Asset:          asset,
		Amount:         amount,
		ValueUSD:       &valueUSD,
		ExternalTxHash: externalHash,
		Status:         domain.TxStatusConfirmed,
		CreatedAt:      now,
	}

	err := withConflictRetry(func() error {
		return s.store.Transaction(r.Context(), func(ctx context.Context, dbtx ledger.DBTX) error {
			user, err := ledger.GetUser(ctx, dbtx, req.UserID)
			if err != nil {
				return err
			}
			user.SetBalance(asset, user.BalanceFor(asset).Add(amount))
			if err := ledger.PutUser(ctx, dbtx, user); err != nil {
				return err
			}
			return ledger.PutTransaction(ctx, dbtx, record)
		})
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if s.bus != nil {
		s.bus.NotifyUser(req.UserID, "balance:update", nil)
	}
	writeJSON(w, http.StatusOK, newTransactionView(record))
}

func (s *Server) handleListDeposits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	txs, err := ledger.ListTransactionsByUser(r.Context(), s.store.DB(), userID, limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTransactionView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDepositAddress surfaces the deposit-eligible escrow wallet(s) a
// user should send funds to. The indexer owns actual address issuance; the
// core only republishes what it has most recently observed.
func (s *Server) handleDepositAddress(w http.ResponseWriter, r *http.Request) {
	wallets, err := ledger.ListEscrowWallets(r.Context(), s.store.DB())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	out := make([]escrowWalletView, 0, len(wallets))
	for _, wlt := range wallets {
		out = append(out, newEscrowWalletView(wlt))
	}
	writeJSON(w, http.StatusOK, out)
}
