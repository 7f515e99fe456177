package api

import (
	"net/http"
	"strconv"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
)

// handleEscrowSummary answers GET /escrow/summary with the aggregate
// escrow balance by asset, for public transparency.
func (s *Server) handleEscrowSummary(w http.ResponseWriter, r *http.Request) {
	wallets, err := ledger.ListEscrowWallets(r.Context(), s.store.DB())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	byAsset := make(map[domain.Asset]float64)
	for _, wlt := range wallets {
		byAsset[wlt.Asset] += wlt.Balance.Float64()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet_count":     len(wallets),
		"balance_by_asset": byAsset,
	})
}

func (s *Server) handleEscrowWallets(w http.ResponseWriter, r *http.Request) {
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

func (s *Server) handleEscrowTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	kinds := []domain.TransactionKind{
		domain.TxDepositXEC, domain.TxDepositFIRMA, domain.TxDepositUSDTSolana,
		domain.TxWithdrawXEC, domain.TxWithdrawFIRMA,
	}
	var out []transactionView
	for _, kind := range kinds {
		txs, err := ledger.ListTransactionsByKind(r.Context(), s.store.DB(), kind, limit)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		for _, t := range txs {
			out = append(out, newTransactionView(t))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEscrowLiquidations(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	txs, err := ledger.ListTransactionsByKind(r.Context(), s.store.DB(), domain.TxLiquidation, limit)
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
