package api

import (
	"net/http"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
)

// handlePrices answers GET /prices with the oracle's current snapshot for
// every pricing asset.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	prices := s.oracle.AllPrices(r.Context())
	out := make(map[string]float64, len(prices))
	for asset, price := range prices {
		out[string(asset)] = price.Float64()
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStats answers GET /stats with an aggregate view of the system:
// total loans outstanding, total collateral and debt by asset, and loans at
// risk of margin call or liquidation.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	loans, err := ledger.ListNonTerminalLoans(r.Context(), s.store.DB())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	pool, err := ledger.GetStakingPool(r.Context(), s.store.DB())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	collateralUSD := make(map[domain.Asset]float64)
	debtUSD := make(map[domain.Asset]float64)
	marginCalls := 0
	for _, l := range loans {
		collateralUSD[l.CollateralType] += l.CollateralValueUSD.Float64()
		debtUSD[l.BorrowedType] += l.BorrowedValueUSD.Float64()
		if l.Status == domain.LoanStatusMarginCall {
			marginCalls++
		}
	}

	atRisk, err := s.risk.LoansAtRisk(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_loans":          len(loans),
		"loans_in_margin_call":  marginCalls,
		"loans_at_risk":         len(atRisk),
		"collateral_usd_by_asset": collateralUSD,
		"debt_usd_by_asset":       debtUSD,
		"staking_pool_total":    pool.Total().Float64(),
	})
}
