package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/lending"
	"github.com/loanzzz/lending-core/internal/money"
)

// handleLoanConfig answers GET /loans/config with the configured risk
// thresholds plus a staking snapshot.
func (s *Server) handleLoanConfig(w http.ResponseWriter, r *http.Request) {
	pool, err := ledger.GetStakingPool(r.Context(), s.store.DB())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"initial_ltv":           s.params.InitialLTV,
		"margin_call_ltv":       s.params.MarginCallLTV,
		"liquidation_ltv":       s.params.LiquidationLTV,
		"hourly_interest_rate":  s.params.HourlyInterestRate,
		"liquidation_fee":       s.params.LiquidationFee,
		"supported_collateral":  []domain.Asset{domain.AssetXEC, domain.AssetFIRMA, domain.AssetXECX},
		"supported_borrow":      []domain.Asset{domain.AssetXEC, domain.AssetFIRMA, domain.AssetXECX},
		"staking_stats": map[string]float64{
			"platform_base":            pool.PlatformBase.Float64(),
			"user_contributed":         pool.UserContributed.Float64(),
			"total":                    pool.Total().Float64(),
			"total_rewards_distributed": pool.TotalRewardsDistributed.Float64(),
		},
	})
}

type calculateRequest struct {
	CollateralType   string  `json:"collateral_type"`
	CollateralAmount float64 `json:"collateral_amount"`
	BorrowedType     string  `json:"borrowed_type"`
}

// handleLoanCalculate answers POST /loans/calculate with the maximum
// borrowable amount at current prices.
func (s *Server) handleLoanCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	collatType, ok := domain.ParseAsset(req.CollateralType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported collateral_type"})
		return
	}
	borrowType, ok := domain.ParseAsset(req.BorrowedType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported borrowed_type"})
		return
	}
	if req.CollateralAmount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "collateral_amount must be positive"})
		return
	}
	maxBorrow := s.lending.CalculateMaxBorrow(r.Context(), collatType, money.FromFloat(req.CollateralAmount), borrowType)
	writeJSON(w, http.StatusOK, map[string]float64{"max_borrow_amount": maxBorrow.Float64()})
}

type createLoanRequest struct {
	UserID           string  `json:"user_id"`
	CollateralType   string  `json:"collateral_type"`
	CollateralAmount float64 `json:"collateral_amount"`
	BorrowedType     string  `json:"borrowed_type"`
	BorrowedAmount   float64 `json:"borrowed_amount"`
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	collatType, ok := domain.ParseAsset(req.CollateralType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported collateral_type"})
		return
	}
	borrowType, ok := domain.ParseAsset(req.BorrowedType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported borrowed_type"})
		return
	}
	if req.CollateralAmount <= 0 || req.BorrowedAmount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "collateral_amount and borrowed_amount must be positive"})
		return
	}

	var loan *domain.Loan
	err := withConflictRetry(func() error {
		var err error
		loan, err = s.lending.CreateLoan(r.Context(), req.UserID, collatType, money.FromFloat(req.CollateralAmount), borrowType, money.FromFloat(req.BorrowedAmount))
		return err
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLoanView(loan))
}

func (s *Server) handleListLoansByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	loans, err := ledger.ListLoansByUser(r.Context(), s.store.DB(), userID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	out := make([]loanView, 0, len(loans))
	for _, l := range loans {
		out = append(out, newLoanView(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	loan, err := ledger.GetLoan(r.Context(), s.store.DB(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(loan))
}

type repayRequest struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
}

func (s *Server) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req repayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and a positive amount are required"})
		return
	}
	var result lending.RepayResult
	err := withConflictRetry(func() error {
		var err error
		result, err = s.lending.RepayLoan(r.Context(), id, req.UserID, money.FromFloat(req.Amount))
		return err
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"remaining_debt": result.RemainingDebt.Float64(),
		"fully_repaid":   result.FullyRepaid,
	})
}

type addCollateralRequest struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
}

func (s *Server) handleAddCollateral(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req addCollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and a positive amount are required"})
		return
	}
	var loan *domain.Loan
	err := withConflictRetry(func() error {
		var err error
		loan, err = s.lending.AddCollateral(r.Context(), id, req.UserID, money.FromFloat(req.Amount))
		return err
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(loan))
}
