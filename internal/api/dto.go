package api

import (
	"time"

	"github.com/loanzzz/lending-core/internal/domain"
)

type userView struct {
	ID                   string  `json:"id"`
	EcashAddress         string  `json:"ecash_address,omitempty"`
	SolanaAddress        string  `json:"solana_address,omitempty"`
	BalanceXEC           float64 `json:"balance_xec"`
	BalanceFIRMA         float64 `json:"balance_firma"`
	BalanceXECX          float64 `json:"balance_xecx"`
	StakingRewardsEarned float64 `json:"staking_rewards_earned"`
}

func newUserView(u *domain.User) userView {
	return userView{
		ID:                   u.ID,
		EcashAddress:         u.EcashAddress,
		SolanaAddress:        u.SolanaAddress,
		BalanceXEC:           u.BalanceXEC.Float64(),
		BalanceFIRMA:         u.BalanceFIRMA.Float64(),
		BalanceXECX:          u.BalanceXECX.Float64(),
		StakingRewardsEarned: u.StakingRewardsEarned.Float64(),
	}
}

type loanView struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Status             string    `json:"status"`
	CollateralType     string    `json:"collateral_type"`
	CollateralAmount   float64   `json:"collateral_amount"`
	CollateralValueUSD float64   `json:"collateral_value_usd"`
	BorrowedType       string    `json:"borrowed_type"`
	BorrowedAmount     float64   `json:"borrowed_amount"`
	BorrowedValueUSD   float64   `json:"borrowed_value_usd"`
	InterestRate       float64   `json:"interest_rate"`
	AccruedInterest    float64   `json:"accrued_interest"`
	InitialLTV         float64   `json:"initial_ltv"`
	CurrentLTV         float64   `json:"current_ltv"`
	StakingYieldEarned float64   `json:"staking_yield_earned"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

func newLoanView(l *domain.Loan) loanView {
	return loanView{
		ID:                 l.ID,
		UserID:             l.UserID,
		Status:             string(l.Status),
		CollateralType:     string(l.CollateralType),
		CollateralAmount:   l.CollateralAmount.Float64(),
		CollateralValueUSD: l.CollateralValueUSD.Float64(),
		BorrowedType:       string(l.BorrowedType),
		BorrowedAmount:     l.BorrowedAmount.Float64(),
		BorrowedValueUSD:   l.BorrowedValueUSD.Float64(),
		InterestRate:       l.InterestRate.Float64(),
		AccruedInterest:    l.AccruedInterest.Float64(),
		InitialLTV:         l.InitialLTV.Float64(),
		CurrentLTV:         l.CurrentLTV.Float64(),
		StakingYieldEarned: l.StakingYieldEarned.Float64(),
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
		ClosedAt:           l.ClosedAt,
	}
}

type transactionView struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	LoanID         *string   `json:"loan_id,omitempty"`
	Kind           string    `json:"kind"`
	Asset          string    `json:"asset"`
	Amount         float64   `json:"amount"`
	ValueUSD       *float64  `json:"value_usd,omitempty"`
	ExternalTxHash string    `json:"external_tx_hash,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func newTransactionView(t *domain.Transaction) transactionView {
	v := transactionView{
		ID:             t.ID,
		UserID:         t.UserID,
		LoanID:         t.LoanID,
		Kind:           string(t.Kind),
		Asset:          string(t.Asset),
		Amount:         t.Amount.Float64(),
		ExternalTxHash: t.ExternalTxHash,
		Status:         string(t.Status),
		CreatedAt:      t.CreatedAt,
	}
	if t.ValueUSD != nil {
		usd := t.ValueUSD.Float64()
		v.ValueUSD = &usd
	}
	return v
}

type escrowWalletView struct {
	Address      string    `json:"address"`
	Asset        string    `json:"asset"`
	Balance      float64   `json:"balance"`
	LastObserved time.Time `json:"last_observed"`
}

func newEscrowWalletView(w *domain.EscrowWallet) escrowWalletView {
	return escrowWalletView{
		Address:      w.Address,
		Asset:        string(w.Asset),
		Balance:      w.Balance.Float64(),
		LastObserved: w.LastObserved,
	}
}
