// Package lending implements the per-loan lifecycle operations: borrow
// sizing, LTV computation, loan creation, repayment, collateral top-up,
// interest accrual, and the scheduler-facing LTV sweep. Every mutating
// operation commits as one ledger transaction; prices are always resolved
// from the oracle before a transaction opens, so a loan is never priced
// mid-flight.
package lending

import (
	"context"
	"fmt"
	"time"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/metrics"
	"github.com/loanzzz/lending-core/internal/money"
	"github.com/loanzzz/lending-core/internal/staking"
)

// PriceOracle is the subset of internal/oracle.Oracle the engine depends on.
type PriceOracle interface {
	GetPrice(ctx context.Context, asset domain.Asset) money.Decimal
	ToUSD(ctx context.Context, asset domain.Asset, amount money.Decimal) money.Decimal
}

// Notifier delivers per-user events to subscribed clients.
type Notifier interface {
	NotifyUser(userID, eventType string, data any)
}

// Params holds the risk thresholds and interest rate the engine is
// configured with, already validated (MarginCallLTV > InitialLTV,
// LiquidationLTV > MarginCallLTV).
type Params struct {
	InitialLTV         money.Decimal // percent, e.g. 65
	MarginCallLTV      money.Decimal
	LiquidationLTV     money.Decimal
	HourlyInterestRate money.Decimal // fraction, e.g. 0.0001
}

// Engine implements the loan lifecycle operations.
type Engine struct {
	store    *ledger.Store
	oracle   PriceOracle
	notifier Notifier
	params   Params
}

// New constructs a loan Engine.
func New(store *ledger.Store, oracle PriceOracle, notifier Notifier, params Params) *Engine {
	return &Engine{store: store, oracle: oracle, notifier: notifier, params: params}
}

var hundred = money.FromFloat(100)

// CalculateMaxBorrow returns collatAmount × price(collat) × INITIAL_LTV /
// price(borrow); 0 if the borrow asset is unpriced.
func (e *Engine) CalculateMaxBorrow(ctx context.Context, collatType domain.Asset, collatAmount money.Decimal, borrowType domain.Asset) money.Decimal {
	borrowPrice := e.oracle.GetPrice(ctx, borrowType)
	if borrowPrice.IsZero() {
		return money.Zero
	}
	collatUSD := e.oracle.ToUSD(ctx, collatType, collatAmount)
	maxBorrowUSD := collatUSD.Mul(e.params.InitialLTV).Div(hundred)
	return maxBorrowUSD.Div(borrowPrice)
}

// CalculateLTV returns ((principal + accrued) × price(borrow)) /
// (collatAmount × price(collat)) × 100, or 100 if the collateral value is 0.
func (e *Engine) CalculateLTV(ctx context.Context, borrowType domain.Asset, principal, accrued money.Decimal, collatType domain.Asset, collatAmount money.Decimal) money.Decimal {
	debtUSD := e.oracle.ToUSD(ctx, borrowType, principal.Add(accrued))
	collatUSD := e.oracle.ToUSD(ctx, collatType, collatAmount)
	if collatUSD.IsZero() {
		return hundred
	}
	return debtUSD.Div(collatUSD).Mul(hundred)
}

// CreateLoan opens a new loan for user. Prices are snapshotted before the
// ledger transaction opens.
func (e *Engine) CreateLoan(ctx context.Context, userID string, collatType domain.Asset, collatAmount money.Decimal, borrowType domain.Asset, borrowAmount money.Decimal) (*domain.Loan, error) {
	collatUSD := e.oracle.ToUSD(ctx, collatType, collatAmount)
	borrowUSD := e.oracle.ToUSD(ctx, borrowType, borrowAmount)

	impliedLTV := hundred
	if !collatUSD.IsZero() {
		impliedLTV = borrowUSD.Div(collatUSD).Mul(hundred)
	}
	if impliedLTV.GreaterThan(e.params.InitialLTV) {
		return nil, fmt.Errorf("lending: %w: implied LTV %s exceeds max %s", domain.ErrLTVExceeded, impliedLTV.String(), e.params.InitialLTV.String())
	}

	var loan *domain.Loan
	now := time.Now().UTC()
	err := e.store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		user, err := ledger.GetUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.BalanceFor(collatType).LessThan(collatAmount) {
			return domain.ErrInsufficientBalance
		}
		user.SetBalance(collatType, user.BalanceFor(collatType).Sub(collatAmount))
		user.SetBalance(borrowType, user.BalanceFor(borrowType).Add(borrowAmount))
		if err := ledger.PutUser(ctx, tx, user); err != nil {
			return err
		}

		loan = &domain.Loan{
			ID:                 domain.NewID(),
			UserID:             userID,
			Status:             domain.LoanStatusActive,
			CollateralType:     collatType,
			CollateralAmount:   collatAmount,
			CollateralValueUSD: collatUSD,
			BorrowedType:       borrowType,
			BorrowedAmount:     borrowAmount,
			BorrowedValueUSD:   borrowUSD,
			InterestRate:       e.params.HourlyInterestRate,
			AccruedInterest:    money.Zero,
			InitialLTV:         impliedLTV,
			CurrentLTV:         impliedLTV,
			StakingYieldEarned: money.Zero,
			CreatedAt:          now,
			UpdatedAt:          now,
			LastInterestUpdate: now,
		}
		if err := ledger.PutLoan(ctx, tx, loan); err != nil {
			return err
		}

		if err := ledger.PutTransaction(ctx, tx, &domain.Transaction{
			ID:        domain.NewID(),
			UserID:    userID,
			LoanID:    &loan.ID,
			Kind:      domain.TxBorrow,
			Asset:     borrowType,
			Amount:    borrowAmount,
			ValueUSD:  &borrowUSD,
			Status:    domain.TxStatusConfirmed,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if collatType == domain.AssetXEC {
			if err := staking.AddCollateral(ctx, tx, collatAmount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordLoanOpened(string(collatType), string(borrowType))
	if e.notifier != nil {
		e.notifier.NotifyUser(userID, "balance:update", nil)
	}
	return loan, nil
}

// RepayResult reports the outcome of RepayLoan.
type RepayResult struct {
	RemainingDebt money.Decimal
	FullyRepaid   bool
}

// RepayLoan applies amount to loan, interest-first, crediting collateral
// back on full repayment.
func (e *Engine) RepayLoan(ctx context.Context, loanID, userID string, amount money.Decimal) (RepayResult, error) {
	now := time.Now().UTC()
	var result RepayResult

	err := e.store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		loan, err := ledger.GetLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.UserID != userID {
			return domain.ErrUnauthorised
		}
		if loan.Status.Terminal() {
			return domain.ErrTerminalLoan
		}

		user, err := ledger.GetUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		totalDebt := loan.TotalDebt()
		actual := money.Min(amount, totalDebt)
		if user.BalanceFor(loan.BorrowedType).LessThan(actual) {
			return domain.ErrInsufficientBalance
		}
		user.SetBalance(loan.BorrowedType, user.BalanceFor(loan.BorrowedType).Sub(actual))

		fullyRepaid := actual.GreaterThanOrEqual(totalDebt)
		if fullyRepaid {
			user.SetBalance(loan.CollateralType, user.BalanceFor(loan.CollateralType).Add(loan.CollateralAmount))
			if loan.CollateralType == domain.AssetXEC {
				if err := staking.RemoveCollateral(ctx, tx, loan.CollateralAmount); err != nil {
					return err
				}
			}
			loan.Status = domain.LoanStatusRepaid
			loan.AccruedInterest = money.Zero
			loan.BorrowedAmount = money.Zero
			loan.CollateralAmount = money.Zero
			loan.CollateralValueUSD = money.Zero
			loan.BorrowedValueUSD = money.Zero
			loan.CurrentLTV = money.Zero
			loan.ClosedAt = &now
			result = RepayResult{RemainingDebt: money.Zero, FullyRepaid: true}
		} else {
			remaining := actual
			if loan.AccruedInterest.GreaterThanOrEqual(remaining) {
				loan.AccruedInterest = loan.AccruedInterest.Sub(remaining)
			} else {
				remaining = remaining.Sub(loan.AccruedInterest)
				loan.AccruedInterest = money.Zero
				loan.BorrowedAmount = loan.BorrowedAmount.Sub(remaining)
			}
			result = RepayResult{RemainingDebt: loan.TotalDebt(), FullyRepaid: false}
		}

		if err := ledger.PutUser(ctx, tx, user); err != nil {
			return err
		}
		if err := ledger.PutLoan(ctx, tx, loan); err != nil {
			return err
		}
		return ledger.PutTransaction(ctx, tx, &domain.Transaction{
			ID:        domain.NewID(),
			UserID:    userID,
			LoanID:    &loan.ID,
			Kind:      domain.TxRepay,
			Asset:     loan.BorrowedType,
			Amount:    actual,
			Status:    domain.TxStatusConfirmed,
			CreatedAt: now,
		})
	})
	if err != nil {
		return RepayResult{}, err
	}

	if e.notifier != nil {
		e.notifier.NotifyUser(userID, "balance:update", nil)
	}
	return result, nil
}

// AddCollateral tops up loan's collateral and recomputes its LTV at current
// prices.
func (e *Engine) AddCollateral(ctx context.Context, loanID, userID string, amount money.Decimal) (*domain.Loan, error) {
	now := time.Now().UTC()
	var loan *domain.Loan

	err := e.store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		var err error
		loan, err = ledger.GetLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.UserID != userID {
			return domain.ErrUnauthorised
		}
		if loan.Status.Terminal() {
			return domain.ErrTerminalLoan
		}

		user, err := ledger.GetUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.BalanceFor(loan.CollateralType).LessThan(amount) {
			return domain.ErrInsufficientBalance
		}
		user.SetBalance(loan.CollateralType, user.BalanceFor(loan.CollateralType).Sub(amount))
		if err := ledger.PutUser(ctx, tx, user); err != nil {
			return err
		}

		loan.CollateralAmount = loan.CollateralAmount.Add(amount)
		loan.CollateralValueUSD = e.oracle.ToUSD(ctx, loan.CollateralType, loan.CollateralAmount)
		loan.CurrentLTV = e.CalculateLTV(ctx, loan.BorrowedType, loan.BorrowedAmount, loan.AccruedInterest, loan.CollateralType, loan.CollateralAmount)
		if loan.Status == domain.LoanStatusMarginCall && loan.CurrentLTV.LessThan(e.params.MarginCallLTV) {
			loan.Status = domain.LoanStatusActive
		}
		if err := ledger.PutLoan(ctx, tx, loan); err != nil {
			return err
		}

		if loan.CollateralType == domain.AssetXEC {
			if err := staking.AddCollateral(ctx, tx, amount); err != nil {
				return err
			}
		}

		return ledger.PutTransaction(ctx, tx, &domain.Transaction{
			ID:        domain.NewID(),
			UserID:    userID,
			LoanID:    &loan.ID,
			Kind:      domain.TxAddCollateral,
			Asset:     loan.CollateralType,
			Amount:    amount,
			Status:    domain.TxStatusConfirmed,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if e.notifier != nil {
		e.notifier.NotifyUser(userID, "loan:ltv:update", map[string]any{"loan_id": loan.ID, "ltv": loan.CurrentLTV.Float64()})
	}
	return loan, nil
}

// AccrueInterest applies whole-hour interest accrual to loan, called once
// per non-terminal loan by the scheduler's hourly tick. A no-op if less
// than one hour has elapsed since the last update.
func (e *Engine) AccrueInterest(ctx context.Context, loanID string) error {
	var updatedLoan *domain.Loan
	var marginCalled bool
	var alertType domain.AlertType
	err := e.store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		loan, err := ledger.GetLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status.Terminal() {
			return nil
		}
		hours := int64(time.Since(loan.LastInterestUpdate).Hours())
		if hours < 1 {
			return nil
		}

		loan.AccruedInterest = loan.AccruedInterest.Add(loan.BorrowedAmount.Mul(loan.InterestRate).Mul(money.FromFloat(float64(hours))))
		loan.LastInterestUpdate = loan.LastInterestUpdate.Add(time.Duration(hours) * time.Hour)
		loan.CurrentLTV = e.CalculateLTV(ctx, loan.BorrowedType, loan.BorrowedAmount, loan.AccruedInterest, loan.CollateralType, loan.CollateralAmount)
		if err := ledger.PutLoan(ctx, tx, loan); err != nil {
			return err
		}
		if loan.CurrentLTV.GreaterThanOrEqual(e.params.MarginCallLTV) && loan.Status != domain.LoanStatusMarginCall {
			at, err := e.triggerMarginCall(ctx, tx, loan)
			if err != nil {
				return err
			}
			marginCalled = true
			alertType = at
		}
		updatedLoan = loan
		return nil
	})
	if err != nil || updatedLoan == nil {
		return err
	}
	if e.notifier != nil {
		e.notifier.NotifyUser(updatedLoan.UserID, "loan:ltv:update", map[string]any{"loan_id": updatedLoan.ID, "ltv": updatedLoan.CurrentLTV.Float64()})
		if marginCalled {
			e.notifier.NotifyUser(updatedLoan.UserID, "loan:margin-call", map[string]any{
				"loan_id":    updatedLoan.ID,
				"ltv":        updatedLoan.CurrentLTV.Float64(),
				"alert_type": string(alertType),
			})
		}
	}
	return nil
}

// UpdateAllLTVs recomputes LTV for every non-terminal loan and transitions
// its status. Liquidation-eligible loans are left untouched; the risk loop
// sweeps them separately.
func (e *Engine) UpdateAllLTVs(ctx context.Context) error {
	loans, err := ledger.ListNonTerminalLoans(ctx, e.store.DB())
	if err != nil {
		return err
	}
	for _, loan := range loans {
		if err := e.updateLoanLTV(ctx, loan.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) updateLoanLTV(ctx context.Context, loanID string) error {
	var notifyLTV bool
	var marginCalled bool
	var alertType domain.AlertType
	var updatedLoan *domain.Loan
	err := e.store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		loan, err := ledger.GetLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status.Terminal() {
			return nil
		}
		ltv := e.CalculateLTV(ctx, loan.BorrowedType, loan.BorrowedAmount, loan.AccruedInterest, loan.CollateralType, loan.CollateralAmount)
		loan.CurrentLTV = ltv

		switch {
		case ltv.GreaterThanOrEqual(e.params.LiquidationLTV):
			// leave status; the liquidation loop sweeps it.
		case ltv.GreaterThanOrEqual(e.params.MarginCallLTV):
			if loan.Status != domain.LoanStatusMarginCall {
				at, err := e.triggerMarginCall(ctx, tx, loan)
				if err != nil {
					return err
				}
				marginCalled = true
				alertType = at
			}
		default:
			if loan.Status == domain.LoanStatusMarginCall {
				loan.Status = domain.LoanStatusActive
			}
		}

		if err := ledger.PutLoan(ctx, tx, loan); err != nil {
			return err
		}
		updatedLoan = loan
		notifyLTV = true
		return nil
	})
	if err != nil || !notifyLTV {
		return err
	}
	if e.notifier != nil {
		e.notifier.NotifyUser(updatedLoan.UserID, "loan:ltv:update", map[string]any{"loan_id": updatedLoan.ID, "ltv": updatedLoan.CurrentLTV.Float64()})
		if marginCalled {
			e.notifier.NotifyUser(updatedLoan.UserID, "loan:margin-call", map[string]any{
				"loan_id":    updatedLoan.ID,
				"ltv":        updatedLoan.CurrentLTV.Float64(),
				"alert_type": string(alertType),
			})
		}
	}
	return nil
}

// triggerMarginCall appends a margin-call log entry and sets the loan to
// margin_call status, within the caller's transaction. It returns the alert
// type so the caller can emit the notification once the transaction
// commits.
func (e *Engine) triggerMarginCall(ctx context.Context, tx ledger.DBTX, loan *domain.Loan) (domain.AlertType, error) {
	alertType := domain.AlertWarning
	if loan.CurrentLTV.GreaterThanOrEqual(money.FromFloat(80)) {
		alertType = domain.AlertCritical
	}
	loan.Status = domain.LoanStatusMarginCall
	if err := ledger.PutMarginCallLogEntry(ctx, tx, &domain.MarginCallLogEntry{
		ID:        domain.NewID(),
		LoanID:    loan.ID,
		UserID:    loan.UserID,
		LTV:       loan.CurrentLTV,
		AlertType: alertType,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	metrics.RecordMarginCall(string(alertType))
	return alertType, nil
}
