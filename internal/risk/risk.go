// Package risk implements the liquidation sweep: scanning every
// non-terminal loan for an LTV breach and closing it out, all or nothing,
// against current prices.
package risk

import (
	"context"
	"time"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/metrics"
	"github.com/loanzzz/lending-core/internal/money"
	"github.com/loanzzz/lending-core/internal/staking"
)

// PriceOracle is the subset of internal/oracle.Oracle the risk loop depends
// on.
type PriceOracle interface {
	GetPrice(ctx context.Context, asset domain.Asset) money.Decimal
	ToUSD(ctx context.Context, asset domain.Asset, amount money.Decimal) money.Decimal
}

// Notifier delivers the loan:liquidation event.
type Notifier interface {
	NotifyUser(userID, eventType string, data any)
}

// Params holds the thresholds the liquidation loop acts on.
type Params struct {
	MarginCallLTV  money.Decimal
	LiquidationLTV money.Decimal
	LiquidationFee money.Decimal // fraction of debt, e.g. 0.02
}

// Engine runs the liquidation sweep and the loans-at-risk query.
type Engine struct {
	store    *ledger.Store
	oracle   PriceOracle
	notifier Notifier
	params   Params
}

// New constructs a risk Engine.
func New(store *ledger.Store, oracle PriceOracle, notifier Notifier, params Params) *Engine {
	return &Engine{store: store, oracle: oracle, notifier: notifier, params: params}
}

// LiquidationSummary describes the outcome of one liquidated loan.
type LiquidationSummary struct {
	LoanID          string
	UserID          string
	CollateralAsset domain.Asset
	Sold            money.Decimal
	DebtCovered     money.Decimal
	Fee             money.Decimal
	FeeInCollateral money.Decimal
	Returned        money.Decimal
}

// ScanAndLiquidate enumerates all non-terminal loans, recomputes LTV, and
// liquidates those at or above LiquidationLTV.
func (e *Engine) ScanAndLiquidate(ctx context.Context) ([]LiquidationSummary, error) {
	loans, err := ledger.ListNonTerminalLoans(ctx, e.store.DB())
	if err != nil {
		return nil, err
	}

	var summaries []LiquidationSummary
	for _, loan := range loans {
		ltv := e.ltv(ctx, loan)
		if ltv.LessThan(e.params.LiquidationLTV) {
			continue
		}
		summary, err := e.liquidate(ctx, loan.ID)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (e *Engine) ltv(ctx context.Context, loan *domain.Loan) money.Decimal {
	collatUSD := e.oracle.ToUSD(ctx, loan.CollateralType, loan.CollateralAmount)
	if collatUSD.IsZero() {
		return money.FromFloat(100)
	}
	debtUSD := e.oracle.ToUSD(ctx, loan.BorrowedType, loan.TotalDebt())
	return debtUSD.Div(collatUSD).Mul(money.FromFloat(100))
}

// liquidate closes a single loan as one atomic transaction: sell enough
// collateral to cover debt plus the liquidation fee, return the rest.
// Prices are snapshotted before the transaction opens.
func (e *Engine) liquidate(ctx context.Context, loanID string) (LiquidationSummary, error) {
	now := time.Now().UTC()

	current, err := ledger.GetLoan(ctx, e.store.DB(), loanID)
	if err != nil {
		return LiquidationSummary{}, err
	}
	borrowPrice := e.oracle.GetPrice(ctx, current.BorrowedType)
	collatPrice := e.oracle.GetPrice(ctx, current.CollateralType)

	var summary LiquidationSummary
	err = e.store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		loan, err := ledger.GetLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status.Terminal() {
			return nil
		}

		totalDebt := loan.TotalDebt()
		debtUSD := totalDebt.Mul(borrowPrice)
		feeUSD := debtUSD.Mul(e.params.LiquidationFee)
		recoverUSD := debtUSD.Add(feeUSD)

		var collatToSell money.Decimal
		if collatPrice.IsZero() {
			collatToSell = loan.CollateralAmount
		} else {
			collatToSell = money.Min(recoverUSD.Div(collatPrice), loan.CollateralAmount)
		}
		returned := money.Max(money.Zero, loan.CollateralAmount.Sub(collatToSell))

		onePlusFee := money.FromFloat(1).Add(e.params.LiquidationFee)
		feeInCollat := collatToSell.Mul(e.params.LiquidationFee).Div(onePlusFee)

		user, err := ledger.GetUser(ctx, tx, loan.UserID)
		if err != nil {
			return err
		}
		user.SetBalance(loan.CollateralType, user.BalanceFor(loan.CollateralType).Add(returned))
		if err := ledger.PutUser(ctx, tx, user); err != nil {
			return err
		}

		if loan.CollateralType == domain.AssetXEC {
			if err := staking.RemoveCollateral(ctx, tx, loan.CollateralAmount); err != nil {
				return err
			}
		}

		loan.Status = domain.LoanStatusLiquidated
		loan.AccruedInterest = money.Zero
		loan.BorrowedAmount = money.Zero
		loan.CollateralAmount = money.Zero
		loan.CollateralValueUSD = money.Zero
		loan.BorrowedValueUSD = money.Zero
		loan.CurrentLTV = money.Zero
		loan.ClosedAt = &now
		if err := ledger.PutLoan(ctx, tx, loan); err != nil {
			return err
		}

		if err := ledger.PutTransaction(ctx, tx, &domain.Transaction{
			ID:        domain.NewID(),
			UserID:    loan.UserID,
			LoanID:    &loan.ID,
			Kind:      domain.TxLiquidation,
			Asset:     loan.CollateralType,
			Amount:    collatToSell,
			ValueUSD:  &recoverUSD,
			Status:    domain.TxStatusConfirmed,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		summary = LiquidationSummary{
			LoanID:          loan.ID,
			UserID:          loan.UserID,
			CollateralAsset: loan.CollateralType,
			Sold:            collatToSell,
			DebtCovered:     debtUSD,
			Fee:             feeUSD,
			FeeInCollateral: feeInCollat,
			Returned:        returned,
		}
		return nil
	})
	if err != nil {
		return LiquidationSummary{}, err
	}

	metrics.RecordLiquidation(string(summary.CollateralAsset))
	if e.notifier != nil {
		e.notifier.NotifyUser(summary.UserID, "loan:liquidation", map[string]any{
			"loan_id":      summary.LoanID,
			"sold":         summary.Sold.Float64(),
			"debt_covered": summary.DebtCovered.Float64(),
			"fee":          summary.Fee.Float64(),
			"returned":     summary.Returned.Float64(),
		})
	}
	return summary, nil
}

// LoansAtRisk returns non-terminal loans with current_ltv >= MarginCallLTV,
// ordered by LTV descending.
func (e *Engine) LoansAtRisk(ctx context.Context) ([]*domain.Loan, error) {
	loans, err := ledger.ListNonTerminalLoans(ctx, e.store.DB())
	if err != nil {
		return nil, err
	}
	var atRisk []*domain.Loan
	for _, loan := range loans {
		if loan.CurrentLTV.GreaterThanOrEqual(e.params.MarginCallLTV) {
			atRisk = append(atRisk, loan)
		}
	}
	for i := 1; i < len(atRisk); i++ {
		for j := i; j > 0 && atRisk[j-1].CurrentLTV.LessThan(atRisk[j].CurrentLTV); j-- {
			atRisk[j-1], atRisk[j] = atRisk[j], atRisk[j-1]
		}
	}
	return atRisk, nil
}
