package risk_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/money"
	"github.com/loanzzz/lending-core/internal/risk"
)

type fakeOracle struct {
	prices map[domain.Asset]money.Decimal
}

func (f *fakeOracle) GetPrice(ctx context.Context, asset domain.Asset) money.Decimal {
	return f.prices[asset]
}

func (f *fakeOracle) ToUSD(ctx context.Context, asset domain.Asset, amount money.Decimal) money.Decimal {
	return amount.Mul(f.prices[asset])
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) NotifyUser(userID, eventType string, data any) {
	f.events = append(f.events, eventType)
}

func newTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testParams() risk.Params {
	return risk.Params{
		MarginCallLTV:  money.FromFloat(75),
		LiquidationLTV: money.FromFloat(83),
		LiquidationFee: money.FromFloat(0.02),
	}
}

func seedLoan(t *testing.T, store *ledger.Store, userID string, collatAmount, borrowAmount money.Decimal) *domain.Loan {
	t.Helper()
	now := time.Now().UTC()
	loan := &domain.Loan{
		ID:                 domain.NewID(),
		UserID:             userID,
		Status:             domain.LoanStatusActive,
		CollateralType:     domain.AssetXEC,
		CollateralAmount:   collatAmount,
		BorrowedType:       domain.AssetFIRMA,
		BorrowedAmount:     borrowAmount,
		InterestRate:       money.FromFloat(0.0001),
		AccruedInterest:    money.Zero,
		InitialLTV:         money.FromFloat(65),
		CurrentLTV:         money.FromFloat(65),
		StakingYieldEarned: money.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
		LastInterestUpdate: now,
	}
	require.NoError(t, ledger.PutLoan(context.Background(), store.DB(), loan))
	return loan
}

func TestScanAndLiquidateClosesUnderwaterLoan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := ledger.UpsertUserByAddress(ctx, store.DB(), "ecash", "ecash:carol")
	require.NoError(t, err)
	user.BalanceXEC = money.Zero
	require.NoError(t, ledger.PutUser(ctx, store.DB(), user))

	loan := seedLoan(t, store, user.ID, money.FromFloat(1_000_000), money.FromFloat(30))

	oracle := &fakeOracle{prices: map[domain.Asset]money.Decimal{
		domain.AssetXEC:   money.FromFloat(0.000036),
		domain.AssetFIRMA: money.FromFloat(1.0),
	}}
	notifier := &fakeNotifier{}
	engine := risk.New(store, oracle, notifier, testParams())

	summaries, err := engine.ScanAndLiquidate(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, loan.ID, summaries[0].LoanID)
	require.Equal(t, domain.AssetXEC, summaries[0].CollateralAsset)
	require.True(t, summaries[0].Sold.IsPositive())
	require.Contains(t, notifier.events, "loan:liquidation")

	closed, err := ledger.GetLoan(ctx, store.DB(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusLiquidated, closed.Status)

	finalUser, err := ledger.GetUser(ctx, store.DB(), user.ID)
	require.NoError(t, err)
	require.True(t, finalUser.BalanceXEC.IsPositive())
}

func TestScanAndLiquidateSkipsHealthyLoan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := ledger.UpsertUserByAddress(ctx, store.DB(), "ecash", "ecash:dave")
	require.NoError(t, err)

	loan := seedLoan(t, store, user.ID, money.FromFloat(1_000_000), money.FromFloat(10))

	oracle := &fakeOracle{prices: map[domain.Asset]money.Decimal{
		domain.AssetXEC:   money.FromFloat(0.00005),
		domain.AssetFIRMA: money.FromFloat(1.0),
	}}
	engine := risk.New(store, oracle, nil, testParams())

	summaries, err := engine.ScanAndLiquidate(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 0)

	untouched, err := ledger.GetLoan(ctx, store.DB(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusActive, untouched.Status)
}

func TestLoansAtRiskOrdersDescending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := ledger.UpsertUserByAddress(ctx, store.DB(), "ecash", "ecash:erin")
	require.NoError(t, err)

	low := seedLoan(t, store, user.ID, money.FromFloat(1_000_000), money.FromFloat(10))
	low.CurrentLTV = money.FromFloat(76)
	require.NoError(t, ledger.PutLoan(ctx, store.DB(), low))

	high := seedLoan(t, store, user.ID, money.FromFloat(1_000_000), money.FromFloat(10))
	high.CurrentLTV = money.FromFloat(90)
	require.NoError(t, ledger.PutLoan(ctx, store.DB(), high))

	healthy := seedLoan(t, store, user.ID, money.FromFloat(1_000_000), money.FromFloat(10))
	healthy.CurrentLTV = money.FromFloat(40)
	require.NoError(t, ledger.PutLoan(ctx, store.DB(), healthy))

	engine := risk.New(store, &fakeOracle{prices: map[domain.Asset]money.Decimal{}}, nil, testParams())
	atRisk, err := engine.LoansAtRisk(ctx)
	require.NoError(t, err)
	require.Len(t, atRisk, 2)
	require.Equal(t, high.ID, atRisk[0].ID)
	require.Equal(t, low.ID, atRisk[1].ID)
}
