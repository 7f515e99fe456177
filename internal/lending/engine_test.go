package lending_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/lending"
	"github.com/loanzzz/lending-core/internal/money"
)

type fakeOracle struct {
	prices map[domain.Asset]money.Decimal
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{prices: map[domain.Asset]money.Decimal{
		domain.AssetXEC:   money.FromFloat(0.00005),
		domain.AssetFIRMA: money.FromFloat(1.0),
		domain.AssetXECX:  money.FromFloat(0.00005),
	}}
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

func testParams() lending.Params {
	return lending.Params{
		InitialLTV:         money.FromFloat(65),
		MarginCallLTV:      money.FromFloat(75),
		LiquidationLTV:     money.FromFloat(83),
		HourlyInterestRate: money.FromFloat(0.0001),
	}
}

func seedUser(t *testing.T, store *ledger.Store, xec, firma float64) *domain.User {
	t.Helper()
	u, err := ledger.UpsertUserByAddress(context.Background(), store.DB(), "ecash", "ecash:"+domain.NewID())
	require.NoError(t, err)
	u.BalanceXEC = money.FromFloat(xec)
	u.BalanceFIRMA = money.FromFloat(firma)
	require.NoError(t, ledger.PutUser(context.Background(), store.DB(), u))
	return u
}

func TestCreateLoanWithinLTVSucceeds(t *testing.T) {
	store := newTestStore(t)
	oracle := newFakeOracle()
	notifier := &fakeNotifier{}
	engine := lending.New(store, oracle, notifier, testParams())

	user := seedUser(t, store, 1_000_000, 0)

	loan, err := engine.CreateLoan(context.Background(), user.ID, domain.AssetXEC, money.FromFloat(1_000_000), domain.AssetFIRMA, money.FromFloat(30))
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusActive, loan.Status)
	require.True(t, loan.InitialLTV.LessThan(money.FromFloat(65.01)))

	updated, err := ledger.GetUser(context.Background(), store.DB(), user.ID)
	require.NoError(t, err)
	require.True(t, updated.BalanceXEC.IsZero())
	require.Equal(t, 30.0, updated.BalanceFIRMA.Float64())

	pool, err := ledger.GetStakingPool(context.Background(), store.DB())
	require.NoError(t, err)
	require.Equal(t, 1_000_000.0, pool.UserContributed.Float64())

	require.Contains(t, notifier.events, "balance:update")
}

func TestCreateLoanExceedingLTVFails(t *testing.T) {
	store := newTestStore(t)
	oracle := newFakeOracle()
	engine := lending.New(store, oracle, nil, testParams())

	user := seedUser(t, store, 1_000_000, 0)

	_, err := engine.CreateLoan(context.Background(), user.ID, domain.AssetXEC, money.FromFloat(1_000_000), domain.AssetFIRMA, money.FromFloat(1000))
	require.ErrorIs(t, err, domain.ErrLTVExceeded)
}

func TestRepayLoanFullyReturnsCollateral(t *testing.T) {
	store := newTestStore(t)
	oracle := newFakeOracle()
	engine := lending.New(store, oracle, nil, testParams())

	user := seedUser(t, store, 1_000_000, 100)
	loan, err := engine.CreateLoan(context.Background(), user.ID, domain.AssetXEC, money.FromFloat(1_000_000), domain.AssetFIRMA, money.FromFloat(30))
	require.NoError(t, err)

	result, err := engine.RepayLoan(context.Background(), loan.ID, user.ID, money.FromFloat(30))
	require.NoError(t, err)
	require.True(t, result.FullyRepaid)
	require.True(t, result.RemainingDebt.IsZero())

	closed, err := ledger.GetLoan(context.Background(), store.DB(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusRepaid, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	finalUser, err := ledger.GetUser(context.Background(), store.DB(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 1_000_000.0, finalUser.BalanceXEC.Float64())

	pool, err := ledger.GetStakingPool(context.Background(), store.DB())
	require.NoError(t, err)
	require.True(t, pool.UserContributed.IsZero())
}

func TestRepayLoanByOtherUserFails(t *testing.T) {
	store := newTestStore(t)
	oracle := newFakeOracle()
	engine := lending.New(store, oracle, nil, testParams())

	user := seedUser(t, store, 1_000_000, 0)
	other := seedUser(t, store, 0, 1000)
	loan, err := engine.CreateLoan(context.Background(), user.ID, domain.AssetXEC, money.FromFloat(1_000_000), domain.AssetFIRMA, money.FromFloat(30))
	require.NoError(t, err)

	_, err = engine.RepayLoan(context.Background(), loan.ID, other.ID, money.FromFloat(10))
	require.ErrorIs(t, err, domain.ErrUnauthorised)
}

func TestAddCollateralLowersLTV(t *testing.T) {
	store := newTestStore(t)
	oracle := newFakeOracle()
	engine := lending.New(store, oracle, nil, testParams())

	user := seedUser(t, store, 2_000_000, 0)
	loan, err := engine.CreateLoan(context.Background(), user.ID, domain.AssetXEC, money.FromFloat(1_000_000), domain.AssetFIRMA, money.FromFloat(30))
	require.NoError(t, err)
	before := loan.CurrentLTV

	updated, err := engine.AddCollateral(context.Background(), loan.ID, user.ID, money.FromFloat(1_000_000))
	require.NoError(t, err)
	require.True(t, updated.CurrentLTV.LessThan(before))
}

func TestUpdateAllLTVsTriggersMarginCall(t *testing.T) {
	store := newTestStore(t)
	oracle := newFakeOracle()
	engine := lending.New(store, oracle, nil, testParams())

	user := seedUser(t, store, 1_000_000, 0)
	loan, err := engine.CreateLoan(context.Background(), user.ID, domain.AssetXEC, money.FromFloat(1_000_000), domain.AssetFIRMA, money.FromFloat(30))
	require.NoError(t, err)

	oracle.prices[domain.AssetXEC] = money.FromFloat(0.00004)
	oracle.prices[domain.AssetXECX] = money.FromFloat(0.00004)

	require.NoError(t, engine.UpdateAllLTVs(context.Background()))

	reloaded, err := ledger.GetLoan(context.Background(), store.DB(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.LoanStatusMarginCall, reloaded.Status)

	entries, err := ledger.ListMarginCallLogByLoan(context.Background(), store.DB(), loan.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
