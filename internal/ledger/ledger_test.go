package ledger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/money"
)

func openTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSeedDefaults(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	pool, err := ledger.GetStakingPool(ctx, store.DB())
	require.NoError(t, err)
	require.Equal(t, 50000.0, pool.PlatformBase.Float64())
	require.True(t, pool.UserContributed.IsZero())

	quote, err := ledger.GetCachedPrice(ctx, store.DB(), domain.AssetFIRMA)
	require.NoError(t, err)
	require.Equal(t, 1.0, quote.PriceUSD.Float64())
}

func TestUserUpsertAndFetch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u, err := ledger.UpsertUserByAddress(ctx, store.DB(), "ecash", "ecash:alice")
	require.NoError(t, err)
	require.Equal(t, "ecash:alice", u.EcashAddress)

	again, err := ledger.UpsertUserByAddress(ctx, store.DB(), "ecash", "ecash:alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, again.ID)

	fetched, err := ledger.GetUser(ctx, store.DB(), u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, fetched.ID)

	_, err = ledger.GetUser(ctx, store.DB(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoanRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u, err := ledger.UpsertUserByAddress(ctx, store.DB(), "ecash", "ecash:bob")
	require.NoError(t, err)

	now := time.Now().UTC()
	loan := &domain.Loan{
		ID:                 domain.NewID(),
		UserID:             u.ID,
		Status:             domain.LoanStatusActive,
		CollateralType:     domain.AssetXEC,
		CollateralAmount:   money.FromFloat(1000),
		CollateralValueUSD: money.FromFloat(30),
		BorrowedType:       domain.AssetFIRMA,
		BorrowedAmount:     money.FromFloat(15),
		BorrowedValueUSD:   money.FromFloat(15),
		InterestRate:       money.FromFloat(0.0001),
		AccruedInterest:    money.Zero,
		InitialLTV:         money.FromFloat(50),
		CurrentLTV:         money.FromFloat(50),
		StakingYieldEarned: money.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
		LastInterestUpdate: now,
	}
	require.NoError(t, ledger.PutLoan(ctx, store.DB(), loan))

	fetched, err := ledger.GetLoan(ctx, store.DB(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, loan.UserID, fetched.UserID)
	require.Equal(t, domain.AssetXEC, fetched.CollateralType)
	require.True(t, fetched.CollateralAmount.Float64() == 1000)

	nonTerminal, err := ledger.ListNonTerminalLoans(ctx, store.DB())
	require.NoError(t, err)
	require.Len(t, nonTerminal, 1)

	fetched.Status = domain.LoanStatusRepaid
	closedAt := now.Add(time.Hour)
	fetched.ClosedAt = &closedAt
	require.NoError(t, ledger.PutLoan(ctx, store.DB(), fetched))

	nonTerminal, err = ledger.ListNonTerminalLoans(ctx, store.DB())
	require.NoError(t, err)
	require.Len(t, nonTerminal, 0)
}

func TestTransactionCommitsEmptyUnit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		return nil
	})
	require.NoError(t, err)
}
