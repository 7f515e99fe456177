package staking_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/money"
	"github.com/loanzzz/lending-core/internal/staking"
)

func newTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddAndRemoveCollateralTracksPool(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		return staking.AddCollateral(ctx, tx, money.FromFloat(1000))
	})
	require.NoError(t, err)

	pool, err := ledger.GetStakingPool(ctx, store.DB())
	require.NoError(t, err)
	require.Equal(t, 1000.0, pool.UserContributed.Float64())

	err = store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		return staking.RemoveCollateral(ctx, tx, money.FromFloat(400))
	})
	require.NoError(t, err)

	pool, err = ledger.GetStakingPool(ctx, store.DB())
	require.NoError(t, err)
	require.Equal(t, 600.0, pool.UserContributed.Float64())
}

func TestRemoveCollateralNeverGoesNegative(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		return staking.RemoveCollateral(ctx, tx, money.FromFloat(50))
	})
	require.NoError(t, err)

	pool, err := ledger.GetStakingPool(ctx, store.DB())
	require.NoError(t, err)
	require.True(t, pool.UserContributed.IsZero())
}

func TestDistributeSplitsRewardByCollateralShare(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, err := ledger.UpsertUserByAddress(ctx, store.DB(), "ecash", "ecash:alice")
	require.NoError(t, err)
	bob, err := ledger.UpsertUserByAddress(ctx, store.DB(), "ecash", "ecash:bob")
	require.NoError(t, err)

	now := time.Now().UTC()
	loanA := &domain.Loan{
		ID: domain.NewID(), UserID: alice.ID, Status: domain.LoanStatusActive,
		CollateralType: domain.AssetXEC, CollateralAmount: money.FromFloat(3_000_000),
		BorrowedType: domain.AssetFIRMA, BorrowedAmount: money.FromFloat(10),
		InterestRate: money.FromFloat(0.0001), AccruedInterest: money.Zero,
		InitialLTV: money.FromFloat(10), CurrentLTV: money.FromFloat(10),
		StakingYieldEarned: money.Zero, CreatedAt: now, UpdatedAt: now, LastInterestUpdate: now,
	}
	loanB := &domain.Loan{
		ID: domain.NewID(), UserID: bob.ID, Status: domain.LoanStatusActive,
		CollateralType: domain.AssetXEC, CollateralAmount: money.FromFloat(1_000_000),
		BorrowedType: domain.AssetFIRMA, BorrowedAmount: money.FromFloat(10),
		InterestRate: money.FromFloat(0.0001), AccruedInterest: money.Zero,
		InitialLTV: money.FromFloat(10), CurrentLTV: money.FromFloat(10),
		StakingYieldEarned: money.Zero, CreatedAt: now, UpdatedAt: now, LastInterestUpdate: now,
	}
	require.NoError(t, ledger.PutLoan(ctx, store.DB(), loanA))
	require.NoError(t, ledger.PutLoan(ctx, store.DB(), loanB))

	result, err := staking.Distribute(ctx, store, money.FromFloat(0.001), nil, now)
	require.NoError(t, err)
	require.Equal(t, 2, result.Recipients)
	require.True(t, result.Distributed.IsPositive())

	updatedA, err := ledger.GetLoan(ctx, store.DB(), loanA.ID)
	require.NoError(t, err)
	updatedB, err := ledger.GetLoan(ctx, store.DB(), loanB.ID)
	require.NoError(t, err)
	require.True(t, updatedA.StakingYieldEarned.GreaterThan(updatedB.StakingYieldEarned))

	finalAlice, err := ledger.GetUser(ctx, store.DB(), alice.ID)
	require.NoError(t, err)
	require.True(t, finalAlice.StakingRewardsEarned.IsPositive())

	pool, err := ledger.GetStakingPool(ctx, store.DB())
	require.NoError(t, err)
	require.NotNil(t, pool.LastRewardDistribution)
}

func TestDistributeNoLoansIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := staking.Distribute(ctx, store, money.FromFloat(0.001), nil, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 0, result.Recipients)
}

func TestCalculateUserStakingShare(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := ledger.UpsertUserByAddress(ctx, store.DB(), "ecash", "ecash:erin")
	require.NoError(t, err)

	err = store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		return staking.AddCollateral(ctx, tx, money.FromFloat(1_000_000))
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	loan := &domain.Loan{
		ID: domain.NewID(), UserID: user.ID, Status: domain.LoanStatusActive,
		CollateralType: domain.AssetXEC, CollateralAmount: money.FromFloat(1_000_000),
		BorrowedType: domain.AssetFIRMA, BorrowedAmount: money.FromFloat(10),
		InterestRate: money.FromFloat(0.0001), AccruedInterest: money.Zero,
		InitialLTV: money.FromFloat(10), CurrentLTV: money.FromFloat(10),
		StakingYieldEarned: money.Zero, CreatedAt: now, UpdatedAt: now, LastInterestUpdate: now,
	}
	require.NoError(t, ledger.PutLoan(ctx, store.DB(), loan))

	share, err := staking.CalculateUserStakingShare(ctx, store.DB(), user.ID)
	require.NoError(t, err)
	require.True(t, share.GreaterThan(money.Zero))
}

func TestEffectiveRateFlooredAtZero(t *testing.T) {
	require.True(t, staking.EffectiveRate(money.FromFloat(0.0001), money.FromFloat(0.0005)).IsZero())
	require.Equal(t, 0.00005, staking.EffectiveRate(money.FromFloat(0.0001), money.FromFloat(0.00005)).Float64())
}
