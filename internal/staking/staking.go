// Package staking maintains the singleton staking pool and its daily yield
// distribution. Pool mutations that ride along with a loan operation
// (AddCollateral/RemoveCollateral) take a ledger.DBTX so they commit inside
// the caller's existing transaction; Distribute owns its own transaction
// since it runs as an independent scheduler tick.
package staking

import (
	"context"
	"time"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/money"
)

// Notifier delivers per-user staking-reward events. Implemented by
// internal/notify.Bus.
type Notifier interface {
	NotifyUser(userID, eventType string, data any)
}

// AddCollateral records XEC collateral entering the pool: user_contributed
// and total both increase by amount.
func AddCollateral(ctx context.Context, tx ledger.DBTX, amount money.Decimal) error {
	pool, err := ledger.GetStakingPool(ctx, tx)
	if err != nil {
		return err
	}
	pool.UserContributed = pool.UserContributed.Add(amount)
	return ledger.PutStakingPool(ctx, tx, pool)
}

// RemoveCollateral records XEC collateral leaving the pool (full repay or
// liquidation of an XEC-backed loan), clamped so user_contributed never
// goes negative and total never drops below platform_base.
func RemoveCollateral(ctx context.Context, tx ledger.DBTX, amount money.Decimal) error {
	pool, err := ledger.GetStakingPool(ctx, tx)
	if err != nil {
		return err
	}
	pool.UserContributed = money.Max(money.Zero, pool.UserContributed.Sub(amount))
	if pool.Total().LessThan(pool.PlatformBase) {
		pool.UserContributed = money.Zero
	}
	return ledger.PutStakingPool(ctx, tx, pool)
}

// CalculateUserStakingShare returns the fraction of the pool backed by the
// user's own non-terminal XEC-collateralised loans.
func CalculateUserStakingShare(ctx context.Context, q ledger.DBTX, userID string) (money.Decimal, error) {
	pool, err := ledger.GetStakingPool(ctx, q)
	if err != nil {
		return money.Zero, err
	}
	if pool.Total().IsZero() {
		return money.Zero, nil
	}
	loans, err := ledger.ListLoansByUser(ctx, q, userID)
	if err != nil {
		return money.Zero, err
	}
	sum := money.Zero
	for _, l := range loans {
		if l.Status.Terminal() || l.CollateralType != domain.AssetXEC {
			continue
		}
		sum = sum.Add(l.CollateralAmount)
	}
	return sum.Div(pool.Total()), nil
}

// EffectiveRate returns the borrower's net hourly cost once staking yield on
// their XEC collateral is netted out, floored at zero.
func EffectiveRate(hourlyInterestRate, stakingYieldPerHour money.Decimal) money.Decimal {
	return money.Max(money.Zero, hourlyInterestRate.Sub(stakingYieldPerHour))
}

// DistributionResult summarises one daily distribution cycle.
type DistributionResult struct {
	Distributed money.Decimal
	Recipients  int
}

// Distribute runs the daily staking yield distribution as a single ledger
// transaction, then emits one staking:reward notification per recipient
// after the commit succeeds.
func Distribute(ctx context.Context, store *ledger.Store, dailyYieldRate money.Decimal, notifier Notifier, now time.Time) (DistributionResult, error) {
	var result DistributionResult
	var rewardedUserIDs []string
	var rewardByUser map[string]money.Decimal

	err := store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
		pool, err := ledger.GetStakingPool(ctx, tx)
		if err != nil {
			return err
		}
		dailyReward := pool.Total().Mul(dailyYieldRate)

		loans, err := ledger.ListNonTerminalLoansByCollateral(ctx, tx, domain.AssetXEC)
		if err != nil {
			return err
		}
		userCollateralSum := money.Zero
		for _, l := range loans {
			userCollateralSum = userCollateralSum.Add(l.CollateralAmount)
		}
		if userCollateralSum.IsZero() {
			return nil
		}

		rewardByUser = make(map[string]money.Decimal)
		for _, l := range loans {
			share := l.CollateralAmount.Div(userCollateralSum)
			reward := dailyReward.Mul(share)
			l.StakingYieldEarned = l.StakingYieldEarned.Add(reward)
			if err := ledger.PutLoan(ctx, tx, l); err != nil {
				return err
			}
			rewardByUser[l.UserID] = rewardByUser[l.UserID].Add(reward)
		}

		for userID, reward := range rewardByUser {
			user, err := ledger.GetUser(ctx, tx, userID)
			if err != nil {
				return err
			}
			user.StakingRewardsEarned = user.StakingRewardsEarned.Add(reward)
			if err := ledger.PutUser(ctx, tx, user); err != nil {
				return err
			}
			txRecord := &domain.Transaction{
				ID:        domain.NewID(),
				UserID:    userID,
				Kind:      domain.TxStakingReward,
				Asset:     domain.AssetXECX,
				Amount:    reward,
				Status:    domain.TxStatusConfirmed,
				CreatedAt: now,
			}
			if err := ledger.PutTransaction(ctx, tx, txRecord); err != nil {
				return err
			}
			rewardedUserIDs = append(rewardedUserIDs, userID)
		}

		pool.LastRewardDistribution = &now
		pool.TotalRewardsDistributed = pool.TotalRewardsDistributed.Add(dailyReward)
		if err := ledger.PutStakingPool(ctx, tx, pool); err != nil {
			return err
		}

		result = DistributionResult{Distributed: dailyReward, Recipients: len(rewardByUser)}
		return nil
	})
	if err != nil {
		return DistributionResult{}, err
	}

	if notifier != nil {
		for _, userID := range rewardedUserIDs {
			notifier.NotifyUser(userID, "staking:reward", map[string]any{
				"amount": rewardByUser[userID].Float64(),
			})
		}
	}
	return result, nil
}
