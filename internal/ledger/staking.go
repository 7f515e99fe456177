package ledger

import (
	"context"
	"time"

	"github.com/loanzzz/lending-core/internal/domain"
)

// GetStakingPool loads the singleton staking pool row seeded by
// Store.seedDefaults.
func GetStakingPool(ctx context.Context, q DBTX) (*domain.StakingPool, error) {
	row := q.QueryRowContext(ctx, `SELECT platform_base, user_contributed, last_reward_distribution, total_rewards_distributed FROM staking_pool WHERE id = 1`)
	var p domain.StakingPool
	var lastDist *time.Time
	if err := row.Scan(&p.PlatformBase, &p.UserContributed, &lastDist, &p.TotalRewardsDistributed); err != nil {
		return nil, err
	}
	p.LastRewardDistribution = lastDist
	return &p, nil
}

// PutStakingPool persists the singleton staking pool state.
func PutStakingPool(ctx context.Context, q DBTX, p *domain.StakingPool) error {
	_, err := q.ExecContext(ctx, `
		UPDATE staking_pool SET
			platform_base = ?,
			user_contributed = ?,
			last_reward_distribution = ?,
			total_rewards_distributed = ?
		WHERE id = 1
	`, p.PlatformBase, p.UserContributed, p.LastRewardDistribution, p.TotalRewardsDistributed)
	return err
}
