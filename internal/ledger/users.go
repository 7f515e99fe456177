package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/money"
)

const userColumns = `id, ecash_address, solana_address, balance_xec, balance_firma, balance_xecx, staking_rewards_earned, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var u domain.User
	var ecash, solana sql.NullString
	var xec, firma, xecx, rewards money.Decimal
	if err := row.Scan(&u.ID, &ecash, &solana, &xec, &firma, &xecx, &rewards, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.EcashAddress = ecash.String
	u.SolanaAddress = solana.String
	u.BalanceXEC = xec
	u.BalanceFIRMA = firma
	u.BalanceXECX = xecx
	u.StakingRewardsEarned = rewards
	return &u, nil
}

// GetUser fetches a user by id. Returns domain.ErrNotFound when absent.
func GetUser(ctx context.Context, q DBTX, id string) (*domain.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return u, err
}

// GetUserByAddress resolves a user by either chain address. wallet is
// "ecash" or "solana".
func GetUserByAddress(ctx context.Context, q DBTX, wallet, address string) (*domain.User, error) {
	column := "ecash_address"
	if wallet == "solana" {
		column = "solana_address"
	}
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, address)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return u, err
}

// UpsertUserByAddress creates a user keyed by the given chain address if one
// does not already exist, returning the (possibly pre-existing) user. This
// backs POST /auth/ecash and POST /auth/solana.
func UpsertUserByAddress(ctx context.Context, q DBTX, wallet, address string) (*domain.User, error) {
	existing, err := GetUserByAddress(ctx, q, wallet, address)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	u := &domain.User{
		ID:                   uuid.NewString(),
		BalanceXEC:           money.Zero,
		BalanceFIRMA:         money.Zero,
		BalanceXECX:          money.Zero,
		StakingRewardsEarned: money.Zero,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
	if wallet == "solana" {
		u.SolanaAddress = address
	} else {
		u.EcashAddress = address
	}
	if err := PutUser(ctx, q, u); err != nil {
		return nil, err
	}
	return u, nil
}

// LinkAddress attaches an additional chain address to an existing user.
func LinkAddress(ctx context.Context, q DBTX, userID, wallet, address string) error {
	column := "ecash_address"
	if wallet == "solana" {
		column = "solana_address"
	}
	_, err := q.ExecContext(ctx, `UPDATE users SET `+column+` = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, address, userID)
	return err
}

// PutUser inserts or replaces a user row.
func PutUser(ctx context.Context, q DBTX, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, ecash_address, solana_address, balance_xec, balance_firma, balance_xecx, staking_rewards_earned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ecash_address = excluded.ecash_address,
			solana_address = excluded.solana_address,
			balance_xec = excluded.balance_xec,
			balance_firma = excluded.balance_firma,
			balance_xecx = excluded.balance_xecx,
			staking_rewards_earned = excluded.staking_rewards_earned,
			updated_at = excluded.updated_at
	`,
		u.ID, nullable(u.EcashAddress), nullable(u.SolanaAddress),
		u.BalanceXEC, u.BalanceFIRMA, u.BalanceXECX, u.StakingRewardsEarned,
		u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
