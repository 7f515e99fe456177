package ledger

import (
	"context"

	"github.com/loanzzz/lending-core/internal/domain"
)

const escrowColumns = `address, asset, balance, last_observed`

func scanEscrowWallet(row interface{ Scan(dest ...any) error }) (*domain.EscrowWallet, error) {
	var w domain.EscrowWallet
	var asset string
	if err := row.Scan(&w.Address, &asset, &w.Balance, &w.LastObserved); err != nil {
		return nil, err
	}
	w.Asset = domain.Asset(asset)
	return &w, nil
}

// ListEscrowWallets returns every tracked escrow wallet, for the public
// transparency endpoint. These balances are informational only and never
// gate a ledger operation.
func ListEscrowWallets(ctx context.Context, q DBTX) ([]*domain.EscrowWallet, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+escrowColumns+` FROM escrow_wallets ORDER BY asset, address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EscrowWallet
	for rows.Next() {
		w, err := scanEscrowWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// PutEscrowWallet records the most recently observed balance for an
// (address, asset) pair.
func PutEscrowWallet(ctx context.Context, q DBTX, w *domain.EscrowWallet) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO escrow_wallets (`+escrowColumns+`)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address, asset) DO UPDATE SET
			balance = excluded.balance,
			last_observed = excluded.last_observed
	`, w.Address, string(w.Asset), w.Balance, w.LastObserved)
	return err
}
