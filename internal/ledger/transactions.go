package ledger

import (
	"context"
	"database/sql"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/money"
)

const txColumns = `id, user_id, loan_id, kind, asset, amount, value_usd, external_tx_hash, status, created_at`

func scanTransaction(row interface{ Scan(dest ...any) error }) (*domain.Transaction, error) {
	var t domain.Transaction
	var loanID, extHash sql.NullString
	var valueUSD sql.NullString
	var kind, asset, status string
	if err := row.Scan(&t.ID, &t.UserID, &loanID, &kind, &asset, &t.Amount, &valueUSD, &extHash, &status, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Kind = domain.TransactionKind(kind)
	t.Asset = domain.Asset(asset)
	t.Status = domain.TransactionStatus(status)
	t.ExternalTxHash = extHash.String
	if loanID.Valid {
		id := loanID.String
		t.LoanID = &id
	}
	if valueUSD.Valid {
		v, err := money.FromString(valueUSD.String)
		if err != nil {
			return nil, err
		}
		t.ValueUSD = &v
	}
	return &t, nil
}

// PutTransaction appends a transaction record. Transactions are never
// updated in place except for a Pending -> Confirmed/Failed status flip
// (UpdateTransactionStatus); the log itself is append-only.
func PutTransaction(ctx context.Context, q DBTX, t *domain.Transaction) error {
	var loanID, valueUSD interface{}
	if t.LoanID != nil {
		loanID = *t.LoanID
	}
	if t.ValueUSD != nil {
		valueUSD = *t.ValueUSD
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.UserID, loanID, string(t.Kind), string(t.Asset), t.Amount, valueUSD,
		nullable(t.ExternalTxHash), string(t.Status), t.CreatedAt,
	)
	return err
}

// UpdateTransactionStatus flips a transaction's confirmation status.
func UpdateTransactionStatus(ctx context.Context, q DBTX, id string, status domain.TransactionStatus) error {
	_, err := q.ExecContext(ctx, `UPDATE transactions SET status = ? WHERE id = ?`, string(status), id)
	return err
}

// ListTransactionsByUser returns a user's transaction history, most recent
// first, bounded by limit (0 means unbounded).
func ListTransactionsByUser(ctx context.Context, q DBTX, userID string, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE user_id = ? ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTransactionsByLoan returns every transaction tagged with loanID.
func ListTransactionsByLoan(ctx context.Context, q DBTX, loanID string) ([]*domain.Transaction, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE loan_id = ? ORDER BY created_at ASC`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTransactionsByKind returns the most recent transactions of the given
// kind, most recent first, bounded by limit (0 means unbounded). Backs the
// public escrow transparency endpoints.
func ListTransactionsByKind(ctx context.Context, q DBTX, kind domain.TransactionKind, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE kind = ? ORDER BY created_at DESC`
	args := []any{string(kind)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
