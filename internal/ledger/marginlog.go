package ledger

import (
	"context"

	"github.com/loanzzz/lending-core/internal/domain"
)

// PutMarginCallLogEntry appends an LTV-crossing record. The log is
// append-only; entries are never updated or deleted.
func PutMarginCallLogEntry(ctx context.Context, q DBTX, e *domain.MarginCallLogEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO margin_call_log (id, loan_id, user_id, ltv, alert_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.LoanID, e.UserID, e.LTV, string(e.AlertType), e.CreatedAt)
	return err
}

// ListMarginCallLogByLoan returns every alert recorded for a loan, oldest
// first.
func ListMarginCallLogByLoan(ctx context.Context, q DBTX, loanID string) ([]*domain.MarginCallLogEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, loan_id, user_id, ltv, alert_type, created_at FROM margin_call_log WHERE loan_id = ? ORDER BY created_at ASC`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.MarginCallLogEntry
	for rows.Next() {
		var e domain.MarginCallLogEntry
		var alertType string
		if err := rows.Scan(&e.ID, &e.LoanID, &e.UserID, &e.LTV, &alertType, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.AlertType = domain.AlertType(alertType)
		out = append(out, &e)
	}
	return out, rows.Err()
}
