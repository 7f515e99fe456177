package api

import (
	"errors"

	"github.com/loanzzz/lending-core/internal/domain"
)

// withConflictRetry retries op once if it fails with domain.ErrLedgerConflict,
// then surfaces the second failure as-is.
func withConflictRetry(op func() error) error {
	err := op()
	if err != nil && errors.Is(err, domain.ErrLedgerConflict) {
		err = op()
	}
	return err
}
