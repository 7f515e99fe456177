package domain

import "github.com/google/uuid"

// NewID generates a new identifier for loans, transactions, users, and
// margin-call log entries.
func NewID() string {
	return uuid.NewString()
}
