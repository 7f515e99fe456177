// Package escrow provides the scheduler-facing interface onto the on-chain
// indexer that reports escrow wallet balances. The indexer itself, a UTXO
// reader for the native chain plus an RPC client for the second-chain
// stablecoin bridge, is an external collaborator; this package only owns
// the narrow interface the scheduler consumes from it.
package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/money"
)

// HTTPObserver polls a configured indexer endpoint for the current balance
// of every tracked wallet. The endpoint is expected to return a JSON array
// of {address, asset, balance} objects.
type HTTPObserver struct {
	client *http.Client
	url    string
}

// NewHTTPObserver constructs an observer against the indexer's wallet
// balance endpoint.
func NewHTTPObserver(url string, timeout time.Duration) *HTTPObserver {
	return &HTTPObserver{client: &http.Client{Timeout: timeout}, url: url}
}

type walletBalance struct {
	Address string  `json:"address"`
	Asset   string  `json:"asset"`
	Balance float64 `json:"balance"`
}

// Observe fetches the latest balances from the indexer.
func (o *HTTPObserver) Observe(ctx context.Context) ([]*domain.EscrowWallet, error) {
	if o.url == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("escrow: observe indexer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("escrow: indexer returned status %d", resp.StatusCode)
	}

	var raw []walletBalance
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("escrow: decode indexer response: %w", err)
	}

	now := time.Now().UTC()
	out := make([]*domain.EscrowWallet, 0, len(raw))
	for _, wb := range raw {
		asset, ok := domain.ParseAsset(wb.Asset)
		if !ok {
			continue
		}
		out = append(out, &domain.EscrowWallet{
			Address:      wb.Address,
			Asset:        asset,
			Balance:      money.FromFloat(wb.Balance),
			LastObserved: now,
		})
	}
	return out, nil
}

// NoopObserver reports no escrow wallets. Used when no indexer endpoint is
// configured; the scheduler simply skips the reconciliation step.
type NoopObserver struct{}

// Observe always returns an empty set.
func (NoopObserver) Observe(ctx context.Context) ([]*domain.EscrowWallet, error) {
	return nil, nil
}
