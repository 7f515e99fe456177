package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/loanzzz/lending-core/internal/domain"
)

// GetCachedPrice loads the last durable price observation for an asset.
// The oracle reads it when its in-memory entry is stale and the HTTP feed
// fetch fails, before falling back to its configured defaults.
func GetCachedPrice(ctx context.Context, q DBTX, asset domain.Asset) (*domain.PriceQuote, error) {
	row := q.QueryRowContext(ctx, `SELECT asset, price_usd, source, observed_at FROM price_cache WHERE asset = ?`, string(asset))
	var quote domain.PriceQuote
	var assetStr string
	if err := row.Scan(&assetStr, &quote.PriceUSD, &quote.Source, &quote.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	quote.Asset = domain.Asset(assetStr)
	return &quote, nil
}

// PutCachedPrice durably records the latest observed price for an asset.
func PutCachedPrice(ctx context.Context, q DBTX, quote *domain.PriceQuote) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO price_cache (asset, price_usd, source, observed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(asset) DO UPDATE SET
			price_usd = excluded.price_usd,
			source = excluded.source,
			observed_at = excluded.observed_at
	`, string(quote.Asset), quote.PriceUSD, quote.Source, quote.Timestamp)
	return err
}

// ListCachedPrices returns every durably cached price, used to seed the
// oracle's in-memory cache on startup.
func ListCachedPrices(ctx context.Context, q DBTX) ([]*domain.PriceQuote, error) {
	rows, err := q.QueryContext(ctx, `SELECT asset, price_usd, source, observed_at FROM price_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PriceQuote
	for rows.Next() {
		var quote domain.PriceQuote
		var assetStr string
		if err := rows.Scan(&assetStr, &quote.PriceUSD, &quote.Source, &quote.Timestamp); err != nil {
			return nil, err
		}
		quote.Asset = domain.Asset(assetStr)
		out = append(out, &quote)
	}
	return out, rows.Err()
}
