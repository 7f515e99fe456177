// Package oracle resolves USD prices for every supported asset in this
// order: a fresh in-memory snapshot, then the external HTTP feed, then the
// ledger's durable price_cache table when the feed fails, and finally the
// configured defaults.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/metrics"
	"github.com/loanzzz/lending-core/internal/money"
)

// coingeckoIDs maps a pricing asset to its CoinGecko simple-price id. FIRMA
// is pegged 1:1 to USD and never queried.
var coingeckoIDs = map[domain.Asset]string{
	domain.AssetXEC: "ecash",
}

// Oracle serves get_price/to_usd/from_usd/all_prices.
type Oracle struct {
	store    *ledger.Store
	client   *http.Client
	limiter  *rate.Limiter
	apiURL   string
	ttl      time.Duration
	defaults map[domain.Asset]money.Decimal

	mu     sync.RWMutex
	memory map[domain.Asset]domain.PriceQuote
}

// New constructs an Oracle seeded from the ledger's durable cache. defaults
// is the configured fallback price per pricing asset (XEC/XECX share one
// entry via Asset.PricingAsset).
func New(store *ledger.Store, apiURL string, ttl, timeout time.Duration, defaults map[domain.Asset]money.Decimal) *Oracle {
	o := &Oracle{
		store:    store,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		apiURL:   apiURL,
		ttl:      ttl,
		defaults: defaults,
		memory:   make(map[domain.Asset]domain.PriceQuote),
	}
	o.seedFromDurableCache(context.Background())
	return o
}

func (o *Oracle) seedFromDurableCache(ctx context.Context) {
	quotes, err := ledger.ListCachedPrices(ctx, o.store.DB())
	if err != nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, q := range quotes {
		o.memory[q.Asset] = *q
	}
}

// GetPrice returns the current USD price for asset. FIRMA is always 1.0.
// XECX prices follow XEC (domain.Asset.PricingAsset).
func (o *Oracle) GetPrice(ctx context.Context, asset domain.Asset) money.Decimal {
	pricing := asset.PricingAsset()
	if pricing == domain.AssetFIRMA {
		return money.FromFloat(1.0)
	}

	o.mu.RLock()
	cached, ok := o.memory[pricing]
	o.mu.RUnlock()
	if ok && time.Since(cached.Timestamp) < o.ttl {
		return cached.PriceUSD
	}

	if price, err := o.fetch(ctx, pricing); err == nil {
		metrics.RecordOracleFetch("ok")
		quote := domain.PriceQuote{Asset: pricing, PriceUSD: price, Source: "coingecko", Timestamp: time.Now().UTC()}
		o.store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
			return ledger.PutCachedPrice(ctx, tx, &quote)
		})
		o.mu.Lock()
		o.memory[pricing] = quote
		o.mu.Unlock()
		return price
	}
	metrics.RecordOracleFetch("error")

	if durable, err := ledger.GetCachedPrice(ctx, o.store.DB(), pricing); err == nil {
		o.mu.Lock()
		o.memory[pricing] = *durable
		o.mu.Unlock()
		return durable.PriceUSD
	}

	if d, ok := o.defaults[pricing]; ok {
		return d
	}
	return money.Zero
}

// ToUSD converts amount of asset to its USD value.
func (o *Oracle) ToUSD(ctx context.Context, asset domain.Asset, amount money.Decimal) money.Decimal {
	return amount.Mul(o.GetPrice(ctx, asset))
}

// FromUSD converts a USD value to an amount of asset, 0 if the asset is
// unpriced.
func (o *Oracle) FromUSD(ctx context.Context, asset domain.Asset, usd money.Decimal) money.Decimal {
	price := o.GetPrice(ctx, asset)
	if price.IsZero() {
		return money.Zero
	}
	return usd.Div(price)
}

// AllPrices returns the memoised snapshot used by tick broadcasts, one
// entry per pricing asset actually in use.
func (o *Oracle) AllPrices(ctx context.Context) map[domain.Asset]money.Decimal {
	out := map[domain.Asset]money.Decimal{
		domain.AssetFIRMA: money.FromFloat(1.0),
		domain.AssetXEC:   o.GetPrice(ctx, domain.AssetXEC),
	}
	out[domain.AssetXECX] = out[domain.AssetXEC]
	return out
}

type coingeckoResponse map[string]map[string]float64

func (o *Oracle) fetch(ctx context.Context, pricing domain.Asset) (money.Decimal, error) {
	id, ok := coingeckoIDs[pricing]
	if !ok {
		return money.Zero, fmt.Errorf("oracle: no price source configured for %s", pricing)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return money.Zero, err
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", o.apiURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return money.Zero, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return money.Zero, fmt.Errorf("oracle: fetch %s: %w", pricing, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return money.Zero, fmt.Errorf("oracle: feed returned status %d", resp.StatusCode)
	}

	var parsed coingeckoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return money.Zero, fmt.Errorf("oracle: decode feed response: %w", err)
	}
	entry, ok := parsed[id]
	if !ok {
		return money.Zero, fmt.Errorf("oracle: missing %s in feed response", id)
	}
	usd, ok := entry["usd"]
	if !ok || usd <= 0 {
		return money.Zero, fmt.Errorf("oracle: invalid usd price for %s", id)
	}
	return money.FromFloat(usd), nil
}
