package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loanzzz/lending-core/internal/api"
	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/lending"
	"github.com/loanzzz/lending-core/internal/money"
	"github.com/loanzzz/lending-core/internal/notify"
	"github.com/loanzzz/lending-core/internal/oracle"
	"github.com/loanzzz/lending-core/internal/risk"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	defaults := map[domain.Asset]money.Decimal{
		domain.AssetXEC:   money.FromFloat(0.00003),
		domain.AssetFIRMA: money.FromFloat(1.0),
	}
	priceOracle := oracle.New(store, "", 0, 0, defaults)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := notify.NewBus()
	lendingParams := lending.Params{
		InitialLTV:         money.FromFloat(65),
		MarginCallLTV:      money.FromFloat(75),
		LiquidationLTV:     money.FromFloat(83),
		HourlyInterestRate: money.FromFloat(0.0001),
	}
	lendingEngine := lending.New(store, priceOracle, bus, lendingParams)
	riskEngine := risk.New(store, priceOracle, bus, risk.Params{
		MarginCallLTV:  lendingParams.MarginCallLTV,
		LiquidationLTV: lendingParams.LiquidationLTV,
		LiquidationFee: money.FromFloat(0.02),
	})

	srv := api.NewServer(store, priceOracle, lendingEngine, riskEngine, bus, api.Params{
		InitialLTV:         65,
		MarginCallLTV:      75,
		LiquidationLTV:     83,
		HourlyInterestRate: 0.0001,
		LiquidationFee:     0.02,
	}, logger)

	return httptest.NewServer(srv.Router("http://localhost:5173", []string{"*"}))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFullLoanLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	authResp := postJSON(t, srv.URL+"/api/auth/ecash", map[string]string{"address": "ecash:integration"})
	var user struct {
		ID string `json:"id"`
	}
	decodeJSON(t, authResp, &user)
	require.NotEmpty(t, user.ID)

	depositResp := postJSON(t, srv.URL+"/api/deposits/xec", map[string]any{
		"user_id": user.ID,
		"amount":  1_000_000,
		"tx_hash": "0xabc",
	})
	require.Equal(t, http.StatusOK, depositResp.StatusCode)
	depositResp.Body.Close()

	loanResp := postJSON(t, srv.URL+"/api/loans/", map[string]any{
		"user_id":           user.ID,
		"collateral_type":   "XEC",
		"collateral_amount": 1_000_000,
		"borrowed_type":     "FIRMA",
		"borrowed_amount":   1,
	})
	var loan struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeJSON(t, loanResp, &loan)
	require.Equal(t, "active", loan.Status)
	require.NotEmpty(t, loan.ID)

	repayResp := postJSON(t, srv.URL+"/api/loans/"+loan.ID+"/repay", map[string]any{
		"user_id": user.ID,
		"amount":  1,
	})
	var repay struct {
		FullyRepaid bool `json:"fully_repaid"`
	}
	decodeJSON(t, repayResp, &repay)
	require.True(t, repay.FullyRepaid)
}

func TestCreateLoanRejectsUnsupportedAsset(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/loans/", map[string]any{
		"user_id":           "someone",
		"collateral_type":   "DOGE",
		"collateral_amount": 1,
		"borrowed_type":     "FIRMA",
		"borrowed_amount":   1,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthRateLimitReturns429AfterBurst(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	var last *http.Response
	for i := 0; i < 20; i++ {
		last = postJSON(t, srv.URL+"/api/auth/ecash", map[string]string{"address": "ecash:rl"})
		last.Body.Close()
		if last.StatusCode == http.StatusTooManyRequests {
			break
		}
	}
	require.Equal(t, http.StatusTooManyRequests, last.StatusCode)
}
