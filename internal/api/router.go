// Package api implements the HTTP surface: request-validated handlers that
// bind JSON payloads to the core lending/risk/staking/oracle operations,
// one core call per handler inside one ledger transaction.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/lending"
	"github.com/loanzzz/lending-core/internal/metrics"
	"github.com/loanzzz/lending-core/internal/notify"
	"github.com/loanzzz/lending-core/internal/oracle"
	"github.com/loanzzz/lending-core/internal/risk"
)

// Params mirrors the fraction/percent configuration exposed by GET
// /loans/config.
type Params struct {
	InitialLTV         float64
	MarginCallLTV      float64
	LiquidationLTV     float64
	HourlyInterestRate float64
	LiquidationFee     float64
}

// Server wires the core engines to the HTTP surface.
type Server struct {
	store     *ledger.Store
	oracle    *oracle.Oracle
	lending   *lending.Engine
	risk      *risk.Engine
	bus       *notify.Bus
	params    Params
	logger    *slog.Logger
	authLimit *authRateLimiter
}

// NewServer constructs the API server.
func NewServer(store *ledger.Store, priceOracle *oracle.Oracle, lendingEngine *lending.Engine, riskEngine *risk.Engine, bus *notify.Bus, params Params, logger *slog.Logger) *Server {
	limiter := newAuthRateLimiter(2, 5)
	go limiter.prune()
	return &Server{store: store, oracle: priceOracle, lending: lendingEngine, risk: riskEngine, bus: bus, params: params, logger: logger, authLimit: limiter}
}

// Router builds the complete chi router for the service, base path /api
// plus the root-level /health and /ws endpoints.
func (s *Server) Router(frontendURL string, wsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors(frontendURL))
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
	r.Get("/health", healthHandler)
	r.Get("/healthz", healthHandler)
	r.Get("/ws", notify.Handler(s.bus, s.logger, wsOrigins).ServeHTTP)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Use(s.authLimit.middleware)
			ar.Post("/ecash", s.handleAuthEcash)
			ar.Post("/solana", s.handleAuthSolana)
			ar.Post("/link", s.handleAuthLink)
			ar.Get("/user/{id}", s.handleGetUser)
		})

		api.Route("/deposits", func(dr chi.Router) {
			dr.Post("/xec", s.handleDepositXEC)
			dr.Post("/usdt-solana", s.handleDepositUSDTSolana)
			dr.Post("/firma", s.handleDepositFIRMA)
			dr.Get("/{user_id}", s.handleListDeposits)
			dr.Get("/address/{user_id}", s.handleDepositAddress)
		})

		api.Route("/loans", func(lr chi.Router) {
			lr.Get("/config", s.handleLoanConfig)
			lr.Post("/calculate", s.handleLoanCalculate)
			lr.Post("/", s.handleCreateLoan)
			lr.Get("/user/{user_id}", s.handleListLoansByUser)
			lr.Get("/{id}", s.handleGetLoan)
			lr.Post("/{id}/repay", s.handleRepayLoan)
			lr.Post("/{id}/add-collateral", s.handleAddCollateral)
		})

		api.Get("/prices", s.handlePrices)
		api.Get("/stats", s.handleStats)

		api.Route("/escrow", func(er chi.Router) {
			er.Get("/summary", s.handleEscrowSummary)
			er.Get("/wallets", s.handleEscrowWallets)
			er.Get("/transactions", s.handleEscrowTransactions)
			er.Get("/liquidations", s.handleEscrowLiquidations)
		})
	})

	return r
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTP(route, r.Method, rw.status, time.Since(started))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
