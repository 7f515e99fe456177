// Package scheduler runs four periodic control-plane tasks on independent
// ticker loops: oracle refresh + LTV sweep + escrow reconciliation every
// minute, liquidation scan every minute, interest accrual hourly, and
// staking distribution at most once per UTC calendar day, run by the first
// minute check of a day that has none recorded (normally just after 00:00
// UTC, or shortly after startup). Ticks are fire-and-forget:
// an overrun or an error is logged and swallowed, the next tick proceeds
// regardless.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
	"github.com/loanzzz/lending-core/internal/lending"
	"github.com/loanzzz/lending-core/internal/metrics"
	"github.com/loanzzz/lending-core/internal/money"
	"github.com/loanzzz/lending-core/internal/oracle"
	"github.com/loanzzz/lending-core/internal/risk"
	"github.com/loanzzz/lending-core/internal/staking"
)

const (
	priceAndLTVInterval   = time.Minute
	liquidationInterval   = time.Minute
	interestAccrualPeriod = time.Hour
	stakingCheckInterval  = time.Minute
)

// Notifier delivers the broadcast events the scheduler emits directly
// (prices:update, escrow:transaction).
type Notifier interface {
	Broadcast(eventType string, data any)
}

// EscrowObserver reports the current balance of every tracked escrow
// wallet, sourced from the chain indexer. escrow.NoopObserver stands in
// when no indexer is configured.
type EscrowObserver interface {
	Observe(ctx context.Context) ([]*domain.EscrowWallet, error)
}

// Scheduler owns all four control-plane loops.
type Scheduler struct {
	store     *ledger.Store
	oracle    *oracle.Oracle
	lending   *lending.Engine
	risk      *risk.Engine
	notifier  Notifier
	escrow    EscrowObserver
	dailyRate money.Decimal
	logger    *slog.Logger
}

// New constructs a Scheduler. escrow may be nil if no indexer is
// configured, in which case the reconciliation step is skipped.
func New(store *ledger.Store, priceOracle *oracle.Oracle, lendingEngine *lending.Engine, riskEngine *risk.Engine, notifier Notifier, escrow EscrowObserver, dailyYieldRate money.Decimal, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		oracle:    priceOracle,
		lending:   lendingEngine,
		risk:      riskEngine,
		notifier:  notifier,
		escrow:    escrow,
		dailyRate: dailyYieldRate,
		logger:    logger,
	}
}

// Run starts all four loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.runLoop(ctx, priceAndLTVInterval, s.priceAndLTVTick, "price_and_ltv")
	go s.runLoop(ctx, liquidationInterval, s.liquidationTick, "liquidation")
	go s.runLoop(ctx, interestAccrualPeriod, s.interestAccrualTick, "interest_accrual")
	go s.runLoop(ctx, stakingCheckInterval, s.stakingTick, "staking_distribution")
	<-ctx.Done()
}

// runLoop fires tickFn on the given interval, logging and swallowing any
// error so a single failed tick never halts subsequent ticks.
func (s *Scheduler) runLoop(ctx context.Context, interval time.Duration, tickFn func(context.Context) error, name string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tickFn(ctx); err != nil {
				s.logger.Error("scheduler: tick failed", "task", name, "err", err)
			}
		}
	}
}

// priceAndLTVTick refreshes oracle prices, broadcasts them, sweeps every
// loan's LTV, then reconciles escrow wallet balances.
func (s *Scheduler) priceAndLTVTick(ctx context.Context) error {
	prices := s.oracle.AllPrices(ctx)
	if s.notifier != nil {
		snapshot := make(map[string]float64, len(prices))
		for asset, price := range prices {
			snapshot[string(asset)] = price.Float64()
		}
		s.notifier.Broadcast("prices:update", snapshot)
	}

	if err := s.lending.UpdateAllLTVs(ctx); err != nil {
		return err
	}

	if s.escrow == nil {
		return nil
	}
	wallets, err := s.escrow.Observe(ctx)
	if err != nil {
		return err
	}
	for _, w := range wallets {
		if err := s.store.Transaction(ctx, func(ctx context.Context, tx ledger.DBTX) error {
			return ledger.PutEscrowWallet(ctx, tx, w)
		}); err != nil {
			return err
		}
		if s.notifier != nil {
			s.notifier.Broadcast("escrow:transaction", map[string]any{
				"address": w.Address,
				"asset":   string(w.Asset),
				"balance": w.Balance.Float64(),
			})
		}
	}
	return nil
}

func (s *Scheduler) liquidationTick(ctx context.Context) error {
	_, err := s.risk.ScanAndLiquidate(ctx)
	return err
}

func (s *Scheduler) interestAccrualTick(ctx context.Context) error {
	loans, err := ledger.ListNonTerminalLoans(ctx, s.store.DB())
	if err != nil {
		return err
	}
	for _, loan := range loans {
		if err := s.lending.AccrueInterest(ctx, loan.ID); err != nil {
			return err
		}
	}
	return nil
}

// stakingTick fires the daily distribution exactly once per UTC calendar
// day, checked at minute granularity.
func (s *Scheduler) stakingTick(ctx context.Context) error {
	now := time.Now().UTC()
	pool, err := ledger.GetStakingPool(ctx, s.store.DB())
	if err != nil {
		return err
	}
	if pool.LastRewardDistribution != nil && sameUTCDay(*pool.LastRewardDistribution, now) {
		return nil
	}

	stakingNotifier, _ := s.notifier.(staking.Notifier)
	result, err := staking.Distribute(ctx, s.store, s.dailyRate, stakingNotifier, now)
	if err != nil {
		return err
	}
	metrics.RecordStakingDistribution()
	s.logger.Info("scheduler: staking distribution complete", "distributed", result.Distributed.Float64(), "recipients", result.Recipients)
	return nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
