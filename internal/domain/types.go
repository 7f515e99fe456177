package domain

import (
	"time"

	"github.com/loanzzz/lending-core/internal/money"
)

// User identifies a borrower/lender. A User exists for the life of the
// system; balances only ever move through recorded Transactions.
type User struct {
	ID                   string
	EcashAddress         string
	SolanaAddress        string
	BalanceXEC           money.Decimal
	BalanceFIRMA         money.Decimal
	BalanceXECX          money.Decimal
	StakingRewardsEarned money.Decimal
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// BalanceFor returns the user's balance for the given asset. XECX is the
// staking-wrapped form of XEC and keeps its own ledger column distinct from
// plain XEC.
func (u *User) BalanceFor(asset Asset) money.Decimal {
	switch asset {
	case AssetXEC:
		return u.BalanceXEC
	case AssetFIRMA:
		return u.BalanceFIRMA
	case AssetXECX:
		return u.BalanceXECX
	default:
		return money.Zero
	}
}

// SetBalance assigns the user's balance for the given asset.
func (u *User) SetBalance(asset Asset, amount money.Decimal) {
	switch asset {
	case AssetXEC:
		u.BalanceXEC = amount
	case AssetFIRMA:
		u.BalanceFIRMA = amount
	case AssetXECX:
		u.BalanceXECX = amount
	}
}

// Loan is owned by exactly one user.
type Loan struct {
	ID                 string
	UserID             string
	Status             LoanStatus
	CollateralType     Asset
	CollateralAmount   money.Decimal
	CollateralValueUSD money.Decimal
	BorrowedType       Asset
	BorrowedAmount     money.Decimal
	BorrowedValueUSD   money.Decimal
	InterestRate       money.Decimal
	AccruedInterest    money.Decimal
	InitialLTV         money.Decimal
	CurrentLTV         money.Decimal
	StakingYieldEarned money.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastInterestUpdate time.Time
	ClosedAt           *time.Time
}

// Principal is the outstanding, not-yet-accrued borrow amount.
func (l *Loan) Principal() money.Decimal { return l.BorrowedAmount }

// TotalDebt is principal plus accrued interest.
func (l *Loan) TotalDebt() money.Decimal {
	return l.BorrowedAmount.Add(l.AccruedInterest)
}

// Transaction is an append-only record of a state-changing financial action.
type Transaction struct {
	ID             string
	UserID         string
	LoanID         *string
	Kind           TransactionKind
	Asset          Asset
	Amount         money.Decimal
	ValueUSD       *money.Decimal
	ExternalTxHash string
	Status         TransactionStatus
	CreatedAt      time.Time
}

// EscrowWallet is a platform-controlled address whose balances are surfaced
// for public transparency. It has no authoritative effect on user balances.
type EscrowWallet struct {
	Address      string
	Asset        Asset
	Balance      money.Decimal
	LastObserved time.Time
}

// StakingPool is the singleton pool backing the staking yield distributor.
type StakingPool struct {
	PlatformBase            money.Decimal
	UserContributed         money.Decimal
	LastRewardDistribution  *time.Time
	TotalRewardsDistributed money.Decimal
}

// Total returns platform_base + user_contributed.
func (p *StakingPool) Total() money.Decimal {
	return p.PlatformBase.Add(p.UserContributed)
}

// PriceQuote is a cached oracle observation.
type PriceQuote struct {
	Asset     Asset
	PriceUSD  money.Decimal
	Source    string
	Timestamp time.Time
}

// MarginCallLogEntry is an append-only record of an LTV crossing into the
// margin band.
type MarginCallLogEntry struct {
	ID        string
	LoanID    string
	UserID    string
	LTV       money.Decimal
	AlertType AlertType
	CreatedAt time.Time
}
