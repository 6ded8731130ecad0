package ledger

import (
	"context"
	"errors"

	"github.com/fadedpez/wingo/pkg/entities"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOutcomeExists     = errors.New("outcome already exists")
	ErrOutcomeNotFound   = errors.New("outcome not found")
	ErrBetNotFound       = errors.New("bet not found")
	ErrInvalidStake      = errors.New("stake must be positive")
	ErrDuplicateBet      = errors.New("bet already placed")
)

// WalletStore owns player balances. Every balance change goes through
// AdjustBalance or one of the bet operations, never a read-modify-write.
type WalletStore interface {
	// GetWallet retrieves a wallet by user ID
	GetWallet(ctx context.Context, userID string) (*entities.Wallet, error)

	// CreateWallet creates a wallet with the given opening balance, or returns
	// the existing one untouched
	CreateWallet(ctx context.Context, userID string, openingBalance int64) (*entities.Wallet, error)

	// AdjustBalance applies delta and records a transaction in one unit.
	// A result below zero is rejected with ErrInsufficientFunds.
	AdjustBalance(ctx context.Context, userID string, delta int64, txType entities.TransactionType, referenceID, description string) (int64, error)

	// GetTransactions retrieves recent transactions for a user, newest first
	GetTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error)
}

// OutcomeStore holds at most one outcome per (game type, duration, period)
type OutcomeStore interface {
	// CreateOutcome inserts a new outcome, returning ErrOutcomeExists if the
	// round already has one
	CreateOutcome(ctx context.Context, outcome *entities.Outcome) error

	// GetOutcome returns ErrOutcomeNotFound when the round is unresolved
	GetOutcome(ctx context.Context, mode entities.Mode, period string) (*entities.Outcome, error)

	// ListOutcomes returns the latest outcomes for a mode, newest first
	ListOutcomes(ctx context.Context, mode entities.Mode, limit int) ([]*entities.Outcome, error)
}

// BetStore holds wagers and their one-shot settlement
type BetStore interface {
	// PlaceBet debits the stake and inserts the bet as a single unit and
	// returns the balance after the debit
	PlaceBet(ctx context.Context, bet *entities.Bet) (int64, error)

	// UnsettledBetsFor returns the bets of one round that are still unsettled
	UnsettledBetsFor(ctx context.Context, mode entities.Mode, period string) ([]*entities.Bet, error)

	// AllUnsettledBets returns unsettled bets of any age, oldest first.
	// A limit of 0 means no limit.
	AllUnsettledBets(ctx context.Context, limit int) ([]*entities.Bet, error)

	// MarkSettled moves a bet from unsettled to settled and credits a positive
	// payout in the same unit. It reports false when the bet was already
	// settled, in which case nothing changes.
	MarkSettled(ctx context.Context, betID string, result entities.BetResult, payout int64) (bool, error)

	// GetBetsByUser retrieves a player's bets, newest first
	GetBetsByUser(ctx context.Context, userID string, limit int) ([]*entities.Bet, error)

	// PlayerStatistics aggregates settled bets per player. An empty game type
	// aggregates across all games.
	PlayerStatistics(ctx context.Context, gameType entities.GameType) ([]*entities.PlayerStatistics, error)

	// DistinctPeriods lists every period token referenced by outcomes or bets
	DistinctPeriods(ctx context.Context) ([]string, error)

	// DeletePeriods removes outcomes and bets for the given tokens. Unsettled
	// bets are refunded in the same unit.
	DeletePeriods(ctx context.Context, periods []string) (deletedOutcomes int, deletedBets int, err error)
}

// Repository is the single storage boundary for the engine
type Repository interface {
	WalletStore
	OutcomeStore
	BetStore

	// Ping checks that storage is reachable
	Ping(ctx context.Context) error

	// Close closes any resources used by the repository
	Close() error
}
