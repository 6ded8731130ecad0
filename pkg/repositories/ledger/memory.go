package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/google/uuid"
)

type outcomeKey struct {
	gameType entities.GameType
	duration time.Duration
	period   string
}

func keyFor(mode entities.Mode, period string) outcomeKey {
	return outcomeKey{gameType: mode.GameType, duration: mode.Duration, period: period}
}

// MemoryRepository implements Repository using in-memory storage. A single
// mutex guards every map so each operation is one atomic unit.
type MemoryRepository struct {
	wallets      map[string]*entities.Wallet
	transactions map[string][]*entities.Transaction
	outcomes     map[outcomeKey]*entities.Outcome
	bets         map[string]*entities.Bet
	betOrder     []string
	mu           sync.RWMutex
}

// NewMemoryRepository creates a new in-memory ledger
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		wallets:      make(map[string]*entities.Wallet),
		transactions: make(map[string][]*entities.Transaction),
		outcomes:     make(map[outcomeKey]*entities.Outcome),
		bets:         make(map[string]*entities.Bet),
	}
}

// GetWallet retrieves a wallet by user ID
func (r *MemoryRepository) GetWallet(ctx context.Context, userID string) (*entities.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wallet, exists := r.wallets[userID]
	if !exists {
		return nil, ErrWalletNotFound
	}

	// Return a copy to prevent concurrent modification
	walletCopy := *wallet
	return &walletCopy, nil
}

// CreateWallet creates a wallet unless one already exists
func (r *MemoryRepository) CreateWallet(ctx context.Context, userID string, openingBalance int64) (*entities.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wallet, exists := r.wallets[userID]; exists {
		walletCopy := *wallet
		return &walletCopy, nil
	}
	if openingBalance < 0 {
		return nil, ErrInsufficientFunds
	}

	wallet := &entities.Wallet{
		UserID:      userID,
		Balance:     openingBalance,
		LastUpdated: time.Now(),
	}
	r.wallets[userID] = wallet

	walletCopy := *wallet
	return &walletCopy, nil
}

// AdjustBalance applies delta and records the transaction
func (r *MemoryRepository) AdjustBalance(ctx context.Context, userID string, delta int64, txType entities.TransactionType, referenceID, description string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.adjustLocked(userID, delta, txType, referenceID, description, time.Now())
}

// adjustLocked must be called with mu held for writing
func (r *MemoryRepository) adjustLocked(userID string, delta int64, txType entities.TransactionType, referenceID, description string, now time.Time) (int64, error) {
	wallet, exists := r.wallets[userID]
	if !exists {
		return 0, ErrWalletNotFound
	}
	if wallet.Balance+delta < 0 {
		return wallet.Balance, ErrInsufficientFunds
	}

	wallet.Balance += delta
	wallet.LastUpdated = now

	r.transactions[userID] = append(r.transactions[userID], &entities.Transaction{
		ID:           uuid.New().String(),
		UserID:       userID,
		Amount:       delta,
		Type:         txType,
		ReferenceID:  referenceID,
		Description:  description,
		Timestamp:    now,
		BalanceAfter: wallet.Balance,
	})

	return wallet.Balance, nil
}

// GetTransactions retrieves recent transactions for a user, newest first
func (r *MemoryRepository) GetTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transactions := r.transactions[userID]
	result := make([]*entities.Transaction, 0, len(transactions))
	for i := len(transactions) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		txCopy := *transactions[i]
		result = append(result, &txCopy)
	}

	return result, nil
}

// CreateOutcome inserts an outcome unless the round already has one
func (r *MemoryRepository) CreateOutcome(ctx context.Context, outcome *entities.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyFor(outcome.Mode(), outcome.Period)
	if _, exists := r.outcomes[key]; exists {
		return ErrOutcomeExists
	}

	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now()
	}
	r.outcomes[key] = copyOutcome(outcome)
	return nil
}

// GetOutcome retrieves the outcome of a round
func (r *MemoryRepository) GetOutcome(ctx context.Context, mode entities.Mode, period string) (*entities.Outcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	outcome, exists := r.outcomes[keyFor(mode, period)]
	if !exists {
		return nil, ErrOutcomeNotFound
	}
	return copyOutcome(outcome), nil
}

// ListOutcomes returns the latest outcomes for a mode, newest first
func (r *MemoryRepository) ListOutcomes(ctx context.Context, mode entities.Mode, limit int) ([]*entities.Outcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*entities.Outcome
	for key, outcome := range r.outcomes {
		if key.gameType == mode.GameType && key.duration == mode.Duration {
			result = append(result, copyOutcome(outcome))
		}
	}

	// Tokens of one mode sort chronologically
	sort.Slice(result, func(i, j int) bool {
		return result[i].Period > result[j].Period
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// PlaceBet debits the stake and stores the bet
func (r *MemoryRepository) PlaceBet(ctx context.Context, bet *entities.Bet) (int64, error) {
	if bet.Stake <= 0 {
		return 0, ErrInvalidStake
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prepareBet(bet)
	if _, exists := r.bets[bet.ID]; exists {
		return 0, ErrDuplicateBet
	}
	balance, err := r.adjustLocked(bet.UserID, -bet.Stake, entities.TransactionTypeBet, bet.ID, betDescription(bet), bet.CreatedAt)
	if err != nil {
		return balance, err
	}

	betCopy := *bet
	r.bets[bet.ID] = &betCopy
	r.betOrder = append(r.betOrder, bet.ID)

	return balance, nil
}

// UnsettledBetsFor returns the unsettled bets of one round
func (r *MemoryRepository) UnsettledBetsFor(ctx context.Context, mode entities.Mode, period string) ([]*entities.Bet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filterBets(0, func(b *entities.Bet) bool {
		return !b.IsSettled() && b.GameType == mode.GameType && b.Duration == mode.Duration && b.Period == period
	}), nil
}

// AllUnsettledBets returns unsettled bets of any age, oldest first
func (r *MemoryRepository) AllUnsettledBets(ctx context.Context, limit int) ([]*entities.Bet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filterBets(limit, func(b *entities.Bet) bool {
		return !b.IsSettled()
	}), nil
}

// MarkSettled settles a bet once and credits any payout
func (r *MemoryRepository) MarkSettled(ctx context.Context, betID string, result entities.BetResult, payout int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bet, exists := r.bets[betID]
	if !exists {
		return false, ErrBetNotFound
	}
	if bet.IsSettled() {
		return false, nil
	}

	now := time.Now()
	if payout > 0 {
		if _, err := r.adjustLocked(bet.UserID, payout, entities.TransactionTypePayout, bet.ID, payoutDescription(bet), now); err != nil {
			return false, fmt.Errorf("error crediting payout: %w", err)
		}
	}

	bet.Status = entities.BetStatusSettled
	bet.Result = result
	bet.Payout = payout
	bet.SettledAt = &now

	return true, nil
}

// GetBetsByUser retrieves a player's bets, newest first
func (r *MemoryRepository) GetBetsByUser(ctx context.Context, userID string, limit int) ([]*entities.Bet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Bet, 0)
	for i := len(r.betOrder) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		bet := r.bets[r.betOrder[i]]
		if bet.UserID == userID {
			result = append(result, copyBet(bet))
		}
	}
	return result, nil
}

// PlayerStatistics aggregates settled bets per player
func (r *MemoryRepository) PlayerStatistics(ctx context.Context, gameType entities.GameType) ([]*entities.PlayerStatistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPlayer := make(map[string]*entities.PlayerStatistics)
	for _, id := range r.betOrder {
		bet := r.bets[id]
		if !bet.IsSettled() || (gameType != "" && bet.GameType != gameType) {
			continue
		}

		stats, exists := byPlayer[bet.UserID]
		if !exists {
			stats = &entities.PlayerStatistics{PlayerID: bet.UserID, GameType: gameType}
			byPlayer[bet.UserID] = stats
		}
		stats.BetsPlaced++
		stats.TotalStaked += bet.Stake
		stats.TotalWinnings += bet.Payout
		if bet.Result == entities.BetResultWin {
			stats.Wins++
		} else {
			stats.Losses++
		}
		if bet.SettledAt != nil && bet.SettledAt.After(stats.LastUpdated) {
			stats.LastUpdated = *bet.SettledAt
		}
	}

	result := make([]*entities.PlayerStatistics, 0, len(byPlayer))
	for _, stats := range byPlayer {
		result = append(result, stats)
	}
	entities.SortByNetProfit(result)
	return result, nil
}

// DistinctPeriods lists every period referenced by outcomes or bets
func (r *MemoryRepository) DistinctPeriods(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for key := range r.outcomes {
		seen[key.period] = true
	}
	for _, bet := range r.bets {
		seen[bet.Period] = true
	}

	periods := make([]string, 0, len(seen))
	for p := range seen {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	return periods, nil
}

// DeletePeriods removes outcomes and bets for the given periods, refunding
// unsettled stakes
func (r *MemoryRepository) DeletePeriods(ctx context.Context, periods []string) (int, int, error) {
	if len(periods) == 0 {
		return 0, 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doomed := make(map[string]bool, len(periods))
	for _, p := range periods {
		doomed[p] = true
	}

	// Refund first so a missing wallet leaves everything in place
	now := time.Now()
	var refunds []*entities.Bet
	for _, bet := range r.bets {
		if doomed[bet.Period] && !bet.IsSettled() {
			if _, exists := r.wallets[bet.UserID]; !exists {
				return 0, 0, fmt.Errorf("error refunding bet %s: %w", bet.ID, ErrWalletNotFound)
			}
			refunds = append(refunds, bet)
		}
	}
	for _, bet := range refunds {
		if _, err := r.adjustLocked(bet.UserID, bet.Stake, entities.TransactionTypeRefund, bet.ID, refundDescription(bet), now); err != nil {
			return 0, 0, fmt.Errorf("error refunding bet %s: %w", bet.ID, err)
		}
	}

	deletedOutcomes := 0
	for key := range r.outcomes {
		if doomed[key.period] {
			delete(r.outcomes, key)
			deletedOutcomes++
		}
	}

	deletedBets := 0
	kept := r.betOrder[:0]
	for _, id := range r.betOrder {
		if doomed[r.bets[id].Period] {
			delete(r.bets, id)
			deletedBets++
			continue
		}
		kept = append(kept, id)
	}
	r.betOrder = kept

	return deletedOutcomes, deletedBets, nil
}

// Ping always succeeds for in-memory storage
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op for in-memory storage
func (r *MemoryRepository) Close() error {
	return nil
}

// filterBets must be called with mu held
func (r *MemoryRepository) filterBets(limit int, keep func(*entities.Bet) bool) []*entities.Bet {
	result := make([]*entities.Bet, 0)
	for _, id := range r.betOrder {
		if limit > 0 && len(result) >= limit {
			break
		}
		if bet := r.bets[id]; keep(bet) {
			result = append(result, copyBet(bet))
		}
	}
	return result
}

func copyBet(b *entities.Bet) *entities.Bet {
	betCopy := *b
	if b.SettledAt != nil {
		settledAt := *b.SettledAt
		betCopy.SettledAt = &settledAt
	}
	return &betCopy
}

func copyOutcome(o *entities.Outcome) *entities.Outcome {
	outcomeCopy := *o
	outcomeCopy.Colors = append([]entities.Color(nil), o.Colors...)
	return &outcomeCopy
}
