// Package betting accepts wagers. Every check runs against the server clock at
// the moment of placement, and an accepted bet is debited and stored in one
// ledger operation.
package betting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fadedpez/wingo/internal/logging"
	"github.com/fadedpez/wingo/internal/types"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/period"
	"github.com/fadedpez/wingo/pkg/repositories/ledger"
	"github.com/fadedpez/wingo/pkg/services/wallet"
)

// Limits bounds a single stake. A zero MaxStake means no upper bound.
type Limits struct {
	MinStake int64
	MaxStake int64
}

// BetPlacer is the ledger operation that debits and stores a bet
type BetPlacer interface {
	PlaceBet(ctx context.Context, bet *entities.Bet) (int64, error)
}

// PlaceBetRequest is a wager as submitted by a caller
type PlaceBetRequest struct {
	BetID    string `json:"bet_id,omitempty"` // optional, reused across retries
	UserID   string `json:"-"`
	GameType string `json:"game_type"`
	Duration int    `json:"duration"` // seconds
	Period   string `json:"period"`   // empty means the current round
	BetKind  string `json:"bet_kind"`
	BetValue string `json:"bet_value"`
	Stake    int64  `json:"stake"`
}

// PlaceBetResult is what the caller sees. Rejections carry Success=false, a
// user-facing Message and the error Code.
type PlaceBetResult struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Code       types.ErrorCode `json:"code,omitempty"`
	NewBalance *int64          `json:"new_balance,omitempty"`
	Bet        *entities.Bet   `json:"bet,omitempty"`
}

type roundRef struct {
	mode  entities.Mode
	token string
}

// Service places bets
type Service struct {
	bets    BetPlacer
	wallets wallet.WalletService
	clock   *period.Clock
	modes   map[entities.Mode]bool
	order   []entities.Mode
	limits  Limits
	now     func() time.Time
	logger  *logging.Logger

	mu     sync.RWMutex
	locked map[roundRef]bool
}

// NewService creates a bet placement service for the given modes
func NewService(bets BetPlacer, wallets wallet.WalletService, clock *period.Clock, modes []entities.Mode, limits Limits) *Service {
	known := make(map[entities.Mode]bool, len(modes))
	for _, m := range modes {
		known[m] = true
	}
	return &Service{
		bets:    bets,
		wallets: wallets,
		clock:   clock,
		modes:   known,
		order:   append([]entities.Mode(nil), modes...),
		limits:  limits,
		now:     time.Now,
		logger:  logging.Default,
		locked:  make(map[roundRef]bool),
	}
}

// SetNow replaces the wall clock
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// LockRound stops new bets on one round even while its window is open
func (s *Service) LockRound(mode entities.Mode, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked[roundRef{mode: mode, token: token}] = true
	s.logger.Info("[BETTING] Locked %s round %s", mode, token)
}

// UnlockRound lifts a LockRound
func (s *Service) UnlockRound(mode entities.Mode, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locked, roundRef{mode: mode, token: token})
}

// IsLocked reports whether a round was locked by LockRound
func (s *Service) IsLocked(mode entities.Mode, token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked[roundRef{mode: mode, token: token}]
}

// CurrentPeriod returns the round in progress for mode and whether it takes
// bets right now
func (s *Service) CurrentPeriod(mode entities.Mode) (period.Period, bool) {
	p := s.clock.Current(mode.Duration, s.now())
	return p, s.clock.IsBettingOpen(p.TimeLeft, s.IsLocked(mode, p.Token))
}

// Modes returns the configured modes in configuration order
func (s *Service) Modes() []entities.Mode {
	return append([]entities.Mode(nil), s.order...)
}

// KnownMode reports whether bets are accepted on mode at all
func (s *Service) KnownMode(mode entities.Mode) bool {
	return s.modes[mode]
}

// PlaceBet validates req and, if it passes, debits the stake and stores the
// bet. Rejections return a result with Success=false and a *types.GameError;
// nothing is mutated. Any other error is an infrastructure failure.
func (s *Service) PlaceBet(ctx context.Context, req PlaceBetRequest) (*PlaceBetResult, error) {
	if req.UserID == "" {
		return reject(types.ErrUnauthenticated, "You must be signed in to place a bet")
	}

	mode := entities.NewMode(entities.GameType(req.GameType), req.Duration)
	if !s.modes[mode] {
		return reject(types.ErrUnknownMode, fmt.Sprintf("Unknown game %s", mode))
	}

	selection, err := entities.ParseSelection(req.BetKind, req.BetValue)
	if err != nil {
		return reject(types.ErrInvalidBet, "Pick a color (red, green, violet) or a number 0-9")
	}

	if err := s.checkStake(req.Stake); err != nil {
		return rejectErr(err)
	}

	current := s.clock.Current(mode.Duration, s.now())
	if req.Period != "" && req.Period != current.Token {
		return reject(types.ErrPeriodMismatch, fmt.Sprintf("Round %s is no longer taking bets, current round is %s", req.Period, current.Token))
	}
	if s.IsLocked(mode, current.Token) {
		return reject(types.ErrRoundLocked, fmt.Sprintf("Round %s is locked", current.Token))
	}
	if !s.clock.IsBettingOpen(current.TimeLeft, false) {
		return reject(types.ErrBettingClosed, fmt.Sprintf("Betting for round %s has closed", current.Token))
	}

	w, _, err := s.wallets.GetOrCreateWallet(ctx, req.UserID)
	if err != nil {
		return nil, types.WrapError(types.ErrDatabaseError, "could not load wallet", err)
	}
	if w.Balance < req.Stake {
		return reject(types.ErrInsufficientFunds, fmt.Sprintf("Insufficient balance: you have %d, the stake is %d", w.Balance, req.Stake))
	}

	bet := &entities.Bet{
		ID:        req.BetID,
		UserID:    req.UserID,
		GameType:  mode.GameType,
		Duration:  mode.Duration,
		Period:    current.Token,
		Selection: selection,
		Stake:     req.Stake,
	}

	balance, err := s.bets.PlaceBet(ctx, bet)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			// Balance moved between the check and the debit
			return reject(types.ErrInsufficientFunds, "Insufficient balance")
		case errors.Is(err, ledger.ErrInvalidStake):
			return reject(types.ErrInvalidStake, "Stake must be positive")
		case errors.Is(err, ledger.ErrDuplicateBet):
			return reject(types.ErrInvalidArgument, "This bet was already placed")
		}
		s.logger.Error("[BETTING] Error placing bet for user %s on %s round %s: %v", req.UserID, mode, current.Token, err)
		return nil, types.WrapError(types.ErrDatabaseError, "could not place bet", err)
	}

	s.logger.Info("[BETTING] User %s bet %d on %s for %s round %s", req.UserID, req.Stake, selection, mode, current.Token)
	return &PlaceBetResult{
		Success:    true,
		Message:    fmt.Sprintf("Bet placed on %s for round %s", selection.Value(), current.Token),
		NewBalance: &balance,
		Bet:        bet,
	}, nil
}

func (s *Service) checkStake(stake int64) error {
	if stake <= 0 {
		return types.NewGameError(types.ErrInvalidStake, "Stake must be positive")
	}
	if s.limits.MinStake > 0 && stake < s.limits.MinStake {
		return types.NewGameError(types.ErrInvalidStake, fmt.Sprintf("Minimum stake is %d", s.limits.MinStake))
	}
	if s.limits.MaxStake > 0 && stake > s.limits.MaxStake {
		return types.NewGameError(types.ErrInvalidStake, fmt.Sprintf("Maximum stake is %d", s.limits.MaxStake))
	}
	return nil
}

func reject(code types.ErrorCode, message string) (*PlaceBetResult, error) {
	return rejectErr(types.NewGameError(code, message))
}

func rejectErr(err error) (*PlaceBetResult, error) {
	result := &PlaceBetResult{Success: false, Message: err.Error()}
	var gameErr *types.GameError
	if types.As(err, &gameErr) {
		result.Message = gameErr.Message
		result.Code = gameErr.Code
	}
	return result, err
}
