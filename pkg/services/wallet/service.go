package wallet

import (
	"context"
	"errors"

	"github.com/fadedpez/wingo/internal/logging"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/repositories/ledger"
)

// DefaultStartingBalance is credited to a wallet on first access
const DefaultStartingBalance int64 = 1000

var (
	ErrNegativeAmount = errors.New("amount must be positive")
)

// Service handles wallet business logic. Balance changes always go through
// the store's atomic adjust operation.
type Service struct {
	repo            ledger.WalletStore
	startingBalance int64
	logger          *logging.Logger
}

// NewService creates a new wallet service
func NewService(repo ledger.WalletStore, startingBalance int64) *Service {
	if startingBalance < 0 {
		startingBalance = 0
	}
	return &Service{
		repo:            repo,
		startingBalance: startingBalance,
		logger:          logging.Default,
	}
}

// GetOrCreateWallet retrieves a wallet or creates a new one with the starting
// balance. The bool reports whether it was created by this call.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID string) (*entities.Wallet, bool, error) {
	wallet, err := s.repo.GetWallet(ctx, userID)
	if err == nil {
		return wallet, false, nil
	}
	if !errors.Is(err, ledger.ErrWalletNotFound) {
		return nil, false, err
	}

	wallet, err = s.repo.CreateWallet(ctx, userID, s.startingBalance)
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("[WALLET] Created wallet for user %s with balance %d", userID, wallet.Balance)
	return wallet, true, nil
}

// GetBalance returns the current balance for a user
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	wallet, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// AddFunds deposits amount into a user's wallet and returns the new balance
func (s *Service) AddFunds(ctx context.Context, userID string, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, ErrNegativeAmount
	}

	if _, _, err := s.GetOrCreateWallet(ctx, userID); err != nil {
		return 0, err
	}

	balance, err := s.repo.AdjustBalance(ctx, userID, amount, entities.TransactionTypeDeposit, "", description)
	if err != nil {
		s.logger.Error("[WALLET] Error adding %d to wallet for user %s: %v", amount, userID, err)
		return 0, err
	}

	s.logger.Info("[WALLET] Added %d to wallet for user %s, balance %d", amount, userID, balance)
	return balance, nil
}

// GetTransactions returns recent wallet activity, newest first
func (s *Service) GetTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	return s.repo.GetTransactions(ctx, userID, limit)
}
