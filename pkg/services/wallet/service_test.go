package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/repositories/ledger"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockWalletStore is a mock implementation of ledger.WalletStore
type MockWalletStore struct {
	mock.Mock
}

func (m *MockWalletStore) GetWallet(ctx context.Context, userID string) (*entities.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Wallet), args.Error(1)
}

func (m *MockWalletStore) CreateWallet(ctx context.Context, userID string, openingBalance int64) (*entities.Wallet, error) {
	args := m.Called(ctx, userID, openingBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Wallet), args.Error(1)
}

func (m *MockWalletStore) AdjustBalance(ctx context.Context, userID string, delta int64, txType entities.TransactionType, referenceID, description string) (int64, error) {
	args := m.Called(ctx, userID, delta, txType, referenceID, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWalletStore) GetTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]*entities.Transaction), args.Error(1)
}

type WalletServiceTestSuite struct {
	suite.Suite
	store   *MockWalletStore
	service *Service
	ctx     context.Context
}

func (s *WalletServiceTestSuite) SetupTest() {
	s.store = new(MockWalletStore)
	s.service = NewService(s.store, 500)
	s.ctx = context.Background()
}

func TestWalletServiceSuite(t *testing.T) {
	suite.Run(t, new(WalletServiceTestSuite))
}

func (s *WalletServiceTestSuite) TestGetOrCreateExisting() {
	// Setup
	existing := &entities.Wallet{UserID: "alice", Balance: 42}
	s.store.On("GetWallet", s.ctx, "alice").Return(existing, nil)

	// Execute
	wallet, created, err := s.service.GetOrCreateWallet(s.ctx, "alice")

	// Assert
	s.Require().NoError(err)
	s.False(created)
	s.Equal(int64(42), wallet.Balance)
	s.store.AssertNotCalled(s.T(), "CreateWallet", mock.Anything, mock.Anything, mock.Anything)
}

func (s *WalletServiceTestSuite) TestGetOrCreateNew() {
	// Setup
	s.store.On("GetWallet", s.ctx, "bob").Return(nil, ledger.ErrWalletNotFound)
	s.store.On("CreateWallet", s.ctx, "bob", int64(500)).Return(&entities.Wallet{UserID: "bob", Balance: 500}, nil)

	// Execute
	wallet, created, err := s.service.GetOrCreateWallet(s.ctx, "bob")

	// Assert
	s.Require().NoError(err)
	s.True(created)
	s.Equal(int64(500), wallet.Balance)
	s.store.AssertExpectations(s.T())
}

func (s *WalletServiceTestSuite) TestGetOrCreatePropagatesStorageErrors() {
	boom := errors.New("connection reset")
	s.store.On("GetWallet", s.ctx, "bob").Return(nil, boom)

	_, _, err := s.service.GetOrCreateWallet(s.ctx, "bob")

	s.ErrorIs(err, boom)
}

func (s *WalletServiceTestSuite) TestAddFunds() {
	// Setup
	s.store.On("GetWallet", s.ctx, "alice").Return(&entities.Wallet{UserID: "alice", Balance: 10}, nil)
	s.store.On("AdjustBalance", s.ctx, "alice", int64(90), entities.TransactionTypeDeposit, "", "promo").Return(int64(100), nil)

	// Execute
	balance, err := s.service.AddFunds(s.ctx, "alice", 90, "promo")

	// Assert
	s.Require().NoError(err)
	s.Equal(int64(100), balance)
	s.store.AssertExpectations(s.T())
}

func (s *WalletServiceTestSuite) TestAddFundsRejectsNonPositive() {
	_, err := s.service.AddFunds(s.ctx, "alice", 0, "nothing")
	s.ErrorIs(err, ErrNegativeAmount)

	_, err = s.service.AddFunds(s.ctx, "alice", -5, "theft")
	s.ErrorIs(err, ErrNegativeAmount)
}

func (s *WalletServiceTestSuite) TestWithMemoryLedger() {
	// Setup
	service := NewService(ledger.NewMemoryRepository(), 100)

	// Execute
	_, created, err := service.GetOrCreateWallet(s.ctx, "carol")
	s.Require().NoError(err)
	_, err = service.AddFunds(s.ctx, "carol", 25, "bonus")
	s.Require().NoError(err)

	// Assert
	s.True(created)
	balance, err := service.GetBalance(s.ctx, "carol")
	s.Require().NoError(err)
	s.Equal(int64(125), balance)

	txs, err := service.GetTransactions(s.ctx, "carol", 5)
	s.Require().NoError(err)
	s.Len(txs, 1)
}
