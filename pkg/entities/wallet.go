package entities

import (
	"time"
)

// Wallet represents a player's balance
type Wallet struct {
	UserID      string    `json:"user_id"`
	Balance     int64     `json:"balance"`
	LastUpdated time.Time `json:"last_updated"`
}

// TransactionType represents the type of wallet transaction
type TransactionType string

const (
	TransactionTypeBet     TransactionType = "BET"
	TransactionTypePayout  TransactionType = "PAYOUT"
	TransactionTypeDeposit TransactionType = "DEPOSIT"
	TransactionTypeRefund  TransactionType = "REFUND"
)

// Transaction represents a single wallet transaction
type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Amount       int64           `json:"amount"` // positive for credits, negative for debits
	Type         TransactionType `json:"type"`
	ReferenceID  string          `json:"reference_id,omitempty"` // bet ID for BET/PAYOUT/REFUND
	Description  string          `json:"description"`
	Timestamp    time.Time       `json:"timestamp"`
	BalanceAfter int64           `json:"balance_after"`
}
