// Package ledger stores wallets, outcomes and bets behind one Repository so
// that a stake debit and its bet row, or a settlement and its payout credit,
// always commit together.
package ledger

import (
	"fmt"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/google/uuid"
)

// timeLayout sorts lexically in UTC
const timeLayout = "2006-01-02 15:04:05.000000"

// prepareBet fills the fields the store owns before insert
func prepareBet(bet *entities.Bet) {
	if bet.ID == "" {
		bet.ID = uuid.New().String()
	}
	if bet.CreatedAt.IsZero() {
		bet.CreatedAt = time.Now()
	}
	bet.Status = entities.BetStatusUnsettled
	bet.Result = entities.BetResultNone
	bet.Payout = 0
	bet.SettledAt = nil
}

func betDescription(bet *entities.Bet) string {
	return fmt.Sprintf("bet %s on %s round %s", bet.Selection, bet.Mode(), bet.Period)
}

func payoutDescription(bet *entities.Bet) string {
	return fmt.Sprintf("payout for %s on %s round %s", bet.Selection, bet.Mode(), bet.Period)
}

func refundDescription(bet *entities.Bet) string {
	return fmt.Sprintf("refund for purged round %s", bet.Period)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the formats SQLite may hand back for a TIMESTAMP column
func parseTime(value string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		time.RFC3339Nano,
	}

	var parseErr error
	for _, format := range formats {
		t, err := time.Parse(format, value)
		if err == nil {
			return t, nil
		}
		parseErr = err
	}
	return time.Time{}, fmt.Errorf("error parsing timestamp '%s': %w", value, parseErr)
}
