package entities

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSelection is returned when a bet kind/value pair cannot be parsed
var ErrInvalidSelection = errors.New("invalid bet selection")

// Payout multipliers, applied to the stake of a winning bet
const (
	NumberMultiplier int64 = 9
	ColorMultiplier  int64 = 2
)

// BetKind tells which half of a Selection is meaningful
type BetKind string

const (
	BetKindColor  BetKind = "color"
	BetKindNumber BetKind = "number"
)

// Selection is what the player picked: a color or a single digit
type Selection struct {
	Kind   BetKind `json:"kind"`
	Color  Color   `json:"color,omitempty"`
	Number int     `json:"number"`
}

// ColorSelection creates a color pick
func ColorSelection(c Color) Selection {
	return Selection{Kind: BetKindColor, Color: c}
}

// NumberSelection creates a digit pick
func NumberSelection(n int) Selection {
	return Selection{Kind: BetKindNumber, Number: n}
}

// ParseSelection validates a raw (kind, value) pair coming from a caller
func ParseSelection(kind, value string) (Selection, error) {
	switch BetKind(strings.ToLower(strings.TrimSpace(kind))) {
	case BetKindColor:
		c, err := ParseColor(value)
		if err != nil {
			return Selection{}, err
		}
		return ColorSelection(c), nil
	case BetKindNumber:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 || n > 9 {
			return Selection{}, fmt.Errorf("%w: number must be a digit 0-9, got %q", ErrInvalidSelection, value)
		}
		return NumberSelection(n), nil
	}
	return Selection{}, fmt.Errorf("%w: unknown bet kind %q", ErrInvalidSelection, kind)
}

// Value returns the stored string form of the pick ("red", "7")
func (s Selection) Value() string {
	if s.Kind == BetKindNumber {
		return strconv.Itoa(s.Number)
	}
	return string(s.Color)
}

// String returns the string representation of the selection
func (s Selection) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Value())
}

// BetStatus is the settlement state of a bet
type BetStatus string

const (
	BetStatusUnsettled BetStatus = "unsettled"
	BetStatusSettled   BetStatus = "settled"
)

// BetResult is fixed once a bet is settled
type BetResult string

const (
	BetResultNone BetResult = ""
	BetResultWin  BetResult = "win"
	BetResultLose BetResult = "lose"
)

// Bet is a single wager on one round
type Bet struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	GameType  GameType      `json:"game_type"`
	Duration  time.Duration `json:"duration"`
	Period    string        `json:"period"`
	Selection Selection     `json:"selection"`
	Stake     int64         `json:"stake"`
	Status    BetStatus     `json:"status"`
	Result    BetResult     `json:"result,omitempty"`
	Payout    int64         `json:"payout"`
	CreatedAt time.Time     `json:"created_at"`
	SettledAt *time.Time    `json:"settled_at,omitempty"`
}

// Mode returns the mode the bet was placed on
func (b *Bet) Mode() Mode {
	return Mode{GameType: b.GameType, Duration: b.Duration}
}

// IsSettled reports whether settlement already ran for this bet
func (b *Bet) IsSettled() bool {
	return b.Status == BetStatusSettled
}

// Payout computes what a bet returns against an outcome. A number bet pays
// NumberMultiplier times the stake on an exact digit match; a color bet pays
// ColorMultiplier times the stake when its color is in the winning set.
// Anything else pays 0 and loses.
func Payout(sel Selection, stake int64, outcome *Outcome) (int64, BetResult) {
	var payout int64
	switch sel.Kind {
	case BetKindNumber:
		if sel.Number == outcome.Number {
			payout = stake * NumberMultiplier
		}
	case BetKindColor:
		if outcome.HasColor(sel.Color) {
			payout = stake * ColorMultiplier
		}
	}
	if payout > 0 {
		return payout, BetResultWin
	}
	return 0, BetResultLose
}
