package entities

import (
	"fmt"
	"time"
)

// GameType identifies a betting room (e.g. "parity", "sapre")
type GameType string

// Mode is one (game type, round duration) combination. Every mode runs its own
// independent sequence of rounds.
type Mode struct {
	GameType GameType      `json:"game_type" yaml:"game_type"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// NewMode creates a mode from a game type and a duration in seconds
func NewMode(gameType GameType, durationSeconds int) Mode {
	return Mode{
		GameType: gameType,
		Duration: time.Duration(durationSeconds) * time.Second,
	}
}

// DurationSeconds returns the round duration in whole seconds
func (m Mode) DurationSeconds() int {
	return int(m.Duration / time.Second)
}

// String returns the string representation of the mode
func (m Mode) String() string {
	return fmt.Sprintf("%s/%ds", m.GameType, m.DurationSeconds())
}
