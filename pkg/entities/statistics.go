package entities

import (
	"sort"
	"time"
)

// PlayerStatistics represents aggregated settled-bet figures for a player in
// one game type
type PlayerStatistics struct {
	PlayerID      string    `json:"player_id"`
	GameType      GameType  `json:"game_type"`
	BetsPlaced    int       `json:"bets_placed"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	TotalStaked   int64     `json:"total_staked"`
	TotalWinnings int64     `json:"total_winnings"`
	LastUpdated   time.Time `json:"last_updated"`
}

// NetProfit calculates the player's net profit
func (s *PlayerStatistics) NetProfit() int64 {
	return s.TotalWinnings - s.TotalStaked
}

// WinRate calculates the player's win rate as a percentage
func (s *PlayerStatistics) WinRate() float64 {
	if s.BetsPlaced == 0 {
		return 0.0
	}
	return float64(s.Wins) / float64(s.BetsPlaced) * 100.0
}

// SortByNetProfit orders stats best first, breaking ties by player ID
func SortByNetProfit(stats []*PlayerStatistics) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].NetProfit() != stats[j].NetProfit() {
			return stats[i].NetProfit() > stats[j].NetProfit()
		}
		return stats[i].PlayerID < stats[j].PlayerID
	})
}
