package discord

import (
	"testing"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/period"
	"github.com/fadedpez/wingo/pkg/services/betting"
	"github.com/fadedpez/wingo/pkg/services/statistics"
	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1m", formatDuration(60))
	assert.Equal(t, "10m", formatDuration(600))
	assert.Equal(t, "90s", formatDuration(90))
	assert.Equal(t, "0s", formatDuration(0))
}

func TestFormatTimeLeft(t *testing.T) {
	assert.Equal(t, "0:40", formatTimeLeft(40*time.Second))
	assert.Equal(t, "2:06", formatTimeLeft(125*time.Second+300*time.Millisecond))
	assert.Equal(t, "0:06", formatTimeLeft(5900*time.Millisecond), "never shows the close threshold while open")
	assert.Equal(t, "0:00", formatTimeLeft(0))
}

func TestFormatOutcome(t *testing.T) {
	mode := entities.NewMode("parity", 60)

	assert.Equal(t, "5️⃣ 🟢🟣", formatOutcome(entities.NewOutcome(mode, "202610160001", 5, time.Now())))
	assert.Equal(t, "8️⃣ 🔴", formatOutcome(entities.NewOutcome(mode, "202610160001", 8, time.Now())))
}

func TestFormatSelection(t *testing.T) {
	assert.Equal(t, "7️⃣", formatSelection(entities.NumberSelection(7)))
	assert.Equal(t, "🟣 violet", formatSelection(entities.ColorSelection(entities.ColorViolet)))
}

func TestCreateRoundEmbedStatus(t *testing.T) {
	mode := entities.NewMode("sapre", 180)
	current := period.Period{Token: "202610160211", TimeLeft: 4 * time.Second}

	testCases := []struct {
		name     string
		open     bool
		locked   bool
		expected string
	}{
		{"open", true, false, "🟢 Betting open"},
		{"closing", false, false, "⏰ Betting closed, result coming up"},
		{"locked", false, true, "🔒 Round locked"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			embed := createRoundEmbed(mode, current, tc.open, tc.locked, nil)

			assert.Equal(t, "🎲 SAPRE · 3m", embed.Title)
			assert.Equal(t, tc.expected, embed.Fields[2].Value)
			assert.Len(t, embed.Fields, 3, "no results field without history")
		})
	}
}

func TestCreateBetEmbed(t *testing.T) {
	balance := int64(850)
	result := &betting.PlaceBetResult{
		Success:    true,
		Message:    "Bet placed",
		NewBalance: &balance,
		Bet: &entities.Bet{
			GameType:  "parity",
			Duration:  time.Minute,
			Period:    "202610160631",
			Selection: entities.ColorSelection(entities.ColorGreen),
			Stake:     150,
		},
	}

	embed := createBetEmbed(result)

	assert.Equal(t, "parity/60s `202610160631`", embed.Fields[0].Value)
	assert.Equal(t, "🟢 green", embed.Fields[1].Value)
	assert.Equal(t, "150", embed.Fields[2].Value)
	assert.Equal(t, "850", embed.Fields[3].Value)
}

func TestCreateLeaderboardEmbed(t *testing.T) {
	board := &statistics.Leaderboard{
		GameType:    "parity",
		CurrentPage: 1,
		TotalPages:  2,
		Players: []*statistics.PlayerRank{
			{
				PlayerStatistics: &entities.PlayerStatistics{PlayerID: "42", BetsPlaced: 4},
				Rank:             1,
				NetProfit:        300,
				WinRate:          50,
				IsTopWinner:      true,
			},
		},
		TotalPlayers: 11,
	}

	embed := createLeaderboardEmbed(board)
	buttons := createLeaderboardButtons(board)

	assert.Equal(t, "**1.** <@42> +300 (4 bets, 50% won) 👑", embed.Description)
	assert.Equal(t, "Page 1 of 2 · 11 players", embed.Footer.Text)
	assert.Len(t, buttons, 1)
}

func TestCreateStatsEmbed(t *testing.T) {
	rank := &statistics.PlayerRank{
		PlayerStatistics: &entities.PlayerStatistics{PlayerID: "42", BetsPlaced: 4, Wins: 1, Losses: 3, TotalStaked: 400},
		Rank:             2,
		NetProfit:        -220,
		WinRate:          25,
		ReturnRate:       45,
	}

	embed := createStatsEmbed("emerd", rank)

	assert.Equal(t, "📊 Your stats · EMERD", embed.Title)
	assert.Equal(t, "🥈 #2", embed.Fields[0].Value)
	assert.Equal(t, "-220", embed.Fields[1].Value)
	assert.Equal(t, "1 won / 3 lost", embed.Fields[2].Value)
	assert.Equal(t, "25.0%", embed.Fields[3].Value)
}
