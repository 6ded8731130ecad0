package statistics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStatisticsSource is a mock implementation of StatisticsSource
type MockStatisticsSource struct {
	mock.Mock
}

func (m *MockStatisticsSource) PlayerStatistics(ctx context.Context, gameType entities.GameType) ([]*entities.PlayerStatistics, error) {
	args := m.Called(ctx, gameType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PlayerStatistics), args.Error(1)
}

func testStats() []*entities.PlayerStatistics {
	return []*entities.PlayerStatistics{
		{
			PlayerID:      "player1",
			GameType:      "parity",
			BetsPlaced:    10,
			Wins:          5,
			Losses:        5,
			TotalStaked:   1000,
			TotalWinnings: 1500,
			LastUpdated:   time.Now(),
		},
		{
			PlayerID:      "player2",
			GameType:      "parity",
			BetsPlaced:    15,
			Wins:          8,
			Losses:        7,
			TotalStaked:   2000,
			TotalWinnings: 2800,
			LastUpdated:   time.Now(),
		},
		{
			PlayerID:      "player3",
			GameType:      "parity",
			BetsPlaced:    20,
			Wins:          12,
			Losses:        8,
			TotalStaked:   3000,
			TotalWinnings: 4000,
			LastUpdated:   time.Now(),
		},
		{
			PlayerID: "lurker",
			GameType: "parity",
		},
	}
}

// TestGetLeaderboard tests the GetLeaderboard method
func TestGetLeaderboard(t *testing.T) {
	// Setup
	source := new(MockStatisticsSource)
	source.On("PlayerStatistics", mock.Anything, entities.GameType("parity")).Return(testStats(), nil)
	service := NewService(source)

	// Execute
	leaderboard, err := service.GetLeaderboard(context.Background(), "parity", 1, 10)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, leaderboard.TotalPlayers, "players without settled bets are skipped")
	assert.Equal(t, 1, leaderboard.CurrentPage)
	assert.Equal(t, 1, leaderboard.TotalPages)
	assert.Equal(t, 10, leaderboard.PlayersPerPage)

	// Sorted by net profit (descending)
	require.Len(t, leaderboard.Players, 3)
	assert.Equal(t, "player3", leaderboard.Players[0].PlayerID)
	assert.Equal(t, "player2", leaderboard.Players[1].PlayerID)
	assert.Equal(t, "player1", leaderboard.Players[2].PlayerID)
	assert.Equal(t, int64(1000), leaderboard.Players[0].NetProfit)
	assert.InDelta(t, 60.0, leaderboard.Players[0].WinRate, 0.001)
	assert.InDelta(t, 1.5, leaderboard.Players[2].ReturnRate, 0.001)

	assert.Equal(t, 1, leaderboard.Players[0].Rank)
	assert.Equal(t, 2, leaderboard.Players[1].Rank)
	assert.Equal(t, 3, leaderboard.Players[2].Rank)

	assert.True(t, leaderboard.Players[0].IsTopWinner)
	assert.True(t, leaderboard.Players[0].IsTopPlayer) // player3 has the most bets

	source.AssertExpectations(t)
}

func TestGetLeaderboardPagination(t *testing.T) {
	source := new(MockStatisticsSource)
	source.On("PlayerStatistics", mock.Anything, entities.GameType("")).Return(testStats(), nil)
	service := NewService(source)

	page2, err := service.GetLeaderboard(context.Background(), "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page2.TotalPages)
	require.Len(t, page2.Players, 1)
	assert.Equal(t, "player1", page2.Players[0].PlayerID)
	assert.Equal(t, 3, page2.Players[0].Rank)

	// Out of range pages clamp to the last one
	clamped, err := service.GetLeaderboard(context.Background(), "", 9, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, clamped.CurrentPage)

	// Defaults
	defaults, err := service.GetLeaderboard(context.Background(), "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.CurrentPage)
	assert.Equal(t, 10, defaults.PlayersPerPage)
}

func TestGetLeaderboardEmptyAndError(t *testing.T) {
	source := new(MockStatisticsSource)
	source.On("PlayerStatistics", mock.Anything, entities.GameType("sapre")).Return([]*entities.PlayerStatistics{}, nil)
	source.On("PlayerStatistics", mock.Anything, entities.GameType("broken")).Return(nil, errors.New("db gone"))
	service := NewService(source)

	empty, err := service.GetLeaderboard(context.Background(), "sapre", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Players)
	assert.Equal(t, 0, empty.TotalPages)

	_, err = service.GetLeaderboard(context.Background(), "broken", 1, 10)
	assert.Error(t, err)
}

func TestGetPlayerRank(t *testing.T) {
	source := new(MockStatisticsSource)
	source.On("PlayerStatistics", mock.Anything, entities.GameType("parity")).Return(testStats(), nil)
	service := NewService(source)

	rank, err := service.GetPlayerRank(context.Background(), "parity", "player2")
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Equal(t, 2, rank.Rank)

	missing, err := service.GetPlayerRank(context.Background(), "parity", "lurker")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
