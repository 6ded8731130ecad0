package statistics

import (
	"context"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
)

// StatisticsSource aggregates settled bets per player
type StatisticsSource interface {
	PlayerStatistics(ctx context.Context, gameType entities.GameType) ([]*entities.PlayerStatistics, error)
}

// Service provides methods for retrieving and processing player statistics
type Service struct {
	source StatisticsSource
	now    func() time.Time
}

// NewService creates a new statistics service
func NewService(source StatisticsSource) *Service {
	return &Service{
		source: source,
		now:    time.Now,
	}
}

// PlayerRank represents a player's statistics with ranking information
type PlayerRank struct {
	*entities.PlayerStatistics
	Rank        int     `json:"rank"`
	NetProfit   int64   `json:"net_profit"`
	WinRate     float64 `json:"win_rate"`
	ReturnRate  float64 `json:"return_rate"`
	IsTopWinner bool    `json:"is_top_winner"`
	IsTopPlayer bool    `json:"is_top_player"`
}

// Leaderboard represents a paginated leaderboard of player statistics
type Leaderboard struct {
	GameType       entities.GameType `json:"game_type,omitempty"`
	Players        []*PlayerRank     `json:"players"`
	TotalPlayers   int               `json:"total_players"`
	CurrentPage    int               `json:"current_page"`
	TotalPages     int               `json:"total_pages"`
	PlayersPerPage int               `json:"players_per_page"`
	LastUpdated    time.Time         `json:"last_updated"`
}

// GetLeaderboard retrieves a paginated leaderboard for one game type, or for
// every game when gameType is empty. Players are ranked by net profit.
func (s *Service) GetLeaderboard(ctx context.Context, gameType entities.GameType, page, playersPerPage int) (*Leaderboard, error) {
	// Default values
	if page < 1 {
		page = 1
	}
	if playersPerPage < 1 {
		playersPerPage = 10
	}

	playerRanks, err := s.rankPlayers(ctx, gameType)
	if err != nil {
		return nil, err
	}

	// Calculate pagination
	totalPlayers := len(playerRanks)
	totalPages := (totalPlayers + playersPerPage - 1) / playersPerPage
	if page > totalPages && totalPages > 0 {
		page = totalPages
	}

	start := (page - 1) * playersPerPage
	end := start + playersPerPage
	if end > totalPlayers {
		end = totalPlayers
	}

	currentPagePlayers := []*PlayerRank{}
	if start < totalPlayers {
		currentPagePlayers = playerRanks[start:end]
	}

	return &Leaderboard{
		GameType:       gameType,
		Players:        currentPagePlayers,
		TotalPlayers:   totalPlayers,
		CurrentPage:    page,
		TotalPages:     totalPages,
		PlayersPerPage: playersPerPage,
		LastUpdated:    s.now(),
	}, nil
}

// rankPlayers orders players with settled bets by net profit and flags the
// top winner and the most active player
func (s *Service) rankPlayers(ctx context.Context, gameType entities.GameType) ([]*PlayerRank, error) {
	allStats, err := s.source.PlayerStatistics(ctx, gameType)
	if err != nil {
		return nil, err
	}

	ranked := make([]*entities.PlayerStatistics, 0, len(allStats))
	for _, stats := range allStats {
		// Skip players with no settled bets
		if stats.BetsPlaced == 0 {
			continue
		}
		ranked = append(ranked, stats)
	}
	entities.SortByNetProfit(ranked)

	playerRanks := make([]*PlayerRank, 0, len(ranked))
	for i, stats := range ranked {
		var returnRate float64
		if stats.TotalStaked > 0 {
			returnRate = float64(stats.TotalWinnings) / float64(stats.TotalStaked)
		}
		playerRanks = append(playerRanks, &PlayerRank{
			PlayerStatistics: stats,
			Rank:             i + 1,
			NetProfit:        stats.NetProfit(),
			WinRate:          stats.WinRate(),
			ReturnRate:       returnRate,
		})
	}

	// Mark top winner and most active player
	if len(playerRanks) > 0 {
		playerRanks[0].IsTopWinner = true

		mostBetsIdx := 0
		for i := 1; i < len(playerRanks); i++ {
			if playerRanks[i].BetsPlaced > playerRanks[mostBetsIdx].BetsPlaced {
				mostBetsIdx = i
			}
		}
		playerRanks[mostBetsIdx].IsTopPlayer = true
	}

	return playerRanks, nil
}

// GetPlayerRank returns one player's entry on the leaderboard, or nil if they
// have no settled bets
func (s *Service) GetPlayerRank(ctx context.Context, gameType entities.GameType, playerID string) (*PlayerRank, error) {
	playerRanks, err := s.rankPlayers(ctx, gameType)
	if err != nil {
		return nil, err
	}
	for _, p := range playerRanks {
		if p.PlayerID == playerID {
			return p, nil
		}
	}
	return nil, nil
}
