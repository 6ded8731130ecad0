package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/events"
	"github.com/fadedpez/wingo/pkg/period"
	"github.com/fadedpez/wingo/pkg/services/betting"
	"github.com/fadedpez/wingo/pkg/services/statistics"
)

const (
	colorOpen   = 0x2ecc71
	colorClosed = 0xe74c3c
	colorInfo   = 0x3498db
	colorGold   = 0xf1c40f
)

func createRoundEmbed(mode entities.Mode, current period.Period, open, locked bool, results []*entities.Outcome) *discordgo.MessageEmbed {
	status, color := "🟢 Betting open", colorOpen
	switch {
	case locked:
		status, color = "🔒 Round locked", colorClosed
	case !open:
		status, color = "⏰ Betting closed, result coming up", colorClosed
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("🎲 %s · %s", strings.ToUpper(string(mode.GameType)), formatDuration(mode.DurationSeconds())),
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Period", Value: "`" + current.Token + "`", Inline: true},
			{Name: "Time left", Value: formatTimeLeft(current.TimeLeft), Inline: true},
			{Name: "Status", Value: status, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Number pays 9x · Color pays 2x · /bet to play",
		},
	}

	if len(results) > 0 {
		var lines []string
		for _, o := range results {
			lines = append(lines, fmt.Sprintf("`%s` %s", o.Period, formatOutcome(o)))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Recent results",
			Value: strings.Join(lines, "\n"),
		})
	}
	return embed
}

func createRefreshButtons(mode entities.Mode) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Refresh",
					Style:    discordgo.SecondaryButton,
					CustomID: fmt.Sprintf("%s:%s:%d", refreshPrefix, mode.GameType, mode.DurationSeconds()),
					Emoji:    &discordgo.ComponentEmoji{Name: "🔄"},
				},
			},
		},
	}
}

func createBetEmbed(result *betting.PlaceBetResult) *discordgo.MessageEmbed {
	bet := result.Bet
	embed := &discordgo.MessageEmbed{
		Title:       "✅ Bet placed",
		Description: result.Message,
		Color:       colorOpen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Round", Value: fmt.Sprintf("%s `%s`", bet.Mode(), bet.Period), Inline: true},
			{Name: "Pick", Value: formatSelection(bet.Selection), Inline: true},
			{Name: "Stake", Value: fmt.Sprintf("%d", bet.Stake), Inline: true},
		},
	}
	if result.NewBalance != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Balance", Value: fmt.Sprintf("%d", *result.NewBalance), Inline: true,
		})
	}
	return embed
}

func createWalletEmbed(wallet *entities.Wallet, transactions []*entities.Transaction, created bool) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "💰 Wallet",
		Description: fmt.Sprintf("Balance: **%d**", wallet.Balance),
		Color:       colorGold,
	}
	if created {
		embed.Description += "\nWelcome! Your wallet was just opened."
	}

	if len(transactions) > 0 {
		var lines []string
		for _, tx := range transactions {
			lines = append(lines, fmt.Sprintf("`%+d` %s %s", tx.Amount, tx.Type, tx.Description))
		}
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Recent activity", Value: strings.Join(lines, "\n")},
		}
	}
	return embed
}

func createLeaderboardEmbed(board *statistics.Leaderboard) *discordgo.MessageEmbed {
	title := "🏆 Leaderboard"
	if board.GameType != "" {
		title += " · " + strings.ToUpper(string(board.GameType))
	}

	embed := &discordgo.MessageEmbed{
		Title: title,
		Color: colorInfo,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d of %d · %d players", board.CurrentPage, max(board.TotalPages, 1), board.TotalPlayers),
		},
	}

	if len(board.Players) == 0 {
		embed.Description = "No settled bets yet."
		return embed
	}

	var lines []string
	for _, p := range board.Players {
		badge := ""
		if p.IsTopWinner {
			badge += " 👑"
		}
		if p.IsTopPlayer {
			badge += " 🔥"
		}
		lines = append(lines, fmt.Sprintf("**%d.** <@%s> %+d (%d bets, %.0f%% won)%s",
			p.Rank, p.PlayerID, p.NetProfit, p.BetsPlaced, p.WinRate, badge))
	}
	embed.Description = strings.Join(lines, "\n")
	return embed
}

// createStatsEmbed shows one player's record; rank is nil before their first
// settled bet
func createStatsEmbed(game entities.GameType, rank *statistics.PlayerRank) *discordgo.MessageEmbed {
	title := "📊 Your stats"
	if game != "" {
		title += " · " + strings.ToUpper(string(game))
	}
	embed := &discordgo.MessageEmbed{Title: title, Color: colorInfo}

	if rank == nil {
		embed.Description = "No settled bets yet. Try /bet!"
		return embed
	}

	rankValue := fmt.Sprintf("#%d", rank.Rank)
	switch rank.Rank {
	case 1:
		rankValue = "👑 #1"
	case 2:
		rankValue = "🥈 #2"
	case 3:
		rankValue = "🥉 #3"
	}

	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Rank", Value: rankValue, Inline: true},
		{Name: "Net profit", Value: fmt.Sprintf("%+d", rank.NetProfit), Inline: true},
		{Name: "Record", Value: fmt.Sprintf("%d won / %d lost", rank.Wins, rank.Losses), Inline: true},
		{Name: "Win rate", Value: fmt.Sprintf("%.1f%%", rank.WinRate), Inline: true},
		{Name: "Staked", Value: fmt.Sprintf("%d", rank.TotalStaked), Inline: true},
		{Name: "Return", Value: fmt.Sprintf("%.1f%%", rank.ReturnRate), Inline: true},
	}
	return embed
}

func createLeaderboardButtons(board *statistics.Leaderboard) []discordgo.MessageComponent {
	id := func(page int) string {
		return fmt.Sprintf("%s:%s:%d", leaderboardPrefix, board.GameType, page)
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Previous",
					Style:    discordgo.SecondaryButton,
					CustomID: id(board.CurrentPage - 1),
					Disabled: board.CurrentPage <= 1,
					Emoji:    &discordgo.ComponentEmoji{Name: "⬅️"},
				},
				discordgo.Button{
					Label:    "Next",
					Style:    discordgo.SecondaryButton,
					CustomID: id(board.CurrentPage + 1),
					Disabled: board.CurrentPage >= board.TotalPages,
					Emoji:    &discordgo.ComponentEmoji{Name: "➡️"},
				},
			},
		},
	}
}

func createSettledEmbed(event *events.Event) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎯 %s round %s", event.Mode(), event.Period),
		Description: "Result: " + formatOutcome(event.Outcome),
		Color:       colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Bets settled", Value: fmt.Sprintf("%d", event.Settled), Inline: true},
			{Name: "Staked", Value: fmt.Sprintf("%d", event.TotalStaked), Inline: true},
			{Name: "Paid out", Value: fmt.Sprintf("%d", event.TotalPayout), Inline: true},
		},
		Timestamp: event.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}
}
