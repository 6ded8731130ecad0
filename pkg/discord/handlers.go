package discord

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fadedpez/wingo/internal/discord"
	"github.com/fadedpez/wingo/internal/types"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/services/betting"
)

// Discord drops interactions not answered within three seconds
const interactionTimeout = 2500 * time.Millisecond

const (
	refreshPrefix     = "wingo_refresh"
	leaderboardPrefix = "leaderboard"
	recentResults     = 10
)

func (b *Bot) commands() []*discordgo.ApplicationCommand {
	var gameChoices, durationChoices []*discordgo.ApplicationCommandOptionChoice
	seenGame, seenDuration := map[entities.GameType]bool{}, map[int]bool{}
	for _, m := range b.deps.Betting.Modes() {
		if !seenGame[m.GameType] {
			seenGame[m.GameType] = true
			gameChoices = append(gameChoices, &discordgo.ApplicationCommandOptionChoice{Name: string(m.GameType), Value: string(m.GameType)})
		}
		if secs := m.DurationSeconds(); !seenDuration[secs] {
			seenDuration[secs] = true
			durationChoices = append(durationChoices, &discordgo.ApplicationCommandOptionChoice{Name: formatDuration(secs), Value: secs})
		}
	}
	sort.Slice(durationChoices, func(i, j int) bool {
		return durationChoices[i].Value.(int) < durationChoices[j].Value.(int)
	})

	gameOption := func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionString, Name: "game", Description: "Game type",
			Required: required, Choices: gameChoices,
		}
	}
	durationOption := func(required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionInteger, Name: "duration", Description: "Round length",
			Required: required, Choices: durationChoices,
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "wingo",
			Description: "Show the current round and recent results",
			Options:     []*discordgo.ApplicationCommandOption{gameOption(false), durationOption(false)},
		},
		{
			Name:        "bet",
			Description: "Place a bet on the current round",
			Options: []*discordgo.ApplicationCommandOption{
				gameOption(true),
				durationOption(true),
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "kind", Description: "Bet on a color or a number",
					Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "color", Value: string(entities.BetKindColor)},
						{Name: "number", Value: string(entities.BetKindNumber)},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "pick", Description: "red, green, violet or a digit 0-9",
					Required: true,
				},
				{
					Type: discordgo.ApplicationCommandOptionInteger, Name: "stake", Description: "Amount to stake",
					Required: true,
				},
			},
		},
		{
			Name:        "wallet",
			Description: "Check your balance and recent transactions",
		},
		{
			Name:        "leaderboard",
			Description: "Top players by net profit",
			Options:     []*discordgo.ApplicationCommandOption{gameOption(false)},
		},
		{
			Name:        "stats",
			Description: "Your betting record and rank",
			Options:     []*discordgo.ApplicationCommandOption{gameOption(false)},
		},
	}
}

func (b *Bot) handleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.firstDelivery(i.ID, time.Now()) {
		b.logger.Debug("Skipping already processed interaction: %s", i.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	b.dispatch(ctx, i)
}

func (b *Bot) dispatch(ctx context.Context, i *discordgo.InteractionCreate) {
	var err error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		b.logger.Debug("Received application command: %s", data.Name)
		switch data.Name {
		case "wingo":
			err = b.handleWingoCommand(ctx, i)
		case "bet":
			err = b.handleBetCommand(ctx, i)
		case "wallet":
			err = b.handleWalletCommand(ctx, i)
		case "leaderboard":
			err = b.handleLeaderboardCommand(ctx, i)
		case "stats":
			err = b.handleStatsCommand(ctx, i)
		default:
			err = discord.SendErrorResponse(b.session, i, types.NewGameError(types.ErrInvalidArgument, "unknown command"))
		}

	case discordgo.InteractionMessageComponent:
		err = b.handleComponent(ctx, i)
	}

	if err != nil {
		b.logger.Error("Error responding to interaction %s: %v", i.ID, err)
	}
}

func (b *Bot) handleWingoCommand(ctx context.Context, i *discordgo.InteractionCreate) error {
	opts := optionMap(i.ApplicationCommandData().Options)
	mode, err := b.modeFromOptions(opts)
	if err != nil {
		return discord.SendErrorResponse(b.session, i, err)
	}

	embed, err := b.roundEmbed(ctx, mode)
	if err != nil {
		return discord.SendErrorResponse(b.session, i, err)
	}
	return discord.SendResponse(b.session, i, discord.NewEmbedResponse(embed, createRefreshButtons(mode), false))
}

func (b *Bot) handleBetCommand(ctx context.Context, i *discordgo.InteractionCreate) error {
	opts := optionMap(i.ApplicationCommandData().Options)

	req := betting.PlaceBetRequest{
		// Discord redelivers the same interaction ID, so it doubles as an
		// idempotency key
		BetID:    "discord-" + i.ID,
		UserID:   userIDOf(i),
		GameType: stringOption(opts, "game"),
		Duration: int(intOption(opts, "duration")),
		BetKind:  stringOption(opts, "kind"),
		BetValue: stringOption(opts, "pick"),
		Stake:    intOption(opts, "stake"),
	}

	result, err := b.deps.Betting.PlaceBet(ctx, req)
	if err != nil {
		return discord.SendErrorResponse(b.session, i, err)
	}
	return discord.SendResponse(b.session, i, discord.NewEmbedResponse(createBetEmbed(result), nil, true))
}

func (b *Bot) handleWalletCommand(ctx context.Context, i *discordgo.InteractionCreate) error {
	userID := userIDOf(i)
	if userID == "" {
		return discord.SendErrorResponse(b.session, i, types.NewGameError(types.ErrUnauthenticated, "could not identify you"))
	}

	wallet, created, err := b.deps.Wallets.GetOrCreateWallet(ctx, userID)
	if err != nil {
		b.logger.Error("Error loading wallet for %s: %v", userID, err)
		return discord.SendErrorResponse(b.session, i, types.WrapError(types.ErrDatabaseError, "wallet unavailable", err))
	}
	transactions, err := b.deps.Wallets.GetTransactions(ctx, userID, 5)
	if err != nil {
		b.logger.Warn("Error loading transactions for %s: %v", userID, err)
	}

	return discord.SendResponse(b.session, i, discord.NewEmbedResponse(createWalletEmbed(wallet, transactions, created), nil, true))
}

func (b *Bot) handleLeaderboardCommand(ctx context.Context, i *discordgo.InteractionCreate) error {
	game := entities.GameType(stringOption(optionMap(i.ApplicationCommandData().Options), "game"))

	resp, err := b.leaderboardResponse(ctx, game, 1)
	if err != nil {
		return discord.SendErrorResponse(b.session, i, err)
	}
	return discord.SendResponse(b.session, i, resp)
}

func (b *Bot) handleStatsCommand(ctx context.Context, i *discordgo.InteractionCreate) error {
	game := entities.GameType(stringOption(optionMap(i.ApplicationCommandData().Options), "game"))

	rank, err := b.deps.Statistics.GetPlayerRank(ctx, game, userIDOf(i))
	if err != nil {
		b.logger.Error("Error getting stats for %s: %v", userIDOf(i), err)
		return discord.SendErrorResponse(b.session, i, types.WrapError(types.ErrDatabaseError, "statistics unavailable", err))
	}
	return discord.SendResponse(b.session, i, discord.NewEmbedResponse(createStatsEmbed(game, rank), nil, true))
}

// handleComponent serves the refresh and pagination buttons. Custom IDs are
// "wingo_refresh:<game>:<seconds>" and "leaderboard:<game>:<page>".
func (b *Bot) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) error {
	parts := strings.Split(i.MessageComponentData().CustomID, ":")
	if len(parts) != 3 {
		return discord.SendErrorResponse(b.session, i, types.NewGameError(types.ErrInvalidArgument, "unknown button"))
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return discord.SendErrorResponse(b.session, i, types.NewGameError(types.ErrInvalidArgument, "unknown button"))
	}

	switch parts[0] {
	case refreshPrefix:
		mode := entities.NewMode(entities.GameType(parts[1]), n)
		if !b.deps.Betting.KnownMode(mode) {
			return discord.SendErrorResponse(b.session, i, types.NewGameError(types.ErrUnknownMode, "that game is no longer offered"))
		}
		embed, err := b.roundEmbed(ctx, mode)
		if err != nil {
			return discord.SendErrorResponse(b.session, i, err)
		}
		return discord.UpdateResponse(b.session, i, discord.NewEmbedResponse(embed, createRefreshButtons(mode), false))

	case leaderboardPrefix:
		resp, err := b.leaderboardResponse(ctx, entities.GameType(parts[1]), n)
		if err != nil {
			return discord.SendErrorResponse(b.session, i, err)
		}
		return discord.UpdateResponse(b.session, i, resp)
	}
	return discord.SendErrorResponse(b.session, i, types.NewGameError(types.ErrInvalidArgument, "unknown button"))
}

func (b *Bot) roundEmbed(ctx context.Context, mode entities.Mode) (*discordgo.MessageEmbed, error) {
	current, open := b.deps.Betting.CurrentPeriod(mode)
	results, err := b.deps.Results.ListOutcomes(ctx, mode, recentResults)
	if err != nil {
		b.logger.Error("Error listing outcomes for %s: %v", mode, err)
		return nil, types.WrapError(types.ErrDatabaseError, "results unavailable", err)
	}
	return createRoundEmbed(mode, current, open, b.deps.Betting.IsLocked(mode, current.Token), results), nil
}

func (b *Bot) leaderboardResponse(ctx context.Context, game entities.GameType, page int) (*discord.Response, error) {
	board, err := b.deps.Statistics.GetLeaderboard(ctx, game, page, 10)
	if err != nil {
		b.logger.Error("Error building leaderboard: %v", err)
		return nil, types.WrapError(types.ErrDatabaseError, "leaderboard unavailable", err)
	}
	return discord.NewEmbedResponse(createLeaderboardEmbed(board), createLeaderboardButtons(board), false), nil
}

// modeFromOptions resolves game and duration, defaulting to the first
// configured mode that matches whatever was given
func (b *Bot) modeFromOptions(opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (entities.Mode, error) {
	game := entities.GameType(stringOption(opts, "game"))
	secs := int(intOption(opts, "duration"))

	for _, m := range b.deps.Betting.Modes() {
		if (game == "" || m.GameType == game) && (secs == 0 || m.DurationSeconds() == secs) {
			return m, nil
		}
	}
	return entities.Mode{}, types.NewGameError(types.ErrUnknownMode, fmt.Sprintf("%s %s is not offered", game, formatDuration(secs)))
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := opts[name]; ok && opt.Type == discordgo.ApplicationCommandOptionString {
		return opt.StringValue()
	}
	return ""
}

func intOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	if opt, ok := opts[name]; ok && opt.Type == discordgo.ApplicationCommandOptionInteger {
		return opt.IntValue()
	}
	return 0
}

// userIDOf returns the invoking user in guilds and DMs alike
func userIDOf(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
