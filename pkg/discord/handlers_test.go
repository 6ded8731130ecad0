package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	discordmock "github.com/fadedpez/wingo/internal/discord/mock"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/events"
	"github.com/fadedpez/wingo/pkg/period"
	"github.com/fadedpez/wingo/pkg/repositories/ledger"
	"github.com/fadedpez/wingo/pkg/services/betting"
	"github.com/fadedpez/wingo/pkg/services/statistics"
	"github.com/fadedpez/wingo/pkg/services/wallet"
	mock_wallet_service "github.com/fadedpez/wingo/pkg/services/wallet/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type BotTestSuite struct {
	suite.Suite
	ctx      context.Context
	repo     *ledger.MemoryRepository
	session  *discordmock.SessionHandler
	betting  *betting.Service
	bot      *Bot
	response *discordgo.InteractionResponse
}

func TestBotSuite(t *testing.T) {
	suite.Run(t, new(BotTestSuite))
}

func (s *BotTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = ledger.NewMemoryRepository()
	s.session = &discordmock.SessionHandler{}
	s.session.Test(s.T())
	s.response = nil

	modes := []entities.Mode{entities.NewMode("parity", 60), entities.NewMode("parity", 180), entities.NewMode("sapre", 60)}
	wallets := wallet.NewService(s.repo, 1000)
	s.betting = betting.NewService(s.repo, wallets, period.DefaultClock(), modes, betting.Limits{MinStake: 10, MaxStake: 5000})
	// Round 202610160631 with 40s left
	s.betting.SetNow(func() time.Time { return time.Date(2026, time.October, 16, 10, 30, 20, 0, period.IST) })

	s.bot = NewBot(s.session, Config{AppID: "app", GuildID: "guild", ResultsChannelID: "results"}, Deps{
		Betting:    s.betting,
		Wallets:    wallets,
		Results:    s.repo,
		Statistics: statistics.NewService(s.repo),
	})
}

func (s *BotTestSuite) expectResponse() {
	s.session.On("InteractionRespond", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			s.response = args.Get(1).(*discordgo.InteractionResponse)
		}).
		Return(nil).Once()
}

func command(id, user, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:     id,
			Type:   discordgo.InteractionApplicationCommand,
			Member: &discordgo.Member{User: &discordgo.User{ID: user}},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: opts,
			},
		},
	}
}

func button(id, user, customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:   id,
			Type: discordgo.InteractionMessageComponent,
			User: &discordgo.User{ID: user},
			Data: discordgo.MessageComponentInteractionData{CustomID: customID},
		},
	}
}

func str(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

// Discord delivers integer options as JSON numbers
func num(name string, value float64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: value}
}

func (s *BotTestSuite) betCommand(id string, stake float64) *discordgo.InteractionCreate {
	return command(id, "u1", "bet", str("game", "parity"), num("duration", 60), str("kind", "color"), str("pick", "red"), num("stake", stake))
}

func (s *BotTestSuite) TestBetCommandPlacesBet() {
	s.expectResponse()

	s.bot.dispatch(s.ctx, s.betCommand("i-1", 100))

	s.Require().NotNil(s.response)
	s.Equal(discordgo.MessageFlagsEphemeral, s.response.Data.Flags)
	s.Require().Len(s.response.Data.Embeds, 1)
	s.Equal("✅ Bet placed", s.response.Data.Embeds[0].Title)

	bets, err := s.repo.GetBetsByUser(s.ctx, "u1", 10)
	s.Require().NoError(err)
	s.Require().Len(bets, 1)
	s.Equal("discord-i-1", bets[0].ID)
	s.Equal("202610160631", bets[0].Period)

	w, err := s.repo.GetWallet(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(900), w.Balance)
}

func (s *BotTestSuite) TestBetCommandRejection() {
	s.expectResponse()

	s.bot.dispatch(s.ctx, s.betCommand("i-2", 5))

	s.Require().NotNil(s.response)
	s.True(strings.HasPrefix(s.response.Data.Content, "🪙"), s.response.Data.Content)
	s.Equal(discordgo.MessageFlagsEphemeral, s.response.Data.Flags)
}

func (s *BotTestSuite) TestRedeliveredInteractionIsIgnored() {
	s.expectResponse()

	s.bot.handleInteraction(nil, s.betCommand("i-3", 100))
	s.bot.handleInteraction(nil, s.betCommand("i-3", 100))

	s.session.AssertNumberOfCalls(s.T(), "InteractionRespond", 1)
	w, err := s.repo.GetWallet(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(900), w.Balance)
}

func (s *BotTestSuite) TestWingoCommandDefaultsToFirstMode() {
	err := s.repo.CreateOutcome(s.ctx, entities.NewOutcome(entities.NewMode("parity", 60), "202610160630", 5, time.Now()))
	s.Require().NoError(err)
	s.expectResponse()

	s.bot.dispatch(s.ctx, command("i-4", "u1", "wingo"))

	s.Require().NotNil(s.response)
	embed := s.response.Data.Embeds[0]
	s.Equal("🎲 PARITY · 1m", embed.Title)
	s.Equal("`202610160631`", embed.Fields[0].Value)
	s.Equal("0:40", embed.Fields[1].Value)
	s.Contains(embed.Fields[3].Value, "202610160630")
	s.Len(s.response.Data.Components, 1)
}

func (s *BotTestSuite) TestWingoCommandUnknownMode() {
	s.expectResponse()

	s.bot.dispatch(s.ctx, command("i-5", "u1", "wingo", str("game", "sapre"), num("duration", 180)))

	s.True(strings.HasPrefix(s.response.Data.Content, "🔍"), s.response.Data.Content)
}

func (s *BotTestSuite) TestRefreshButtonUpdatesMessage() {
	s.expectResponse()

	s.bot.dispatch(s.ctx, button("i-6", "u1", "wingo_refresh:parity:180"))

	s.Equal(discordgo.InteractionResponseUpdateMessage, s.response.Type)
	s.Equal("🎲 PARITY · 3m", s.response.Data.Embeds[0].Title)
}

func (s *BotTestSuite) TestMalformedButton() {
	s.expectResponse()

	s.bot.dispatch(s.ctx, button("i-7", "u1", "join_game"))

	s.Equal(discordgo.InteractionResponseChannelMessageWithSource, s.response.Type)
	s.Equal(discordgo.MessageFlagsEphemeral, s.response.Data.Flags)
}

func (s *BotTestSuite) TestLeaderboard() {
	s.expectResponse()

	s.bot.dispatch(s.ctx, command("i-8", "u1", "leaderboard", str("game", "parity")))

	embed := s.response.Data.Embeds[0]
	s.Equal("🏆 Leaderboard · PARITY", embed.Title)
	s.Equal("No settled bets yet.", embed.Description)

	s.expectResponse()
	s.bot.dispatch(s.ctx, button("i-9", "u1", "leaderboard:parity:2"))
	s.Equal(discordgo.InteractionResponseUpdateMessage, s.response.Type)
}

func (s *BotTestSuite) TestStatsBeforeFirstBet() {
	s.expectResponse()

	s.bot.dispatch(s.ctx, command("i-10", "u1", "stats"))

	s.Equal(discordgo.MessageFlagsEphemeral, s.response.Data.Flags)
	s.Equal("📊 Your stats", s.response.Data.Embeds[0].Title)
	s.Equal("No settled bets yet. Try /bet!", s.response.Data.Embeds[0].Description)
}

func (s *BotTestSuite) TestPublishAnnouncesSettledRounds() {
	o := entities.NewOutcome(entities.NewMode("parity", 60), "202610160631", 0, time.Now())
	s.session.On("ChannelMessageSendEmbed", "results", mock.MatchedBy(func(e *discordgo.MessageEmbed) bool {
		return e.Title == "🎯 parity/60s round 202610160631"
	})).Return(&discordgo.Message{}, nil).Once()

	err := s.bot.Publish(s.ctx, &events.Event{
		Type: events.TypeRoundSettled, GameType: "parity", Duration: 60, Period: "202610160631",
		Outcome: o, Settled: 2, Timestamp: time.Now(),
	})
	s.NoError(err)

	// Outcome-only events are not announced
	s.NoError(s.bot.Publish(s.ctx, events.OutcomeCreated(o, time.Now())))
	s.session.AssertExpectations(s.T())
}

func (s *BotTestSuite) TestStartRegistersCommands() {
	s.session.On("AddHandler", mock.Anything).Return(func() {}).Twice()
	s.session.On("Open").Return(nil).Once()
	s.session.On("ApplicationCommandCreate", "app", "guild", mock.Anything).Return(&discordgo.ApplicationCommand{}, nil).Times(5)

	s.NoError(s.bot.Start())
	s.session.AssertExpectations(s.T())
}

func (s *BotTestSuite) TestStartFailsWhenGatewayUnavailable() {
	s.session.On("AddHandler", mock.Anything).Return(func() {})
	s.session.On("Open").Return(errors.New("websocket: bad handshake"))

	s.Error(s.bot.Start())
	s.session.AssertNotCalled(s.T(), "ApplicationCommandCreate", mock.Anything, mock.Anything, mock.Anything)
}

func (s *BotTestSuite) TestStopCleansUpInDevelopment() {
	s.bot.config.CleanupCommands = true
	s.session.On("ApplicationCommands", "app", "guild").Return([]*discordgo.ApplicationCommand{{ID: "c1", Name: "wingo"}, {ID: "c2", Name: "bet"}}, nil)
	s.session.On("ApplicationCommandDelete", "app", "guild", mock.Anything).Return(nil).Twice()
	s.session.On("Close").Return(nil).Once()

	s.NoError(s.bot.Stop())
	s.session.AssertExpectations(s.T())
}

func TestWalletCommand(t *testing.T) {
	testCases := []struct {
		name   string
		setup  func(m *mock_wallet_service.MockWalletService)
		assert func(t *testing.T, r *discordgo.InteractionResponse)
	}{
		{
			name: "new wallet",
			setup: func(m *mock_wallet_service.MockWalletService) {
				m.EXPECT().GetOrCreateWallet(gomock.Any(), "u1").Return(&entities.Wallet{UserID: "u1", Balance: 1000}, true, nil)
				m.EXPECT().GetTransactions(gomock.Any(), "u1", 5).Return([]*entities.Transaction{
					{Amount: 1000, Type: entities.TransactionTypeDeposit, Description: "Opening balance"},
				}, nil)
			},
			assert: func(t *testing.T, r *discordgo.InteractionResponse) {
				embed := r.Data.Embeds[0]
				assert.Contains(t, embed.Description, "Balance: **1000**")
				assert.Contains(t, embed.Description, "Welcome")
				assert.Contains(t, embed.Fields[0].Value, "`+1000`")
			},
		},
		{
			name: "storage down",
			setup: func(m *mock_wallet_service.MockWalletService) {
				m.EXPECT().GetOrCreateWallet(gomock.Any(), "u1").Return(nil, false, errors.New("connection refused"))
			},
			assert: func(t *testing.T, r *discordgo.InteractionResponse) {
				assert.Equal(t, "💾 Something went wrong on our side, please try again.", r.Data.Content)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			wallets := mock_wallet_service.NewMockWalletService(ctrl)
			tc.setup(wallets)

			session := &discordmock.SessionHandler{}
			var response *discordgo.InteractionResponse
			session.On("InteractionRespond", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { response = args.Get(1).(*discordgo.InteractionResponse) }).
				Return(nil)

			bot := NewBot(session, Config{}, Deps{Wallets: wallets})
			bot.dispatch(context.Background(), command("w-1", "u1", "wallet"))

			if assert.NotNil(t, response) {
				assert.Equal(t, discordgo.MessageFlagsEphemeral, response.Data.Flags)
				tc.assert(t, response)
			}
		})
	}
}

func TestFirstDelivery(t *testing.T) {
	bot := NewBot(nil, Config{}, Deps{})
	now := time.Now()

	assert.True(t, bot.firstDelivery("a", now))
	assert.False(t, bot.firstDelivery("a", now))

	// Old entries are pruned once the map grows
	later := now.Add(time.Hour)
	for i := 0; i < 101; i++ {
		bot.firstDelivery(fmt.Sprintf("later-%d", i), later)
	}
	assert.True(t, bot.firstDelivery("a", later))
	assert.False(t, bot.firstDelivery("later-0", later))
}
