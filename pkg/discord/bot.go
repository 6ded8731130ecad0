package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fadedpez/wingo/internal/discord"
	"github.com/fadedpez/wingo/internal/logging"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/events"
	"github.com/fadedpez/wingo/pkg/services/betting"
	"github.com/fadedpez/wingo/pkg/services/statistics"
	"github.com/fadedpez/wingo/pkg/services/wallet"
)

// ResultSource lists recent outcomes for a mode
type ResultSource interface {
	ListOutcomes(ctx context.Context, mode entities.Mode, limit int) ([]*entities.Outcome, error)
}

// Config identifies where the bot registers commands and posts results
type Config struct {
	AppID   string
	GuildID string

	// ResultsChannelID receives an embed for every settled round; empty
	// disables announcements
	ResultsChannelID string

	// CleanupCommands removes the slash commands on Stop (development)
	CleanupCommands bool
}

// Deps are the services behind the chat commands
type Deps struct {
	Betting    *betting.Service
	Wallets    wallet.WalletService
	Results    ResultSource
	Statistics *statistics.Service
}

// Bot represents the Discord bot instance
type Bot struct {
	session discord.SessionHandler
	config  Config
	deps    Deps
	logger  *logging.Logger

	// Interaction tracking to prevent duplicates
	interactionMu         sync.Mutex
	processedInteractions map[string]time.Time
}

// NewBot creates a new instance of the bot
func NewBot(session discord.SessionHandler, config Config, deps Deps) *Bot {
	return &Bot{
		session:               session,
		config:                config,
		deps:                  deps,
		logger:                logging.Default,
		processedInteractions: make(map[string]time.Time),
	}
}

// Start registers handlers, connects and installs the slash commands
func (b *Bot) Start() error {
	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(b.handleInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	for _, cmd := range b.commands() {
		if _, err := b.session.ApplicationCommandCreate(b.config.AppID, b.config.GuildID, cmd); err != nil {
			return fmt.Errorf("error creating command %s: %w", cmd.Name, err)
		}
		b.logger.Info("Registered command: %s", cmd.Name)
	}
	return nil
}

// Stop closes the Discord connection
func (b *Bot) Stop() error {
	if b.config.CleanupCommands {
		b.cleanupCommands()
	}
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("error closing connection: %w", err)
	}
	return nil
}

// Publish implements events.Publisher by announcing settled rounds
func (b *Bot) Publish(ctx context.Context, event *events.Event) error {
	if b.config.ResultsChannelID == "" || event.Type != events.TypeRoundSettled || event.Outcome == nil {
		return nil
	}
	if _, err := b.session.ChannelMessageSendEmbed(b.config.ResultsChannelID, createSettledEmbed(event)); err != nil {
		return fmt.Errorf("error announcing %s round %s: %w", event.Mode(), event.Period, err)
	}
	return nil
}

func (b *Bot) cleanupCommands() {
	registered, err := b.session.ApplicationCommands(b.config.AppID, b.config.GuildID)
	if err != nil {
		b.logger.Warn("Error listing commands for cleanup: %v", err)
		return
	}
	for _, cmd := range registered {
		if err := b.session.ApplicationCommandDelete(b.config.AppID, b.config.GuildID, cmd.ID); err != nil {
			b.logger.Warn("Error deleting command %s: %v", cmd.Name, err)
		}
	}
}

func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("Bot is ready: %v#%v", r.User.Username, r.User.Discriminator)
}

// firstDelivery reports whether the interaction has not been seen yet.
// Entries older than ten minutes are dropped.
func (b *Bot) firstDelivery(id string, now time.Time) bool {
	b.interactionMu.Lock()
	defer b.interactionMu.Unlock()

	if _, seen := b.processedInteractions[id]; seen {
		return false
	}
	b.processedInteractions[id] = now

	if len(b.processedInteractions) > 100 {
		for old, at := range b.processedInteractions {
			if now.Sub(at) > 10*time.Minute {
				delete(b.processedInteractions, old)
			}
		}
	}
	return true
}
