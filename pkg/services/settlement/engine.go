// Package settlement resolves closed rounds and pays out their bets. Every
// operation is safe to run repeatedly and from several processes at once:
// outcomes are created at most once per round and each bet moves from
// unsettled to settled exactly once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/wingo/internal/logging"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/events"
	"github.com/fadedpez/wingo/pkg/period"
	"github.com/fadedpez/wingo/pkg/repositories/ledger"
	"github.com/fadedpez/wingo/pkg/services/outcome"
)

// DefaultLookBack is how many earlier rounds each sweep re-checks per mode
const DefaultLookBack = 3

// ErrStorageUnavailable marks a sweep that could not reach storage at all
var ErrStorageUnavailable = errors.New("storage unavailable")

// RoundState is where a round sits in its lifecycle
type RoundState string

const (
	RoundOpen     RoundState = "open"     // accepting bets
	RoundClosed   RoundState = "closed"   // window shut, no outcome yet
	RoundResolved RoundState = "resolved" // outcome exists, bets pending
	RoundSettled  RoundState = "settled"  // outcome exists, no unsettled bets
)

// Store is the part of the ledger the engine needs
type Store interface {
	ledger.OutcomeStore
	ledger.BetStore
	Ping(ctx context.Context) error
}

// Engine settles rounds
type Engine struct {
	store     Store
	generator *outcome.Generator
	clock     *period.Clock
	publisher events.Publisher
	modes     []entities.Mode
	lookBack  int
	now       func() time.Time
	logger    *logging.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLookBack sets how many previous rounds a sweep re-checks per mode
func WithLookBack(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.lookBack = n
		}
	}
}

// WithNow replaces the wall clock
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger replaces the default logger
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a settlement engine for the given modes. A nil publisher
// discards events.
func NewEngine(store Store, generator *outcome.Generator, clock *period.Clock, publisher events.Publisher, modes []entities.Mode, opts ...Option) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	e := &Engine{
		store:     store,
		generator: generator,
		clock:     clock,
		publisher: publisher,
		modes:     modes,
		lookBack:  DefaultLookBack,
		now:       time.Now,
		logger:    logging.Default,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Modes returns the modes the engine sweeps
func (e *Engine) Modes() []entities.Mode {
	return e.modes
}

// RoundReport describes one SettleRound call
type RoundReport struct {
	Mode           entities.Mode     `json:"-"`
	GameType       entities.GameType `json:"game_type"`
	Duration       int               `json:"duration"`
	Period         string            `json:"period"`
	State          RoundState        `json:"state"`
	Outcome        *entities.Outcome `json:"outcome,omitempty"`
	OutcomeCreated bool              `json:"outcome_created"`
	Settled        int               `json:"settled"`
	AlreadySettled int               `json:"already_settled"`
	Failed         int               `json:"failed"`
	TotalStaked    int64             `json:"total_staked"`
	TotalPayout    int64             `json:"total_payout"`
}

// SettleRound resolves one round if its betting window has closed and settles
// every bet still unsettled on it. A bet that fails to settle is logged and
// left for a later run; it does not stop the others.
func (e *Engine) SettleRound(ctx context.Context, mode entities.Mode, token string) (*RoundReport, error) {
	report := &RoundReport{
		Mode:     mode,
		GameType: mode.GameType,
		Duration: mode.DurationSeconds(),
		Period:   token,
		State:    RoundOpen,
	}

	p, err := e.clock.Parse(token, mode.Duration)
	if err != nil {
		return report, err
	}
	if !e.clock.IsClosed(p, e.now()) {
		return report, nil
	}

	result, created, err := e.generator.Ensure(ctx, mode, token)
	if err != nil {
		report.State = RoundClosed
		return report, err
	}
	report.Outcome = result
	report.OutcomeCreated = created
	report.State = RoundResolved
	if created {
		e.publish(ctx, events.OutcomeCreated(result, e.now()))
	}

	bets, err := e.store.UnsettledBetsFor(ctx, mode, token)
	if err != nil {
		return report, fmt.Errorf("error fetching unsettled bets for %s round %s: %w", mode, token, err)
	}

	for _, bet := range bets {
		payout, betResult := entities.Payout(bet.Selection, bet.Stake, result)

		ok, err := e.store.MarkSettled(ctx, bet.ID, betResult, payout)
		if err != nil {
			report.Failed++
			e.logger.Error("Failed to settle bet %s on %s round %s: %v", bet.ID, mode, token, err)
			continue
		}
		if !ok {
			// Settled by a concurrent run
			report.AlreadySettled++
			continue
		}

		report.Settled++
		report.TotalStaked += bet.Stake
		report.TotalPayout += payout
	}

	if report.Failed == 0 {
		report.State = RoundSettled
	}

	if report.Settled > 0 {
		e.logger.Info("Settled %d bets on %s round %s (digit %d, paid %d)", report.Settled, mode, token, result.Number, report.TotalPayout)
		e.publish(ctx, &events.Event{
			Type:        events.TypeRoundSettled,
			GameType:    mode.GameType,
			Duration:    mode.DurationSeconds(),
			Period:      token,
			Outcome:     result,
			Settled:     report.Settled,
			Failed:      report.Failed,
			TotalStaked: report.TotalStaked,
			TotalPayout: report.TotalPayout,
			Timestamp:   e.now(),
		})
	}

	return report, nil
}

// RoundState reports the lifecycle state of a round right now
func (e *Engine) RoundState(ctx context.Context, mode entities.Mode, token string) (RoundState, error) {
	p, err := e.clock.Parse(token, mode.Duration)
	if err != nil {
		return "", err
	}
	if !e.clock.IsClosed(p, e.now()) {
		return RoundOpen, nil
	}

	if _, err := e.store.GetOutcome(ctx, mode, token); err != nil {
		if errors.Is(err, ledger.ErrOutcomeNotFound) {
			return RoundClosed, nil
		}
		return "", err
	}

	bets, err := e.store.UnsettledBetsFor(ctx, mode, token)
	if err != nil {
		return "", err
	}
	if len(bets) > 0 {
		return RoundResolved, nil
	}
	return RoundSettled, nil
}

func (e *Engine) publish(ctx context.Context, event *events.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("Failed to publish %s for %s round %s: %v", event.Type, event.Mode(), event.Period, err)
	}
}
