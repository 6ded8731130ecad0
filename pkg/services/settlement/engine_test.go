package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/events"
	mock_events "github.com/fadedpez/wingo/pkg/events/mock"
	"github.com/fadedpez/wingo/pkg/period"
	"github.com/fadedpez/wingo/pkg/repositories/ledger"
	"github.com/fadedpez/wingo/pkg/services/outcome"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type fixedDigit int

func (d fixedDigit) IntN(n int) int { return int(d) % n }

// flakyStore fails selected operations on top of the memory ledger
type flakyStore struct {
	*ledger.MemoryRepository
	failBet string
	pingErr error
}

func (f *flakyStore) MarkSettled(ctx context.Context, betID string, result entities.BetResult, payout int64) (bool, error) {
	if betID == f.failBet {
		return false, errors.New("wallet update timed out")
	}
	return f.MemoryRepository.MarkSettled(ctx, betID, result, payout)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	return f.pingErr
}

type EngineTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *flakyStore
	clock *period.Clock
	now   time.Time
	mode  entities.Mode
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = &flakyStore{MemoryRepository: ledger.NewMemoryRepository()}
	s.clock = period.DefaultClock()
	// 2s before the end of round 0631, so the current round is closed
	s.now = time.Date(2026, time.October, 16, 10, 30, 58, 0, period.IST)
	s.mode = entities.NewMode("parity", 60)
}

func (s *EngineTestSuite) newEngine(digit int, publisher events.Publisher, modes ...entities.Mode) *Engine {
	if len(modes) == 0 {
		modes = []entities.Mode{s.mode}
	}
	gen := outcome.NewGenerator(s.store, fixedDigit(digit))
	return NewEngine(s.store, gen, s.clock, publisher, modes, WithNow(func() time.Time { return s.now }))
}

func (s *EngineTestSuite) fundedUser(userID string, balance int64) {
	_, err := s.store.CreateWallet(s.ctx, userID, balance)
	s.Require().NoError(err)
}

func (s *EngineTestSuite) placeBet(userID, token string, sel entities.Selection, stake int64) *entities.Bet {
	bet := &entities.Bet{
		UserID:    userID,
		GameType:  s.mode.GameType,
		Duration:  s.mode.Duration,
		Period:    token,
		Selection: sel,
		Stake:     stake,
	}
	_, err := s.store.PlaceBet(s.ctx, bet)
	s.Require().NoError(err)
	return bet
}

func (s *EngineTestSuite) balance(userID string) int64 {
	wallet, err := s.store.GetWallet(s.ctx, userID)
	s.Require().NoError(err)
	return wallet.Balance
}

func (s *EngineTestSuite) TestSweepIsIdempotent() {
	// Setup
	s.fundedUser("alice", 1000)
	s.placeBet("alice", "202610160631", entities.NumberSelection(7), 100)
	engine := s.newEngine(7, nil)

	// Execute
	first, err := engine.RunSweep(s.ctx)
	s.Require().NoError(err)
	afterFirst := s.balance("alice")
	second, err := engine.RunSweep(s.ctx)
	s.Require().NoError(err)

	// Assert
	s.Equal(1800, int(afterFirst), "900 payout on a 100 stake")
	s.Equal(afterFirst, s.balance("alice"), "second sweep must not credit again")
	s.Equal(1, first.BetsSettled)
	s.Equal(0, second.BetsSettled)
	s.Len(first.ResultsGenerated, 4, "current round plus three look-back rounds")
	s.Empty(second.ResultsGenerated)

	outcomes, err := s.store.ListOutcomes(s.ctx, s.mode, 0)
	s.Require().NoError(err)
	s.Len(outcomes, 4)
	s.Equal("202610160631", outcomes[0].Period)
}

func (s *EngineTestSuite) TestSweepPayoutTable() {
	// Setup
	s.fundedUser("alice", 1000)
	number := s.placeBet("alice", "202610160631", entities.NumberSelection(2), 100)
	red := s.placeBet("alice", "202610160631", entities.ColorSelection(entities.ColorRed), 100)
	green := s.placeBet("alice", "202610160631", entities.ColorSelection(entities.ColorGreen), 100)
	engine := s.newEngine(2, nil)

	// Execute
	_, err := engine.RunSweep(s.ctx)
	s.Require().NoError(err)

	// Assert
	bets, err := s.store.GetBetsByUser(s.ctx, "alice", 0)
	s.Require().NoError(err)
	byID := make(map[string]*entities.Bet)
	for _, b := range bets {
		byID[b.ID] = b
	}
	s.Equal(int64(900), byID[number.ID].Payout)
	s.Equal(entities.BetResultWin, byID[number.ID].Result)
	s.Equal(int64(200), byID[red.ID].Payout)
	s.Equal(entities.BetResultWin, byID[red.ID].Result)
	s.Equal(int64(0), byID[green.ID].Payout)
	s.Equal(entities.BetResultLose, byID[green.ID].Result)
	s.Equal(int64(1000-300+900+200), s.balance("alice"))
}

func (s *EngineTestSuite) TestOpenRoundIsNotResolved() {
	// Setup
	s.now = time.Date(2026, time.October, 16, 10, 30, 10, 0, period.IST)
	s.fundedUser("alice", 1000)
	s.placeBet("alice", "202610160631", entities.NumberSelection(7), 100)
	engine := s.newEngine(7, nil)

	// Execute
	report, err := engine.RunSweep(s.ctx)

	// Assert
	s.Require().NoError(err)
	s.Equal(3, report.RoundsChecked)
	for _, r := range report.ResultsGenerated {
		s.NotEqual("202610160631", r.Period)
	}
	_, err = s.store.GetOutcome(s.ctx, s.mode, "202610160631")
	s.ErrorIs(err, ledger.ErrOutcomeNotFound)
	s.Equal(int64(900), s.balance("alice"))

	state, err := engine.RoundState(s.ctx, s.mode, "202610160631")
	s.Require().NoError(err)
	s.Equal(RoundOpen, state)
}

func (s *EngineTestSuite) TestBetFailureIsIsolated() {
	// Setup
	s.fundedUser("alice", 1000)
	s.fundedUser("bob", 1000)
	failing := s.placeBet("alice", "202610160631", entities.NumberSelection(7), 100)
	s.placeBet("bob", "202610160631", entities.NumberSelection(7), 100)
	s.store.failBet = failing.ID
	engine := s.newEngine(7, nil)

	// Execute
	report, err := engine.RunSweep(s.ctx)

	// Assert
	s.Require().NoError(err)
	s.Equal(1, report.BetsSettled)
	s.Equal(1, report.BetsFailed)
	s.Equal(int64(1800), s.balance("bob"))
	s.Equal(int64(900), s.balance("alice"))

	state, err := engine.RoundState(s.ctx, s.mode, "202610160631")
	s.Require().NoError(err)
	s.Equal(RoundResolved, state)

	// The next sweep retries once the fault clears
	s.store.failBet = ""
	report, err = engine.RunSweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.BetsSettled)
	s.Equal(int64(1800), s.balance("alice"))

	state, err = engine.RoundState(s.ctx, s.mode, "202610160631")
	s.Require().NoError(err)
	s.Equal(RoundSettled, state)
}

func (s *EngineTestSuite) TestSweepFailsWhenStorageUnreachable() {
	s.store.pingErr = errors.New("connection refused")
	engine := s.newEngine(1, nil)

	_, err := engine.RunSweep(s.ctx)

	s.ErrorIs(err, ErrStorageUnavailable)
}

func (s *EngineTestSuite) TestConcurrentSweepsPayOnce() {
	// Setup
	s.fundedUser("alice", 1000)
	s.placeBet("alice", "202610160631", entities.ColorSelection(entities.ColorViolet), 100)
	sapre := entities.NewMode("sapre", 60)
	engine := s.newEngine(0, nil, s.mode, sapre)

	// Execute
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RunSweep(s.ctx)
			s.NoError(err)
		}()
	}
	wg.Wait()

	// Assert
	s.Equal(int64(1100), s.balance("alice"))
	for _, mode := range []entities.Mode{s.mode, sapre} {
		outcomes, err := s.store.ListOutcomes(s.ctx, mode, 0)
		s.Require().NoError(err)
		s.Len(outcomes, 4)
	}
}

func (s *EngineTestSuite) TestFixUnsettledBets() {
	// Setup
	s.fundedUser("alice", 1000)
	// Yesterday, far outside the sweep look-back
	s.placeBet("alice", "202610150100", entities.NumberSelection(3), 100)
	s.placeBet("alice", "202610150100", entities.ColorSelection(entities.ColorGreen), 100)
	s.placeBet("alice", "legacy-42", entities.NumberSelection(3), 100)
	// Still open at 10:30:10
	s.now = time.Date(2026, time.October, 16, 10, 30, 10, 0, period.IST)
	s.placeBet("alice", "202610160631", entities.NumberSelection(3), 100)
	engine := s.newEngine(3, nil)

	// Execute
	report, err := engine.FixUnsettledBets(s.ctx)

	// Assert
	s.Require().NoError(err)
	s.Equal(2, report.SettledCount)
	s.Equal(1, report.Rounds)
	s.Equal(2, report.Skipped)
	s.Equal(0, report.Failed)

	created, err := s.store.GetOutcome(s.ctx, s.mode, "202610150100")
	s.Require().NoError(err)
	s.Equal(3, created.Number)
	s.Equal(int64(600+900+200), s.balance("alice"))

	again, err := engine.FixUnsettledBets(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, again.SettledCount)
}

func (s *EngineTestSuite) TestClearStaleData() {
	// Setup
	s.fundedUser("alice", 1000)
	s.placeBet("alice", "legacy-42", entities.NumberSelection(3), 100)
	s.placeBet("alice", "202610160631", entities.NumberSelection(3), 100)
	s.Require().NoError(s.store.CreateOutcome(s.ctx, entities.NewOutcome(s.mode, "2026-10-16-1", 4, s.now)))
	engine := s.newEngine(3, nil)

	// Execute
	report, err := engine.ClearStaleData(s.ctx)

	// Assert
	s.Require().NoError(err)
	s.Equal(1, report.DeletedResults)
	s.Equal(1, report.DeletedBets)
	s.ElementsMatch([]string{"legacy-42", "2026-10-16-1"}, report.Periods)
	s.Equal(int64(900), s.balance("alice"), "stale stake refunded")

	report, err = engine.ClearStaleData(s.ctx)
	s.Require().NoError(err)
	s.Zero(report.DeletedBets)
	s.Empty(report.Periods)
}

func (s *EngineTestSuite) TestRoundStateLifecycle() {
	engine := s.newEngine(4, nil)
	s.fundedUser("alice", 1000)
	s.placeBet("alice", "202610160631", entities.NumberSelection(4), 100)

	state, err := engine.RoundState(s.ctx, s.mode, "202610160631")
	s.Require().NoError(err)
	s.Equal(RoundClosed, state)

	s.Require().NoError(s.store.CreateOutcome(s.ctx, entities.NewOutcome(s.mode, "202610160631", 4, s.now)))
	state, err = engine.RoundState(s.ctx, s.mode, "202610160631")
	s.Require().NoError(err)
	s.Equal(RoundResolved, state)

	report, err := engine.SettleRound(s.ctx, s.mode, "202610160631")
	s.Require().NoError(err)
	s.Equal(RoundSettled, report.State)
	s.False(report.OutcomeCreated)

	state, err = engine.RoundState(s.ctx, s.mode, "202610160631")
	s.Require().NoError(err)
	s.Equal(RoundSettled, state)

	_, err = engine.RoundState(s.ctx, s.mode, "garbage")
	s.ErrorIs(err, period.ErrMalformedToken)
}

func (s *EngineTestSuite) TestEventsArePublished() {
	// Setup
	ctrl := gomock.NewController(s.T())
	publisher := mock_events.NewMockPublisher(ctrl)
	s.fundedUser("alice", 1000)
	s.placeBet("alice", "202610160631", entities.NumberSelection(9), 100)
	engine := s.newEngine(9, publisher)
	engine.lookBack = 0

	var got []*events.Event
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, e *events.Event) error {
		got = append(got, e)
		return errors.New("bus offline")
	}).Times(2)

	// Execute
	report, err := engine.RunSweep(s.ctx)

	// Assert
	s.Require().NoError(err, "publish failures never fail a sweep")
	s.Equal(1, report.BetsSettled)
	s.Require().Len(got, 2)
	s.Equal(events.TypeOutcomeCreated, got[0].Type)
	s.Equal(9, got[0].Outcome.Number)
	s.Equal(events.TypeRoundSettled, got[1].Type)
	s.Equal(1, got[1].Settled)
	s.Equal(int64(900), got[1].TotalPayout)
}

// stalledPublisher ignores its context, like a client blocked on network I/O
type stalledPublisher struct {
	delay time.Duration
}

func (p stalledPublisher) Publish(ctx context.Context, event *events.Event) error {
	time.Sleep(p.delay)
	return nil
}

func (s *EngineTestSuite) TestStalledObserverDoesNotStallSweep() {
	// Setup
	second := entities.NewMode("sapre", 60)
	s.fundedUser("bob", 1000)
	bet := &entities.Bet{
		UserID:    "bob",
		GameType:  second.GameType,
		Duration:  second.Duration,
		Period:    "202610160631",
		Selection: entities.NumberSelection(4),
		Stake:     100,
	}
	_, err := s.store.PlaceBet(s.ctx, bet)
	s.Require().NoError(err)

	publisher := events.WithTimeout(stalledPublisher{delay: 2 * time.Second}, 10*time.Millisecond)
	engine := s.newEngine(4, publisher, s.mode, second)
	ctx, cancel := context.WithTimeout(s.ctx, 1500*time.Millisecond)
	defer cancel()

	// Execute
	start := time.Now()
	report, err := engine.RunSweep(ctx)

	// Assert
	s.Require().NoError(err)
	s.Less(time.Since(start), time.Second)
	s.Equal(1, report.BetsSettled)
	s.Equal(int64(1000-100+900), s.balance("bob"))
}
