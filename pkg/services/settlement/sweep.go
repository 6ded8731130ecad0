package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/period"
)

// ResultSummary is one outcome created during a sweep
type ResultSummary struct {
	GameType entities.GameType `json:"game_type"`
	Duration int               `json:"duration"`
	Period   string            `json:"period"`
	Number   int               `json:"number"`
	Colors   []entities.Color  `json:"colors"`
}

// SweepReport summarizes one RunSweep
type SweepReport struct {
	ResultsGenerated []ResultSummary `json:"results_generated"`
	RoundsChecked    int             `json:"rounds_checked"`
	BetsSettled      int             `json:"bets_settled"`
	BetsFailed       int             `json:"bets_failed"`
	RoundErrors      []string        `json:"round_errors,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	Elapsed          time.Duration   `json:"elapsed"`
}

// RunSweep checks every configured mode: the current round once its window has
// closed, plus the previous look-back rounds so a late or skipped tick still
// resolves them. Only an unreachable store fails the whole sweep; any other
// failure is confined to its round.
func (e *Engine) RunSweep(ctx context.Context) (*SweepReport, error) {
	start := e.now()
	report := &SweepReport{
		ResultsGenerated: make([]ResultSummary, 0),
		StartedAt:        start,
	}

	if err := e.store.Ping(ctx); err != nil {
		return report, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	for _, mode := range e.modes {
		for _, p := range e.roundsToCheck(mode, start) {
			if err := ctx.Err(); err != nil {
				report.Elapsed = e.now().Sub(start)
				return report, err
			}

			report.RoundsChecked++
			round, err := e.SettleRound(ctx, mode, p.Token)
			if err != nil {
				e.logger.Error("Sweep failed for %s round %s: %v", mode, p.Token, err)
				report.RoundErrors = append(report.RoundErrors, fmt.Sprintf("%s/%s: %v", mode, p.Token, err))
				continue
			}

			report.BetsSettled += round.Settled
			report.BetsFailed += round.Failed
			if round.OutcomeCreated {
				report.ResultsGenerated = append(report.ResultsGenerated, ResultSummary{
					GameType: mode.GameType,
					Duration: mode.DurationSeconds(),
					Period:   p.Token,
					Number:   round.Outcome.Number,
					Colors:   round.Outcome.Colors,
				})
			}
		}
	}

	report.Elapsed = e.now().Sub(start)
	if len(report.ResultsGenerated) > 0 || report.BetsSettled > 0 {
		e.logger.Info("Sweep generated %d results and settled %d bets in %s", len(report.ResultsGenerated), report.BetsSettled, report.Elapsed)
	} else {
		e.logger.Debug("Sweep checked %d rounds, nothing to do", report.RoundsChecked)
	}
	return report, nil
}

// roundsToCheck returns the closed rounds of mode a sweep looks at, oldest
// first
func (e *Engine) roundsToCheck(mode entities.Mode, now time.Time) []period.Period {
	current := e.clock.Current(mode.Duration, now)

	rounds := make([]period.Period, 0, e.lookBack+1)
	p := current
	for i := 0; i < e.lookBack; i++ {
		p = e.clock.Previous(p)
		rounds = append([]period.Period{p}, rounds...)
	}
	if e.clock.IsClosed(current, now) {
		rounds = append(rounds, current)
	}
	return rounds
}

// FixReport summarizes a FixUnsettledBets run
type FixReport struct {
	SettledCount int `json:"settled_count"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	Rounds       int `json:"rounds"`
}

type roundKey struct {
	mode   entities.Mode
	period string
}

// FixUnsettledBets re-scans every unsettled bet regardless of age, groups
// them by round and settles each closed round, creating its outcome if the
// round was never resolved. Bets on open rounds or with unreadable tokens are
// skipped.
func (e *Engine) FixUnsettledBets(ctx context.Context) (*FixReport, error) {
	report := &FixReport{}

	bets, err := e.store.AllUnsettledBets(ctx, 0)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var order []roundKey
	counts := make(map[roundKey]int)
	for _, bet := range bets {
		key := roundKey{mode: bet.Mode(), period: bet.Period}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		round, err := e.SettleRound(ctx, key.mode, key.period)
		if err != nil {
			if errors.Is(err, period.ErrMalformedToken) {
				e.logger.Warn("Skipping %d bets with unreadable period %q on %s", counts[key], key.period, key.mode)
				report.Skipped += counts[key]
				continue
			}
			e.logger.Error("Fix-sync failed for %s round %s: %v", key.mode, key.period, err)
			report.Failed += counts[key]
			continue
		}
		if round.State == RoundOpen {
			report.Skipped += counts[key]
			continue
		}

		report.Rounds++
		report.SettledCount += round.Settled
		report.Failed += round.Failed
	}

	e.logger.Info("Fix-sync settled %d bets across %d rounds (%d failed, %d skipped)", report.SettledCount, report.Rounds, report.Failed, report.Skipped)
	return report, nil
}

// CleanupReport summarizes a ClearStaleData run
type CleanupReport struct {
	DeletedResults int      `json:"deleted_results"`
	DeletedBets    int      `json:"deleted_bets"`
	Periods        []string `json:"periods,omitempty"`
}

// ClearStaleData purges outcomes and bets whose period token is not in the
// canonical format. Unsettled bets among them are refunded by the store.
func (e *Engine) ClearStaleData(ctx context.Context) (*CleanupReport, error) {
	report := &CleanupReport{}

	periods, err := e.store.DistinctPeriods(ctx)
	if err != nil {
		return report, fmt.Errorf("error listing periods: %w", err)
	}

	for _, p := range periods {
		if !period.ValidToken(p) {
			report.Periods = append(report.Periods, p)
		}
	}
	if len(report.Periods) == 0 {
		return report, nil
	}

	report.DeletedResults, report.DeletedBets, err = e.store.DeletePeriods(ctx, report.Periods)
	if err != nil {
		return report, fmt.Errorf("error deleting stale periods: %w", err)
	}

	e.logger.Info("Cleared %d stale periods: %d results, %d bets", len(report.Periods), report.DeletedResults, report.DeletedBets)
	return report, nil
}
