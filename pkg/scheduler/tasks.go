package scheduler

import (
	"context"
	"time"

	"github.com/fadedpez/wingo/pkg/services/settlement"
)

// Task names
const (
	TaskSettlementSweep = "settlement_sweep"
	TaskArchivePruning  = "archive_pruning"
)

// Sweeper runs one settlement pass
type Sweeper interface {
	RunSweep(ctx context.Context) (*settlement.SweepReport, error)
}

// IndexPruner drops archive indices past retention
type IndexPruner interface {
	PruneOldIndices(ctx context.Context) ([]string, error)
}

// AddSettlementSweep schedules the settlement driver
func (s *Scheduler) AddSettlementSweep(sweeper Sweeper, interval time.Duration, opts ...TaskOption) {
	s.AddTask(TaskSettlementSweep, interval, func(ctx context.Context) error {
		_, err := sweeper.RunSweep(ctx)
		return err
	}, opts...)
}

// AddArchivePruning schedules archive retention, defaulting to daily
func (s *Scheduler) AddArchivePruning(pruner IndexPruner, interval time.Duration, opts ...TaskOption) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	s.AddTask(TaskArchivePruning, interval, func(ctx context.Context) error {
		s.logger.Info("Running scheduled index pruning task")
		pruned, err := pruner.PruneOldIndices(ctx)
		if err != nil {
			return err
		}
		if len(pruned) > 0 {
			s.logger.Info("Pruned %d archive indices: %v", len(pruned), pruned)
		}
		return nil
	}, opts...)
}
