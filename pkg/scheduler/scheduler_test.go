package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	mock_scheduler "github.com/fadedpez/wingo/pkg/scheduler/mock"
	"github.com/fadedpez/wingo/pkg/services/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSchedulerRunsImmediatelyAndOnInterval(t *testing.T) {
	// Setup
	s := NewScheduler()
	var runs atomic.Int32
	s.AddTask("tick", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	// Execute
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	// Assert
	stopped := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "no runs after Stop")
	assert.Equal(t, []string{"tick"}, s.Tasks())
}

func TestSchedulerStartStopAreIdempotent(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int32
	s.AddTask("once", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("logged, not fatal")
	})

	s.Stop()
	s.Start(context.Background())
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), runs.Load())
}

func TestRunOnceTimeout(t *testing.T) {
	s := NewScheduler()
	var deadline atomic.Bool
	task := &Task{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			<-ctx.Done()
			deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		},
	}

	s.runOnce(context.Background(), task)

	assert.True(t, deadline.Load())
}

func TestRunOnceLease(t *testing.T) {
	testCases := []struct {
		name     string
		held     bool
		err      error
		wantRun  bool
		released bool
	}{
		{name: "acquired", held: true, wantRun: true, released: true},
		{name: "held elsewhere", held: false, wantRun: false},
		{name: "lease store down", err: errors.New("dial tcp: refused"), wantRun: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Setup
			ctrl := gomock.NewController(t)
			lease := mock_scheduler.NewMockLease(ctrl)
			lease.EXPECT().Acquire(gomock.Any(), TaskSettlementSweep, 5*time.Second).Return(tc.held, tc.err)
			if tc.released {
				lease.EXPECT().Release(gomock.Any(), TaskSettlementSweep).Return(nil)
			}

			s := NewScheduler()
			var ran bool
			s.AddTask(TaskSettlementSweep, time.Second, func(ctx context.Context) error {
				ran = true
				return nil
			}, WithLease(lease, 5*time.Second))

			// Execute
			s.runOnce(context.Background(), s.tasks[0])

			// Assert
			assert.Equal(t, tc.wantRun, ran)
		})
	}
}

func TestLeaseTTLDefaultsToInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewScheduler()
	s.AddTask("x", 7*time.Second, func(ctx context.Context) error { return nil }, WithLease(mock_scheduler.NewMockLease(ctrl), 0))

	assert.Equal(t, 7*time.Second, s.tasks[0].LeaseTTL)
}

type sweeperFunc func(ctx context.Context) (*settlement.SweepReport, error)

func (f sweeperFunc) RunSweep(ctx context.Context) (*settlement.SweepReport, error) {
	return f(ctx)
}

type prunerFunc func(ctx context.Context) ([]string, error)

func (f prunerFunc) PruneOldIndices(ctx context.Context) ([]string, error) {
	return f(ctx)
}

func TestRegisteredTasks(t *testing.T) {
	// Setup
	s := NewScheduler()
	var sweeps, prunes atomic.Int32
	s.AddSettlementSweep(sweeperFunc(func(ctx context.Context) (*settlement.SweepReport, error) {
		sweeps.Add(1)
		return &settlement.SweepReport{}, nil
	}), time.Hour, WithTimeout(time.Second))
	s.AddArchivePruning(prunerFunc(func(ctx context.Context) ([]string, error) {
		prunes.Add(1)
		return []string{"wingo_rounds_2026-01"}, nil
	}), 0)

	// Execute
	s.Start(context.Background())
	defer s.Stop()

	// Assert
	assert.Eventually(t, func() bool { return sweeps.Load() == 1 && prunes.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{TaskSettlementSweep, TaskArchivePruning}, s.Tasks())
	assert.Equal(t, 24*time.Hour, s.tasks[1].Interval)
	assert.Equal(t, time.Second, s.tasks[0].Timeout)
}

func TestRedisLeaseUnreachable(t *testing.T) {
	lease := NewRedisLease("127.0.0.1:1", "")
	defer lease.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	held, err := lease.Acquire(ctx, TaskSettlementSweep, time.Second)
	require.Error(t, err)
	assert.False(t, held)
	assert.NoError(t, lease.Release(ctx, TaskSettlementSweep), "nothing held, nothing to release")
	assert.Error(t, lease.Ping(ctx))
}
