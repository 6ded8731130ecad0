// Package outcome draws the winning digit of a round and stores it at most
// once per (game type, duration, period).
package outcome

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fadedpez/wingo/internal/logging"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/repositories/ledger"
)

// RandomSource yields uniform integers in [0, n)
type RandomSource interface {
	IntN(n int) int
}

// pcgSource is a PCG generator behind a mutex so one source can serve every
// mode concurrently
type pcgSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMathRandSource returns a PCG source seeded from crypto/rand. It is a
// uniform PRNG, not a certified fairness source.
func NewMathRandSource() RandomSource {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand only fails when the OS entropy source is gone
		panic(fmt.Sprintf("outcome: reading seed: %v", err))
	}
	return NewSeededSource(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))
}

// NewSeededSource returns a deterministic PCG source
func NewSeededSource(hi, lo uint64) RandomSource {
	return &pcgSource{rng: rand.New(rand.NewPCG(hi, lo))}
}

func (s *pcgSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Generator creates outcomes
type Generator struct {
	store  ledger.OutcomeStore
	rng    RandomSource
	now    func() time.Time
	logger *logging.Logger
}

// NewGenerator creates a generator over store. A nil rng uses
// NewMathRandSource.
func NewGenerator(store ledger.OutcomeStore, rng RandomSource) *Generator {
	if rng == nil {
		rng = NewMathRandSource()
	}
	return &Generator{
		store:  store,
		rng:    rng,
		now:    time.Now,
		logger: logging.Default,
	}
}

// Generate draws a digit and tries to store it. If another caller already
// resolved the round, the stored outcome is returned with created=false.
func (g *Generator) Generate(ctx context.Context, mode entities.Mode, period string) (*entities.Outcome, bool, error) {
	digit := g.rng.IntN(10)
	outcome := entities.NewOutcome(mode, period, digit, g.now())

	err := g.store.CreateOutcome(ctx, outcome)
	if err == nil {
		g.logger.Debug("Created outcome %s round %s: %d %v", mode, period, outcome.Number, outcome.Colors)
		return outcome, true, nil
	}
	if !errors.Is(err, ledger.ErrOutcomeExists) {
		return nil, false, fmt.Errorf("error creating outcome for %s round %s: %w", mode, period, err)
	}

	// Lost the race, read the winner's row
	existing, err := g.store.GetOutcome(ctx, mode, period)
	if err != nil {
		return nil, false, fmt.Errorf("error reading existing outcome for %s round %s: %w", mode, period, err)
	}
	return existing, false, nil
}

// Ensure returns the round's outcome, creating it only if none exists
func (g *Generator) Ensure(ctx context.Context, mode entities.Mode, period string) (*entities.Outcome, bool, error) {
	existing, err := g.store.GetOutcome(ctx, mode, period)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ledger.ErrOutcomeNotFound) {
		return nil, false, fmt.Errorf("error reading outcome for %s round %s: %w", mode, period, err)
	}
	return g.Generate(ctx, mode, period)
}
