// Package events carries round lifecycle notifications to observers: the
// message bus, live websocket clients and the search archive. Delivery is
// best effort and never affects settlement.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
)

// Type names an event
type Type string

const (
	TypeOutcomeCreated Type = "outcome.created"
	TypeRoundSettled   Type = "round.settled"
)

// Event is one notification about one round
type Event struct {
	Type        Type              `json:"type"`
	GameType    entities.GameType `json:"game_type"`
	Duration    int               `json:"duration"` // seconds
	Period      string            `json:"period"`
	Outcome     *entities.Outcome `json:"outcome,omitempty"`
	Settled     int               `json:"settled,omitempty"`
	Failed      int               `json:"failed,omitempty"`
	TotalStaked int64             `json:"total_staked,omitempty"`
	TotalPayout int64             `json:"total_payout,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// OutcomeCreated builds the event for a freshly drawn outcome
func OutcomeCreated(outcome *entities.Outcome, at time.Time) *Event {
	return &Event{
		Type:      TypeOutcomeCreated,
		GameType:  outcome.GameType,
		Duration:  outcome.Mode().DurationSeconds(),
		Period:    outcome.Period,
		Outcome:   outcome,
		Timestamp: at,
	}
}

// Mode returns the mode the event refers to
func (e *Event) Mode() entities.Mode {
	return entities.NewMode(e.GameType, e.Duration)
}

// RoutingKey is the topic key used on the message bus,
// e.g. "wingo.round.settled.parity.60"
func (e *Event) RoutingKey() string {
	return fmt.Sprintf("wingo.%s.%s.%d", e.Type, e.GameType, e.Duration)
}

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_events

// Publisher delivers events to one destination
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Multi fans an event out to every publisher. All are attempted and their
// errors joined.
type Multi []Publisher

// NewMulti drops nil publishers
func NewMulti(publishers ...Publisher) Multi {
	m := make(Multi, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			m = append(m, p)
		}
	}
	return m
}

// Publish implements Publisher
func (m Multi) Publish(ctx context.Context, event *Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(ctx context.Context, event *Event) error {
	return nil
}

// ErrPublisherBusy is returned while too many earlier deliveries to the same
// publisher are still running past their deadline
var ErrPublisherBusy = errors.New("publisher busy")

// maxStuckDeliveries caps the goroutines left behind by a publisher that
// ignores its context
const maxStuckDeliveries = 32

// WithTimeout bounds every Publish on p to d. The call returns at the deadline
// even if p ignores its context; p keeps running in the background.
func WithTimeout(p Publisher, d time.Duration) Publisher {
	return &timeoutPublisher{
		next:     p,
		timeout:  d,
		inflight: make(chan struct{}, maxStuckDeliveries),
	}
}

type timeoutPublisher struct {
	next     Publisher
	timeout  time.Duration
	inflight chan struct{}
}

func (t *timeoutPublisher) Publish(ctx context.Context, event *Event) error {
	select {
	case t.inflight <- struct{}{}:
	default:
		return fmt.Errorf("dropping %s for %s: %w", event.Type, event.Mode(), ErrPublisherBusy)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	done := make(chan error, 1)
	go func() {
		defer func() { <-t.inflight }()
		defer cancel()
		done <- t.next.Publish(ctx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
