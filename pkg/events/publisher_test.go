package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/events"
	mock_events "github.com/fadedpez/wingo/pkg/events/mock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestMultiPublishesToAll(t *testing.T) {
	// Setup
	ctrl := gomock.NewController(t)
	first := mock_events.NewMockPublisher(ctrl)
	second := mock_events.NewMockPublisher(ctrl)
	outcome := entities.NewOutcome(entities.NewMode("parity", 60), "202610160001", 7, time.Now())
	event := events.OutcomeCreated(outcome, time.Now())

	boom := errors.New("broker down")
	first.EXPECT().Publish(gomock.Any(), event).Return(boom)
	second.EXPECT().Publish(gomock.Any(), event).Return(nil)

	// Execute
	err := events.NewMulti(first, nil, second).Publish(context.Background(), event)

	// Assert
	assert.ErrorIs(t, err, boom, "a failing publisher does not stop the others")
}

func TestEventRoutingKey(t *testing.T) {
	event := &events.Event{Type: events.TypeRoundSettled, GameType: "sapre", Duration: 180}

	assert.Equal(t, "wingo.round.settled.sapre.180", event.RoutingKey())
	assert.Equal(t, entities.NewMode("sapre", 180), event.Mode())
}

func TestNopAndEmptyMulti(t *testing.T) {
	assert.NoError(t, events.Nop{}.Publish(context.Background(), &events.Event{}))
	assert.NoError(t, events.NewMulti().Publish(context.Background(), &events.Event{}))
}

func TestWithTimeoutBoundsPublish(t *testing.T) {
	ctrl := gomock.NewController(t)
	slow := mock_events.NewMockPublisher(ctrl)
	event := &events.Event{Type: events.TypeRoundSettled, GameType: "parity", Duration: 60}

	slow.EXPECT().Publish(gomock.Any(), event).DoAndReturn(func(ctx context.Context, _ *events.Event) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := events.WithTimeout(slow, 20*time.Millisecond).Publish(context.Background(), event)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

// stalledPublisher ignores its context, like a client blocked on network I/O
type stalledPublisher struct {
	release chan struct{}
}

func (p stalledPublisher) Publish(ctx context.Context, event *events.Event) error {
	<-p.release
	return nil
}

func TestWithTimeoutReturnsWhenPublisherIgnoresContext(t *testing.T) {
	stalled := stalledPublisher{release: make(chan struct{})}
	defer close(stalled.release)
	event := &events.Event{Type: events.TypeOutcomeCreated, GameType: "parity", Duration: 60}

	start := time.Now()
	err := events.WithTimeout(stalled, 10*time.Millisecond).Publish(context.Background(), event)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWithTimeoutDropsWhenDeliveriesPileUp(t *testing.T) {
	stalled := stalledPublisher{release: make(chan struct{})}
	publisher := events.WithTimeout(stalled, time.Millisecond)
	event := &events.Event{Type: events.TypeRoundSettled, GameType: "parity", Duration: 60}

	var busy int
	for i := 0; i < 40; i++ {
		if err := publisher.Publish(context.Background(), event); errors.Is(err, events.ErrPublisherBusy) {
			busy++
		}
	}
	assert.Equal(t, 8, busy, "deliveries beyond the stuck cap are dropped at once")

	// Once the publisher recovers the slots free up
	close(stalled.release)
	assert.Eventually(t, func() bool {
		return publisher.Publish(context.Background(), event) == nil
	}, time.Second, 10*time.Millisecond)
}
