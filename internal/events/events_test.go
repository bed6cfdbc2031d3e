package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	var got []Type
	record := PublisherFunc(func(_ context.Context, ev Event) error {
		got = append(got, ev.Type)
		return nil
	})
	boom := errors.New("boom")
	failing := PublisherFunc(func(context.Context, Event) error { return boom })

	m := Multi{record, nil, failing, record}
	err := m.Publish(context.Background(), Event{Type: BetPlaced, RoomCode: "ABCDEF"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Type{BetPlaced, BetPlaced}, got, "a failing publisher does not stop the others")

	assert.NoError(t, Discard.Publish(context.Background(), Event{}))
}
