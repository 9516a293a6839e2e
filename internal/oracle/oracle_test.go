package oracle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCoordinator captures submitted request ids.
type recordingCoordinator struct {
	submitted []string
	err       error
}

func (c *recordingCoordinator) Submit(requestID string) error {
	if c.err != nil {
		return c.err
	}
	c.submitted = append(c.submitted, requestID)
	return nil
}

func TestRequestAndFulfill(t *testing.T) {
	coord := &recordingCoordinator{}
	a := NewAdapter(coord)

	var gotID string
	var gotWord uint64
	id, err := a.Request("lottery", "pick_winner", func(requestID string, word uint64) {
		gotID = requestID
		gotWord = word
	})
	require.NoError(t, err)
	require.Equal(t, []string{id}, coord.submitted)
	require.True(t, a.Outstanding(id))

	require.NoError(t, a.Fulfill(id, 42))
	assert.Equal(t, id, gotID)
	assert.Equal(t, uint64(42), gotWord)
	assert.False(t, a.Outstanding(id))
}

func TestFulfillConsumesExactlyOnce(t *testing.T) {
	a := NewAdapter(&recordingCoordinator{})

	calls := 0
	id, err := a.Request("bingo", "draw_number", func(string, uint64) { calls++ })
	require.NoError(t, err)

	require.NoError(t, a.Fulfill(id, 1))
	assert.ErrorIs(t, a.Fulfill(id, 2), ErrUnknownRequest)
	assert.Equal(t, 1, calls)
}

func TestFulfillUnknownRequest(t *testing.T) {
	a := NewAdapter(&recordingCoordinator{})
	assert.ErrorIs(t, a.Fulfill("no-such-id", 7), ErrUnknownRequest)
}

func TestCancelDropsRequest(t *testing.T) {
	a := NewAdapter(&recordingCoordinator{})

	called := false
	id, err := a.Request("blackjack", "deal_seed", func(string, uint64) { called = true })
	require.NoError(t, err)

	require.NoError(t, a.Cancel(id))
	assert.False(t, a.Outstanding(id))
	assert.ErrorIs(t, a.Fulfill(id, 9), ErrUnknownRequest)
	assert.False(t, called)

	assert.ErrorIs(t, a.Cancel(id), ErrUnknownRequest)
}

func TestSubmitFailureLeavesNothingPending(t *testing.T) {
	coord := &recordingCoordinator{err: errors.New("service down")}
	a := NewAdapter(coord)

	id, err := a.Request("lottery", "pick_winner", func(string, uint64) {})
	require.Error(t, err)
	assert.Empty(t, id)
	assert.False(t, a.Outstanding(id))
}

func TestLocalCoordinatorFulfillsAsync(t *testing.T) {
	coord := NewLocalCoordinator(50 * time.Millisecond)
	a := NewAdapter(coord)
	coord.Bind(a)

	done := make(chan uint64, 1)
	id, err := a.Request("lottery", "pick_winner", func(_ string, word uint64) {
		done <- word
	})
	require.NoError(t, err)

	// The request stays outstanding until the delayed fulfillment lands.
	require.True(t, a.Outstanding(id))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fulfillment never arrived")
	}
	assert.False(t, a.Outstanding(id))
}
