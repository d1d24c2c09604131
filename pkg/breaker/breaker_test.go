package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	var changes []string
	b := New("kafka", Settings{
		MaxFailures: 2,
		OpenTimeout: 20 * time.Millisecond,
		OnChange:    func(_, from, to string) { changes = append(changes, from+"->"+to) },
	})
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Do(func() error { return boom }), boom)
	assert.Equal(t, "closed", b.State())
	assert.ErrorIs(t, b.Do(func() error { return boom }), boom)
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, changes)
}

func TestCancellationDoesNotTrip(t *testing.T) {
	b := New("clickhouse", Settings{MaxFailures: 1})
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(func() error { return context.Canceled }), context.Canceled)
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, "clickhouse", b.Name())
}
