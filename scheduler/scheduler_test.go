package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("0 2 * * *"))
	assert.NoError(t, Validate("*/5 0 2 * * *"))
	assert.NoError(t, Validate("@daily"))
	assert.Error(t, Validate("every day"))
}

func TestScheduleFires(t *testing.T) {
	s := New(context.Background())
	defer s.Stop()

	ticks := make(chan time.Time, 4)
	require.NoError(t, s.Schedule("orders_backfilling_dag", "* * * * * *", func(ctx context.Context, tick time.Time) {
		ticks <- tick
	}))

	select {
	case tick := <-ticks:
		assert.Equal(t, time.UTC, tick.Location())
		assert.Zero(t, tick.Nanosecond())
	case <-time.After(3 * time.Second):
		t.Fatal("schedule did not fire")
	}
}

func TestScheduleReplaceAndDelete(t *testing.T) {
	s := New(context.Background())
	defer s.Stop()

	noop := func(context.Context, time.Time) {}
	require.NoError(t, s.Schedule("job", "@daily", noop))
	first, ok := s.Next("job")
	require.True(t, ok)

	require.NoError(t, s.Schedule("job", "@hourly", noop))
	second, ok := s.Next("job")
	require.True(t, ok)
	assert.False(t, second.After(first))
	assert.Len(t, s.entries, 1)

	s.Delete("job")
	_, ok = s.Next("job")
	assert.False(t, ok)

	assert.Error(t, s.Schedule("bad", "nope", noop))
}
