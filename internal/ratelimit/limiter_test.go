package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Interval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rps      float64
		expected time.Duration
	}{
		{name: "one per second", rps: 1, expected: time.Second},
		{name: "two per second", rps: 2, expected: 500 * time.Millisecond},
		{name: "ten per second", rps: 10, expected: 100 * time.Millisecond},
		{name: "below minimum is clamped", rps: 0.1, expected: time.Second},
		{name: "zero is clamped", rps: 0, expected: time.Second},
		{name: "negative is clamped", rps: -5, expected: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, New(tt.rps).Interval())
		})
	}
}

func TestWait_FirstCallDoesNotBlock(t *testing.T) {
	t.Parallel()

	l := New(1)
	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWait_Spacing(t *testing.T) {
	t.Parallel()

	l := New(2)
	require.NoError(t, l.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	// allow for timer granularity
	assert.GreaterOrEqual(t, time.Since(start), 490*time.Millisecond)
}

func TestWait_ClampedSpacing(t *testing.T) {
	t.Parallel()

	l := New(0.1)
	require.NoError(t, l.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 990*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestWait_ContextCancelled(t *testing.T) {
	t.Parallel()

	l := New(1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
}
