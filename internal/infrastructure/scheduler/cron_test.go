package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDaily(t *testing.T) {
	t.Parallel()

	c, err := NewCronScheduler("03:30", time.UTC)
	require.NoError(t, err)

	before := time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 30, 0, 0, time.UTC), c.Next(before))

	after := time.Date(2024, 5, 1, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 2, 3, 30, 0, 0, time.UTC), c.Next(after))
}

func TestNextInterval(t *testing.T) {
	t.Parallel()

	c, err := NewCronScheduler("@every 6h", nil)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(6*time.Hour), c.Next(now))
}

func TestInvalidSchedules(t *testing.T) {
	t.Parallel()

	for _, spec := range []string{"", "0 6 * * *", "25:00", "@every soon", "@every -1h"} {
		_, err := NewCronScheduler(spec, time.UTC)
		assert.Error(t, err, spec)
	}
}

func TestStartRunsJobUntilStopped(t *testing.T) {
	t.Parallel()

	c, err := NewCronScheduler("@every 10ms", time.UTC)
	require.NoError(t, err)

	ran := make(chan time.Time, 10)
	require.NoError(t, c.Start(context.Background(), func(t time.Time) {
		select {
		case ran <- t:
		default:
		}
	}))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}
