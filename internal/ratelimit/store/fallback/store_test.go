package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haven/internal/ratelimit/models"
	"haven/internal/ratelimit/store/memory"
	"haven/pkg/platform/circuit"
)

type flakyStore struct {
	*memory.InMemoryWindowStore
	down  bool
	calls int
}

func (f *flakyStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.Window, bool, error) {
	f.calls++
	if f.down {
		return models.Window{}, false, errors.New("redis: connection refused")
	}
	return f.InMemoryWindowStore.Hit(ctx, key, limit, window, now)
}

func TestStore_FallsBackWhilePrimaryIsDown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	primary := &flakyStore{InMemoryWindowStore: memory.NewInMemoryWindowStore(), down: true}
	s := New(primary, WithBreaker(circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return clock }),
	)))

	for i := 1; i <= 3; i++ {
		w, ok, err := s.Hit(ctx, "user:a:post", 2, time.Minute, now)
		require.NoError(t, err)
		assert.Equal(t, i <= 2, ok)
		assert.Equal(t, min(i, 2), w.Count)
	}
	assert.True(t, s.Degraded())
	assert.Equal(t, 2, primary.calls, "open breaker skips the primary")

	primary.down = false
	clock = clock.Add(2 * time.Minute)

	w, ok, err := s.Hit(ctx, "user:b:post", 2, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, w.Count)
	assert.False(t, s.Degraded())
	assert.Equal(t, 3, primary.calls)
}

func TestStore_SweepTouchesFallbackOnly(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	primary := &flakyStore{InMemoryWindowStore: memory.NewInMemoryWindowStore(), down: true}
	s := New(primary)

	_, _, err := s.Hit(ctx, "user:a:post", 2, time.Second, now)
	require.NoError(t, err)

	removed, err := s.Sweep(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
