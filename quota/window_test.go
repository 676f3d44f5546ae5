package quota

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowAllow(t *testing.T) {
	base := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	t.Run("exactly N admitted within one second", func(t *testing.T) {
		const n = 10
		current := base
		w := NewWindow(n, DefaultWindowSpan).WithClock(func() time.Time { return current })

		allowed, rejected := 0, 0
		for i := 0; i < n+2; i++ {
			current = current.Add(50 * time.Millisecond)
			if w.Allow("u1") {
				allowed++
			} else {
				rejected++
			}
		}
		assert.Equal(t, n, allowed)
		assert.Equal(t, 2, rejected)
	})

	t.Run("old calls expire out of the window", func(t *testing.T) {
		current := base
		w := NewWindow(2, DefaultWindowSpan).WithClock(func() time.Time { return current })

		require.True(t, w.Allow("u1"))
		require.True(t, w.Allow("u1"))
		require.False(t, w.Allow("u1"))

		current = current.Add(61 * time.Second)
		assert.True(t, w.Allow("u1"), "calls older than the span must be pruned")
	})

	t.Run("users are independent", func(t *testing.T) {
		w := NewWindow(1, DefaultWindowSpan).WithClock(func() time.Time { return base })
		require.True(t, w.Allow("u1"))
		require.False(t, w.Allow("u1"))
		assert.True(t, w.Allow("u2"))
	})
}

func TestWindowRetryAfter(t *testing.T) {
	current := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	w := NewWindow(1, DefaultWindowSpan).WithClock(func() time.Time { return current })

	require.True(t, w.Allow("u1"))
	require.False(t, w.Allow("u1"))

	current = current.Add(20 * time.Second)
	assert.Equal(t, 40*time.Second, w.RetryAfter("u1"))
}

func TestWindowConcurrentSameUser(t *testing.T) {
	// Races between concurrent calls for one user must not admit more than N.
	const n = 10
	w := NewWindow(n, DefaultWindowSpan)

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Allow("u1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, n, allowed)
}
