package idempotency

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "nested", "idem.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s, clock
}

func TestBeginCompleteReplay(t *testing.T) {
	s, _ := newTestStore(t)

	replay, err := s.Begin("1|orders|abc", "fp")
	require.NoError(t, err)
	assert.Nil(t, replay, "first use should claim the key")

	_, err = s.Begin("1|orders|abc", "fp")
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, s.Complete("1|orders|abc", Response{
		Fingerprint: "fp",
		Status:      200,
		ContentType: "application/json",
		Body:        []byte(`{"ok":true}`),
	}))

	replay, err = s.Begin("1|orders|abc", "fp")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 200, replay.Status)
	assert.Equal(t, `{"ok":true}`, string(replay.Body))
	assert.False(t, replay.Pending)
}

func TestBeginKeyReused(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Begin("k", "first")
	require.NoError(t, err)
	require.NoError(t, s.Complete("k", Response{Fingerprint: "first", Status: 200}))

	_, err = s.Begin("k", "second")
	assert.ErrorIs(t, err, ErrKeyReused)
}

func TestRelease(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Begin("k", "fp")
	require.NoError(t, err)
	require.NoError(t, s.Release("k"))

	replay, err := s.Begin("k", "fp")
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestExpiry(t *testing.T) {
	s, clock := newTestStore(t)

	_, err := s.Begin("done", "fp")
	require.NoError(t, err)
	require.NoError(t, s.Complete("done", Response{Fingerprint: "fp", Status: 200}))

	_, err = s.Begin("stuck", "fp")
	require.NoError(t, err)

	clock.Advance(2 * DefaultPendingTimeout)

	replay, err := s.Begin("stuck", "fp")
	require.NoError(t, err)
	assert.Nil(t, replay, "abandoned claim should be taken over")

	replay, err = s.Begin("done", "fp")
	require.NoError(t, err)
	assert.NotNil(t, replay, "completed response is still within ttl")

	clock.Advance(2 * time.Hour)

	removed, err := s.Purge()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	replay, err = s.Begin("done", "other")
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestConcurrentBeginClaimsOnce(t *testing.T) {
	s, _ := newTestStore(t)

	concurrency := 16
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Begin("same", "fp")
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	claimed := 0
	for err := range results {
		if err == nil {
			claimed++
			continue
		}
		assert.ErrorIs(t, err, ErrInProgress)
	}
	assert.Equal(t, 1, claimed)
}
