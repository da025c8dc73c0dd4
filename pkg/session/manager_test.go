package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/secureflow/pkg/generator"
	"github.com/hed1ad/secureflow/pkg/metrics"
)

// fakeClock is a manually advanced time source.
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

func TestManager(t *testing.T) {
	m := NewManager([]Option{WithSampleCounts(50, 3), WithGenerator(generator.New(generator.WithSeed(1)))})

	a := m.Create()
	b := m.Create()
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.Len())

	got, ok := m.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = m.Get("missing")
	assert.False(t, ok)

	assert.True(t, m.Delete(a.ID()))
	assert.False(t, m.Delete(a.ID()))
	assert.Equal(t, 1, m.Len())

	_, err := a.Batch(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)

	m.Close()
	assert.Equal(t, 0, m.Len())
	_, err = b.Batch(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager([]Option{WithSampleCounts(50, 3)})
	defer m.Close()

	s, created := m.GetOrCreate("client-1")
	assert.True(t, created)
	assert.Equal(t, "client-1", s.ID())

	again, created := m.GetOrCreate("client-1")
	assert.False(t, created)
	assert.Same(t, s, again)

	fresh, created := m.GetOrCreate("")
	assert.True(t, created)
	assert.NotEmpty(t, fresh.ID())
	assert.Equal(t, 2, m.Len())
}

func TestManagerSweepClosesIdleSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(
		[]Option{WithSampleCounts(50, 3), WithMetrics(metrics.New(reg))},
		WithIdleTimeout(10*time.Minute),
		WithManagerClock(clock.Now),
	)
	defer m.Close()

	active, _ := m.GetOrCreate("active")
	idle, _ := m.GetOrCreate("idle")
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(gauge(2)), "secureflow_sessions_open"))

	clock.Advance(6 * time.Minute)
	_, ok := m.Get("active")
	require.True(t, ok)
	assert.Equal(t, 0, m.Sweep())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())

	_, ok = m.Get("idle")
	assert.False(t, ok)
	_, err := idle.Batch(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = active.Alerts(context.Background())
	assert.NoError(t, err)

	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(gauge(1)), "secureflow_sessions_open"))
}

func TestManagerSweepDisabled(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := NewManager([]Option{WithSampleCounts(50, 3)}, WithManagerClock(clock.Now))
	defer m.Close()

	m.Create()
	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestManagerMaxSessionsEvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager([]Option{WithSampleCounts(50, 3)}, WithMaxSessions(2), WithManagerClock(clock.Now))
	defer m.Close()

	first, _ := m.GetOrCreate("first")
	clock.Advance(time.Second)
	m.GetOrCreate("second")
	clock.Advance(time.Second)
	m.Get("first")
	clock.Advance(time.Second)

	m.GetOrCreate("third")
	assert.Equal(t, 2, m.Len())

	_, ok := m.Get("second")
	assert.False(t, ok)
	got, ok := m.Get("first")
	require.True(t, ok)
	assert.Same(t, first, got)
	_, ok = m.Get("third")
	assert.True(t, ok)
}

func TestManagerRunStopsWithContext(t *testing.T) {
	m := NewManager(nil, WithIdleTimeout(time.Nanosecond))
	defer m.Close()
	m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func gauge(n int) string {
	return "# HELP secureflow_sessions_open Open sessions.\n" +
		"# TYPE secureflow_sessions_open gauge\n" +
		"secureflow_sessions_open " + strconv.Itoa(n) + "\n"
}
