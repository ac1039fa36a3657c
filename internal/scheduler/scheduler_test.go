package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b4ae-io/b4ae-core/internal/config"
)

func TestEnqueueRejectsBeyondDepth(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, time.Hour, 32, nil)
	s.queueCap = 2

	require.NoError(t, s.Enqueue(Outbound{PeerID: "a", Payload: []byte("1")}))
	require.NoError(t, s.Enqueue(Outbound{PeerID: "b", Payload: []byte("2")}))
	err := s.Enqueue(Outbound{PeerID: "c", Payload: []byte("3")})
	require.Error(t, err)
	require.Equal(t, 2, s.Depth())
}

func TestEnqueueRejectsBeyondMemoryBound(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, time.Hour, 32, nil)
	s.memoryCap = 10

	require.NoError(t, s.Enqueue(Outbound{PeerID: "a", Payload: make([]byte, 8)}))
	err := s.Enqueue(Outbound{PeerID: "b", Payload: make([]byte, 8)})
	require.Error(t, err)
}

func TestTickEmitsDummyWhenQueueEmpty(t *testing.T) {
	cfg := config.DefaultConfig()
	var mu sync.Mutex
	var gotDummy bool
	var emits int

	s := New(cfg, time.Hour, 16, func(item Outbound, isDummy bool) {
		mu.Lock()
		defer mu.Unlock()
		emits++
		gotDummy = isDummy
	})

	s.tick()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, emits)
	require.True(t, gotDummy)
}

func TestTickEmitsQueuedItemBeforeDummy(t *testing.T) {
	cfg := config.DefaultConfig()
	var mu sync.Mutex
	var lastIsDummy bool
	var lastPeer string

	s := New(cfg, time.Hour, 16, func(item Outbound, isDummy bool) {
		mu.Lock()
		defer mu.Unlock()
		lastIsDummy = isDummy
		lastPeer = item.PeerID
	})

	require.NoError(t, s.Enqueue(Outbound{PeerID: "alice", Payload: []byte("hi")}))
	s.tick()

	mu.Lock()
	defer mu.Unlock()
	require.False(t, lastIsDummy)
	require.Equal(t, "alice", lastPeer)
	require.Equal(t, 0, s.Depth())
}

func TestStartStopEmitsAtLeastOnceWithinTickWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	var mu sync.Mutex
	count := 0

	s := New(cfg, 10*time.Millisecond, 16, func(item Outbound, isDummy bool) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	s.Start()
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, count, 0)
}

func TestStartIsIdempotentAndStopWaitsForLoopExit(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, 5*time.Millisecond, 16, func(item Outbound, isDummy bool) {})

	s.Start()
	s.Start() // no-op, must not spawn a second loop or deadlock
	s.Stop()
	s.Stop() // no-op

	emitted, _ := s.Stats()
	require.GreaterOrEqual(t, emitted, uint64(0))
}

func TestConstantRateModeThrottlesBelowTickRate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ConstantRateMode = true
	cfg.TargetRateMsgsPerSec = 20 // one emission per 50ms, well below the 5ms tick

	var mu sync.Mutex
	count := 0
	s := New(cfg, 5*time.Millisecond, 16, func(item Outbound, isDummy bool) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})
	require.NotNil(t, s.limiter)

	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	// At 20/s a 120ms window allows at most ~3 emissions (plus the
	// limiter's single-token burst); a tick-only loop at 5ms would have
	// fired roughly 24 times, so this bounds confirm throttling is
	// actually in effect rather than just present on the struct.
	require.Less(t, count, 10)
}

func TestStatsCountsDummyAndRealSeparately(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, time.Hour, 16, func(item Outbound, isDummy bool) {})

	require.NoError(t, s.Enqueue(Outbound{PeerID: "x", Payload: []byte("y")}))
	s.tick() // real
	s.tick() // dummy

	emitted, dummy := s.Stats()
	require.Equal(t, uint64(2), emitted)
	require.Equal(t, uint64(1), dummy)
}
