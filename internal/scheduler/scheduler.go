// Package scheduler implements the global cover-traffic scheduler: a
// single bounded queue shared by every session, drained at a fixed
// tick rate with a dummy substituted whenever the queue is empty at
// tick time. It is grounded on the teacher's internal/queue package
// (internal/queue/message_queue.go), a bounded producer/consumer over
// Redis Streams, de-Redis'd into an in-process slice plus a
// mutex-guarded accounting struct since persisting or transporting the
// dummy-traffic queue itself is out of scope. The ticker/context
// start-stop shape follows internal/security/keyrotation.go's
// KeyRotationScheduler.
package scheduler

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/config"
	"github.com/b4ae-io/b4ae-core/internal/metadata"
)

// DefaultQueueDepth and DefaultMemoryBound are the specification's
// stated defaults for the global scheduler's bounds.
const (
	DefaultQueueDepth  = 10000
	DefaultMemoryBound = 100 << 20 // 100 MiB
)

// Outbound is one item waiting to be emitted: an already-protected
// wire payload bound for a specific peer session.
type Outbound struct {
	PeerID  string
	Payload []byte
}

// Emitter is called once per tick with exactly one item: either the
// head of the queue, or a dummy when the queue was empty. The caller
// supplies the transport.
type Emitter func(item Outbound, isDummy bool)

// Scheduler owns the single outbound queue shared across all
// sessions. All mutation of its accounting happens under mu, per the
// specification's note that the scheduler holds the only global
// mutable state in the core.
type Scheduler struct {
	cfg       *config.Config
	tickRate  time.Duration
	queueCap  int
	memoryCap int
	dummySize int
	emit      Emitter

	mu          sync.Mutex
	queue       []Outbound
	queuedBytes int

	// limiter enforces cfg.ConstantRateMode's target emission rate on
	// top of the fixed tick: a nil limiter (the default, burst-capable
	// mode) never throttles a tick.
	limiter *rate.Limiter

	emitted      uint64
	dummyEmitted uint64

	ctx        context.Context
	cancel     context.CancelFunc
	ticker     *time.Ticker
	wg         sync.WaitGroup
	logger     *log.Logger
	runningMu  sync.Mutex
	isRunning  bool
}

// New constructs a Scheduler. dummySize is the payload size used when
// synthesizing a dummy to fill an empty tick.
func New(cfg *config.Config, tickRate time.Duration, dummySize int, emit Emitter) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		tickRate:  tickRate,
		queueCap:  DefaultQueueDepth,
		memoryCap: DefaultMemoryBound,
		dummySize: dummySize,
		emit:      emit,
		logger:    log.New(os.Stderr, "[SCHEDULER] ", log.Ldate|log.Ltime|log.LUTC),
	}
	if cfg != nil && cfg.ConstantRateMode {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.TargetRateMsgsPerSec), 1)
	}
	return s
}

// Enqueue adds item to the queue. It fails with ErrQueueFull if either
// the depth or the memory bound would be exceeded.
func (s *Scheduler) Enqueue(item Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) >= s.queueCap {
		return b4aeerr.New("scheduler.Enqueue", b4aeerr.KindResourceExhausted, b4aeerr.ErrQueueFull)
	}
	if s.queuedBytes+len(item.Payload) > s.memoryCap {
		return b4aeerr.New("scheduler.Enqueue", b4aeerr.KindResourceExhausted, b4aeerr.ErrQueueFull)
	}

	s.queue = append(s.queue, item)
	s.queuedBytes += len(item.Payload)
	return nil
}

// Depth reports the current queue length.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stats returns the running emission counters.
func (s *Scheduler) Stats() (emitted, dummy uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted, s.dummyEmitted
}

// Start begins the fixed-tick emission loop. It is idempotent: calling
// Start while already running is a no-op.
func (s *Scheduler) Start() {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.ticker = time.NewTicker(s.tickRate)
	s.wg.Add(1)
	go s.run()
}

// Stop halts the emission loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if !s.isRunning {
		return
	}
	s.cancel()
	s.ticker.Stop()
	s.wg.Wait()
	s.isRunning = false
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.ticker.C:
			if s.limiter != nil && s.limiter.Wait(s.ctx) != nil {
				return
			}
			s.tick()
		}
	}
}

// tick emits exactly one item: the queue head if present, otherwise a
// freshly generated dummy. The v2 cover-traffic floor is enforced by
// the caller choosing dummySize/tickRate to hit EffectiveCoverTrafficRate;
// tick itself only guarantees an emission never skips a slot.
func (s *Scheduler) tick() {
	item, isDummy, err := s.dequeueOrDummy()
	if err != nil {
		s.logger.Printf("dummy generation failed: %v", err)
		return
	}

	s.mu.Lock()
	s.emitted++
	if isDummy {
		s.dummyEmitted++
	}
	s.mu.Unlock()

	if s.emit != nil {
		s.emit(item, isDummy)
	}
}

func (s *Scheduler) dequeueOrDummy() (Outbound, bool, error) {
	s.mu.Lock()
	if len(s.queue) > 0 {
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.queuedBytes -= len(item.Payload)
		s.mu.Unlock()
		return item, false, nil
	}
	s.mu.Unlock()

	payload, err := metadata.GenerateDummy(s.dummySize)
	if err != nil {
		return Outbound{}, false, err
	}
	return Outbound{Payload: payload}, true, nil
}
