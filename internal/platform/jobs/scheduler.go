package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/teleshop/bot/internal/services"
)

// TimerScheduler runs deferred functions on per-key timers. Scheduling a key
// that already has a pending timer replaces it; Cancel stops the timer before
// it fires. Fired functions receive a context that is cancelled on Close.
type TimerScheduler struct {
	logger services.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

var _ services.DeferredScheduler = (*TimerScheduler)(nil)

func NewTimerScheduler(logger services.Logger) *TimerScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[string]*time.Timer),
	}
}

func (s *TimerScheduler) Schedule(key string, delay time.Duration, fn func(context.Context)) {
	if fn == nil {
		return
	}
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if existing, ok := s.timers[key]; ok {
		if existing.Stop() {
			s.wg.Done()
		}
		delete(s.timers, key)
	}
	s.wg.Add(1)
	s.timers[key] = time.AfterFunc(delay, func() {
		defer s.wg.Done()

		s.mu.Lock()
		delete(s.timers, key)
		closed := s.closed
		s.mu.Unlock()
		if closed || s.ctx.Err() != nil {
			return
		}
		s.log(s.ctx, "jobs.deferred_fired", map[string]any{"key": key})
		fn(s.ctx)
	})
}

// Cancel reports whether a pending timer for key was stopped before firing.
func (s *TimerScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	if timer.Stop() {
		s.wg.Done()
		return true
	}
	return false
}

// Close stops all pending timers, cancels the context handed to in-flight
// functions and waits for them to return.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, timer := range s.timers {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, key)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *TimerScheduler) log(ctx context.Context, event string, fields map[string]any) {
	if s.logger == nil {
		return
	}
	s.logger(ctx, event, fields)
}
