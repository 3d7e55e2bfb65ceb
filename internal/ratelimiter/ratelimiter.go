package ratelimiter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

type Config struct {
	// MaxConcurrent bounds the number of slots held at the same time.
	MaxConcurrent int
	// MinInterval is the minimum spacing between two granted slots.
	MinInterval time.Duration
	// AcquireTimeout bounds how long Acquire waits. Zero means no bound
	// other than the caller's context.
	AcquireTimeout time.Duration
}

// RateLimiter gates outbound calls for every worker of a batch. Waiters are
// served in arrival order.
type RateLimiter struct {
	sem            *semaphore.Weighted
	maxConcurrent  int
	minInterval    time.Duration
	acquireTimeout time.Duration

	mu       sync.Mutex
	nextSlot time.Time

	inFlight atomic.Int64
	log      *slog.Logger
}

func New(cfg Config, log *slog.Logger) *RateLimiter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if log == nil {
		log = slog.Default()
	}

	return &RateLimiter{
		sem:            semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		maxConcurrent:  cfg.MaxConcurrent,
		minInterval:    cfg.MinInterval,
		acquireTimeout: cfg.AcquireTimeout,
		log:            log,
	}
}

// Acquire blocks until a slot is granted. The returned release func must be
// called once the outbound call is finished; extra calls are no-ops.
func (rl *RateLimiter) Acquire(ctx context.Context) (func(), error) {
	waitCtx := ctx
	if rl.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, rl.acquireTimeout)
		defer cancel()
	}

	if err := rl.sem.Acquire(waitCtx, 1); err != nil {
		return nil, rl.acquireErr(ctx, err)
	}

	deadline, _ := waitCtx.Deadline()

	slot, delay, ok := rl.reserve(time.Now(), deadline)
	if !ok {
		rl.sem.Release(1)

		if parent, has := ctx.Deadline(); has && !parent.After(deadline) {
			return nil, context.DeadlineExceeded
		}

		return nil, ErrTimeout
	}

	if delay > 0 {
		rl.log.DebugContext(ctx, "Rate limiting call",
			"delay", delay,
			"inFlight", rl.inFlight.Load())

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-waitCtx.Done():
			timer.Stop()
			rl.unreserve(slot)
			rl.sem.Release(1)

			return nil, rl.acquireErr(ctx, waitCtx.Err())
		}
	}

	rl.inFlight.Add(1)

	var once sync.Once

	return func() {
		once.Do(func() {
			rl.inFlight.Add(-1)
			rl.sem.Release(1)
		})
	}, nil
}

// InFlight reports the number of slots currently held.
func (rl *RateLimiter) InFlight() int {
	return int(rl.inFlight.Load())
}

func (rl *RateLimiter) MaxConcurrent() int {
	return rl.maxConcurrent
}

// reserve books the next free start time and returns how long the caller
// has to wait for it. Nothing is booked when the slot falls after a non-zero
// deadline.
func (rl *RateLimiter) reserve(now time.Time, deadline time.Time) (time.Time, time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	slot := now
	if rl.nextSlot.After(now) {
		slot = rl.nextSlot
	}
	if !deadline.IsZero() && slot.After(deadline) {
		return time.Time{}, 0, false
	}
	rl.nextSlot = slot.Add(rl.minInterval)

	return slot, getDelay(now, slot), true
}

// unreserve gives back a slot whose caller stopped waiting. Only the most
// recent booking can be returned; an earlier one stays as a gap.
func (rl *RateLimiter) unreserve(slot time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.nextSlot.Equal(slot.Add(rl.minInterval)) {
		rl.nextSlot = slot
	}
}

func (rl *RateLimiter) acquireErr(parent context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	return err
}

func getDelay(now time.Time, slot time.Time) time.Duration {
	return max(slot.Sub(now), 0)
}
