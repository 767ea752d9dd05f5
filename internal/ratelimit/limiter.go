// Package ratelimit bounds calls to a scarce external resource under a
// dual constraint: at most N calls in any trailing window, and a
// minimum interval between consecutive calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles callers with a sliding-window quota plus a minimum
// inter-call spacing. Safe for concurrent use; callers are served
// FIFO-ish but exact fairness is not guaranteed.
type Limiter struct {
	name     string
	maxCalls int
	window   time.Duration

	// spacing enforces the minimum interval between calls. A token
	// bucket with burst 1 guarantees consecutive Wait returns are at
	// least the interval apart, across goroutines.
	spacing *rate.Limiter

	mu    sync.Mutex
	calls []time.Time // timestamps inside the trailing window, ascending
}

// New creates a limiter allowing maxCalls per trailing window with at
// least minInterval between any two calls. A maxCalls of zero is a
// valid, permanently-blocking configuration.
func New(name string, maxCalls int, window, minInterval time.Duration) *Limiter {
	spacing := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		spacing = rate.NewLimiter(rate.Every(minInterval), 1)
	}

	return &Limiter{
		name:     name,
		maxCalls: maxCalls,
		window:   window,
		spacing:  spacing,
	}
}

// Acquire blocks until both constraints are satisfiable, then records a
// call timestamp. Returns an error only if the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.maxCalls <= 0 {
		<-ctx.Done()
		return fmt.Errorf("rate limit wait for %s: %w", l.name, ctx.Err())
	}

	for {
		l.mu.Lock()
		now := time.Now()
		l.evict(now)

		if len(l.calls) >= l.maxCalls {
			wait := l.calls[0].Add(l.window).Sub(now)
			l.mu.Unlock()
			if err := sleepContext(ctx, wait); err != nil {
				return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
			}
			continue
		}
		l.mu.Unlock()

		if err := l.spacing.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
		}

		// The window may have filled while waiting out the interval;
		// record only while it still has room.
		l.mu.Lock()
		now = time.Now()
		l.evict(now)
		if len(l.calls) >= l.maxCalls {
			l.mu.Unlock()
			continue
		}
		l.calls = append(l.calls, now)
		l.mu.Unlock()
		return nil
	}
}

// Remaining reports how many calls could currently be made before the
// window constraint forces a wait. It does not account for the
// minimum-interval constraint and never blocks.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(time.Now())
	return l.maxCalls - len(l.calls)
}

// TimeUntilReset returns the duration until the oldest recorded call
// exits the trailing window, or zero if no calls are recorded.
func (l *Limiter) TimeUntilReset() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return 0
	}
	wait := time.Until(l.calls[0].Add(l.window))
	if wait < 0 {
		return 0
	}
	return wait
}

// CallsMade returns the number of calls currently counted within the
// trailing window.
func (l *Limiter) CallsMade() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(time.Now())
	return len(l.calls)
}

// Name returns the name of this rate limiter.
func (l *Limiter) Name() string {
	return l.name
}

// evict drops timestamps older than the trailing window. Callers must
// hold l.mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && l.calls[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
