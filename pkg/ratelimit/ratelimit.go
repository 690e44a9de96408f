// Package ratelimit paces outbound requests per destination host.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// HostLimiter enforces a minimum interval between requests to the same host.
// Acquire calls for the same host are serialized; different hosts proceed
// in parallel. The clock is injectable for tests.
type HostLimiter struct {
	delay time.Duration
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	mu   sync.Mutex
	last time.Time
}

// New returns a limiter with the given minimum inter-request interval.
func New(delay time.Duration) *HostLimiter {
	return &HostLimiter{
		delay: delay,
		now:   time.Now,
		sleep: sleepContext,
		hosts: make(map[string]*hostState),
	}
}

// NewWithClock returns a limiter with an injected clock, for tests.
// sleep may be nil, in which case waits complete immediately.
func NewWithClock(delay time.Duration, now func() time.Time, sleep func(context.Context, time.Duration) error) *HostLimiter {
	l := New(delay)
	if now != nil {
		l.now = now
	}
	if sleep != nil {
		l.sleep = sleep
	} else {
		l.sleep = func(context.Context, time.Duration) error { return nil }
	}
	return l
}

// Acquire blocks until a request to host is permitted, then records the
// request time. If a prior request to the same host completed less than the
// configured delay ago, the caller is suspended for the remainder of that
// interval. Returns early with the context error on cancellation.
func (l *HostLimiter) Acquire(ctx context.Context, host string) error {
	st := l.state(host)

	// Holding the per-host lock across the wait serializes concurrent
	// callers targeting the same host.
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.last.IsZero() {
		wait := l.delay - l.now().Sub(st.last)
		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	st.last = l.now()
	return nil
}

// Delay returns the configured minimum inter-request interval.
func (l *HostLimiter) Delay() time.Duration {
	return l.delay
}

func (l *HostLimiter) state(host string) *hostState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.hosts[host]
	if !ok {
		st = &hostState{}
		l.hosts[host] = st
	}
	return st
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
