package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// HostLimiter spaces out requests to each host with a base delay plus jitter
// and caps how many requests to one host are in flight.
type HostLimiter struct {
	maxInFlight int
	baseDelay   time.Duration
	jitter      time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState
	rnd   *rand.Rand
}

type hostState struct {
	inFlight    int
	lastRequest time.Time
}

// NewHostLimiter creates a per-host limiter
func NewHostLimiter(maxInFlight int, baseDelay, jitter time.Duration) *HostLimiter {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &HostLimiter{
		maxInFlight: maxInFlight,
		baseDelay:   baseDelay,
		jitter:      jitter,
		hosts:       make(map[string]*hostState),
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Acquire waits until a request to host may start. It returns ctx.Err()
// if the context ends first; Release must only be called after a nil return.
func (hl *HostLimiter) Acquire(ctx context.Context, host string) error {
	for {
		hl.mu.Lock()
		st := hl.state(host)
		if st.inFlight < hl.maxInFlight {
			wait := hl.nextDelay() - time.Since(st.lastRequest)
			if wait <= 0 {
				st.inFlight++
				st.lastRequest = time.Now()
				hl.mu.Unlock()
				return nil
			}
			hl.mu.Unlock()
			if err := sleepContext(ctx, wait); err != nil {
				return err
			}
			continue
		}
		hl.mu.Unlock()
		if err := sleepContext(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
}

// Release marks a request to host as completed
func (hl *HostLimiter) Release(host string) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	if st := hl.hosts[host]; st != nil && st.inFlight > 0 {
		st.inFlight--
	}
}

// InFlight returns the current in-flight count for host
func (hl *HostLimiter) InFlight(host string) int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	if st := hl.hosts[host]; st != nil {
		return st.inFlight
	}
	return 0
}

func (hl *HostLimiter) state(host string) *hostState {
	st, ok := hl.hosts[host]
	if !ok {
		st = &hostState{}
		hl.hosts[host] = st
	}
	return st
}

// nextDelay must be called with mu held
func (hl *HostLimiter) nextDelay() time.Duration {
	if hl.jitter <= 0 {
		return hl.baseDelay
	}
	return hl.baseDelay + time.Duration(hl.rnd.Int63n(int64(hl.jitter)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
