package scraper

import (
	"sync"
	"time"
)

// CircuitBreaker stops hammering a host that keeps answering 403/429/5xx
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	consecutiveFailures int
	totalRequests       int
	failures            int
	isOpen              bool
	lastFailureTime     time.Time

	mutex sync.Mutex
	now   func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
// A threshold of zero disables it.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a blocking-type response (403, 429, 5xx)
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.failures++
	cb.consecutiveFailures++
	cb.lastFailureTime = cb.now()

	if cb.failureThreshold > 0 && cb.consecutiveFailures >= cb.failureThreshold && !cb.isOpen {
		cb.isOpen = true
		logger.Warnf("circuit breaker open after %d consecutive failures (last status %d), pausing for %v",
			cb.consecutiveFailures, statusCode, cb.resetTimeout)
	}
}

// CanProceed checks if requests are allowed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	// half-open after the reset timeout
	if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		logger.Infof("circuit breaker half-open after %v", cb.resetTimeout)
		cb.isOpen = false
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.failures, cb.totalRequests
}

// breakerSet hands out one breaker per host
type breakerSet struct {
	mu        sync.Mutex
	threshold int
	reset     time.Duration
	byHost    map[string]*CircuitBreaker
}

func newBreakerSet(threshold int, reset time.Duration) *breakerSet {
	return &breakerSet{threshold: threshold, reset: reset, byHost: make(map[string]*CircuitBreaker)}
}

func (bs *breakerSet) get(host string) *CircuitBreaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	cb, ok := bs.byHost[host]
	if !ok {
		cb = NewCircuitBreaker(bs.threshold, bs.reset)
		bs.byHost[host] = cb
	}
	return cb
}
