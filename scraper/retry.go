package scraper

import (
	"sync"
	"time"

	"github.com/aluiziolira/itch-bundle-valuer/config"
)

// retryManager hands out capped exponential backoff delays per URL.
type retryManager struct {
	cfg     *config.Config
	metrics *Metrics

	mu           sync.Mutex
	attempts     map[string]int
	totalRetries int
}

func newRetryManager(cfg *config.Config, metrics *Metrics) *retryManager {
	return &retryManager{
		cfg:      cfg,
		metrics:  metrics,
		attempts: make(map[string]int),
	}
}

// Next reserves another attempt for url and returns how long to wait first.
// ok is false once MaxRetries attempts have been used.
func (rm *retryManager) Next(url string) (delay time.Duration, ok bool) {
	if rm.cfg.MaxRetries <= 0 {
		return 0, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		return 0, false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	return rm.backoff(attempt), true
}

// Done forgets the attempts for url after it succeeded.
func (rm *retryManager) Done(url string) {
	rm.mu.Lock()
	delete(rm.attempts, url)
	rm.mu.Unlock()
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}
