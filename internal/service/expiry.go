package service

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// PurchaseExpirer resolves pending purchases older than maxAge.
type PurchaseExpirer interface {
	ExpirePendingPurchases(maxAge time.Duration) int
}

// ExpiryConfig holds configuration for the expiry scheduler.
type ExpiryConfig struct {
	// MaxAge is how long a purchase may wait for a platform result.
	MaxAge time.Duration

	// Interval is how often pending purchases are checked.
	// Default: 1 minute
	Interval time.Duration
}

// ExpiryScheduler periodically expires purchases the platform never answered.
type ExpiryScheduler struct {
	expirer   PurchaseExpirer
	config    ExpiryConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewExpiryScheduler creates a new expiry scheduler.
func NewExpiryScheduler(expirer PurchaseExpirer, config ExpiryConfig) *ExpiryScheduler {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.MaxAge > 0 && config.Interval > config.MaxAge {
		config.Interval = config.MaxAge
	}

	return &ExpiryScheduler{
		expirer: expirer,
		config:  config,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the expiry loop. It does nothing when MaxAge is not positive.
func (s *ExpiryScheduler) Start() {
	s.mu.Lock()
	if s.isRunning || s.config.MaxAge <= 0 {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	glog.Infof("[ExpiryScheduler] Started - Interval: %v, MaxAge: %v",
		s.config.Interval, s.config.MaxAge)

	go s.run()
}

// run is the main expiry loop.
func (s *ExpiryScheduler) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.ticker.C:
			s.RunNow()
		case <-s.stopCh:
			glog.Infof("[ExpiryScheduler] Stopped")
			return
		}
	}
}

// RunNow expires stale purchases immediately and returns how many it expired.
func (s *ExpiryScheduler) RunNow() int {
	if s.config.MaxAge <= 0 {
		return 0
	}
	n := s.expirer.ExpirePendingPurchases(s.config.MaxAge)
	if n > 0 {
		glog.Infof("[ExpiryScheduler] Expired %d pending purchases", n)
	} else {
		glog.V(2).Infof("[ExpiryScheduler] No stale purchases")
	}
	return n
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *ExpiryScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.mu.Unlock()

		if running {
			<-s.doneCh
		}
	})
}
