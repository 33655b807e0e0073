package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Serial runs callbacks one at a time, in submission order, on a single
// dedicated goroutine.
type Serial struct {
	mu      sync.Mutex
	backlog []func()
	notify  chan struct{}
	stopped bool
	done    chan struct{}

	submitted atomic.Uint64
	executed  atomic.Uint64
}

// NewSerial creates a Serial executor. Callbacks queue until Start is called.
func NewSerial() *Serial {
	return &Serial{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start runs the delivery loop until ctx is done or Stop is called.
func (s *Serial) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Serial) run(ctx context.Context) {
	defer close(s.done)
	for {
		for {
			fn, ok := s.next()
			if !ok {
				break
			}
			s.invoke(fn)
		}

		select {
		case <-ctx.Done():
			s.markStopped()
			return
		case <-s.notify:
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				s.flush()
				return
			}
		}
	}
}

// next pops the oldest queued callback.
func (s *Serial) next() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.backlog) == 0 {
		return nil, false
	}
	fn := s.backlog[0]
	s.backlog[0] = nil
	s.backlog = s.backlog[1:]
	return fn, true
}

func (s *Serial) invoke(fn func()) {
	defer s.executed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[Serial] Completion callback panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

// flush runs whatever is still queued after a stop request.
func (s *Serial) flush() {
	for {
		fn, ok := s.next()
		if !ok {
			return
		}
		s.invoke(fn)
	}
}

func (s *Serial) markStopped() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.flush()
}

// Execute queues fn. Once the executor has stopped, fn runs on the caller's
// goroutine so no completion is ever dropped.
func (s *Serial) Execute(fn func()) {
	s.submitted.Add(1)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.invoke(fn)
		return
	}
	s.backlog = append(s.backlog, fn)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued callbacks.
func (s *Serial) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

// Metrics returns submitted and executed counters.
func (s *Serial) Metrics() (submitted, executed uint64) {
	return s.submitted.Load(), s.executed.Load()
}

// Drain blocks until every submitted callback has run or ctx is done.
func (s *Serial) Drain(ctx context.Context) bool {
	for {
		sub, exec := s.Metrics()
		if sub == exec {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Stop runs the remaining backlog and ends the delivery loop. It must only
// be called after Start.
func (s *Serial) Stop() {
	s.mu.Lock()
	already := s.stopped
	s.stopped = true
	s.mu.Unlock()
	if already {
		<-s.done
		return
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
	<-s.done
}

var _ Executor = (*Serial)(nil)
