package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/hanpama/graphpager/internal/query"
)

// ErrClosed is returned by wrapped callbacks once the Serial is closed.
var ErrClosed = errors.New("dispatch: closed")

type job struct {
	ctx  context.Context
	fn   query.PerNodeFunc
	out  query.Output
	done chan error
}

// Serial runs callbacks one at a time on a single worker goroutine, in the
// order they were submitted. Callbacks wrapped by the same Serial never run
// concurrently, whatever goroutine the scans run on.
type Serial struct {
	mu     sync.Mutex
	jobs   []job
	closed bool
	signal chan struct{} // buffered, size 1
	stop   chan struct{}
	exited chan struct{}
}

// NewSerial starts the worker. Close must be called to release it.
func NewSerial() *Serial {
	s := &Serial{
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.run()
	return s
}

// Wrap returns a callback that hands each call to the worker and waits for
// its result. A nil fn yields nil.
func (s *Serial) Wrap(fn query.PerNodeFunc) query.PerNodeFunc {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, out query.Output) error {
		return s.submit(ctx, fn, out)
	}
}

func (s *Serial) submit(ctx context.Context, fn query.PerNodeFunc, out query.Output) error {
	j := job{ctx: ctx, fn: fn, out: out, done: make(chan error, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serial) next() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return job{}, false
	}
	j := s.jobs[0]
	s.jobs[0] = job{}
	s.jobs = s.jobs[1:]
	return j, true
}

func (s *Serial) run() {
	defer close(s.exited)
	for {
		for {
			j, ok := s.next()
			if !ok {
				break
			}
			if err := j.ctx.Err(); err != nil {
				j.done <- err
				continue
			}
			j.done <- j.fn(j.ctx, j.out)
		}
		select {
		case <-s.signal:
		case <-s.stop:
			// drain whatever was queued before Close
			for {
				j, ok := s.next()
				if !ok {
					return
				}
				j.done <- ErrClosed
			}
		}
	}
}

// Close rejects new submissions, fails queued ones with ErrClosed and waits
// for the worker to exit. It is safe to call more than once.
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.exited
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
	<-s.exited
}
