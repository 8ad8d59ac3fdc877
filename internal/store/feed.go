package store

import (
	"sync"

	"github.com/gammazero/deque"
)

// Feed is an unbounded, in-order queue from a store to one subscriber.
// Push never blocks and never drops.
type Feed struct {
	mu     sync.Mutex
	queue  deque.Deque[Change]
	wake   chan struct{}
	out    chan Change
	done   chan struct{}
	closed sync.Once
	onStop func()
}

// NewFeed starts the delivery goroutine. onStop, if set, runs once on Close.
func NewFeed(onStop func()) *Feed {
	f := &Feed{
		wake:   make(chan struct{}, 1),
		out:    make(chan Change),
		done:   make(chan struct{}),
		onStop: onStop,
	}
	go f.pump()
	return f
}

// Push enqueues c. It reports false once the feed is closed.
func (f *Feed) Push(c Change) bool {
	select {
	case <-f.done:
		return false
	default:
	}
	f.mu.Lock()
	f.queue.PushBack(c)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return true
}

func (f *Feed) Changes() <-chan Change { return f.out }

// Done is closed when the feed is closed.
func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) Close() error {
	f.closed.Do(func() {
		close(f.done)
		if f.onStop != nil {
			f.onStop()
		}
	})
	return nil
}

func (f *Feed) pump() {
	defer close(f.out)
	for {
		f.mu.Lock()
		if f.queue.Len() == 0 {
			f.mu.Unlock()
			select {
			case <-f.wake:
				continue
			case <-f.done:
				return
			}
		}
		next := f.queue.Front()
		f.mu.Unlock()

		select {
		case f.out <- next:
			f.mu.Lock()
			f.queue.PopFront()
			f.mu.Unlock()
		case <-f.done:
			return
		}
	}
}
