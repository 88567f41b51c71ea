package events

import (
	"sync"
	"sync/atomic"

	"github.com/kelindar/event"
)

// Subscription delivers every event a live client follows (state, fault,
// config and log) on one channel. Publishers never wait on it: an event
// that does not fit in C is dropped and counted.
type Subscription struct {
	C <-chan any

	ch      chan any
	dropped atomic.Int64
	once    sync.Once
	unsubs  []func()
}

// Stream subscribes a channel holding up to buffer pending events.
// A nil bus yields a subscription that never delivers.
func (b *Bus) Stream(buffer int) *Subscription {
	s := &Subscription{ch: make(chan any, buffer)}
	s.C = s.ch
	if b == nil {
		return s
	}
	s.unsubs = []func(){
		forward[StateChangedEvent](b, s),
		forward[StreamFaultEvent](b, s),
		forward[ConfigChangedEvent](b, s),
		forward[LogEntryEvent](b, s),
	}
	return s
}

func forward[T Event](b *Bus, s *Subscription) func() {
	return event.Subscribe(b.dispatcher, func(e T) {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	})
}

// Dropped returns how many events were discarded because C was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops delivery. C stays open so pending events can still be read.
func (s *Subscription) Close() {
	s.once.Do(func() {
		for _, unsub := range s.unsubs {
			unsub()
		}
	})
}
