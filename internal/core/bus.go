package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultBusCapacity is the number of envelopes a subscriber may lag behind
// before its oldest unread envelopes are overwritten.
const DefaultBusCapacity = 64

// ErrBusClosed is returned by Subscription.Next once the bus or the subscription is closed.
var ErrBusClosed = errors.New("bus closed")

// Bus is a process-wide publish/subscribe channel.
//
// Envelopes live in a fixed ring shared by all subscribers; each subscriber
// keeps its own cursor. Publish never blocks: a subscriber that falls more
// than capacity envelopes behind skips ahead and loses the oldest ones.
// A slot is cleared once every subscriber that could read it has done so.
type Bus struct {
	mu     sync.Mutex
	ring   []slot
	next   uint64        // sequence number of the next publish
	notify chan struct{} // closed and replaced on every publish
	closed bool
	live   int // open subscriptions
}

type slot struct {
	env     Envelope
	seq     uint64
	pending int // subscribers yet to read env
}

// NewBus creates a bus. A non-positive capacity selects DefaultBusCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{
		ring:   make([]slot, capacity),
		notify: make(chan struct{}),
	}
}

// Publish fans env out to every current subscriber. It never blocks on readers.
func (b *Bus) Publish(env Envelope) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	sl := slot{seq: b.next, pending: b.live}
	if b.live > 0 {
		sl.env = env
	}
	b.ring[b.next%uint64(len(b.ring))] = sl
	b.next++
	wake := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()

	close(wake)
}

// Subscribe returns a subscription for the connection at addr.
// It observes only envelopes published after the call.
func (b *Bus) Subscribe(addr string) *Subscription {
	b.mu.Lock()
	cursor := b.next
	b.live++
	b.mu.Unlock()

	return &Subscription{
		bus:    b,
		addr:   addr,
		cursor: cursor,
		done:   make(chan struct{}),
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

// release marks seq as read by one subscriber. Caller holds b.mu.
func (b *Bus) release(seq uint64) {
	sl := &b.ring[seq%uint64(len(b.ring))]
	if sl.seq != seq || sl.pending == 0 {
		return
	}
	sl.pending--
	if sl.pending == 0 {
		sl.env = Envelope{}
	}
}

// oldest returns the lowest sequence number still held by the ring.
func (b *Bus) oldest() uint64 {
	if capacity := uint64(len(b.ring)); b.next > capacity {
		return b.next - capacity
	}
	return 0
}

// Close wakes all subscribers; subsequent Next calls return ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	wake := b.notify
	b.mu.Unlock()

	close(wake)
}

// Subscription is one connection's cursor into the Bus.
// Next must not be called concurrently on the same subscription.
type Subscription struct {
	bus    *Bus
	addr   string
	cursor uint64

	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

// Next blocks until an envelope deliverable to this subscription is published,
// ctx is done, or the subscription is closed. Envelopes from the subscriber's
// own origin are skipped, except Auth acknowledgements addressed to it.
func (s *Subscription) Next(ctx context.Context) (Envelope, error) {
	for {
		env, ok, wait, err := s.poll()
		if err != nil {
			return Envelope{}, err
		}
		if ok {
			if env.DeliverableTo(s.addr) {
				return env, nil
			}
			continue
		}

		select {
		case <-wait:
		case <-s.done:
			return Envelope{}, ErrBusClosed
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// poll takes the envelope under the cursor if one is available; otherwise it
// returns the channel that will be closed by the next publish.
func (s *Subscription) poll() (Envelope, bool, <-chan struct{}, error) {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-s.done:
		return Envelope{}, false, nil, ErrBusClosed
	default:
	}

	if s.cursor < b.next {
		if oldest := b.oldest(); s.cursor < oldest {
			s.dropped.Add(oldest - s.cursor)
			s.cursor = oldest
		}
		env := b.ring[s.cursor%uint64(len(b.ring))].env
		b.release(s.cursor)
		s.cursor++
		return env, true, nil, nil
	}
	if b.closed {
		return Envelope{}, false, nil, ErrBusClosed
	}
	return Envelope{}, false, b.notify, nil
}

// Dropped returns how many envelopes this subscriber lost to lagging.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription from the bus and releases the envelopes it
// never read. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()

		close(s.done)
		for seq := max(s.cursor, b.oldest()); seq < b.next; seq++ {
			b.release(seq)
		}
		b.live--
	})
}
