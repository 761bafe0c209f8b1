package metrics

import (
	"sort"
	"sync"
)

// Metric names.
const (
	MessagesTotal    = "messages_total"
	ClientsConnected = "clients_connected"
	FramesRejected   = "frames_rejected"
	AuthFailures     = "auth_failures"
)

// Sink receives counter increments and gauge adjustments.
// Implementations must be safe for concurrent use and must not block.
type Sink interface {
	Increment(name string)
	Gauge(name string, delta int64)
}

// Nop discards everything.
var Nop Sink = nopSink{}

type nopSink struct{}

func (nopSink) Increment(string)    {}
func (nopSink) Gauge(string, int64) {}

// Counters is an in-process Sink that can be snapshotted for /stats.
type Counters struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewCounters creates a Counters with every known metric preset to zero.
func NewCounters() *Counters {
	return &Counters{values: map[string]int64{
		MessagesTotal:    0,
		ClientsConnected: 0,
		FramesRejected:   0,
		AuthFailures:     0,
	}}
}

func (c *Counters) Increment(name string) {
	c.Gauge(name, 1)
}

func (c *Counters) Gauge(name string, delta int64) {
	c.mu.Lock()
	c.values[name] += delta
	c.mu.Unlock()
}

// Get returns the current value of name.
func (c *Counters) Get(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// Snapshot returns a copy of all values.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Names returns the metric names in sorted order.
func (c *Counters) Names() []string {
	c.mu.Lock()
	names := make([]string, 0, len(c.values))
	for k := range c.values {
		names = append(names, k)
	}
	c.mu.Unlock()
	sort.Strings(names)
	return names
}
