// Package status manages the transient "working" placeholder a request shows
// while it is in flight.
package status

import (
	"sync"
	"time"
)

// Default phase texts and timing.
const (
	Analyzing    = "Analyzing user intention..."
	Thinking     = "Model thinking...."
	DefaultDelay = 1500 * time.Millisecond
)

// Host is the message log an indicator lives in. UpdatePlaceholder must only
// change the text if the placeholder is still present, and must check that
// under the same lock that guards removal.
type Host interface {
	AppendPlaceholder(text string) string
	UpdatePlaceholder(id, text string) bool
	Remove(id string) bool
}

// Indicator is one request's placeholder. It switches text once after a
// delay and is removed by Close.
type Indicator struct {
	host  Host
	id    string
	timer *time.Timer
	fired chan struct{}

	mu     sync.Mutex
	closed bool
	stale  bool
}

// Open appends the placeholder with phase1 text. If phase2 is non-empty and
// delay is positive, the text becomes phase2 after delay, provided the
// placeholder has not been removed in the meantime.
func Open(host Host, phase1, phase2 string, delay time.Duration) *Indicator {
	ind := &Indicator{
		host: host,
		id:   host.AppendPlaceholder(phase1),
	}
	if phase2 != "" && delay > 0 {
		ind.fired = make(chan struct{})
		ind.timer = time.AfterFunc(delay, func() {
			defer close(ind.fired)
			host.UpdatePlaceholder(ind.id, phase2)
		})
	}
	return ind
}

// ID returns the placeholder message ID.
func (i *Indicator) ID() string {
	return i.id
}

// Close stops the phase timer and removes the placeholder. It reports whether
// the placeholder was still present; false means the conversation moved on
// (for example it was cleared) and the reply belonging to it is stale.
// Close is idempotent and returns the first result on later calls.
func (i *Indicator) Close() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return !i.stale
	}
	i.closed = true

	if i.timer != nil && !i.timer.Stop() {
		<-i.fired
	}
	present := i.host.Remove(i.id)
	i.stale = !present
	return present
}
