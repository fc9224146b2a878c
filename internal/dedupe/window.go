// ABOUTME: Size-bounded, time-windowed set of claimed keys
// ABOUTME: The web UI claims each send-form token here so a resubmitted form does not run a turn twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultWindow is how long a claimed key stays claimed.
const DefaultWindow = 10 * time.Minute

// DefaultCapacity bounds how many keys are remembered at once.
const DefaultCapacity = 4096

type claim struct {
	key string
	at  time.Time
}

// Window remembers keys claimed within the last ttl. When full, the oldest
// claim is forgotten first. Expired claims are pruned lazily on each call, so
// there is no background goroutine and nothing to close.
type Window struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List // of claim, oldest at front
	index    map[string]*list.Element
	now      func() time.Time
}

// New creates a Window. Non-positive arguments select the defaults.
func New(ttl time.Duration, capacity int) *Window {
	if ttl <= 0 {
		ttl = DefaultWindow
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Claim records key and reports whether this is its first claim in the window.
func (w *Window) Claim(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)

	if _, ok := w.index[key]; ok {
		return false
	}
	if w.order.Len() >= w.capacity {
		w.removeLocked(w.order.Front())
	}
	w.index[key] = w.order.PushBack(claim{key: key, at: now})
	return true
}

// Release forgets key so it can be claimed again.
func (w *Window) Release(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.index[key]; ok {
		w.removeLocked(el)
	}
}

// Len returns the number of live claims.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(w.now())
	return w.order.Len()
}

// pruneLocked drops claims older than ttl. Claims are appended in time order,
// so the scan stops at the first live one.
func (w *Window) pruneLocked(now time.Time) {
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		if now.Sub(el.Value.(claim).at) < w.ttl {
			return
		}
		w.removeLocked(el)
	}
}

func (w *Window) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	c := w.order.Remove(el).(claim)
	delete(w.index, c.key)
}
