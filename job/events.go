package job

import (
	"sync"
)

// subscriberBuffer bounds the per-subscriber channel. Slow consumers
// lose intermediate progress snapshots but never the terminal one.
const subscriberBuffer = 16

type subscriber struct {
	ch     chan Job
	closed bool
}

// Hub fans out job state snapshots to subscribers. Each subscriber
// gets a buffered channel; intermediate updates may be dropped when
// the buffer is full, terminal updates always land and close the
// channel afterwards.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish delivers a snapshot to every subscriber of the job. Called
// under the store lock, so delivery order matches commit order.
func (h *Hub) Publish(j Job) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[j.ID] {
		h.deliver(sub, j)
	}
	if j.Status.Terminal() {
		h.closeAll(j.ID)
	}
}

// replay sends a terminal snapshot to subscribers registered after the
// job finished, then closes them.
func (h *Hub) replay(id string, j Job) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[id] {
		h.deliver(sub, j)
	}
	h.closeAll(id)
}

// deliver enqueues a snapshot without blocking. When the buffer is
// full the oldest pending snapshot is dropped first; the newest state
// always wins.
func (h *Hub) deliver(sub *subscriber, j Job) {
	if sub.closed {
		return
	}
	for {
		select {
		case sub.ch <- j:
			return
		default:
			select {
			case <-sub.ch:
			default:
			}
		}
	}
}

// closeAll closes every subscriber channel for the job. Caller holds h.mu.
func (h *Hub) closeAll(id string) {
	for sub := range h.subs[id] {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	delete(h.subs, id)
}

// subscribe registers a new subscriber channel for a job.
func (h *Hub) subscribe(id string) (<-chan Job, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{ch: make(chan Job, subscriberBuffer)}
	if h.subs[id] == nil {
		h.subs[id] = make(map[*subscriber]struct{})
	}
	h.subs[id][sub] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[id]; ok {
			if _, present := set[sub]; present {
				delete(set, sub)
				if !sub.closed {
					sub.closed = true
					close(sub.ch)
				}
				if len(set) == 0 {
					delete(h.subs, id)
				}
			}
		}
	}
	return sub.ch, cancel
}
