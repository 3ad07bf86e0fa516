// Package network models connectivity state for download gating.
package network

import (
	"sync"

	"github.com/patlar104/GlobalTranslation/pkg/log"
)

type State int

const (
	StateDisconnected State = iota
	StateCellular
	StateWiFi
)

func (s State) String() string {
	switch s {
	case StateCellular:
		return "cellular"
	case StateWiFi:
		return "wifi"
	default:
		return "disconnected"
	}
}

// Observer is a long-lived source of connectivity transitions.
type Observer interface {
	// Current returns the latest known state.
	Current() State
	// Subscribe returns a channel of state transitions. The channel is
	// closed when the observer shuts down.
	Subscribe() <-chan State
}

// Hub is an Observer fed by the platform layer (or by tests) through
// Set. Transitions fan out to every subscriber; a slow subscriber drops
// transitions rather than blocking the publisher.
type Hub struct {
	mu      sync.Mutex
	current State
	subs    []chan State
	closed  bool
}

func NewHub(initial State) *Hub {
	return &Hub{current: initial}
}

func (h *Hub) Current() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *Hub) Subscribe() <-chan State {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan State, 16)
	if h.closed {
		close(ch)
		return ch
	}
	h.subs = append(h.subs, ch)
	return ch
}

// Set publishes a new connectivity state. No-op if unchanged.
func (h *Hub) Set(state State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || state == h.current {
		return
	}
	h.current = state
	log.Info("Network state changed to %s", state)

	for _, ch := range h.subs {
		select {
		case ch <- state:
		default:
			log.Warn("Dropping network transition for slow subscriber")
		}
	}
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
