package session

import (
	"sync"
	"time"

	"github.com/mrsingh-rishi/live-voice/types"
)

// Event types pushed to subscribers.
const (
	EventStatus       = "status"
	EventTranscript   = "transcript"
	EventInterrupted  = "interrupted"
	EventTurnComplete = "turn_complete"
)

const subscriberBuffer = 32

// Event is one observable change.
type Event struct {
	Type    string    `json:"type"`
	Status  string    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	Text    string    `json:"text,omitempty"`
	Time    time.Time `json:"time"`
}

func statusEvent(s types.Status) Event {
	return Event{Type: EventStatus, Status: s.Kind(), Message: s.Message(), Time: time.Now()}
}

// broadcaster fans events out to subscribers. Slow subscribers miss events
// rather than stall the controller.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

// subscribe registers a subscriber whose first event is first.
func (b *broadcaster) subscribe(first Event) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	ch <- first
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
