package broadcast

import (
	"encoding/json"
	"sync"
)

const subscriberBuffer = 16

// Message is one server-sent event.
type Message struct {
	Event string
	Data  string
}

// Broadcaster fans room events out to server-sent event subscribers. A slow
// subscriber misses messages instead of blocking the publisher.
type Broadcaster struct {
	mu    sync.Mutex
	rooms map[string]map[chan Message]struct{}
}

func New() *Broadcaster {
	return &Broadcaster{rooms: make(map[string]map[chan Message]struct{})}
}

func (b *Broadcaster) Subscribe(room string) chan Message {
	ch := make(chan Message, subscriberBuffer)
	b.mu.Lock()
	subs, ok := b.rooms[room]
	if !ok {
		subs = make(map[chan Message]struct{})
		b.rooms[room] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it. Unknown channels are ignored.
func (b *Broadcaster) Unsubscribe(room string, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.rooms[room]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(b.rooms, room)
	}
}

// Publish encodes v as JSON and offers it to every subscriber of room. It
// returns how many subscribers took the message.
func (b *Broadcaster) Publish(room, event string, v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	msg := Message{Event: event, Data: string(data)}

	b.mu.Lock()
	defer b.mu.Unlock()
	sent := 0
	for ch := range b.rooms[room] {
		select {
		case ch <- msg:
			sent++
		default:
			// skip subscribers with full channels
		}
	}
	return sent
}

func (b *Broadcaster) Subscribers(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[room])
}
