// Package sse pushes entry changes to connected browsers as Server-Sent Events.
//
// Every frame carries a sequence id. The broker keeps the most recent frames
// so a client reconnecting with Last-Event-ID receives what it missed.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// EventTrendsUpdated tells clients that aggregates should be refetched. It
// follows entry events at most once per throttle interval, and a change
// inside the interval gets a trailing one when the interval ends.
const EventTrendsUpdated = "trends.updated"

const (
	clientBuffer = 64
	historySize  = clientBuffer
)

// Event is one message to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EntryEventData is the payload of entry.* and entries.* events.
type EntryEventData struct {
	Date string `json:"date,omitempty"`
}

// Known entry event kinds. Anything else passed to PublishEntryEvent is dropped.
var entryKinds = map[string]bool{
	"entry.saved":      true,
	"entry.deleted":    true,
	"entries.imported": true,
	"entries.cleared":  true,
}

type frame struct {
	id  uint64
	raw []byte
}

// Broker fans events out to SSE clients.
type Broker struct {
	trendsMin time.Duration
	keepAlive time.Duration

	mu          sync.Mutex
	clients     map[chan []byte]struct{}
	seq         uint64
	history     []frame
	lastTrends  time.Time
	trendsTimer *time.Timer
	closed      bool
}

// NewBroker creates a broker. trendsThrottle bounds how often trends.updated
// is emitted; non-positive values default to two seconds.
func NewBroker(trendsThrottle time.Duration) *Broker {
	if trendsThrottle <= 0 {
		trendsThrottle = 2 * time.Second
	}
	return &Broker{
		trendsMin: trendsThrottle,
		keepAlive: 25 * time.Second,
		clients:   make(map[chan []byte]struct{}),
	}
}

// Close closes every client channel and cancels a pending trends.updated.
// It is safe to call more than once.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.trendsTimer != nil {
		b.trendsTimer.Stop()
		b.trendsTimer = nil
	}
	for ch := range b.clients {
		close(ch)
	}
	clear(b.clients)
}

// Subscribe registers a client for new events.
func (b *Broker) Subscribe() chan []byte {
	ch, _ := b.subscribe(0, false)
	return ch
}

// SubscribeFrom registers a client and queues the retained events with an id
// greater than lastID. It reports how many were replayed.
func (b *Broker) SubscribeFrom(lastID uint64) (chan []byte, int) {
	return b.subscribe(lastID, true)
}

func (b *Broker) subscribe(lastID uint64, replay bool) (chan []byte, int) {
	ch := make(chan []byte, clientBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, 0
	}

	n := 0
	if replay {
		for _, f := range b.history {
			if f.id > lastID {
				ch <- f.raw
				n++
			}
		}
	}
	b.clients[ch] = struct{}{}
	return ch, n
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Publish sends an arbitrary event to every client.
func (b *Broker) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcastLocked(event)
}

// PublishEntryEvent broadcasts an entry change and schedules trends.updated.
func (b *Broker) PublishEntryEvent(kind, date string) {
	if !entryKinds[kind] {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.broadcastLocked(Event{Type: kind, Data: EntryEventData{Date: date}})

	wait := b.trendsMin - time.Since(b.lastTrends)
	switch {
	case wait <= 0:
		b.emitTrendsLocked()
	case b.trendsTimer == nil:
		b.trendsTimer = time.AfterFunc(wait, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.trendsTimer = nil
			if !b.closed {
				b.emitTrendsLocked()
			}
		})
	}
}

func (b *Broker) emitTrendsLocked() {
	b.lastTrends = time.Now()
	b.broadcastLocked(Event{Type: EventTrendsUpdated, Data: struct{}{}})
}

func (b *Broker) broadcastLocked(event Event) {
	if b.closed {
		return
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	b.seq++
	f := frame{id: b.seq, raw: fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", b.seq, event.Type, payload)}

	if len(b.history) == historySize {
		copy(b.history, b.history[1:])
		b.history = b.history[:historySize-1]
	}
	b.history = append(b.history, f)

	for ch := range b.clients {
		select {
		case ch <- f.raw:
		default:
			// slow client; it can catch up with Last-Event-ID
		}
	}
}

// ServeHTTP streams events to one client (GET /api/events). A Last-Event-ID
// header replays the retained events after that id.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var ch chan []byte
	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch, _ = b.SubscribeFrom(lastID)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
