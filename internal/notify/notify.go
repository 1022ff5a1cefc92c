// Package notify is an in-process bus announcing writes to enrollment files.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what changed an enrollment file.
type Kind string

const (
	// CellUpdated is a single data-entry submission.
	CellUpdated Kind = "submit"
	// FileReplaced is a bulk upload or a snapshot restore.
	FileReplaced Kind = "upload"
)

// Event announces a committed write.
type Event struct {
	Kind     Kind
	Year     string
	Key      string
	ETag     string
	SchoolID string
	At       time.Time
}

// Notifier fans events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
	dropped     atomic.Int64
}

// New creates a notifier with the given per-subscriber buffer.
func New(bufferSize int) *Notifier {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Notifier{bufferSize: bufferSize, subscribers: make(map[string]*Subscriber)}
}

// Subscriber receives events for the years it asked for.
type Subscriber struct {
	ID    string
	Years []string
	Ch    chan Event
}

// Publish delivers e to every matching subscriber.
func (n *Notifier) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subscribers {
		if !sub.matches(e.Year) {
			continue
		}
		select {
		case sub.Ch <- e:
		default:
			n.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. No years means every year. An empty
// id is replaced by a generated one.
func (n *Notifier) Subscribe(id string, years ...string) *Subscriber {
	if id == "" {
		id = "sub_" + uuid.NewString()
	}
	sub := &Subscriber{ID: id, Years: years, Ch: make(chan Event, n.bufferSize)}

	n.mu.Lock()
	defer n.mu.Unlock()
	if old, ok := n.subscribers[id]; ok {
		close(old.Ch)
	}
	n.subscribers[id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subscribers[id]; ok {
		delete(n.subscribers, id)
		close(sub.Ch)
	}
}

// Close unsubscribes everyone.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, sub := range n.subscribers {
		delete(n.subscribers, id)
		close(sub.Ch)
	}
	return nil
}

// Dropped returns the number of events lost to full buffers.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

func (s *Subscriber) matches(year string) bool {
	if len(s.Years) == 0 {
		return true
	}
	for _, y := range s.Years {
		if y == year {
			return true
		}
	}
	return false
}
