// Package notify is a commit notification bus: a Repo publishes one Event
// per block each time a commit lands on it, and long-lived readers (a
// chain tail watcher, a log tailer) subscribe instead of polling, narrowed
// to the single "block committed" event this layer needs.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/cuemby/blockmesh/pkg/block"
)

// ErrClosed is returned by a watcher reading from a Subscriber that has
// been unsubscribed and closed.
var ErrClosed = errors.New("notify: subscriber closed")

// Event is published once per committed block per transaction.
type Event struct {
	BlockId   block.BlockId
	Rev       block.Revision
	TrxId     block.TrxId
	Timestamp time.Time
}

// Subscriber is a channel that receives commit events.
type Subscriber chan Event

// Broker fans committed-block events out to subscribers. A full
// subscriber buffer drops the event rather than blocking the committer —
// commit durability never depends on a reader keeping up.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker returns a Broker. Call Start before NotifyCommitted is used.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's dispatch loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts dispatch. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe returns a new Subscriber channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 32)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// NotifyCommitted implements repo.Notifier.
func (b *Broker) NotifyCommitted(id block.BlockId, rev block.Revision, trxId block.TrxId) {
	ev := Event{BlockId: id, Rev: rev, TrxId: trxId, Timestamp: time.Now()}
	select {
	case b.eventCh <- ev:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
