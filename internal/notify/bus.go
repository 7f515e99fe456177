// Package notify implements a best-effort, at-most-once notification bus.
// Subscriber identity is the authenticated user_id; a channel joins the
// user-indexed multimap only after sending an auth frame. Delivery never
// retries and never replays: a dropped write silently removes the channel,
// and consumers reconcile lost state via REST on reconnect.
package notify

import (
	"context"
	"sync"
	"time"
)

const writeTimeout = 10 * time.Second

// Event is the outgoing frame shape for every subscriber.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Channel is anything a subscriber connection can deliver a frame through.
// *wsChannel is the only production implementation; tests may substitute a
// fake.
type Channel interface {
	Send(ctx context.Context, evt Event) error
	Close()
}

// Bus holds the user-indexed multimap of connected channels.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]map[Channel]struct{}
}

// NewBus constructs an empty notification bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]map[Channel]struct{})}
}

// Subscribe attaches ch to userID's multimap entry, called once a connection
// sends a valid auth frame.
func (b *Bus) Subscribe(userID string, ch Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[userID]
	if !ok {
		set = make(map[Channel]struct{})
		b.subscribers[userID] = set
	}
	set[ch] = struct{}{}
}

// Unsubscribe detaches ch, called on disconnect.
func (b *Bus) Unsubscribe(userID string, ch Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[userID]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(b.subscribers, userID)
	}
}

// NotifyUser delivers evtType/data to every channel subscribed under
// userID. A write failure drops that channel from the multimap; it never
// blocks the caller past writeTimeout per channel.
func (b *Bus) NotifyUser(userID, evtType string, data any) {
	b.deliver(b.channelsFor(userID), evtType, data)
}

// Broadcast delivers evtType/data to every connected subscriber regardless
// of user (prices:update, escrow:transaction).
func (b *Bus) Broadcast(evtType string, data any) {
	b.deliver(b.allChannels(), evtType, data)
}

func (b *Bus) channelsFor(userID string) []channelRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[userID]
	if !ok {
		return nil
	}
	out := make([]channelRef, 0, len(set))
	for ch := range set {
		out = append(out, channelRef{userID: userID, ch: ch})
	}
	return out
}

func (b *Bus) allChannels() []channelRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []channelRef
	for userID, set := range b.subscribers {
		for ch := range set {
			out = append(out, channelRef{userID: userID, ch: ch})
		}
	}
	return out
}

type channelRef struct {
	userID string
	ch     Channel
}

func (b *Bus) deliver(refs []channelRef, evtType string, data any) {
	if len(refs) == 0 {
		return
	}
	evt := Event{Type: evtType, Data: data, Timestamp: time.Now().UTC()}
	for _, ref := range refs {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := ref.ch.Send(ctx, evt)
		cancel()
		if err != nil {
			b.Unsubscribe(ref.userID, ref.ch)
			ref.ch.Close()
		}
	}
}
