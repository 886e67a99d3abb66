// Package syncer is the fan-out layer between the messaging services and
// everything that wants to observe them: websocket clients, the notification
// dispatcher, tests. The Broker carries change events; the Gateway turns them
// into re-delivered snapshots per the subscription contracts.
package syncer

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/metrics"
)

type EventKind string

const (
	KindConversationUpdated EventKind = "conversation.updated"
	KindMessageAppended     EventKind = "message.appended"
	KindMessagesRead        EventKind = "messages.read"
	KindTyping              EventKind = "typing"
)

// Event is one observable change. ParticipantIDs routes conversation-list
// subscriptions; ConversationID routes per-conversation ones.
type Event struct {
	Kind           EventKind
	ConversationID uuid.UUID
	ParticipantIDs []string
	Message        *domain.Message
	ReaderID       string
	Typing         *domain.TypingState
}

// maxPending bounds a lagging subscriber's queue. Events beyond it are
// coalesced away; the wake-up signal survives, so the subscriber still
// refreshes to current state.
const maxPending = 128

type subscription struct {
	filter func(*Event) bool

	mu      sync.Mutex
	pending []Event
	closed  bool

	signal chan struct{}
	done   chan struct{}
}

func (s *subscription) deliver(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.pending) >= maxPending {
		s.pending = s.pending[1:]
		metrics.EventsCoalesced.Inc()
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) take() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Broker is an in-process publish/subscribe bus. Publishing never blocks on a
// subscriber.
type Broker struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]*subscription)}
}

func (b *Broker) Publish(ev Event) {
	metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()

	b.mu.Lock()
	subs := lo.Values(b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.filter == nil || sub.filter(&ev) {
			sub.deliver(ev)
		}
	}
}

// subscribe registers a filtered subscription and returns it with its cancel.
// Cancellation stops delivery; events already taken stay delivered.
func (b *Broker) subscribe(filter func(*Event) bool) (*subscription, func()) {
	sub := &subscription{
		filter: filter,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()
	metrics.ActiveSubscriptions.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()

			sub.mu.Lock()
			sub.closed = true
			sub.pending = nil
			sub.mu.Unlock()

			close(sub.done)
			metrics.ActiveSubscriptions.Dec()
		})
	}
	return sub, cancel
}

// --- service.Notifier implementation ---

func (b *Broker) NotifyConversationUpdated(conv *domain.Conversation) {
	b.Publish(Event{
		Kind:           KindConversationUpdated,
		ConversationID: conv.ID,
		ParticipantIDs: conv.ParticipantIDs(),
	})
}

func (b *Broker) NotifyNewMessage(conv *domain.Conversation, msg *domain.Message) {
	b.Publish(Event{
		Kind:           KindMessageAppended,
		ConversationID: conv.ID,
		ParticipantIDs: conv.ParticipantIDs(),
		Message:        msg,
	})
}

func (b *Broker) NotifyRead(conv *domain.Conversation, identityID string) {
	b.Publish(Event{
		Kind:           KindMessagesRead,
		ConversationID: conv.ID,
		ParticipantIDs: conv.ParticipantIDs(),
		ReaderID:       identityID,
	})
}

func (b *Broker) NotifyTyping(state domain.TypingState) {
	b.Publish(Event{
		Kind:           KindTyping,
		ConversationID: state.ConversationID,
		Typing:         &state,
	})
}
