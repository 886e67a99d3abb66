package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost/messaging/internal/domain"
)

type typingKey struct {
	conversationID uuid.UUID
	identityID     string
}

// Presence tracks typing indicators. State lives only in memory and only until
// the TTL fires; a client that dies mid-keystroke stops "typing" on its own.
// Last write wins per (conversation, identity) pair.
type Presence struct {
	notifier Notifier
	ttl      time.Duration

	mu     sync.Mutex
	timers map[typingKey]*time.Timer
}

func NewPresence(ttl time.Duration) *Presence {
	return &Presence{
		ttl:    ttl,
		timers: make(map[typingKey]*time.Timer),
	}
}

func (p *Presence) SetNotifier(n Notifier) {
	p.notifier = n
}

// SetTyping publishes the typing flag for the identity in the conversation.
// A true call arms (or re-arms) the expiry timer; false clears it immediately.
func (p *Presence) SetTyping(conversationID uuid.UUID, identityID string, typing bool) {
	key := typingKey{conversationID, identityID}

	p.mu.Lock()
	if t, ok := p.timers[key]; ok {
		t.Stop()
		delete(p.timers, key)
	}
	if typing {
		var t *time.Timer
		t = time.AfterFunc(p.ttl, func() { p.expire(key, t) })
		p.timers[key] = t
	}
	p.mu.Unlock()

	p.publish(conversationID, identityID, typing)
}

func (p *Presence) expire(key typingKey, t *time.Timer) {
	p.mu.Lock()
	if p.timers[key] != t {
		// An explicit false (or a newer true) beat the timer.
		p.mu.Unlock()
		return
	}
	delete(p.timers, key)
	p.mu.Unlock()

	p.publish(key.conversationID, key.identityID, false)
}

// Stop cancels all pending expiries. Used on shutdown.
func (p *Presence) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, t := range p.timers {
		t.Stop()
		delete(p.timers, key)
	}
}

func (p *Presence) publish(conversationID uuid.UUID, identityID string, typing bool) {
	if p.notifier == nil {
		return
	}
	p.notifier.NotifyTyping(domain.TypingState{
		ConversationID: conversationID,
		IdentityID:     identityID,
		Typing:         typing,
		UpdatedAt:      time.Now(),
	})
}
