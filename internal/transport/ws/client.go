package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/service"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBufSize  = 256
)

// convSubscription holds the gateway cancels for one subscribed conversation.
type convSubscription struct {
	cancelMessages func()
	cancelTyping   func()
}

// Client represents a single WebSocket connection, bound to one resolved
// identity. It bridges gateway subscriptions to the socket: the conversation
// list is subscribed for the whole connection, per-conversation message and
// typing streams on demand.
type Client struct {
	conn     *websocket.Conn
	identity domain.Identity
	gateway  Gateway
	registry *service.Registry
	presence *service.Presence
	log      *slog.Logger

	// typingLimiter caps keystroke-driven typing events per connection.
	typingLimiter *rate.Limiter

	mu         sync.Mutex
	subs       map[uuid.UUID]*convSubscription
	cancelList func()

	send chan []byte
	done chan struct{}
	once sync.Once
}

// Gateway is the subscription surface the client consumes.
type Gateway interface {
	SubscribeConversations(identityID string, onChange func([]domain.Conversation)) func()
	SubscribeMessages(conversationID uuid.UUID, onChange func([]domain.Message)) func()
	SubscribeTyping(conversationID uuid.UUID, selfID string, onChange func(bool)) func()
}

func NewClient(conn *websocket.Conn, identity domain.Identity, gateway Gateway, registry *service.Registry, presence *service.Presence, log *slog.Logger) *Client {
	return &Client{
		conn:          conn,
		identity:      identity,
		gateway:       gateway,
		registry:      registry,
		presence:      presence,
		log:           log.With("component", "ws", "identity", identity.ID),
		typingLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		subs:          make(map[uuid.UUID]*convSubscription),
		send:          make(chan []byte, sendBufSize),
		done:          make(chan struct{}),
	}
}

// Start subscribes the conversation list and launches the pumps.
func (c *Client) Start() {
	c.mu.Lock()
	c.cancelList = c.gateway.SubscribeConversations(c.identity.ID, func(convs []domain.Conversation) {
		c.pushEvent(EventTypeConversations, nil, ConversationsPayload{Conversations: convs})
	})
	c.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (c *Client) close() {
	c.once.Do(func() {
		c.mu.Lock()
		if c.cancelList != nil {
			c.cancelList()
		}
		for id, sub := range c.subs {
			sub.cancelMessages()
			sub.cancelTyping()
			delete(c.subs, id)
		}
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Info("client disconnected")
			} else {
				c.log.Warn("read error", "error", err)
			}
			return
		}
		c.handleEvent(&event)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Warn("write error", "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Warn("ping error", "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeSubscribe:
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid subscribe payload")
			return
		}
		c.subscribe(p.ConversationID)

	case EventTypeUnsubscribe:
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid unsubscribe payload")
			return
		}
		c.unsubscribe(p.ConversationID)

	case EventTypeTypingStart, EventTypeTypingStop:
		if event.ConversationID == nil {
			c.sendError("INVALID_PAYLOAD", "conversation_id required for typing events")
			return
		}
		if !c.typingLimiter.Allow() {
			return
		}
		if !c.isSubscribed(*event.ConversationID) {
			c.sendError("NOT_SUBSCRIBED", "subscribe to the conversation first")
			return
		}
		c.presence.SetTyping(*event.ConversationID, c.identity.ID, event.Type == EventTypeTypingStart)

	case EventTypePing:
		c.sendPong()

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) subscribe(conversationID uuid.UUID) {
	// Participant check before any stream is attached.
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	_, err := c.registry.Get(ctx, conversationID, c.identity.ID)
	cancel()
	if err != nil {
		c.sendError("SUBSCRIBE_DENIED", "conversation unknown or not yours")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[conversationID]; ok {
		return
	}

	id := conversationID
	c.subs[conversationID] = &convSubscription{
		cancelMessages: c.gateway.SubscribeMessages(id, func(msgs []domain.Message) {
			c.pushEvent(EventTypeMessages, &id, MessagesPayload{Messages: msgs})
		}),
		cancelTyping: c.gateway.SubscribeTyping(id, c.identity.ID, func(typing bool) {
			c.pushEvent(EventTypeTyping, &id, TypingPayload{Typing: typing})
		}),
	}
}

func (c *Client) unsubscribe(conversationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[conversationID]; ok {
		sub.cancelMessages()
		sub.cancelTyping()
		delete(c.subs, conversationID)
	}
}

func (c *Client) isSubscribed(conversationID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[conversationID]
	return ok
}

func (c *Client) pushEvent(eventType string, conversationID *uuid.UUID, payload any) {
	evt, err := NewEvent(eventType, conversationID, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Buffer full: drop. The next gateway refresh re-delivers full state.
	}
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(Event{Type: EventTypePong})
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	c.pushEvent(EventTypeError, nil, ErrorPayload{Code: code, Message: message})
}
