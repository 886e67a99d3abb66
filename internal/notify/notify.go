// Package notify bridges the messaging core to the marketplace's push
// pipeline. Delivery itself (tokens, retries, APNs/FCM) lives outside this
// module; here we only surface each appended message, addressed to the
// non-sending participant, to a pluggable sink.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/repository"
	"github.com/tradepost/messaging/internal/syncer"
)

// Sink accepts one push-notification request. Implementations must be fast or
// buffer internally; the dispatcher calls them inline.
type Sink interface {
	Notify(recipientID string, conv *domain.Conversation, msg *domain.Message)
}

// LogSink is the default sink: it just records what would be pushed.
type LogSink struct {
	Log *slog.Logger
}

func (s *LogSink) Notify(recipientID string, conv *domain.Conversation, msg *domain.Message) {
	s.Log.Info("push notification ready",
		"recipient", recipientID,
		"conversation", conv.ID,
		"sender", msg.SenderID)
}

// Dispatcher watches the append stream and routes each message to the
// participant who did not send it.
type Dispatcher struct {
	convs repository.ConversationRepository
	sink  Sink
	log   *slog.Logger
}

func NewDispatcher(convs repository.ConversationRepository, sink Sink, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		convs: convs,
		sink:  sink,
		log:   log.With("component", "notify"),
	}
}

// Attach subscribes the dispatcher to the gateway's append stream. The
// returned cancel detaches it.
func (d *Dispatcher) Attach(gw *syncer.Gateway) func() {
	return gw.SubscribeAppends(d.dispatch)
}

func (d *Dispatcher) dispatch(msg domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := d.convs.GetByID(ctx, msg.ConversationID)
	if err != nil || conv == nil {
		d.log.Warn("cannot resolve conversation for notification", "conversation", msg.ConversationID, "error", err)
		return
	}
	other, ok := conv.Other(msg.SenderID)
	if !ok {
		return
	}
	d.sink.Notify(other.IdentityID, conv, &msg)
}
