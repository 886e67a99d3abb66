package service

import "github.com/tradepost/messaging/internal/domain"

// Notifier receives change events from the services. The syncer broker is the
// production implementation; services tolerate a nil notifier.
type Notifier interface {
	NotifyConversationUpdated(conv *domain.Conversation)
	NotifyNewMessage(conv *domain.Conversation, msg *domain.Message)
	NotifyRead(conv *domain.Conversation, identityID string)
	NotifyTyping(state domain.TypingState)
}
