package service

import "errors"

var (
	ErrIdentityNotFound     = errors.New("no directory entry matches this handle")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("you are not a participant of this conversation")
	ErrEmptyMessage         = errors.New("message text is empty")
)
