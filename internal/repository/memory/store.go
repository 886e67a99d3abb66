// Package memory implements the repository interfaces with mutex-guarded maps.
// It backs the STORE_DRIVER=memory dev mode and the service test suites, and
// mirrors the transactional semantics of the postgres implementation: appends
// are all-or-nothing, read-set updates are containment-guarded unions.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost/messaging/internal/domain"
)

type Store struct {
	mu            sync.Mutex
	directory     map[string]domain.DirectoryEntry // canonical id -> entry
	conversations map[uuid.UUID]*domain.Conversation
	messages      map[uuid.UUID][]domain.Message // conversation id -> log, insertion order
	byID          map[uuid.UUID]uuid.UUID        // message id -> conversation id
	nextSeq       int64
}

func NewStore() *Store {
	return &Store{
		directory:     make(map[string]domain.DirectoryEntry),
		conversations: make(map[uuid.UUID]*domain.Conversation),
		messages:      make(map[uuid.UUID][]domain.Message),
		byID:          make(map[uuid.UUID]uuid.UUID),
	}
}

// AddDirectoryEntry seeds the fake user directory.
func (s *Store) AddDirectoryEntry(e domain.DirectoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directory[e.CanonicalID] = e
}

func (s *Store) LookupByCanonicalID(_ context.Context, id string) (*domain.DirectoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.directory[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *Store) LookupBySecondaryKey(_ context.Context, key string) (*domain.DirectoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.directory {
		if e.SecondaryKey == key {
			return &e, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateIfAbsent(_ context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[conv.ID]; ok {
		out := *existing
		return &out, false, nil
	}
	stored := *conv
	now := time.Now()
	stored.CreatedAt = now
	stored.LastMessageAt = now
	stored.LastMessageText = ""
	stored.Participants[0].Unread = 0
	stored.Participants[1].Unread = 0
	s.conversations[stored.ID] = &stored
	out := stored
	return &out, true, nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		out := *conv
		return &out, nil
	}
	return nil, nil
}

func (s *Store) FindByParticipants(_ context.Context, identityA, identityB string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.Has(identityA) && conv.Has(identityB) {
			out := *conv
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListByParticipant(_ context.Context, identityID string) ([]domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var convs []domain.Conversation
	for _, conv := range s.conversations {
		if conv.Has(identityID) {
			convs = append(convs, *conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
	})
	return convs, nil
}

func (s *Store) Append(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if convID, ok := s.byID[msg.ID]; ok {
		for _, m := range s.messages[convID] {
			if m.ID == msg.ID {
				out := m
				return &out, nil
			}
		}
	}

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s does not exist", msg.ConversationID)
	}

	s.nextSeq++
	stored := *msg
	stored.Seq = s.nextSeq
	stored.CreatedAt = time.Now()
	stored.ReadBy = slices.Clone(msg.ReadBy)
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], stored)
	s.byID[msg.ID] = msg.ConversationID

	// Same guard as the postgres summary update: a summary never moves
	// backwards in message order, and text and time stay paired.
	if !stored.CreatedAt.Before(conv.LastMessageAt) {
		conv.LastMessageText = stored.Text
		conv.LastMessageAt = stored.CreatedAt
	}
	for i := range conv.Participants {
		if conv.Participants[i].IdentityID != msg.SenderID {
			conv.Participants[i].Unread++
		}
	}

	out := stored
	return &out, nil
}

func (s *Store) ListByConversation(_ context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.messages[conversationID]
	ordered := make([]domain.Message, len(log))
	copy(ordered, log)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Before(&ordered[j])
	})

	end := len(ordered)
	if before != nil {
		// Unknown cursor means an empty page, matching the postgres semantics.
		end = 0
		for i, m := range ordered {
			if m.ID == *before {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return slices.Clone(ordered[start:end]), nil
}

func (s *Store) MarkRead(_ context.Context, conversationID uuid.UUID, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.messages[conversationID]
	for i := range log {
		m := &log[i]
		if m.SenderID != identityID && !slices.Contains(m.ReadBy, identityID) {
			m.ReadBy = append(m.ReadBy, identityID)
		}
	}

	if conv, ok := s.conversations[conversationID]; ok {
		for i := range conv.Participants {
			if conv.Participants[i].IdentityID == identityID {
				conv.Participants[i].Unread = 0
			}
		}
	}
	return nil
}
