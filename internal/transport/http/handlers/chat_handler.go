package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost/messaging/internal/domain"
	"github.com/tradepost/messaging/internal/repository"
	"github.com/tradepost/messaging/internal/service"
	"github.com/tradepost/messaging/internal/transport/http/middleware"
	"github.com/tradepost/messaging/pkg/retry"
	"github.com/tradepost/messaging/pkg/validator"
)

// ChatHandler is the HTTP face of the messaging core. Transient store errors
// are retried here, at the boundary, before a failure reaches the client; a
// send is retried only when the caller supplied an idempotency token.
type ChatHandler struct {
	resolver *service.Resolver
	registry *service.Registry
	log      *service.MessageLog
	presence *service.Presence
	logger   *slog.Logger

	retryAttempts int
	retryBackoff  time.Duration
}

func NewChatHandler(resolver *service.Resolver, registry *service.Registry, log *service.MessageLog, presence *service.Presence, logger *slog.Logger, retryAttempts int, retryBackoff time.Duration) *ChatHandler {
	return &ChatHandler{
		resolver:      resolver,
		registry:      registry,
		log:           log,
		presence:      presence,
		logger:        logger.With("component", "http"),
		retryAttempts: retryAttempts,
		retryBackoff:  retryBackoff,
	}
}

func (h *ChatHandler) ResolveIdentity(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Handle string `json:"handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidateHandle(input.Handle); errs.HasErrors() {
		writeError(w, http.StatusBadRequest, "INVALID_HANDLE", errs["handle"])
		return
	}

	var identity domain.Identity
	err := h.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		identity, err = h.resolver.Resolve(ctx, input.Handle)
		return err
	})
	if err != nil {
		h.writeServiceError(w, err, "resolve identity")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (h *ChatHandler) GetOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	var input struct {
		OtherHandle string        `json:"other_handle"`
		Topic       *domain.Topic `json:"topic,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidateHandle(input.OtherHandle); errs.HasErrors() {
		writeError(w, http.StatusBadRequest, "INVALID_HANDLE", errs["handle"])
		return
	}

	self, ok := h.resolveSelf(w, r)
	if !ok {
		return
	}

	var conv *domain.Conversation
	err := h.withRetry(r.Context(), func(ctx context.Context) error {
		other, err := h.resolver.Resolve(ctx, input.OtherHandle)
		if err != nil {
			return err
		}
		conv, err = h.registry.GetOrCreate(ctx, self, other, input.Topic)
		return err
	})
	if err != nil {
		h.writeServiceError(w, err, "get or create conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	self, ok := h.resolveSelf(w, r)
	if !ok {
		return
	}

	var convs []domain.Conversation
	err := h.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		convs, err = h.registry.List(ctx, self.ID)
		return err
	})
	if err != nil {
		h.writeServiceError(w, err, "list conversations")
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input struct {
		Text     string     `json:"text"`
		ClientID *uuid.UUID `json:"client_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidateMessageBody(input.Text); errs.HasErrors() {
		writeError(w, http.StatusBadRequest, "EMPTY_MESSAGE", errs["text"])
		return
	}

	self, ok := h.resolveSelf(w, r)
	if !ok {
		return
	}

	var msg *domain.Message
	appendOnce := func(ctx context.Context) error {
		var err error
		msg, err = h.log.Append(ctx, convID, self, input.Text, input.ClientID)
		return err
	}

	if input.ClientID != nil {
		// Idempotency token present: safe to retry the whole append.
		err = h.withRetry(r.Context(), appendOnce)
	} else {
		err = appendOnce(r.Context())
	}
	if err != nil {
		h.writeServiceError(w, err, "send message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var before *uuid.UUID
	if s := r.URL.Query().Get("before"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid before cursor")
			return
		}
		before = &id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	self, ok := h.resolveSelf(w, r)
	if !ok {
		return
	}

	var msgs []domain.Message
	err = h.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		msgs, err = h.log.List(ctx, convID, self.ID, before, limit)
		return err
	})
	if err != nil {
		h.writeServiceError(w, err, "list messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	self, ok := h.resolveSelf(w, r)
	if !ok {
		return
	}

	err = h.withRetry(r.Context(), func(ctx context.Context) error {
		return h.log.MarkRead(ctx, convID, self.ID)
	})
	if err != nil {
		h.writeServiceError(w, err, "mark read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetTyping publishes the caller's typing flag. The websocket path is the
// usual route; this endpoint covers clients that poll over plain HTTP.
func (h *ChatHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input struct {
		Typing bool `json:"typing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	self, ok := h.resolveSelf(w, r)
	if !ok {
		return
	}

	err = h.withRetry(r.Context(), func(ctx context.Context) error {
		_, err := h.registry.Get(ctx, convID, self.ID)
		return err
	})
	if err != nil {
		h.writeServiceError(w, err, "set typing")
		return
	}

	h.presence.SetTyping(convID, self.ID, input.Typing)
	w.WriteHeader(http.StatusNoContent)
}

// resolveSelf re-resolves the authenticated handle on every call, so a
// directory correction takes effect immediately rather than after re-login.
func (h *ChatHandler) resolveSelf(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	handle := middleware.GetHandle(r.Context())

	var self domain.Identity
	err := h.withRetry(r.Context(), func(ctx context.Context) error {
		var err error
		self, err = h.resolver.Resolve(ctx, handle)
		return err
	})
	if err != nil {
		h.writeServiceError(w, err, "resolve caller")
		return domain.Identity{}, false
	}
	return self, true
}

func (h *ChatHandler) withRetry(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, h.retryAttempts, h.retryBackoff,
		func(err error) bool { return errors.Is(err, repository.ErrUnavailable) },
		fn)
}

func (h *ChatHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrIdentityNotFound):
		writeError(w, http.StatusNotFound, "IDENTITY_NOT_FOUND", "Cannot find this user")
	case errors.Is(err, service.ErrSelfConversation):
		writeError(w, http.StatusBadRequest, "SELF_CONVERSATION", "Cannot start a conversation with yourself")
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found")
	case errors.Is(err, service.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "NOT_PARTICIPANT", "You are not a participant of this conversation")
	case errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "EMPTY_MESSAGE", "Message text is required")
	case errors.Is(err, repository.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Temporarily unavailable, try again")
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}
