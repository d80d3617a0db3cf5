package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftspace/backend/internal/domain"
	"github.com/driftspace/backend/internal/middleware"
	"github.com/driftspace/backend/pkg/response"
	"github.com/driftspace/backend/pkg/validator"
)

type ChatHandler struct {
	chatService *domain.ChatService
	wsManager   *WebSocketManager
	logger      *zap.Logger
}

func NewChatHandler(chatService *domain.ChatService, wsManager *WebSocketManager, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		wsManager:   wsManager,
		logger:      logger,
	}
}

// HandleWebSocket upgrades the HTTP connection to the push-event stream
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.New(),
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}

	h.wsManager.register <- client

	go client.WritePump()
	go client.ReadPump(h.wsManager)
}

// CreateConversation starts (or returns) a conversation with a user
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		RecipientID string `json:"recipient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		response.BadRequest(w, "invalid recipient id")
		return
	}

	result, err := h.chatService.CreateConversation(r.Context(), userID, recipientID)
	if err != nil {
		if errors.Is(err, domain.ErrSelfConversation) {
			response.BadRequest(w, err.Error())
			return
		}
		h.logger.Error("failed to create conversation", zap.Error(err))
		response.InternalError(w, "failed to create conversation")
		return
	}

	if result.IsNew {
		response.Created(w, result)
		return
	}
	response.OK(w, result)
}

// GetConversations lists the user's conversations with unread flags
func (h *ChatHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	p := validator.ParsePagination(r)

	convs, err := h.chatService.GetConversations(r.Context(), userID, p.Limit, p.Offset)
	if err != nil {
		h.logger.Error("failed to get conversations", zap.Error(err))
		response.InternalError(w, "failed to get conversations")
		return
	}

	response.OK(w, convs)
}

// DeleteConversation hard-deletes a conversation and its messages
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationId"))
	if err != nil {
		response.BadRequest(w, "invalid conversation id")
		return
	}

	if err := h.chatService.DeleteConversation(r.Context(), conversationID, userID); err != nil {
		h.respondChatError(w, err, "failed to delete conversation")
		return
	}

	response.NoContent(w)
}

// MarkConversationRead stamps the caller's last read time
func (h *ChatHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationId"))
	if err != nil {
		response.BadRequest(w, "invalid conversation id")
		return
	}

	result, err := h.chatService.MarkConversationRead(r.Context(), conversationID, userID)
	if err != nil {
		h.respondChatError(w, err, "failed to mark conversation read")
		return
	}

	response.OK(w, result)
}

// GetMessages pages a conversation's messages newest first
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationId"))
	if err != nil {
		response.BadRequest(w, "invalid conversation id")
		return
	}

	p := validator.ParsePagination(r)

	page, err := h.chatService.GetMessages(r.Context(), conversationID, userID, p.Cursor, p.Limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			response.BadRequest(w, err.Error())
			return
		}
		h.respondChatError(w, err, "failed to get messages")
		return
	}

	response.OK(w, page)
}

// SendMessage creates a message in a conversation
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationId"))
	if err != nil {
		response.BadRequest(w, "invalid conversation id")
		return
	}

	var req struct {
		Content     string                   `json:"content"`
		Attachments []domain.MediaAttachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	msg, err := h.chatService.SendMessage(r.Context(), conversationID, userID, req.Content, req.Attachments)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyMessage),
			errors.Is(err, domain.ErrContentTooLong),
			errors.Is(err, domain.ErrDuplicateAttachment):
			response.BadRequest(w, err.Error())
		case errors.Is(err, domain.ErrInvalidMediaType):
			response.UnsupportedMediaType(w, err.Error())
		case errors.Is(err, domain.ErrFileTooLarge):
			response.PayloadTooLarge(w, err.Error())
		default:
			h.respondChatError(w, err, "failed to send message")
		}
		return
	}

	response.Created(w, msg)
}

// EditMessage replaces a message's content (sender only)
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "messageId"))
	if err != nil {
		response.BadRequest(w, "invalid message id")
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	msg, err := h.chatService.EditMessage(r.Context(), messageID, userID, req.Content)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyMessage) || errors.Is(err, domain.ErrContentTooLong) {
			response.BadRequest(w, err.Error())
			return
		}
		h.respondChatError(w, err, "failed to edit message")
		return
	}

	response.OK(w, msg)
}

// DeleteMessage soft-deletes a message (sender only)
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "messageId"))
	if err != nil {
		response.BadRequest(w, "invalid message id")
		return
	}

	if err := h.chatService.DeleteMessage(r.Context(), messageID, userID); err != nil {
		h.respondChatError(w, err, "failed to delete message")
		return
	}

	response.NoContent(w)
}

// ToggleReaction adds or removes the caller's reaction on a message
func (h *ChatHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "messageId"))
	if err != nil {
		response.BadRequest(w, "invalid message id")
		return
	}

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	result, err := h.chatService.ToggleReaction(r.Context(), messageID, userID, domain.Emoji(req.Emoji))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEmoji) {
			response.BadRequest(w, err.Error())
			return
		}
		h.respondChatError(w, err, "failed to toggle reaction")
		return
	}

	response.OK(w, result)
}

// respondChatError maps domain failures to HTTP responses. Membership
// failures surface as not-found so a non-participant cannot confirm a
// conversation exists; only sender-only mutations get a distinct
// forbidden, since the requester can already see the message.
func (h *ChatHandler) respondChatError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrMessageDeleted),
		errors.Is(err, domain.ErrNotParticipant):
		response.NotFound(w, "not found")
	case errors.Is(err, domain.ErrNotMessageSender):
		response.Forbidden(w, err.Error())
	default:
		h.logger.Error(logMsg, zap.Error(err))
		response.InternalError(w, logMsg)
	}
}
