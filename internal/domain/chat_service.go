package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const defaultPageSize = 50

// ChatService orchestrates conversation and message use cases. Each
// mutation is a single-aggregate read-modify-write; events are
// published only after the aggregate has been persisted.
type ChatService struct {
	conversations ConversationRepository
	messages      MessageRepository
	publisher     EventPublisher
}

func NewChatService(conversations ConversationRepository, messages MessageRepository, publisher EventPublisher) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
	}
}

// CreateConversationResult reports whether the conversation was newly
// created or an existing one between the same pair was returned.
type CreateConversationResult struct {
	Conversation *Conversation `json:"conversation"`
	IsNew        bool          `json:"is_new"`
}

// CreateConversation starts (or returns) the conversation between the
// requester and recipient. The same pair always maps to the same
// conversation no matter which side initiates.
func (s *ChatService) CreateConversation(ctx context.Context, requesterID, recipientID uuid.UUID) (*CreateConversationResult, error) {
	if requesterID == recipientID {
		return nil, ErrSelfConversation
	}

	a, b := CanonicalPair(requesterID, recipientID)
	existing, err := s.conversations.GetConversationByParticipantPair(ctx, a, b)
	if err == nil {
		return &CreateConversationResult{Conversation: existing, IsNew: false}, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	conv, err := NewConversation(requesterID, recipientID, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		// Both sides racing on first contact: the pair constraint wins,
		// the loser reads the winner's row.
		if errors.Is(err, ErrConversationExists) {
			existing, lookupErr := s.conversations.GetConversationByParticipantPair(ctx, a, b)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &CreateConversationResult{Conversation: existing, IsNew: false}, nil
		}
		return nil, err
	}

	s.publish(ctx, Event{
		Type:  EventConversationCreated,
		Actor: requesterID,
		Data: ConversationCreatedData{
			ConversationID: conv.ID,
			ParticipantIDs: conv.ParticipantIDs(),
		},
	}, conv.ParticipantIDs())

	return &CreateConversationResult{Conversation: conv, IsNew: true}, nil
}

// GetConversations lists the user's conversations with the derived
// unread flag attached to each.
func (s *ChatService) GetConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ConversationResponse, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	convs, err := s.conversations.ListConversationsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]*ConversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ToResponse(userID))
	}
	return out, nil
}

// GetMessages pages a conversation's messages newest first. A
// conversation the requester does not belong to is indistinguishable
// from one that does not exist.
func (s *ChatService) GetMessages(ctx context.Context, conversationID, userID uuid.UUID, cursor string, limit int) (*MessagePage, error) {
	conv, err := s.conversations.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrConversationNotFound
	}

	pos, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}

	msgs, next, err := s.messages.ListMessagesByConversation(ctx, conversationID, pos, limit)
	if err != nil {
		return nil, err
	}

	return &MessagePage{Messages: msgs, NextCursor: next.Encode()}, nil
}

// SendMessage creates a message in an existing conversation and
// refreshes the conversation's cached preview.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string, attachments []MediaAttachment) (*Message, error) {
	conv, err := s.conversations.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrConversationNotFound
	}

	msg, err := NewMessage(conversationID, senderID, content, attachments, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	conv.SetLastMessage(msg.Preview())
	if err := s.conversations.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.publish(ctx, Event{
		Type:  EventMessageNew,
		Actor: senderID,
		Data: MessageEventData{
			ConversationID: conversationID,
			MessageID:      msg.ID,
			SenderID:       senderID,
		},
	}, conv.ParticipantIDs())

	return msg, nil
}

// EditMessage replaces a message's content. Sender only.
func (s *ChatService) EditMessage(ctx context.Context, messageID, userID uuid.UUID, content string) (*Message, error) {
	msg, conv, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	updated, err := s.messages.MutateMessage(ctx, msg.ID, func(m *Message) error {
		return m.Edit(userID, content, time.Now())
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{
		Type:  EventMessageEdited,
		Actor: userID,
		Data: MessageEventData{
			ConversationID: conv.ID,
			MessageID:      updated.ID,
			SenderID:       updated.SenderID,
		},
	}, conv.ParticipantIDs())

	return updated, nil
}

// DeleteMessage soft-deletes a message, keeping its row so ordering and
// reaction history survive for the other participant. Sender only.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) error {
	msg, conv, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}

	deleted, err := s.messages.MutateMessage(ctx, msg.ID, func(m *Message) error {
		return m.SoftDelete(userID, time.Now())
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Event{
		Type:  EventMessageDeleted,
		Actor: userID,
		Data: MessageEventData{
			ConversationID: conv.ID,
			MessageID:      deleted.ID,
			SenderID:       deleted.SenderID,
		},
	}, conv.ParticipantIDs())

	return nil
}

// ToggleReactionResult names the action the toggle resolved to.
type ToggleReactionResult struct {
	Action ReactionAction `json:"action"`
}

// ToggleReaction adds or removes the (user, emoji) reaction depending
// on current state. The decision and the write happen inside one
// serialized read-modify-write so rapid double-taps cannot lose an
// update.
func (s *ChatService) ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji Emoji) (*ToggleReactionResult, error) {
	if !emoji.IsValid() {
		return nil, ErrInvalidEmoji
	}

	_, conv, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	var action ReactionAction
	_, err = s.messages.MutateMessage(ctx, messageID, func(m *Message) error {
		a, toggleErr := m.ToggleReaction(userID, emoji, time.Now())
		if toggleErr != nil {
			return toggleErr
		}
		action = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := EventReactionAdded
	if action == ReactionRemoved {
		eventType = EventReactionRemoved
	}
	s.publish(ctx, Event{
		Type:  eventType,
		Actor: userID,
		Data: ReactionEventData{
			ConversationID: conv.ID,
			MessageID:      messageID,
			UserID:         userID,
			Emoji:          emoji,
		},
	}, conv.ParticipantIDs())

	return &ToggleReactionResult{Action: action}, nil
}

// MarkReadResult reports the stamped read time.
type MarkReadResult struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

// MarkConversationRead stamps the participant's lastReadAt. The emitted
// event is informational; unread flags are always recomputed from the
// stored timestamps, never from delivered events.
func (s *ChatService) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) (*MarkReadResult, error) {
	conv, err := s.conversations.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	now := time.Now()
	if err := conv.MarkAsRead(userID, now); err != nil {
		return nil, err
	}
	if err := s.conversations.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.publish(ctx, Event{
		Type:  EventConversationRead,
		Actor: userID,
		Data: ConversationReadData{
			ConversationID: conversationID,
			UserID:         userID,
		},
	}, conv.ParticipantIDs())

	return &MarkReadResult{ConversationID: conversationID, UserID: userID, ReadAt: now}, nil
}

// DeleteConversation hard-deletes the conversation and its messages.
// Either participant may request it.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID, requesterID uuid.UUID) error {
	conv, err := s.conversations.GetConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(requesterID) {
		return ErrNotParticipant
	}

	if err := s.messages.DeleteMessagesByConversation(ctx, conversationID); err != nil {
		return err
	}
	return s.conversations.DeleteConversation(ctx, conversationID)
}

// visibleMessage loads a message and its conversation, applying the
// participant gate: to a non-participant the message does not exist.
func (s *ChatService) visibleMessage(ctx context.Context, messageID, userID uuid.UUID) (*Message, *Conversation, error) {
	msg, err := s.messages.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.conversations.GetConversationByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, nil, ErrMessageNotFound
	}
	return msg, conv, nil
}

func (s *ChatService) publish(ctx context.Context, event Event, recipients []uuid.UUID) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, event, recipients)
}
