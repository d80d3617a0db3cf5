package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Participant captures one user's membership and read state inside a
// conversation. It has no identity of its own outside the aggregate.
type Participant struct {
	UserID     uuid.UUID  `json:"user_id"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

// MessagePreview is the denormalized snapshot of the latest message,
// cached on the conversation so listing does not need a per-row query.
type MessagePreview struct {
	MessageID      uuid.UUID `json:"message_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
	HasAttachments bool      `json:"has_attachments"`
}

// Conversation is a private thread between exactly two users.
type Conversation struct {
	ID           uuid.UUID       `json:"id"`
	Participants []Participant   `json:"participants"`
	CreatedBy    uuid.UUID       `json:"created_by"`
	LastMessage  *MessagePreview `json:"last_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewConversation creates a conversation between two distinct users.
func NewConversation(creatorID, recipientID uuid.UUID, now time.Time) (*Conversation, error) {
	if creatorID == recipientID {
		return nil, ErrSelfConversation
	}

	return &Conversation{
		ID: uuid.New(),
		Participants: []Participant{
			{UserID: creatorID, JoinedAt: now},
			{UserID: recipientID, JoinedAt: now},
		},
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanonicalPair orders two user IDs so that a pair always maps to the
// same key regardless of who initiated contact. The repository keeps a
// uniqueness constraint on the ordered pair.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(a.String(), b.String()) > 0 {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether the user belongs to this conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not the given user.
func (c *Conversation) OtherParticipant(userID uuid.UUID) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID != userID {
			return p, true
		}
	}
	return Participant{}, false
}

// ParticipantIDs returns the user IDs of both participants.
func (c *Conversation) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// MarkAsRead stamps the participant's last read time.
func (c *Conversation) MarkAsRead(userID uuid.UUID, now time.Time) error {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			t := now
			c.Participants[i].LastReadAt = &t
			return nil
		}
	}
	return ErrNotParticipant
}

// SetLastMessage refreshes the cached preview and bumps UpdatedAt.
func (c *Conversation) SetLastMessage(preview MessagePreview) {
	c.LastMessage = &preview
	c.UpdatedAt = preview.SentAt
}

// UnreadFor derives the unread signal for one participant. It is a
// coarse 0/1 flag: it answers "is there unread activity", not "how many
// messages are unread". Equality is read (strict greater-than).
func (c *Conversation) UnreadFor(userID uuid.UUID) int {
	if c.LastMessage == nil {
		return 0
	}
	for _, p := range c.Participants {
		if p.UserID != userID {
			continue
		}
		if p.LastReadAt == nil || c.LastMessage.SentAt.After(*p.LastReadAt) {
			return 1
		}
		return 0
	}
	return 0
}

// ConversationResponse is the view of a conversation for one viewer,
// with the derived unread flag attached.
type ConversationResponse struct {
	ID           uuid.UUID       `json:"id"`
	Participants []Participant   `json:"participants"`
	CreatedBy    uuid.UUID       `json:"created_by"`
	LastMessage  *MessagePreview `json:"last_message,omitempty"`
	UnreadCount  int             `json:"unread_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ToResponse converts the conversation to its viewer-scoped response.
func (c *Conversation) ToResponse(viewerID uuid.UUID) *ConversationResponse {
	return &ConversationResponse{
		ID:           c.ID,
		Participants: c.Participants,
		CreatedBy:    c.CreatedBy,
		LastMessage:  c.LastMessage,
		UnreadCount:  c.UnreadFor(viewerID),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// ConversationRepository is the persistence contract for conversations.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversationByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// GetConversationByParticipantPair looks a conversation up by its
	// canonical sorted pair.
	GetConversationByParticipantPair(ctx context.Context, a, b uuid.UUID) (*Conversation, error)
	ListConversationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, conv *Conversation) error
	DeleteConversation(ctx context.Context, id uuid.UUID) error
}
