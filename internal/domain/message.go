package domain

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxContentLength bounds message text.
	MaxContentLength = 4000
	// MaxAttachmentSize bounds a single uploaded file (10 MiB).
	MaxAttachmentSize = 10 << 20
	// PreviewLength bounds the cached content snippet.
	PreviewLength = 120
)

// Emoji is one of the fixed set of supported reactions.
type Emoji string

const (
	EmojiHeart    Emoji = "❤️"
	EmojiThumbsUp Emoji = "👍"
	EmojiLaugh    Emoji = "😂"
	EmojiWow      Emoji = "😮"
	EmojiSad      Emoji = "😢"
	EmojiFire     Emoji = "🔥"
)

func (e Emoji) IsValid() bool {
	switch e {
	case EmojiHeart, EmojiThumbsUp, EmojiLaugh, EmojiWow, EmojiSad, EmojiFire:
		return true
	}
	return false
}

// AllowedImageTypes is the upload MIME allow-list.
var AllowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Reaction is a single user's emoji on a message. A message holds at
// most one reaction per (user, emoji) pair.
type Reaction struct {
	UserID    uuid.UUID `json:"user_id"`
	Emoji     Emoji     `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionAction is the outcome of a toggle.
type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

// MediaAttachment is an immutable descriptor of an uploaded image.
type MediaAttachment struct {
	ID       uuid.UUID `json:"id"`
	URL      string    `json:"url"`
	MimeType string    `json:"mime_type"`
	Size     int64     `json:"size"`
	Filename string    `json:"filename"`
	Width    *int      `json:"width,omitempty"`
	Height   *int      `json:"height,omitempty"`
}

// NewMediaAttachment validates type and size at construction.
func NewMediaAttachment(url, mimeType, filename string, size int64) (*MediaAttachment, error) {
	if !AllowedImageTypes[mimeType] {
		return nil, ErrInvalidMediaType
	}
	if size > MaxAttachmentSize {
		return nil, ErrFileTooLarge
	}
	return &MediaAttachment{
		ID:       uuid.New(),
		URL:      url,
		MimeType: mimeType,
		Size:     size,
		Filename: filename,
	}, nil
}

// Message is its own aggregate root, referencing the conversation by id
// so message pages load without the whole conversation.
type Message struct {
	ID             uuid.UUID         `json:"id"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	SenderID       uuid.UUID         `json:"sender_id"`
	Content        *string           `json:"content,omitempty"`
	Attachments    []MediaAttachment `json:"attachments,omitempty"`
	Reactions      []Reaction        `json:"reactions,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	EditedAt       *time.Time        `json:"edited_at,omitempty"`
	DeletedAt      *time.Time        `json:"deleted_at,omitempty"`
}

// NewMessage creates a message carrying text, media, or both. The
// attachment descriptors arrive from the client, so each one is held to
// the same type/size rules as at upload time.
func NewMessage(conversationID, senderID uuid.UUID, content string, attachments []MediaAttachment, now time.Time) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	if len(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}

	seen := make(map[uuid.UUID]struct{}, len(attachments))
	for _, a := range attachments {
		if !AllowedImageTypes[a.MimeType] {
			return nil, ErrInvalidMediaType
		}
		if a.Size > MaxAttachmentSize {
			return nil, ErrFileTooLarge
		}
		if _, dup := seen[a.ID]; dup {
			return nil, ErrDuplicateAttachment
		}
		seen[a.ID] = struct{}{}
	}

	msg := &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Attachments:    attachments,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if content != "" {
		msg.Content = &content
	}
	return msg, nil
}

// IsDeleted reports whether the message has been soft-deleted.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// HasReaction reports whether the (user, emoji) pair is present.
func (m *Message) HasReaction(userID uuid.UUID, emoji Emoji) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// ToggleReaction adds the reaction when absent and removes it when
// present. The caller never picks add vs remove; current state decides.
func (m *Message) ToggleReaction(userID uuid.UUID, emoji Emoji, now time.Time) (ReactionAction, error) {
	if !emoji.IsValid() {
		return "", ErrInvalidEmoji
	}
	if m.IsDeleted() {
		return "", ErrMessageDeleted
	}

	for i, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			m.UpdatedAt = now
			return ReactionRemoved, nil
		}
	}

	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji, CreatedAt: now})
	m.UpdatedAt = now
	return ReactionAdded, nil
}

// Edit replaces the content and stamps EditedAt. Only the sender may
// edit, and attachment-only messages cannot be edited to empty text.
func (m *Message) Edit(userID uuid.UUID, content string, now time.Time) error {
	if m.SenderID != userID {
		return ErrNotMessageSender
	}
	if m.IsDeleted() {
		return ErrMessageDeleted
	}
	content = strings.TrimSpace(content)
	if content == "" && len(m.Attachments) == 0 {
		return ErrEmptyMessage
	}
	if len(content) > MaxContentLength {
		return ErrContentTooLong
	}

	if content == "" {
		m.Content = nil
	} else {
		m.Content = &content
	}
	t := now
	m.EditedAt = &t
	m.UpdatedAt = now
	return nil
}

// SoftDelete marks the message deleted without removing the row, so
// ordering and reaction history stay intact for the other participant.
func (m *Message) SoftDelete(userID uuid.UUID, now time.Time) error {
	if m.SenderID != userID {
		return ErrNotMessageSender
	}
	if m.IsDeleted() {
		return ErrMessageDeleted
	}
	t := now
	m.DeletedAt = &t
	m.UpdatedAt = now
	return nil
}

// Preview builds the snapshot cached on the owning conversation.
func (m *Message) Preview() MessagePreview {
	snippet := ""
	if m.Content != nil {
		snippet = *m.Content
		if len(snippet) > PreviewLength {
			// Cut on a rune boundary so a multi-byte character at the
			// edge does not leave invalid UTF-8 in the cache.
			cut := PreviewLength
			for cut > 0 && !utf8.RuneStart(snippet[cut]) {
				cut--
			}
			snippet = snippet[:cut]
		}
	}
	return MessagePreview{
		MessageID:      m.ID,
		SenderID:       m.SenderID,
		Content:        snippet,
		SentAt:         m.CreatedAt,
		HasAttachments: len(m.Attachments) > 0,
	}
}

// Cursor is a keyset pagination position over (created_at, id). The
// tie-break on id keeps pages stable under concurrent inserts.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// IsZero reports whether the cursor points at the start.
func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == uuid.Nil
}

// Encode serializes the cursor for transport.
func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	raw := fmt.Sprintf("%s|%s", c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a client-supplied cursor. Empty means "start".
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{CreatedAt: ts, ID: id}, nil
}

// MessagePage is one page of messages, newest first.
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// MessageRepository is the persistence contract for messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessageByID(ctx context.Context, id uuid.UUID) (*Message, error)
	// ListMessagesByConversation pages newest-first from the cursor.
	ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID, cursor Cursor, limit int) ([]*Message, Cursor, error)
	// MutateMessage runs fn against the current message state and
	// persists the result as one atomic read-modify-write. Concurrent
	// mutations of the same message are serialized by the
	// implementation.
	MutateMessage(ctx context.Context, id uuid.UUID, fn func(*Message) error) (*Message, error)
	DeleteMessagesByConversation(ctx context.Context, conversationID uuid.UUID) error
}
