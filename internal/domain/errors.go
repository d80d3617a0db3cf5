package domain

import "errors"

var (
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already exists")
	ErrNotParticipant       = errors.New("user is not a participant of this conversation")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotMessageSender     = errors.New("user is not the sender of this message")
	ErrMessageDeleted       = errors.New("message has been deleted")
	ErrEmptyMessage         = errors.New("message must have content or at least one attachment")
	ErrDuplicateAttachment  = errors.New("duplicate attachment")
	ErrContentTooLong       = errors.New("message content exceeds the maximum length")
	ErrInvalidEmoji         = errors.New("emoji is not in the supported set")
	ErrInvalidMediaType     = errors.New("unsupported file type")
	ErrFileTooLarge         = errors.New("file exceeds the maximum allowed size")
	ErrInvalidCursor        = errors.New("invalid pagination cursor")
)
