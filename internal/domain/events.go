package domain

import (
	"context"

	"github.com/google/uuid"
)

// EventType discriminates push events on the wire.
type EventType string

const (
	EventMessageNew          EventType = "message:new"
	EventMessageEdited       EventType = "message:edited"
	EventMessageDeleted      EventType = "message:deleted"
	EventReactionAdded       EventType = "reaction:added"
	EventReactionRemoved     EventType = "reaction:removed"
	EventConversationRead    EventType = "conversation:read"
	EventConversationCreated EventType = "conversation:created"
)

// Event is a typed notification produced by a successful mutation and
// dispatched after persistence. It is a liveness hint only: clients
// refetch the affected resource instead of applying the payload as a
// delta, so a dropped event costs a stale view, never a wrong one.
// Actor is the user whose action produced the event; clients use it to
// skip pushes for their own mutations.
type Event struct {
	Type  EventType `json:"type"`
	Actor uuid.UUID `json:"actor"`
	Data  any       `json:"data"`
}

// MessageEventData accompanies message lifecycle events.
type MessageEventData struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	SenderID       uuid.UUID `json:"sender_id"`
}

// ReactionEventData accompanies reaction:added / reaction:removed.
type ReactionEventData struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	UserID         uuid.UUID `json:"user_id"`
	Emoji          Emoji     `json:"emoji"`
}

// ConversationReadData accompanies conversation:read.
type ConversationReadData struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

// ConversationCreatedData accompanies conversation:created.
type ConversationCreatedData struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
}

// EventPublisher delivers an event to every active session of the given
// users. Delivery is at-most-once and best-effort; a disconnected
// session simply misses the event and resynchronizes on reconnect.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, recipients []uuid.UUID)
}
