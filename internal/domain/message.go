package domain

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message is a chat message on its way to (or back from) durable storage.
type Message struct {
	ID              string        `json:"id"`
	ChannelKey      ChannelKey    `json:"channel"`
	SenderID        ParticipantID `json:"sender"`
	ReceiverID      ParticipantID `json:"receiver,omitempty"`
	Body            string        `json:"body"`
	CreatedAt       time.Time     `json:"created_at"`
	ClientMessageID string        `json:"client_message_id,omitempty"`
	// Seq is assigned by the store; zero until persisted.
	Seq int64 `json:"seq,omitempty"`
}

// NewRoomMessage builds a pending message for a room channel.
func NewRoomMessage(roomID string, sender, body, clientMessageID string) Message {
	return Message{
		ChannelKey:      RoomKey(roomID),
		SenderID:        ParticipantID(strings.TrimSpace(sender)),
		Body:            body,
		ClientMessageID: clientMessageID,
	}
}

// NewDirectMessage builds a pending 1:1 message.
func NewDirectMessage(sender, receiver, body, clientMessageID string) Message {
	return Message{
		ChannelKey:      DirectKey(sender, receiver),
		SenderID:        ParticipantID(sender),
		ReceiverID:      ParticipantID(receiver),
		Body:            body,
		ClientMessageID: clientMessageID,
	}
}

// Normalize fills the ID, pins CreatedAt to UTC millisecond precision and
// lower-cases participants of direct messages.
func (m *Message) Normalize(now time.Time) {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.CreatedAt = m.CreatedAt.UTC().Truncate(time.Millisecond)
	if m.ChannelKey.Kind() == KindDirect {
		m.SenderID = NormalizeParticipant(string(m.SenderID))
		m.ReceiverID = NormalizeParticipant(string(m.ReceiverID))
	}
}

func (m Message) Validate() error {
	if !m.ChannelKey.Valid() {
		return Validation("channel", "unknown layout")
	}
	switch m.ChannelKey.Kind() {
	case KindRoom, KindDirect:
	default:
		return Validation("channel", "not a chat channel")
	}
	if err := m.SenderID.Validate(); err != nil {
		return err
	}
	if m.ChannelKey.Kind() == KindDirect {
		if err := m.ReceiverID.Validate(); err != nil {
			return err
		}
		a, b, _ := m.ChannelKey.Participants()
		s := NormalizeParticipant(string(m.SenderID))
		if s != a && s != b {
			return Validation("sender", "not part of the conversation")
		}
	}
	if strings.TrimSpace(m.Body) == "" {
		return Validation("body", "empty")
	}
	if len(m.Body) > MaxBodyLen {
		return Validation("body", "too long")
	}
	return nil
}
