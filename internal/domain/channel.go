package domain

import (
	"strings"
)

// ChannelKey identifies a fan-out target: a chat room, a 1:1 conversation or
// a call topic. It is used both as batching key and as registry key.
type ChannelKey string

const (
	roomPrefix      = "room/"
	directPrefix    = "dm/"
	communityPrefix = "community/"
)

type ChannelKind int

const (
	KindUnknown ChannelKind = iota
	KindRoom
	KindDirect
	KindRoomEvents
	KindAnswer
	KindPresence
)

func (k ChannelKind) String() string {
	switch k {
	case KindRoom:
		return "room"
	case KindDirect:
		return "direct"
	case KindRoomEvents:
		return "room_events"
	case KindAnswer:
		return "answer"
	case KindPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// RoomKey returns the chat channel for a room.
func RoomKey(roomID string) ChannelKey {
	return ChannelKey(roomPrefix + strings.TrimSpace(roomID))
}

// DirectKey returns the canonical key of the conversation between a and b.
// DirectKey(a, b) == DirectKey(b, a).
func DirectKey(a, b string) ChannelKey {
	x, y := NormalizeParticipant(a), NormalizeParticipant(b)
	if y < x {
		x, y = y, x
	}
	return ChannelKey(directPrefix + string(x) + ":" + string(y))
}

// RoomEventsTopic carries join/leave/mute notifications of a call.
func RoomEventsTopic(roomID string) ChannelKey {
	return ChannelKey(roomPrefix + roomID + "/events")
}

// AnswerTopic is the participant's private signaling channel inside a room.
func AnswerTopic(roomID string, participant ParticipantID) ChannelKey {
	return ChannelKey(roomPrefix + roomID + "/answer/" + string(participant))
}

// PresenceTopic carries online/offline notices of a community.
func PresenceTopic(communityID string) ChannelKey {
	return ChannelKey(communityPrefix + communityID + "/online")
}

// Kind classifies the key by its layout.
func (k ChannelKey) Kind() ChannelKind {
	s := string(k)
	switch {
	case strings.HasPrefix(s, directPrefix):
		if _, _, ok := k.Participants(); ok {
			return KindDirect
		}
		return KindUnknown
	case strings.HasPrefix(s, roomPrefix):
		parts := strings.Split(strings.TrimPrefix(s, roomPrefix), "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			return KindRoom
		case len(parts) == 2 && parts[0] != "" && parts[1] == "events":
			return KindRoomEvents
		case len(parts) == 3 && parts[0] != "" && parts[1] == "answer" && parts[2] != "":
			return KindAnswer
		}
		return KindUnknown
	case strings.HasPrefix(s, communityPrefix):
		parts := strings.Split(strings.TrimPrefix(s, communityPrefix), "/")
		if len(parts) == 2 && parts[0] != "" && parts[1] == "online" {
			return KindPresence
		}
	}
	return KindUnknown
}

// Room returns the room segment for room, room events and answer keys.
func (k ChannelKey) Room() (string, bool) {
	switch k.Kind() {
	case KindRoom, KindRoomEvents, KindAnswer:
		rest := strings.TrimPrefix(string(k), roomPrefix)
		room, _, _ := strings.Cut(rest, "/")
		return room, true
	}
	return "", false
}

// Participants returns both sides of a direct conversation key.
func (k ChannelKey) Participants() (ParticipantID, ParticipantID, bool) {
	rest, ok := strings.CutPrefix(string(k), directPrefix)
	if !ok {
		return "", "", false
	}
	a, b, ok := strings.Cut(rest, ":")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return ParticipantID(a), ParticipantID(b), true
}

// AnswerOwner returns the participant an answer topic belongs to.
func (k ChannelKey) AnswerOwner() (ParticipantID, bool) {
	if k.Kind() != KindAnswer {
		return "", false
	}
	idx := strings.LastIndex(string(k), "/")
	return ParticipantID(string(k)[idx+1:]), true
}

// Valid reports whether k follows one of the known layouts.
func (k ChannelKey) Valid() bool {
	return k.Kind() != KindUnknown
}

func (k ChannelKey) String() string { return string(k) }
