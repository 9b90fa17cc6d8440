// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"strings"
)

const (
	MaxParticipantIDLen = 64
	MaxBodyLen          = 4096
)

type ParticipantID string

// NormalizeParticipant trims and lower-cases a participant identifier so both
// directions of a 1:1 conversation map to the same key.
func NormalizeParticipant(id string) ParticipantID {
	return ParticipantID(strings.ToLower(strings.TrimSpace(id)))
}

func (p ParticipantID) Validate() error {
	if len(p) == 0 {
		return Validation("participant", "empty")
	}
	if len(p) > MaxParticipantIDLen {
		return Validation("participant", "too long")
	}
	if strings.ContainsAny(string(p), "/:") {
		return Validation("participant", "contains reserved characters")
	}
	return nil
}
