package call

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// EventFrame goes to room/<room>/events.
type EventFrame struct {
	Type        string          `json:"type"`
	Room        string          `json:"room"`
	Participant string          `json:"participant,omitempty"`
	Muted       *bool           `json:"muted,omitempty"`
	Event       string          `json:"event,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// AnswerFrame goes to room/<room>/answer/<participant> only.
type AnswerFrame struct {
	Type string                    `json:"type"`
	Room string                    `json:"room"`
	Jsep webrtc.SessionDescription `json:"jsep"`
}

// CandidateFrame carries a server-side ICE candidate to its participant.
type CandidateFrame struct {
	Type      string          `json:"type"`
	Room      string          `json:"room"`
	Candidate json.RawMessage `json:"candidate"`
}
