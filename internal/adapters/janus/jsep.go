package janus

import (
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

// ValidateOffer checks that desc is an SDP offer with at least one media section.
func ValidateOffer(desc webrtc.SessionDescription) error {
	if desc.Type != webrtc.SDPTypeOffer {
		return domain.Validation("jsep", "expected offer, got "+desc.Type.String())
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return domain.Validation("sdp", err.Error())
	}
	if len(parsed.MediaDescriptions) == 0 {
		return domain.Validation("sdp", "no media sections")
	}
	return nil
}

// CandidatePayload is the trickle body Janus expects for a single candidate.
type CandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func candidatePayload(c webrtc.ICECandidateInit) CandidatePayload {
	return CandidatePayload{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex}
}

type completedPayload struct {
	Completed bool `json:"completed"`
}
