package signal

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

func (ctl *SignalWSController) callsEnabled(cl *client, ref string) bool {
	if ctl.Calls == nil {
		ctl.sendError(cl.conn, ref, "calls_disabled")
		return false
	}
	return true
}

func (ctl *SignalWSController) handleCallJoin(
	ctx context.Context,
	cl *client,
	data []byte,
) {
	if !ctl.callsEnabled(cl, "call.join") {
		return
	}
	var p struct {
		Room      string `json:"room"`
		MediaRoom uint64 `json:"media_room"`
	}
	if !decode(ctl, cl, "call.join", data, &p) {
		return
	}
	if domain.RoomKey(p.Room).Kind() != domain.KindRoom {
		ctl.sendError(cl.conn, "call.join", "invalid")
		return
	}

	// private answers and room events must be routed before the session starts producing them
	for _, key := range []domain.ChannelKey{
		domain.AnswerTopic(p.Room, cl.participant),
		domain.RoomEventsTopic(p.Room),
	} {
		if err := ctl.subscribe(ctx, cl, key); err != nil {
			if !errors.Is(err, domain.ErrNotMember) {
				ctl.sendError(cl.conn, "call.join", errorCode(err))
			}
			return
		}
	}

	if prev := cl.setCall(p.Room); prev != "" && prev != p.Room {
		ctl.dropCallTopics(cl, prev)
	}
	sess, err := ctl.Calls.Register(ctx, cl.participant, p.Room, p.MediaRoom)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("participant", string(cl.participant)).Msg("call join")
		cl.setCall("")
		ctl.dropCallTopics(cl, p.Room)
		ctl.sendError(cl.conn, "call.join", errorCode(err))
		return
	}
	ctl.sendJSON(cl.conn, struct {
		Type      string `json:"type"`
		Room      string `json:"room"`
		MediaRoom uint64 `json:"media_room"`
	}{"call.registered", sess.ChatRoomID, sess.MediaRoomID})
}

func (ctl *SignalWSController) dropCallTopics(cl *client, room string) {
	for _, key := range []domain.ChannelKey{
		domain.AnswerTopic(room, cl.participant),
		domain.RoomEventsTopic(room),
	} {
		if subID, ok := cl.forget(key); ok {
			ctl.Registry.Leave(subID)
		}
	}
}

func (ctl *SignalWSController) handleOffer(
	ctx context.Context,
	cl *client,
	data []byte,
) {
	if !ctl.callsEnabled(cl, "call.offer") {
		return
	}
	var p struct {
		SDP string `json:"sdp"`
	}
	if !decode(ctl, cl, "call.offer", data, &p) {
		return
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}
	if err := ctl.Calls.Offer(ctx, cl.participant, offer); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("participant", string(cl.participant)).Msg("offer")
		ctl.sendError(cl.conn, "call.offer", errorCode(err))
	}
}

func (ctl *SignalWSController) handleCandidate(
	ctx context.Context,
	cl *client,
	data []byte,
) {
	if !ctl.callsEnabled(cl, "call.candidate") {
		return
	}
	var p struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid,omitempty"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
		Completed     bool    `json:"completed,omitempty"`
	}
	if !decode(ctl, cl, "call.candidate", data, &p) {
		return
	}
	var err error
	if p.Completed {
		err = ctl.Calls.TrickleCompleted(ctx, cl.participant)
	} else {
		err = ctl.Calls.Trickle(ctx, cl.participant, webrtc.ICECandidateInit{
			Candidate:     p.Candidate,
			SDPMid:        p.SDPMid,
			SDPMLineIndex: p.SDPMLineIndex,
		})
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("participant", string(cl.participant)).Msg("candidate")
		ctl.sendError(cl.conn, "call.candidate", errorCode(err))
	}
}

func (ctl *SignalWSController) handleMute(
	ctx context.Context,
	cl *client,
	data []byte,
) {
	if !ctl.callsEnabled(cl, "call.mute") {
		return
	}
	var p struct {
		Muted bool `json:"muted"`
	}
	if !decode(ctl, cl, "call.mute", data, &p) {
		return
	}
	if err := ctl.Calls.Mute(ctx, cl.participant, p.Muted); err != nil {
		ctl.sendError(cl.conn, "call.mute", errorCode(err))
	}
}

func (ctl *SignalWSController) handleCallLeave(ctx context.Context, cl *client) {
	if !ctl.callsEnabled(cl, "call.leave") {
		return
	}
	room := cl.setCall("")
	if err := ctl.Calls.Unregister(ctx, cl.participant); err != nil {
		ctl.sendError(cl.conn, "call.leave", errorCode(err))
		return
	}
	if room != "" {
		ctl.dropCallTopics(cl, room)
	}
	ctl.sendJSON(cl.conn, struct {
		Type string `json:"type"`
		Room string `json:"room,omitempty"`
	}{"call.unregistered", room})
}
