package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

type presenceFrame struct {
	Type        string               `json:"type"`
	Channel     domain.ChannelKey    `json:"channel"`
	Participant domain.ParticipantID `json:"participant"`
	Online      bool                 `json:"online"`
}

func (ctl *SignalWSController) publishPresence(key domain.ChannelKey, p domain.ParticipantID, online bool) {
	if err := ctl.Broadcaster.PublishJSON(key, presenceFrame{
		Type:        "presence",
		Channel:     key,
		Participant: p,
		Online:      online,
	}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("channel", key.String()).Msg("presence")
	}
}

func (ctl *SignalWSController) handleWhoAmI(cl *client) {
	resp := struct {
		Type        string               `json:"type"`
		Participant domain.ParticipantID `json:"participant"`
		Conn        string               `json:"conn"`
		Channels    []domain.ChannelKey  `json:"channels"`
	}{
		Type:        "whoami",
		Participant: cl.participant,
		Conn:        cl.conn.ID(),
		Channels:    cl.topics(),
	}
	ctl.sendJSON(cl.conn, resp)
}
