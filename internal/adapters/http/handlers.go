package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/signal"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/batch"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/broadcast"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

// Handlers serves the REST side of chat delivery.
type Handlers struct {
	signal.Deps
}

type HistoryResponse struct {
	Channel  domain.ChannelKey        `json:"channel"`
	Messages []broadcast.MessageFrame `json:"messages"`
}

type HealthResponse struct {
	Status        string      `json:"status"`
	Rooms         batch.Stats `json:"rooms"`
	Direct        batch.Stats `json:"direct"`
	Channels      int         `json:"channels"`
	Calls         int         `json:"calls"`
	RateLimitKeys int         `json:"rate_limit_keys"`
}

func (h *Handlers) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:   "ok",
		Rooms:    h.Rooms.Stats(),
		Direct:   h.Direct.Stats(),
		Channels: h.Registry.Channels(),
	}
	if h.Calls != nil {
		resp.Calls = h.Calls.Active()
	}
	if h.Limiter != nil {
		resp.RateLimitKeys = h.Limiter.Len()
	}
	c.JSON(http.StatusOK, resp)
}

// authorizedChannel reads and checks the channel query parameter.
func (h *Handlers) authorizedChannel(c *gin.Context) (domain.ChannelKey, bool) {
	key := domain.ChannelKey(c.Query("channel"))
	switch key.Kind() {
	case domain.KindRoom, domain.KindDirect:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid channel"})
		return "", false
	}
	participant := domain.ParticipantID(c.GetString(participantKey))
	if err := participant.Validate(); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return "", false
	}
	ok, err := h.Auth.IsMember(c.Request.Context(), key, participant)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("channel", key.String()).Msg("authorize")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization failed"})
		return "", false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": domain.ErrNotMember.Error()})
		return "", false
	}
	return key, true
}

func (h *Handlers) ListMessages(c *gin.Context) {
	key, ok := h.authorizedChannel(c)
	if !ok {
		return
	}
	msgs, err := h.History.FindByChannel(c.Request.Context(), key)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("channel", key.String()).Msg("history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	resp := HistoryResponse{Channel: key, Messages: make([]broadcast.MessageFrame, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, broadcast.FrameOf(m))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) DeleteMessage(c *gin.Context) {
	key, ok := h.authorizedChannel(c)
	if !ok {
		return
	}
	b := h.Rooms
	if key.Kind() == domain.KindDirect {
		b = h.Direct
	}
	id := c.Param("id")
	found, err := b.Delete(c.Request.Context(), key, id)
	switch {
	case errors.Is(err, domain.ErrPersistence):
		log.Error().Err(err).Str("module", "adapters.http").Str("id", id).Msg("delete")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "delete failed"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	case !found:
		c.JSON(http.StatusNotFound, gin.H{"error": domain.NotFound("message", id).Error()})
		return
	}
	h.Broadcaster.PublishDeleted(key, id)
	c.Status(http.StatusNoContent)
}
