package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/signal"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/hub"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/config"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

const (
	ParticipantHeader = "X-Participant-ID"
	sessionName       = "RealtimeSessions"
	participantKey    = "participant"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// ParticipantMiddleware resolves the caller's participant ID: the header wins
// and is remembered in the session, otherwise the session value, otherwise
// the client token.
func ParticipantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		id := domain.NormalizeParticipant(c.GetHeader(ParticipantHeader))
		if id != "" {
			if prev, _ := sess.Get(participantKey).(string); prev != string(id) {
				sess.Set(participantKey, string(id))
				if err := sess.Save(); err != nil {
					log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
				}
			}
		} else if v, ok := sess.Get(participantKey).(string); ok && v != "" {
			id = domain.ParticipantID(v)
		} else {
			id = domain.NormalizeParticipant(c.GetString("client_token"))
		}
		c.Set(participantKey, string(id))
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps signal.Deps) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Server.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Server.Secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())
	r.Use(ParticipantMiddleware())

	if deps.Auth == nil {
		deps.Auth = hub.TopicAuthorizer{}
	}
	h := &Handlers{Deps: deps}
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ctrl := signal.NewSignalWSController(deps, signal.Options{
		ReadLimit:  cfg.Server.ReadLimit,
		PingPeriod: cfg.Server.PingPeriod,
		SendBuffer: cfg.Server.SendBuffer,
	})

	log.Info().Str("module", "adapters.http").Bool("calls", deps.Calls != nil).Msg("router setup")

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("participant", c.GetString(participantKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/messages", h.ListMessages)
	api.DELETE("/messages/:id", h.DeleteMessage)

	return r
}
