package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/janus"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/signal"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/store/redis"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/batch"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/broadcast"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/call"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/hub"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/relay"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/config"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/core"
)

type application struct {
	store    core.MessageStore
	members  *redis.Authorizer
	auth     core.Authorizer
	registry *hub.Registry
	bc       *broadcast.Broadcaster
	rooms    *batch.Batcher
	direct   *batch.Batcher
	relay    *relay.Manager
	calls    *call.Service
	limiter  *signal.RateLimiter
}

func wire(ctx context.Context, cfg *config.Config) (*application, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app := &application{store: st}

	auth := hub.TopicAuthorizer{}
	if cfg.Redis.URL != "" {
		members, err := redis.Open(ctx, cfg.Redis.URL, cfg.Redis.MembersKeyPrefix)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		app.members = members
		auth.Next = members
	} else {
		log.Warn().Str("module", "main").Msg("no redis configured, room membership is not checked")
	}
	app.auth = auth

	app.registry = hub.NewRegistry(auth, hub.PolicyByName(cfg.Registry.SlowConsumer))
	app.bc = broadcast.New(app.registry)

	batchCfg := func(name string, interval time.Duration) batch.Config {
		return batch.Config{
			Name:           name,
			Threshold:      cfg.Batch.Threshold,
			Interval:       interval,
			PersistTimeout: cfg.Batch.PersistTimeout,
			Concurrency:    cfg.Batch.FlushConcurrency,
		}
	}
	app.rooms = batch.New(batchCfg("room", cfg.Batch.RoomInterval), st, app.bc)
	app.direct = batch.New(batchCfg("direct", cfg.Batch.DirectInterval), st, app.bc)

	if cfg.CallsEnabled() {
		jc := janus.New(janus.Config{
			URL:             cfg.Janus.URL,
			RequestTimeout:  cfg.Janus.RequestTimeout,
			LongPollTimeout: cfg.Janus.LongPollTimeout,
		})
		app.relay = relay.NewManager(jc, relay.Config{
			Backoff:   cfg.Janus.PollBackoff,
			MaxEvents: cfg.Janus.MaxEvents,
			MaxIdle:   cfg.Janus.MaxIdle,
		})
		app.calls = call.NewService(jc, app.relay, app.bc, call.Config{
			Plugin:     cfg.Janus.Plugin,
			Publishers: cfg.Janus.Publishers,
		})
	}

	app.limiter = signal.NewRateLimiter(cfg.Limits.MessagesPerSecond, cfg.Limits.Burst)
	return app, nil
}

func (a *application) deps() signal.Deps {
	return signal.Deps{
		Registry:    a.registry,
		Auth:        a.auth,
		Rooms:       a.rooms,
		Direct:      a.direct,
		History:     a.store,
		Broadcaster: a.bc,
		Calls:       a.calls,
		Limiter:     a.limiter,
	}
}

// close flushes pending messages and releases call sessions before the
// store goes away.
func (a *application) close(ctx context.Context) {
	a.rooms.Close(ctx)
	a.direct.Close(ctx)
	if a.calls != nil {
		a.calls.Close(ctx)
		a.relay.StopAll(ctx)
	}
	if a.members != nil {
		if err := a.members.Close(); err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("close redis")
		}
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Str("module", "main").Msg("close store")
	}
}
