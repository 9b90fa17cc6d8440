// Package redis answers channel membership questions from Redis sets kept up
// to date by the community/group services.
package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

const DefaultKeyPrefix = "members:"

// Authorizer checks SISMEMBER <prefix><scope> <participant>, where scope is
// "room:<id>" for room topics and "community:<id>" for presence topics.
type Authorizer struct {
	client *goredis.Client
	prefix string
}

func Open(ctx context.Context, redisURL, prefix string) (*Authorizer, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return New(client, prefix), nil
}

func New(client *goredis.Client, prefix string) *Authorizer {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Authorizer{client: client, prefix: prefix}
}

// MembersKey returns the set holding the members of key's scope.
func (a *Authorizer) MembersKey(key domain.ChannelKey) (string, bool) {
	switch key.Kind() {
	case domain.KindRoom, domain.KindRoomEvents, domain.KindAnswer:
		room, _ := key.Room()
		return a.prefix + "room:" + room, true
	case domain.KindPresence:
		id := key.String()[len("community/") : len(key.String())-len("/online")]
		return a.prefix + "community:" + id, true
	}
	return "", false
}

func (a *Authorizer) IsMember(ctx context.Context, key domain.ChannelKey, participant domain.ParticipantID) (bool, error) {
	setKey, ok := a.MembersKey(key)
	if !ok {
		return false, nil
	}
	return a.client.SIsMember(ctx, setKey, string(participant)).Result()
}

// AddMember is used by tooling and tests to seed membership.
func (a *Authorizer) AddMember(ctx context.Context, key domain.ChannelKey, participant domain.ParticipantID) error {
	setKey, ok := a.MembersKey(key)
	if !ok {
		return domain.Validation("channel", "no membership scope")
	}
	return a.client.SAdd(ctx, setKey, string(participant)).Err()
}

func (a *Authorizer) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func (a *Authorizer) Close() error {
	return a.client.Close()
}
