package core

import (
	"context"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

// MessageStore is the durable side of chat delivery.
type MessageStore interface {
	// SaveBatch persists msgs in order and returns the stored forms. It is
	// idempotent on message ID: an already stored message is not inserted
	// again and comes back with its existing Seq.
	SaveBatch(ctx context.Context, msgs []domain.Message) ([]domain.Message, error)
	// FindByChannel returns persisted messages of a channel, oldest first.
	FindByChannel(ctx context.Context, key domain.ChannelKey) ([]domain.Message, error)
	// DeleteByID removes message id only if it belongs to key.
	DeleteByID(ctx context.Context, key domain.ChannelKey, id string) (bool, error)
	Close() error
}

// Authorizer decides whether a participant may subscribe to a channel.
type Authorizer interface {
	IsMember(ctx context.Context, key domain.ChannelKey, participant domain.ParticipantID) (bool, error)
}

// Publisher pushes persisted messages to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, msg domain.Message) error
}
