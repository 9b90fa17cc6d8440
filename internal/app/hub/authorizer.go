package hub

import (
	"context"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/core"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

// AllowAll admits every participant. Used when no membership source is configured.
type AllowAll struct{}

func (AllowAll) IsMember(context.Context, domain.ChannelKey, domain.ParticipantID) (bool, error) {
	return true, nil
}

// TopicAuthorizer enforces what the key layout alone decides: answer topics
// belong to one participant and direct channels to the two people in them.
// Room, event and presence topics are delegated to Next.
type TopicAuthorizer struct {
	Next core.Authorizer
}

func (a TopicAuthorizer) IsMember(ctx context.Context, key domain.ChannelKey, participant domain.ParticipantID) (bool, error) {
	p := domain.NormalizeParticipant(string(participant))
	switch key.Kind() {
	case domain.KindUnknown:
		return false, nil
	case domain.KindAnswer:
		owner, _ := key.AnswerOwner()
		return domain.NormalizeParticipant(string(owner)) == p, nil
	case domain.KindDirect:
		x, y, _ := key.Participants()
		return p == x || p == y, nil
	}
	if a.Next == nil {
		return true, nil
	}
	return a.Next.IsMember(ctx, key, participant)
}
