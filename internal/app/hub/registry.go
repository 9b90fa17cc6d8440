// Package hub tracks live client subscriptions per channel and fans frames
// out to them.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/core"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/metrics"
)

// Subscription is one live connection listening on one channel.
type Subscription struct {
	ID          string
	Key         domain.ChannelKey
	Participant domain.ParticipantID
	Conn        core.Conn
}

// PublishResult reports delivery stats of one broadcast.
type PublishResult struct {
	SentTo  int
	Dropped int
	Pruned  int
}

// channelSet is the subscriber set of one channel. It carries its own lock
// so traffic on one channel never contends with another.
type channelSet struct {
	mu            sync.RWMutex
	bySub         map[string]*Subscription
	byParticipant map[domain.ParticipantID]string
	// dead is set once the set has been unlinked from the registry.
	dead bool
}

func newChannelSet() *channelSet {
	return &channelSet{
		bySub:         make(map[string]*Subscription),
		byParticipant: make(map[domain.ParticipantID]string),
	}
}

func (s *channelSet) snapshot() []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Subscription, 0, len(s.bySub))
	for _, sub := range s.bySub {
		out = append(out, sub)
	}
	return out
}

type Registry struct {
	auth   core.Authorizer
	policy Policy

	mu       sync.RWMutex
	channels map[domain.ChannelKey]*channelSet

	// subs maps subscription ID to its channel key.
	subs sync.Map
}

func NewRegistry(auth core.Authorizer, policy Policy) *Registry {
	if auth == nil {
		auth = AllowAll{}
	}
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Registry{
		auth:     auth,
		policy:   policy,
		channels: make(map[domain.ChannelKey]*channelSet),
	}
}

func (r *Registry) lookup(key domain.ChannelKey) (*channelSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.channels[key]
	return set, ok
}

func (r *Registry) getOrCreate(key domain.ChannelKey) *channelSet {
	if set, ok := r.lookup(key); ok {
		return set
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.channels[key]; ok {
		return set
	}
	set := newChannelSet()
	r.channels[key] = set
	return set
}

// unlinkIfEmpty removes the channel entry once its last subscriber is gone.
func (r *Registry) unlinkIfEmpty(key domain.ChannelKey, set *channelSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set.mu.Lock()
	defer set.mu.Unlock()
	if len(set.bySub) == 0 && r.channels[key] == set {
		set.dead = true
		delete(r.channels, key)
		log.Debug().Str("module", "app.hub").Str("channel", key.String()).Msg("channel removed")
	}
}

// Join subscribes conn to key on behalf of participant. A participant holds
// at most one subscription per channel: joining again from another
// connection replaces the previous one. If the participant is not allowed
// on the channel, conn is closed and ErrNotMember is returned.
func (r *Registry) Join(ctx context.Context, key domain.ChannelKey, participant domain.ParticipantID, conn core.Conn) (string, error) {
	if !key.Valid() {
		return "", domain.Validation("channel", "unknown layout")
	}
	if err := participant.Validate(); err != nil {
		return "", err
	}
	logger := log.With().Str("module", "app.hub").Str("channel", key.String()).Str("participant", string(participant)).Str("conn", conn.ID()).Logger()

	ok, err := r.auth.IsMember(ctx, key, participant)
	if err != nil {
		logger.Error().Err(err).Msg("membership check failed")
	}
	if err != nil || !ok {
		conn.Close()
		logger.Warn().Msg("join denied, connection closed")
		return "", domain.ErrNotMember
	}

	for {
		set := r.getOrCreate(key)
		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			continue
		}
		if prevID, ok := set.byParticipant[participant]; ok {
			prev := set.bySub[prevID]
			if prev.Conn.ID() == conn.ID() {
				set.mu.Unlock()
				return prevID, nil
			}
			delete(set.bySub, prevID)
			r.subs.Delete(prevID)
			metrics.ActiveSubscriptions.Dec()
			logger.Info().Str("replaced_conn", prev.Conn.ID()).Msg("subscription replaced")
		}
		sub := &Subscription{
			ID:          uuid.NewString(),
			Key:         key,
			Participant: participant,
			Conn:        conn,
		}
		set.bySub[sub.ID] = sub
		set.byParticipant[participant] = sub.ID
		r.subs.Store(sub.ID, key)
		set.mu.Unlock()

		metrics.ActiveSubscriptions.Inc()
		logger.Info().Str("sub", sub.ID).Msg("joined")
		return sub.ID, nil
	}
}

// Leave removes a subscription. Unknown IDs are ignored.
func (r *Registry) Leave(subID string) bool {
	v, ok := r.subs.Load(subID)
	if !ok {
		return false
	}
	removed := r.remove(v.(domain.ChannelKey), subID)
	if removed {
		log.Info().Str("module", "app.hub").Str("sub", subID).Msg("left")
	}
	return removed
}

// LeaveAll drops every subscription held by conn and returns how many there were.
func (r *Registry) LeaveAll(conn core.Conn) int {
	var n int
	for _, sub := range r.subscriptionsOf(conn.ID()) {
		if r.remove(sub.Key, sub.ID) {
			n++
		}
	}
	if n > 0 {
		log.Info().Str("module", "app.hub").Str("conn", conn.ID()).Int("subscriptions", n).Msg("connection left all channels")
	}
	return n
}

func (r *Registry) subscriptionsOf(connID string) []*Subscription {
	var out []*Subscription
	r.subs.Range(func(k, v any) bool {
		set, ok := r.lookup(v.(domain.ChannelKey))
		if !ok {
			return true
		}
		set.mu.RLock()
		if sub, ok := set.bySub[k.(string)]; ok && sub.Conn.ID() == connID {
			out = append(out, sub)
		}
		set.mu.RUnlock()
		return true
	})
	return out
}

func (r *Registry) remove(key domain.ChannelKey, subID string) bool {
	set, ok := r.lookup(key)
	if !ok {
		r.subs.Delete(subID)
		return false
	}
	set.mu.Lock()
	sub, ok := set.bySub[subID]
	if !ok {
		set.mu.Unlock()
		return false
	}
	delete(set.bySub, subID)
	if set.byParticipant[sub.Participant] == subID {
		delete(set.byParticipant, sub.Participant)
	}
	empty := len(set.bySub) == 0
	set.mu.Unlock()

	r.subs.Delete(subID)
	metrics.ActiveSubscriptions.Dec()
	if empty {
		r.unlinkIfEmpty(key, set)
	}
	return true
}

func (r *Registry) prune(sub *Subscription, reason string) {
	if r.remove(sub.Key, sub.ID) {
		metrics.SubscriptionsPruned.WithLabelValues(reason).Inc()
		log.Info().Str("module", "app.hub").Str("channel", sub.Key.String()).Str("conn", sub.Conn.ID()).Str("reason", reason).Msg("subscription pruned")
	}
}

// deliver sends one frame and applies pruning or the backpressure policy.
func (r *Registry) deliver(sub *Subscription, payload core.Frame) (sent, dropped, pruned bool, err error) {
	if sub.Conn.IsClosed() {
		r.prune(sub, "closed")
		return false, false, true, domain.ErrClosed
	}
	err = sub.Conn.TrySend(payload)
	switch {
	case err == nil:
		metrics.FramesDelivered.Inc()
		return true, false, false, nil
	case errors.Is(err, domain.ErrBackpressure):
		switch r.policy.OnBackpressure(sub) {
		case KickSubscriber:
			sub.Conn.Close()
			r.prune(sub, "backpressure")
			return false, false, true, err
		case DropFrame:
			return false, true, false, err
		default:
			return false, false, false, err
		}
	default:
		sub.Conn.Close()
		r.prune(sub, "send_failed")
		return false, false, true, domain.Transport(sub.Conn.ID(), err)
	}
}

// Broadcast sends payload to every live subscriber of key. Dead connections
// found along the way are removed.
func (r *Registry) Broadcast(key domain.ChannelKey, payload core.Frame) PublishResult {
	var res PublishResult
	set, ok := r.lookup(key)
	if !ok {
		return res
	}
	for _, sub := range set.snapshot() {
		sent, dropped, pruned, _ := r.deliver(sub, payload)
		switch {
		case sent:
			res.SentTo++
		case dropped:
			res.Dropped++
		case pruned:
			res.Pruned++
		}
	}
	log.Debug().Str("module", "app.hub").Str("channel", key.String()).Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Int("pruned", res.Pruned).Msg("broadcast result")
	return res
}

// Send delivers payload to one participant's subscription on key.
func (r *Registry) Send(key domain.ChannelKey, participant domain.ParticipantID, payload core.Frame) error {
	set, ok := r.lookup(key)
	if !ok {
		return domain.NotFound("channel", key.String())
	}
	set.mu.RLock()
	var sub *Subscription
	if id, ok := set.byParticipant[participant]; ok {
		sub = set.bySub[id]
	}
	set.mu.RUnlock()
	if sub == nil {
		return domain.NotFound("subscription", string(participant))
	}
	_, _, _, err := r.deliver(sub, payload)
	return err
}

// Reap removes subscriptions whose connection has closed.
func (r *Registry) Reap() int {
	r.mu.RLock()
	sets := make([]*channelSet, 0, len(r.channels))
	for _, set := range r.channels {
		sets = append(sets, set)
	}
	r.mu.RUnlock()

	var n int
	for _, set := range sets {
		for _, sub := range set.snapshot() {
			if sub.Conn.IsClosed() {
				r.prune(sub, "reaper")
				n++
			}
		}
	}
	return n
}

// Run reaps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(); n > 0 {
				log.Info().Str("module", "app.hub").Int("pruned", n).Msg("reaper pass")
			}
		}
	}
}

// Subscribers returns the number of live subscriptions on key.
func (r *Registry) Subscribers(key domain.ChannelKey) int {
	set, ok := r.lookup(key)
	if !ok {
		return 0
	}
	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.bySub)
}

// Channels returns the number of channels with at least one subscriber.
func (r *Registry) Channels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

func (r *Registry) HasChannel(key domain.ChannelKey) bool {
	_, ok := r.lookup(key)
	return ok
}
