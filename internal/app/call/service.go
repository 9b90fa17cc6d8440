// Package call implements the call control operations: it maps participants
// to media-server sessions and relays offers, candidates and mute changes.
package call

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/janus"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/app/relay"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

const (
	DefaultPlugin     = "janus.plugin.videoroom"
	DefaultPublishers = 16

	errRoomExists = 427
)

// Signaling is the control side of the media-server client.
type Signaling interface {
	CreateSession(ctx context.Context) (uint64, error)
	Attach(ctx context.Context, sessionID uint64, plugin string) (uint64, error)
	SendMessage(ctx context.Context, sessionID, handleID uint64, body any, jsep *webrtc.SessionDescription) (*janus.Response, error)
	Trickle(ctx context.Context, sessionID, handleID uint64, candidate webrtc.ICECandidateInit) error
	TrickleCompleted(ctx context.Context, sessionID, handleID uint64) error
	Detach(ctx context.Context, sessionID, handleID uint64) error
	Destroy(ctx context.Context, sessionID uint64) error
}

// Relay starts and stops per-session event consumers.
type Relay interface {
	Start(ctx context.Context, sessionID, handleID uint64, onEvent relay.Handler) bool
	Stop(sessionID uint64) bool
}

// Publisher pushes JSON frames to a topic.
type Publisher interface {
	PublishJSON(key domain.ChannelKey, v any) error
}

type Config struct {
	Plugin     string
	Publishers int
}

type Service struct {
	signaling Signaling
	relay     Relay
	pub       Publisher
	cfg       Config

	sessions *sessionTable
	locks    stripedLock
	now      func() time.Time
}

func NewService(signaling Signaling, rel Relay, pub Publisher, cfg Config) *Service {
	if cfg.Plugin == "" {
		cfg.Plugin = DefaultPlugin
	}
	if cfg.Publishers <= 0 {
		cfg.Publishers = DefaultPublishers
	}
	return &Service{
		signaling: signaling,
		relay:     rel,
		pub:       pub,
		cfg:       cfg,
		sessions:  newSessionTable(),
		now:       time.Now,
	}
}

// Register opens a media-server session for the participant, joins the media
// room as publisher and starts the event consumer. An existing session of the
// same participant is torn down first.
func (s *Service) Register(ctx context.Context, participant domain.ParticipantID, chatRoomID string, mediaRoomID uint64) (Session, error) {
	if err := participant.Validate(); err != nil {
		return Session{}, err
	}
	if domain.RoomKey(chatRoomID).Kind() != domain.KindRoom {
		return Session{}, domain.Validation("room", "invalid")
	}
	if mediaRoomID == 0 {
		return Session{}, domain.Validation("media_room", "missing")
	}

	mu := s.locks.of(participant)
	mu.Lock()
	defer mu.Unlock()

	if prev, ok := s.sessions.take(participant); ok {
		s.teardown(ctx, prev)
	}

	logger := log.With().Str("module", "app.call").Str("participant", string(participant)).Str("room", chatRoomID).Uint64("media_room", mediaRoomID).Logger()

	sessionID, err := s.signaling.CreateSession(ctx)
	if err != nil {
		return Session{}, err
	}
	handleID, err := s.signaling.Attach(ctx, sessionID, s.cfg.Plugin)
	if err != nil {
		s.destroyQuietly(ctx, sessionID)
		return Session{}, err
	}
	if err := s.ensureRoom(ctx, sessionID, handleID, mediaRoomID, chatRoomID); err != nil {
		s.destroyQuietly(ctx, sessionID)
		return Session{}, err
	}
	join := map[string]any{
		"request": "join",
		"ptype":   "publisher",
		"room":    mediaRoomID,
		"display": string(participant),
	}
	if _, err := s.signaling.SendMessage(ctx, sessionID, handleID, join, nil); err != nil {
		s.destroyQuietly(ctx, sessionID)
		return Session{}, err
	}

	sess := Session{
		SessionID:     sessionID,
		HandleID:      handleID,
		MediaRoomID:   mediaRoomID,
		ChatRoomID:    chatRoomID,
		ParticipantID: participant,
		CreatedAt:     s.now(),
	}
	if prev, ok := s.sessions.put(sess); ok {
		s.teardown(ctx, prev)
	}
	s.publish(domain.RoomEventsTopic(chatRoomID), EventFrame{Type: "call.joined", Room: chatRoomID, Participant: string(participant)})
	s.relay.Start(context.WithoutCancel(ctx), sessionID, handleID, s.eventHandler(sess))
	logger.Info().Uint64("session_id", sessionID).Uint64("handle_id", handleID).Msg("call session registered")
	return sess, nil
}

func (s *Service) ensureRoom(ctx context.Context, sessionID, handleID, mediaRoomID uint64, description string) error {
	create := map[string]any{
		"request":     "create",
		"room":        mediaRoomID,
		"description": description,
		"publishers":  s.cfg.Publishers,
		"permanent":   false,
	}
	_, err := s.signaling.SendMessage(ctx, sessionID, handleID, create, nil)
	var se *domain.SignalingError
	if errors.As(err, &se) && se.Code == errRoomExists {
		return nil
	}
	return err
}

// eventHandler routes relayed events: answers and candidates go to the
// participant's private topic, the rest to the room's event topic.
func (s *Service) eventHandler(sess Session) relay.Handler {
	room := sess.ChatRoomID
	private := domain.AnswerTopic(room, sess.ParticipantID)
	events := domain.RoomEventsTopic(room)
	return func(ev janus.Event) {
		switch {
		case ev.Jsep != nil:
			s.publish(private, AnswerFrame{Type: "call.answer", Room: room, Jsep: *ev.Jsep})
		case ev.Janus == "trickle":
			s.publish(private, CandidateFrame{Type: "call.candidate", Room: room, Candidate: ev.Candidate})
		default:
			s.publish(events, EventFrame{
				Type:        "call.event",
				Room:        room,
				Participant: string(sess.ParticipantID),
				Event:       ev.Janus,
				Data:        ev.Payload(),
			})
		}
	}
}

func (s *Service) publish(key domain.ChannelKey, v any) {
	if err := s.pub.PublishJSON(key, v); err != nil {
		log.Error().Err(err).Str("module", "app.call").Str("topic", key.String()).Msg("publish call frame")
	}
}

func (s *Service) lookup(op string, participant domain.ParticipantID) (Session, bool) {
	sess, ok := s.sessions.get(participant)
	if !ok {
		log.Warn().Str("module", "app.call").Str("op", op).Str("participant", string(participant)).Msg("participant has no call session, ignoring")
	}
	return sess, ok
}

// Offer publishes the participant's SDP offer. The answer, whether returned
// inline or later as an event, is delivered only to the participant's answer topic.
func (s *Service) Offer(ctx context.Context, participant domain.ParticipantID, offer webrtc.SessionDescription) error {
	sess, ok := s.lookup("offer", participant)
	if !ok {
		return nil
	}
	if err := janus.ValidateOffer(offer); err != nil {
		return err
	}
	body := map[string]any{"request": "configure", "audio": !sess.Muted, "video": false}
	resp, err := s.signaling.SendMessage(ctx, sess.SessionID, sess.HandleID, body, &offer)
	if err != nil {
		return err
	}
	if resp != nil && resp.Jsep != nil {
		s.publish(domain.AnswerTopic(sess.ChatRoomID, participant), AnswerFrame{Type: "call.answer", Room: sess.ChatRoomID, Jsep: *resp.Jsep})
	}
	return nil
}

// Trickle forwards one ICE candidate of the participant.
func (s *Service) Trickle(ctx context.Context, participant domain.ParticipantID, candidate webrtc.ICECandidateInit) error {
	sess, ok := s.lookup("trickle", participant)
	if !ok {
		return nil
	}
	if candidate.Candidate == "" {
		return domain.Validation("candidate", "empty")
	}
	return s.signaling.Trickle(ctx, sess.SessionID, sess.HandleID, candidate)
}

func (s *Service) TrickleCompleted(ctx context.Context, participant domain.ParticipantID) error {
	sess, ok := s.lookup("trickle", participant)
	if !ok {
		return nil
	}
	return s.signaling.TrickleCompleted(ctx, sess.SessionID, sess.HandleID)
}

// Mute toggles the participant's audio and tells the room.
func (s *Service) Mute(ctx context.Context, participant domain.ParticipantID, muted bool) error {
	sess, ok := s.lookup("mute", participant)
	if !ok {
		return nil
	}
	body := map[string]any{"request": "configure", "audio": !muted}
	if _, err := s.signaling.SendMessage(ctx, sess.SessionID, sess.HandleID, body, nil); err != nil {
		return err
	}
	s.sessions.setMuted(participant, muted)
	s.publish(domain.RoomEventsTopic(sess.ChatRoomID), EventFrame{Type: "call.mute", Room: sess.ChatRoomID, Participant: string(participant), Muted: &muted})
	return nil
}

// Unregister stops the participant's consumer and releases the media-server
// session. Cleanup calls are best effort.
func (s *Service) Unregister(ctx context.Context, participant domain.ParticipantID) error {
	mu := s.locks.of(participant)
	mu.Lock()
	defer mu.Unlock()

	sess, ok := s.sessions.take(participant)
	if !ok {
		log.Warn().Str("module", "app.call").Str("op", "unregister").Str("participant", string(participant)).Msg("participant has no call session, ignoring")
		return nil
	}
	s.teardown(ctx, sess)
	s.publish(domain.RoomEventsTopic(sess.ChatRoomID), EventFrame{Type: "call.left", Room: sess.ChatRoomID, Participant: string(participant)})
	log.Info().Str("module", "app.call").Str("participant", string(participant)).Uint64("session_id", sess.SessionID).Msg("call session unregistered")
	return nil
}

func (s *Service) teardown(ctx context.Context, sess Session) {
	s.relay.Stop(sess.SessionID)
	logger := log.With().Str("module", "app.call").Uint64("session_id", sess.SessionID).Logger()
	if _, err := s.signaling.SendMessage(ctx, sess.SessionID, sess.HandleID, map[string]any{"request": "leave"}, nil); err != nil {
		logger.Debug().Err(err).Msg("leave failed")
	}
	if err := s.signaling.Detach(ctx, sess.SessionID, sess.HandleID); err != nil {
		logger.Debug().Err(err).Msg("detach failed")
	}
	s.destroyQuietly(ctx, sess.SessionID)
}

func (s *Service) destroyQuietly(ctx context.Context, sessionID uint64) {
	if err := s.signaling.Destroy(ctx, sessionID); err != nil {
		log.Debug().Str("module", "app.call").Uint64("session_id", sessionID).Err(err).Msg("destroy failed")
	}
}

// Session returns the participant's current call session.
func (s *Service) Session(participant domain.ParticipantID) (Session, bool) {
	return s.sessions.get(participant)
}

func (s *Service) Active() int { return s.sessions.len() }

// Close unregisters every participant.
func (s *Service) Close(ctx context.Context) {
	for _, p := range s.sessions.participants() {
		_ = s.Unregister(ctx, p)
	}
}
