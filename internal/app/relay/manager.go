// Package relay runs one long-poll consumer per media-server session and
// hands the events addressed to that session's handle to a callback.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/janus"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/metrics"
)

const (
	DefaultBackoff   = 500 * time.Millisecond
	DefaultMaxEvents = 10
	DefaultQueueSize = 64
)

// Source is the long-poll side of the signaling client.
type Source interface {
	Poll(ctx context.Context, sessionID uint64, maxEvents int) ([]janus.Event, error)
}

// Handler receives forwarded events in the order the server sent them.
type Handler func(janus.Event)

type Config struct {
	// Backoff is the pause after a failed poll.
	Backoff time.Duration
	// MaxEvents is the maxev hint sent with each poll.
	MaxEvents int
	// MaxIdle stops a poller that saw no events for this long. Zero disables it.
	MaxIdle time.Duration
	// QueueSize buffers events between the poll and dispatch goroutines.
	QueueSize int
}

type poller struct {
	sessionID uint64
	handleID  uint64
	cancel    context.CancelFunc
	done      chan struct{}
}

type Manager struct {
	source Source
	cfg    Config

	mu      sync.Mutex
	pollers map[uint64]*poller
}

func NewManager(source Source, cfg Config) *Manager {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Manager{
		source:  source,
		cfg:     cfg,
		pollers: make(map[uint64]*poller),
	}
}

// Start launches the consumer for sessionID. Events whose sender is 0 or
// handleID reach onEvent; everything else belongs to another handle and is
// dropped. Start is a no-op returning false if the session already has a
// consumer. The consumer lives until Stop or until ctx is done.
func (m *Manager) Start(ctx context.Context, sessionID, handleID uint64, onEvent Handler) bool {
	m.mu.Lock()
	if _, ok := m.pollers[sessionID]; ok {
		m.mu.Unlock()
		log.Debug().Str("module", "app.relay").Uint64("session_id", sessionID).Msg("poller already running")
		return false
	}
	pctx, cancel := context.WithCancel(ctx)
	p := &poller{
		sessionID: sessionID,
		handleID:  handleID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.pollers[sessionID] = p
	m.mu.Unlock()

	logger := log.With().
		Str("module", "app.relay").
		Uint64("session_id", sessionID).
		Uint64("handle_id", handleID).
		Logger()
	logger.Info().Msg("starting poller")
	metrics.ActivePollers.Inc()

	events := make(chan janus.Event, m.cfg.QueueSize)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(events)
		m.poll(pctx, p, events, &logger)
	}()
	go func() {
		defer wg.Done()
		dispatch(pctx, events, onEvent, &logger)
	}()
	go func() {
		wg.Wait()
		m.forget(p)
		metrics.ActivePollers.Dec()
		close(p.done)
		logger.Info().Msg("poller stopped")
	}()
	return true
}

func (m *Manager) poll(ctx context.Context, p *poller, out chan<- janus.Event, logger *zerolog.Logger) {
	lastEvent := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		batch, err := m.source.Poll(ctx, p.sessionID, m.cfg.MaxEvents)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Dur("backoff", m.cfg.Backoff).Msg("poll failed")
			if !sleep(ctx, m.cfg.Backoff) {
				return
			}
			continue
		}
		for _, ev := range batch {
			if ev.Janus == "keepalive" {
				continue
			}
			if ev.Sender != 0 && ev.Sender != p.handleID {
				metrics.RelayEvents.WithLabelValues("dropped").Inc()
				logger.Debug().Uint64("sender", ev.Sender).Str("janus", ev.Janus).Msg("event for another handle dropped")
				continue
			}
			lastEvent = time.Now()
			select {
			case out <- ev:
				metrics.RelayEvents.WithLabelValues("forwarded").Inc()
			case <-ctx.Done():
				return
			}
		}
		if m.cfg.MaxIdle > 0 && time.Since(lastEvent) > m.cfg.MaxIdle {
			logger.Warn().Dur("max_idle", m.cfg.MaxIdle).Msg("poller idle, stopping")
			p.cancel()
			return
		}
	}
}

func dispatch(ctx context.Context, in <-chan janus.Event, onEvent Handler, logger *zerolog.Logger) {
	for ev := range in {
		if ctx.Err() != nil {
			continue
		}
		deliver(ev, onEvent, logger)
	}
}

func deliver(ev janus.Event, onEvent Handler, logger *zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("janus", ev.Janus).Msg("event handler panicked")
		}
	}()
	onEvent(ev)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *Manager) forget(p *poller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pollers[p.sessionID] == p {
		delete(m.pollers, p.sessionID)
	}
}

// Stop cancels the consumer of sessionID, interrupting an in-flight poll.
// Unknown sessions are ignored.
func (m *Manager) Stop(sessionID uint64) bool {
	m.mu.Lock()
	p, ok := m.pollers[sessionID]
	if ok {
		delete(m.pollers, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	p.cancel()
	log.Info().Str("module", "app.relay").Uint64("session_id", sessionID).Msg("poller stop requested")
	return true
}

// StopAll cancels every consumer and waits for them to exit or ctx to end.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*poller, 0, len(m.pollers))
	for id, p := range m.pollers {
		all = append(all, p)
		delete(m.pollers, id)
	}
	m.mu.Unlock()

	for _, p := range all {
		p.cancel()
	}
	for _, p := range all {
		select {
		case <-p.done:
		case <-ctx.Done():
			return
		}
	}
}

// Running reports whether sessionID has a consumer.
func (m *Manager) Running(sessionID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pollers[sessionID]
	return ok
}

// Active returns the number of consumers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pollers)
}
