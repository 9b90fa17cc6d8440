package call

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

// Session binds a participant to its media-server session and handle.
type Session struct {
	SessionID     uint64
	HandleID      uint64
	MediaRoomID   uint64
	ChatRoomID    string
	ParticipantID domain.ParticipantID
	Muted         bool
	CreatedAt     time.Time
}

// sessionTable maps participants to their call session.
type sessionTable struct {
	mu   sync.RWMutex
	byID map[domain.ParticipantID]*Session
}

func newSessionTable() *sessionTable {
	return &sessionTable{byID: make(map[domain.ParticipantID]*Session)}
}

func (t *sessionTable) get(p domain.ParticipantID) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byID[p]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// put stores s and returns the session it replaced, if any.
func (t *sessionTable) put(s Session) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.byID[s.ParticipantID]
	t.byID[s.ParticipantID] = &s
	if !ok {
		return Session{}, false
	}
	return *prev, true
}

// take removes and returns the session of p.
func (t *sessionTable) take(p domain.ParticipantID) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[p]
	if !ok {
		return Session{}, false
	}
	delete(t.byID, p)
	return *s, true
}

func (t *sessionTable) setMuted(p domain.ParticipantID, muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byID[p]; ok {
		s.Muted = muted
	}
}

func (t *sessionTable) participants() []domain.ParticipantID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.ParticipantID, 0, len(t.byID))
	for p := range t.byID {
		out = append(out, p)
	}
	return out
}

func (t *sessionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// stripedLock serialises register/unregister per participant.
type stripedLock [64]sync.Mutex

func (l *stripedLock) of(p domain.ParticipantID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(p))
	return &l[h.Sum32()%uint32(len(l))]
}
