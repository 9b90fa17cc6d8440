// Package janustest provides an in-process fake of the Janus HTTP API with
// enough videoroom behaviour for tests.
package janustest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	Plugin     = "janus.plugin.videoroom"
	AnswerSDP  = "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=janus\r\nt=0 0\r\n"
	RoomExists = 427
	NoSession  = 458
)

// Call records one control request.
type Call struct {
	Janus     string          `json:"janus"`
	Session   uint64          `json:"-"`
	Handle    uint64          `json:"-"`
	Plugin    string          `json:"plugin,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	Jsep      json.RawMessage `json:"jsep,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Request returns the "request" field of a plugin message body.
func (c Call) Request() string {
	var b struct {
		Request string `json:"request"`
	}
	_ = json.Unmarshal(c.Body, &b)
	return b.Request
}

type Server struct {
	*httptest.Server

	// PollWait is how long an empty long-poll blocks before a keepalive.
	PollWait time.Duration

	mu       sync.Mutex
	nextID   uint64
	sessions map[uint64]chan json.RawMessage
	handles  map[uint64]uint64
	rooms    map[uint64]bool
	calls    []Call
	failures map[string]int
	polls    map[uint64]int
}

func NewServer() *Server {
	s := &Server{
		PollWait: 200 * time.Millisecond,
		nextID:   1000,
		sessions: make(map[uint64]chan json.RawMessage),
		handles:  make(map[uint64]uint64),
		rooms:    make(map[uint64]bool),
		failures: make(map[string]int),
		polls:    make(map[uint64]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// URL of the Janus endpoint root.
func (s *Server) JanusURL() string { return s.URL + "/janus" }

// Calls returns the recorded control requests.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsOf filters recorded requests by janus verb.
func (s *Server) CallsOf(verb string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Janus == verb {
			out = append(out, c)
		}
	}
	return out
}

// FailNext makes the next request with the given verb return a Janus error.
func (s *Server) FailNext(verb string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[verb]++
}

// Push queues a raw event for the session's long-poll.
func (s *Server) Push(sessionID uint64, event any) {
	raw, _ := json.Marshal(event)
	s.mu.Lock()
	q, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		q <- raw
	}
}

// AddSession registers a session without a create call.
func (s *Server) AddSession(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = make(chan json.RawMessage, 64)
}

// Polls returns how many long-polls hit a session.
func (s *Server) Polls(sessionID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[sessionID]
}

func (s *Server) HasSession(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/janus"), "/"), "/")
	var ids []uint64
	for _, p := range parts {
		if p == "" {
			continue
		}
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		ids = append(ids, id)
	}

	if r.Method == http.MethodGet {
		if len(ids) != 1 {
			http.NotFound(w, r)
			return
		}
		s.poll(w, r, ids[0])
		return
	}

	var call Call
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(ids) > 0 {
		call.Session = ids[0]
	}
	if len(ids) > 1 {
		call.Handle = ids[1]
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	fail := s.failures[call.Janus] > 0
	if fail {
		s.failures[call.Janus]--
	}
	_, known := s.sessions[call.Session]
	s.mu.Unlock()

	if fail {
		writeJSON(w, map[string]any{"janus": "error", "error": map[string]any{"code": 490, "reason": "injected failure"}})
		return
	}
	if call.Janus != "create" && !known {
		writeJSON(w, map[string]any{"janus": "error", "error": map[string]any{"code": NoSession, "reason": "No such session"}})
		return
	}

	switch call.Janus {
	case "create":
		id := s.newID()
		s.AddSession(id)
		writeJSON(w, map[string]any{"janus": "success", "data": map[string]any{"id": id}})
	case "attach":
		id := s.newID()
		s.mu.Lock()
		s.handles[id] = call.Session
		s.mu.Unlock()
		writeJSON(w, map[string]any{"janus": "success", "session_id": call.Session, "data": map[string]any{"id": id}})
	case "message":
		s.message(w, call)
	case "trickle":
		writeJSON(w, map[string]any{"janus": "ack", "session_id": call.Session})
	case "detach":
		s.mu.Lock()
		delete(s.handles, call.Handle)
		s.mu.Unlock()
		writeJSON(w, map[string]any{"janus": "success", "session_id": call.Session})
	case "destroy":
		s.mu.Lock()
		delete(s.sessions, call.Session)
		s.mu.Unlock()
		writeJSON(w, map[string]any{"janus": "success", "session_id": call.Session})
	default:
		writeJSON(w, map[string]any{"janus": "error", "error": map[string]any{"code": 453, "reason": "Unknown request"}})
	}
}

func (s *Server) message(w http.ResponseWriter, call Call) {
	var body struct {
		Request string `json:"request"`
		Room    uint64 `json:"room"`
	}
	_ = json.Unmarshal(call.Body, &body)
	event := func(data map[string]any, jsep any) map[string]any {
		ev := map[string]any{
			"janus":      "event",
			"session_id": call.Session,
			"sender":     call.Handle,
			"plugindata": map[string]any{"plugin": Plugin, "data": data},
		}
		if jsep != nil {
			ev["jsep"] = jsep
		}
		return ev
	}
	reply := func(data map[string]any) {
		writeJSON(w, map[string]any{
			"janus":      "success",
			"session_id": call.Session,
			"sender":     call.Handle,
			"plugindata": map[string]any{"plugin": Plugin, "data": data},
		})
	}

	switch body.Request {
	case "create":
		s.mu.Lock()
		exists := s.rooms[body.Room]
		s.rooms[body.Room] = true
		s.mu.Unlock()
		if exists {
			reply(map[string]any{"videoroom": "event", "error_code": RoomExists, "error": "Room " + strconv.FormatUint(body.Room, 10) + " already exists"})
			return
		}
		reply(map[string]any{"videoroom": "created", "room": body.Room})
	case "join":
		writeJSON(w, map[string]any{"janus": "ack", "session_id": call.Session})
		s.Push(call.Session, event(map[string]any{"videoroom": "joined", "room": body.Room, "id": call.Handle}, nil))
	case "configure":
		writeJSON(w, map[string]any{"janus": "ack", "session_id": call.Session})
		var jsep any
		if len(call.Jsep) > 0 {
			jsep = map[string]any{"type": "answer", "sdp": AnswerSDP}
		}
		s.Push(call.Session, event(map[string]any{"videoroom": "event", "configured": "ok"}, jsep))
	case "leave":
		writeJSON(w, map[string]any{"janus": "ack", "session_id": call.Session})
		s.Push(call.Session, event(map[string]any{"videoroom": "event", "leaving": "ok"}, nil))
	default:
		reply(map[string]any{"videoroom": "event", "error_code": 422, "error": "unsupported request"})
	}
}

func (s *Server) poll(w http.ResponseWriter, r *http.Request, sessionID uint64) {
	s.mu.Lock()
	q, ok := s.sessions[sessionID]
	s.polls[sessionID]++
	s.mu.Unlock()
	if !ok {
		writeJSON(w, map[string]any{"janus": "error", "error": map[string]any{"code": NoSession, "reason": "No such session"}})
		return
	}
	maxev, _ := strconv.Atoi(r.URL.Query().Get("maxev"))

	timer := time.NewTimer(s.PollWait)
	defer timer.Stop()
	select {
	case <-r.Context().Done():
		return
	case <-timer.C:
		writeJSON(w, map[string]any{"janus": "keepalive"})
		return
	case first := <-q:
		if maxev <= 1 {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(first)
			return
		}
		batch := []json.RawMessage{first}
	drain:
		for len(batch) < maxev {
			select {
			case ev := <-q:
				batch = append(batch, ev)
			default:
				break drain
			}
		}
		writeJSON(w, batch)
	}
}

func (s *Server) newID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
