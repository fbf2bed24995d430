package relay

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/maps"
)

var (
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrSessionNotFound      = errors.New("session not found")
)

// Session is one connected socket. Writes go through Send because the
// underlying connection allows a single concurrent writer.
type Session struct {
	Id     string
	RoomId string
	UserId string
	Name   string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *Session) Send(out *Output) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.conn.WriteJSON(out)
}

// hub is the in-memory session registry: all relay state is ephemeral and
// dies with the process.
type hub struct {
	mu       sync.RWMutex
	byConn   map[*websocket.Conn]*Session
	byId     map[string]*Session
	byRoomId map[string]map[string]*Session
}

func newHub() *hub {
	return &hub{
		byConn:   make(map[*websocket.Conn]*Session),
		byId:     make(map[string]*Session),
		byRoomId: make(map[string]map[string]*Session),
	}
}

func (h *hub) add(session *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.byConn[session.conn]; ok {
		return ErrSessionAlreadyExists
	}
	if _, ok := h.byId[session.Id]; ok {
		return ErrSessionAlreadyExists
	}

	h.byConn[session.conn] = session
	h.byId[session.Id] = session

	room, ok := h.byRoomId[session.RoomId]
	if !ok {
		room = make(map[string]*Session)
		h.byRoomId[session.RoomId] = room
	}
	room[session.Id] = session

	return nil
}

func (h *hub) removeByConn(conn *websocket.Conn) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	session, ok := h.byConn[conn]
	if !ok {
		return nil, ErrSessionNotFound
	}

	delete(h.byConn, conn)
	delete(h.byId, session.Id)

	if room, ok := h.byRoomId[session.RoomId]; ok {
		delete(room, session.Id)
		if len(room) == 0 {
			delete(h.byRoomId, session.RoomId)
		}
	}

	return session, nil
}

func (h *hub) getByConn(conn *websocket.Conn) (*Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, ok := h.byConn[conn]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

func (h *hub) get(sessionId string) (*Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, ok := h.byId[sessionId]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

func (h *hub) roomSessions(roomId string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return maps.Values(h.byRoomId[roomId])
}

// pickPeer returns any established session in the room other than excludeId.
// Which one is irrelevant: every session holds the full current state.
func (h *hub) pickPeer(roomId, excludeId string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, session := range h.byRoomId[roomId] {
		if id != excludeId {
			return session, true
		}
	}

	return nil, false
}
