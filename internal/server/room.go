package server

import (
	"encoding/json"
	"sync"
)

type peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newPeer(encoder *json.Encoder) *peer {
	return &peer{encoder: encoder}
}

func (p *peer) writeFrame(f frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(f)
}

type roomHub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func newRoomHub() *roomHub {
	return &roomHub{rooms: make(map[string]*room)}
}

func (h *roomHub) room(sessionID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[sessionID]
	if ok {
		return r
	}
	r = newRoom(sessionID)
	h.rooms[sessionID] = r
	return r
}

// leave removes the connection from the session's room and drops the
// room entirely once its last subscriber is gone, so the hub does not
// accumulate entries for sessions nobody is attached to. Returns the
// room, or nil when none existed.
func (h *roomHub) leave(sessionID, connectionID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[sessionID]
	if !ok {
		return nil
	}
	if r.leave(connectionID) {
		delete(h.rooms, sessionID)
	}
	return r
}

// room is the broadcast group for one session, keyed by connection ID.
type room struct {
	mu          sync.Mutex
	sessionID   string
	subscribers map[string]*peer
}

func newRoom(sessionID string) *room {
	return &room{
		sessionID:   sessionID,
		subscribers: make(map[string]*peer),
	}
}

func (r *room) join(connectionID string, p *peer) {
	r.mu.Lock()
	r.subscribers[connectionID] = p
	r.mu.Unlock()
}

func (r *room) leave(connectionID string) bool {
	r.mu.Lock()
	delete(r.subscribers, connectionID)
	empty := len(r.subscribers) == 0
	r.mu.Unlock()
	return empty
}

// liveConnectionIDs returns the set of connection IDs currently
// subscribed. Used to repair stale membership before a join.
func (r *room) liveConnectionIDs() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := make(map[string]bool, len(r.subscribers))
	for connectionID := range r.subscribers {
		live[connectionID] = true
	}
	return live
}

// broadcast sends the frame to every subscriber except the excluded
// connection. Pass an empty exclusion to reach the whole room.
func (r *room) broadcast(f frame, excludeConnectionID string) {
	r.mu.Lock()
	peers := make([]*peer, 0, len(r.subscribers))
	for connectionID, p := range r.subscribers {
		if connectionID == excludeConnectionID {
			continue
		}
		peers = append(peers, p)
	}
	r.mu.Unlock()

	for _, p := range peers {
		_ = p.writeFrame(f)
	}
}
