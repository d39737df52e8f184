package gateway

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// MemberInfo describes one live room membership.
type MemberInfo struct {
	TaskID      string    `json:"task_id"`
	SenderID    string    `json:"sender_id,omitempty"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
}

// Session wraps one accepted connection with a single-writer discipline.
type Session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *Session) Close(status websocket.StatusCode, reason string) {
	if s == nil || s.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.conn.Close(status, reason)
	_ = s.conn.CloseRead(ctx)
}

func (s *Session) WriteText(ctx context.Context, data []byte) error {
	if s == nil || s.conn == nil {
		return context.Canceled
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

type memberRecord struct {
	Info    MemberInfo
	Session *Session
}

// RoomRegistry tracks which sessions belong to which task room.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]*memberRecord
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]map[*Session]*memberRecord)}
}

func (r *RoomRegistry) Join(taskID string, session *Session, info MemberInfo) {
	if r == nil || session == nil || taskID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms == nil {
		r.rooms = make(map[string]map[*Session]*memberRecord)
	}
	members := r.rooms[taskID]
	if members == nil {
		members = make(map[*Session]*memberRecord)
		r.rooms[taskID] = members
	}
	members[session] = &memberRecord{Info: info, Session: session}
}

func (r *RoomRegistry) Leave(taskID string, session *Session) {
	if r == nil || session == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[taskID]
	if members == nil {
		return
	}
	delete(members, session)
	if len(members) == 0 {
		delete(r.rooms, taskID)
	}
}

// Sessions returns the current member sessions of a room.
func (r *RoomRegistry) Sessions(taskID string) []*Session {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[taskID]
	out := make([]*Session, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}

func (r *RoomRegistry) Members(taskID string) []MemberInfo {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[taskID]
	out := make([]MemberInfo, 0, len(members))
	for _, rec := range members {
		out = append(out, rec.Info)
	}
	return out
}

func (r *RoomRegistry) Rooms() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}

// PruneEmpty drops rooms with no members and reports how many were
// removed. Room maps usually empty out on Leave; this catches rooms
// whose connections died without a leave frame.
func (r *RoomRegistry) PruneEmpty() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, members := range r.rooms {
		if len(members) == 0 {
			delete(r.rooms, id)
			n++
		}
	}
	return n
}
