package ws

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/sl"
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"
)

const shardCount = 32

// Conn is one live connection as seen by the hub.
type Conn interface {
	ID() string
	// AgentID is empty for visitor and account connections.
	AgentID() string
	// Enqueue must not block; false means the connection's queue is full or closed.
	Enqueue(data []byte) bool
	Close()
}

// Presence mirrors agent connection counts outside this process.
type Presence interface {
	Connected(ctx context.Context, agentID string)
	Disconnected(ctx context.Context, agentID string)
	Online(ctx context.Context, agentID string) bool
}

// Backplane carries broadcasts between service instances.
type Backplane interface {
	Publish(ctx context.Context, room string, data []byte) error
}

type shard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn
}

// connShard holds the rooms of each registered connection.
type connShard struct {
	mu          sync.Mutex
	memberships map[string]map[string]struct{}
}

// agentShard counts live connections per agent.
type agentShard struct {
	mu     sync.Mutex
	counts map[string]int
}

// Hub routes events to rooms of connections. Rooms, connection memberships
// and agent counts are each spread over shards so unrelated rooms and
// connections never contend on one lock. Lock order is connection shard
// before room shard.
type Hub struct {
	shards [shardCount]*shard
	conns  [shardCount]*connShard
	agents [shardCount]*agentShard

	presence  Presence
	backplane Backplane
	log       *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	h := &Hub{
		log: log.With(sl.Module("ws")),
	}
	for i := range h.shards {
		h.shards[i] = &shard{rooms: make(map[string]map[string]Conn)}
		h.conns[i] = &connShard{memberships: make(map[string]map[string]struct{})}
		h.agents[i] = &agentShard{counts: make(map[string]int)}
	}
	return h
}

func (h *Hub) SetPresence(presence Presence) {
	h.presence = presence
}

func (h *Hub) SetBackplane(backplane Backplane) {
	h.backplane = backplane
}

func slot(key string) uint32 {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(key))
	return hash.Sum32() % shardCount
}

func (h *Hub) shard(room string) *shard {
	return h.shards[slot(room)]
}

func (h *Hub) connShard(connID string) *connShard {
	return h.conns[slot(connID)]
}

func (h *Hub) agentShard(agentID string) *agentShard {
	return h.agents[slot(agentID)]
}

// Register records a new connection and its agent presence. Only registered
// connections can join rooms.
func (h *Hub) Register(conn Conn) {
	cs := h.connShard(conn.ID())
	cs.mu.Lock()
	if _, ok := cs.memberships[conn.ID()]; ok {
		cs.mu.Unlock()
		return
	}
	cs.memberships[conn.ID()] = make(map[string]struct{})
	cs.mu.Unlock()

	agentID := conn.AgentID()
	if agentID == "" {
		return
	}
	as := h.agentShard(agentID)
	as.mu.Lock()
	as.counts[agentID]++
	as.mu.Unlock()

	if h.presence != nil {
		h.presence.Connected(context.Background(), agentID)
	}
}

// Join adds conn to room. The result tells whether the membership is new;
// joining twice, or joining with a connection that is not registered or was
// already dropped, returns false.
func (h *Hub) Join(conn Conn, room string) bool {
	cs := h.connShard(conn.ID())
	cs.mu.Lock()
	defer cs.mu.Unlock()

	rooms, ok := cs.memberships[conn.ID()]
	if !ok {
		return false
	}
	if _, joined := rooms[room]; joined {
		return false
	}
	rooms[room] = struct{}{}

	s := h.shard(room)
	s.mu.Lock()
	members, ok := s.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		s.rooms[room] = members
	}
	members[conn.ID()] = conn
	s.mu.Unlock()
	return true
}

func (h *Hub) Leave(conn Conn, room string) {
	cs := h.connShard(conn.ID())
	cs.mu.Lock()
	defer cs.mu.Unlock()

	rooms, ok := cs.memberships[conn.ID()]
	if !ok {
		return
	}
	delete(rooms, room)
	h.removeMember(conn.ID(), room)
}

func (h *Hub) removeMember(connID, room string) {
	s := h.shard(room)
	s.mu.Lock()
	if members, ok := s.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(s.rooms, room)
		}
	}
	s.mu.Unlock()
}

// Drop removes conn from every room and from presence. It is the disconnect
// hook and safe to call more than once.
func (h *Hub) Drop(conn Conn) {
	cs := h.connShard(conn.ID())
	cs.mu.Lock()
	rooms, ok := cs.memberships[conn.ID()]
	if !ok {
		cs.mu.Unlock()
		return
	}
	delete(cs.memberships, conn.ID())
	for room := range rooms {
		h.removeMember(conn.ID(), room)
	}
	cs.mu.Unlock()

	agentID := conn.AgentID()
	if agentID == "" {
		return
	}
	as := h.agentShard(agentID)
	as.mu.Lock()
	as.counts[agentID]--
	if as.counts[agentID] <= 0 {
		delete(as.counts, agentID)
	}
	as.mu.Unlock()

	if h.presence != nil {
		h.presence.Disconnected(context.Background(), agentID)
	}
}

// Members returns how many connections are in room on this instance.
func (h *Hub) Members(room string) int {
	s := h.shard(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room])
}

// IsOnline reports whether the agent holds a connection here or, with
// presence configured, on any instance.
func (h *Hub) IsOnline(agentID string) bool {
	as := h.agentShard(agentID)
	as.mu.Lock()
	local := as.counts[agentID] > 0
	as.mu.Unlock()
	if local {
		return true
	}
	if h.presence != nil {
		return h.presence.Online(context.Background(), agentID)
	}
	return false
}

// Broadcast serializes the event once and queues it for every member of room.
func (h *Hub) Broadcast(room, eventType string, payload interface{}) {
	data, err := json.Marshal(entity.Event{Type: eventType, Data: payload})
	if err != nil {
		h.log.With(
			slog.String("event", eventType),
			sl.Err(err),
		).Error("marshal event")
		return
	}
	h.Deliver(room, data)

	if h.backplane != nil {
		if err = h.backplane.Publish(context.Background(), room, data); err != nil {
			h.log.With(
				slog.String("room", room),
				sl.Err(err),
			).Warn("backplane publish")
		}
	}
}

// Deliver queues an already serialized event to local members of room. A
// member whose queue is full is disconnected.
func (h *Hub) Deliver(room string, data []byte) {
	s := h.shard(room)
	s.mu.RLock()
	members := make([]Conn, 0, len(s.rooms[room]))
	for _, conn := range s.rooms[room] {
		members = append(members, conn)
	}
	s.mu.RUnlock()

	for _, conn := range members {
		if conn.Enqueue(data) {
			continue
		}
		h.log.With(
			slog.String("conn", conn.ID()),
			slog.String("room", room),
		).Warn("send queue overflow, disconnecting")
		h.Drop(conn)
		conn.Close()
	}
}
