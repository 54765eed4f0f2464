package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RoomKey scopes a participant set to one signaling room. Rooms exist only
// while at least one participant is connected.
type RoomKey struct {
	Slug      string
	SessionID string
}

func (k RoomKey) String() string {
	return k.Slug + "/" + k.SessionID
}

// Participant is one live connection's membership record. It is owned by the
// registry: created on Join, mutated on UpdateMediaState, deleted on Leave.
type Participant struct {
	ConnectionID string
	UserID       string
	DisplayName  string
	IsHost       bool
	HasVideo     bool
	HasAudio     bool
}

type room struct {
	key          RoomKey
	mu           sync.RWMutex
	participants map[string]*Participant
	createdAt    time.Time
}

func (r *room) roster(excludeConnID string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Participant, 0, len(r.participants))
	for id, p := range r.participants {
		if id == excludeConnID {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Registry is the authoritative in-memory record of who is in which room
// right now. Nothing is persisted: a restart loses all state and clients
// re-join from scratch. The outer mutex guards the room and membership maps;
// each room carries its own lock for participant mutation.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[RoomKey]*room
	byConn map[string]RoomKey
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:  make(map[RoomKey]*room),
		byConn: make(map[string]RoomKey),
		logger: logger,
	}
}

// Join registers the connection in the room and returns the roster of
// pre-existing members, excluding the caller. A connection id holds at most
// one membership: re-joining the same room replaces the prior entry, joining
// a different room removes the old membership first.
func (reg *Registry) Join(key RoomKey, p Participant) []Participant {
	reg.mu.Lock()
	if prev, ok := reg.byConn[p.ConnectionID]; ok && prev != key {
		reg.removeLocked(prev, p.ConnectionID)
	}
	rm, ok := reg.rooms[key]
	if !ok {
		rm = &room{
			key:          key,
			participants: make(map[string]*Participant),
			createdAt:    time.Now(),
		}
		reg.rooms[key] = rm
		reg.logger.Info("room created", zap.String("room", key.String()))
	}
	reg.byConn[p.ConnectionID] = key
	rm.mu.Lock()
	rm.participants[p.ConnectionID] = &p
	rm.mu.Unlock()
	reg.mu.Unlock()

	reg.logger.Debug("participant joined",
		zap.String("room", key.String()),
		zap.String("connection_id", p.ConnectionID),
		zap.Bool("is_host", p.IsHost))

	return rm.roster(p.ConnectionID)
}

// UpdateMediaState records the last-reported media state for a connection.
// Unknown connections are a no-op: the participant already left and the
// update raced the leave. Returns whether the state was applied.
func (reg *Registry) UpdateMediaState(key RoomKey, connID string, hasVideo, hasAudio bool) bool {
	reg.mu.RLock()
	rm, ok := reg.rooms[key]
	reg.mu.RUnlock()
	if !ok {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	p, ok := rm.participants[connID]
	if !ok {
		return false
	}
	p.HasVideo = hasVideo
	p.HasAudio = hasAudio
	return true
}

// Leave removes the connection from the room. The room is deleted when it
// becomes empty. Leave is idempotent: removing an unknown connection is a
// no-op and returns false.
func (reg *Registry) Leave(key RoomKey, connID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.removeLocked(key, connID)
}

// Disconnect removes the connection's membership wherever it is, triggered by
// transport-level disconnection. Idempotent with a prior explicit Leave. The
// room key the connection belonged to is returned so the caller can notify
// the remaining members.
func (reg *Registry) Disconnect(connID string) (RoomKey, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	key, ok := reg.byConn[connID]
	if !ok {
		return RoomKey{}, false
	}
	return key, reg.removeLocked(key, connID)
}

// removeLocked removes a membership. Callers hold reg.mu.
func (reg *Registry) removeLocked(key RoomKey, connID string) bool {
	rm, ok := reg.rooms[key]
	if !ok {
		return false
	}

	rm.mu.Lock()
	_, member := rm.participants[connID]
	if member {
		delete(rm.participants, connID)
	}
	empty := len(rm.participants) == 0
	rm.mu.Unlock()

	if !member {
		return false
	}
	delete(reg.byConn, connID)
	if empty {
		delete(reg.rooms, key)
		reg.logger.Info("room deleted", zap.String("room", key.String()))
	}
	reg.logger.Debug("participant removed",
		zap.String("room", key.String()),
		zap.String("connection_id", connID))
	return true
}

// Roster returns the current members of a room, excluding excludeConnID.
// A missing room yields an empty roster.
func (reg *Registry) Roster(key RoomKey, excludeConnID string) []Participant {
	reg.mu.RLock()
	rm, ok := reg.rooms[key]
	reg.mu.RUnlock()
	if !ok {
		return nil
	}
	return rm.roster(excludeConnID)
}

// Lookup returns the room a connection currently belongs to.
func (reg *Registry) Lookup(connID string) (RoomKey, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	key, ok := reg.byConn[connID]
	return key, ok
}

// Member returns a copy of one participant's record.
func (reg *Registry) Member(key RoomKey, connID string) (Participant, bool) {
	reg.mu.RLock()
	rm, ok := reg.rooms[key]
	reg.mu.RUnlock()
	if !ok {
		return Participant{}, false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	p, ok := rm.participants[connID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
