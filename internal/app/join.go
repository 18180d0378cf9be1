package app

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/costudy/internal/domain"
)

// Join runs the membership reconciliation protocol. A rejoin, meaning
// the same identity coming back after a refresh or a brief drop,
// evicts its own stale entries, cancels any pending departure, and
// suppresses the "joined" system message so the history does not flap.
func (r *Registry) Join(connID domain.ConnID, identity domain.Identity, roomCode, displayName string) (snap RoomSnapshot, err error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return RoomSnapshot{}, ErrEmptyName
	}
	code := domain.NormalizeRoomCode(roomCode)
	if code == "" {
		return RoomSnapshot{}, ErrEmptyRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection re-joining from another room abandons its old seat
	// without departure ceremony.
	if prev, ok := r.conns[connID]; ok && prev.roomCode != code {
		if prevRoom, ok := r.rooms[prev.roomCode]; ok {
			prevRoom.removeMember(connID)
			r.broadcastLocked(prevRoom, newPresenceEvent(prevRoom.participants()))
			r.scheduleReapLocked(prevRoom)
		}
		delete(r.conns, connID)
	}

	rm := r.ensureRoomLocked(code)
	// A rejected join must not leave an empty room without a reaper.
	defer func() {
		if err != nil {
			r.scheduleReapLocked(rm)
		}
	}()
	rejoin := false

	// A repeat join from a connection already seated in this room is
	// reconciliation, not an arrival; the insert below replaces its
	// entry and no announcement is owed.
	if _, ok := rm.members[connID]; ok {
		rejoin = true
	}

	// Identity eviction runs before the name check so a refreshing
	// connection never collides with its own old entry.
	if oldID, ok := rm.lookupIdentity(identity); ok && oldID != connID {
		if _, live := rm.members[oldID]; live {
			rm.removeMember(oldID)
			r.detachLocked(oldID)
			rejoin = true
			log.Info().Str("module", "app.registry").Str("room", code).
				Str("conn", string(oldID)).Msg("superseded connection evicted")
		} else {
			// Stale index entry; self-heal by letting the insert
			// below overwrite it.
			log.Warn().Str("module", "app.registry").Str("room", code).
				Str("conn", string(oldID)).Msg("identity index pointed at missing member")
		}
	}

	// Name collision: same-identity holders are reconcilable, any
	// other holder rejects the join with no mutation.
	var reclaim []domain.ConnID
	for id, m := range rm.members {
		if m.Name != name || id == connID {
			continue
		}
		if !m.Identity.Same(identity) {
			return RoomSnapshot{}, ErrNameTaken
		}
		reclaim = append(reclaim, id)
	}
	for _, id := range reclaim {
		rm.removeMember(id)
		r.detachLocked(id)
		rejoin = true
	}

	// A name still inside its grace window is provisionally held by
	// the departing identity.
	key := depKey{roomCode: code, name: name}
	if pd, ok := r.departures[key]; ok {
		if !pd.identity.Same(identity) {
			return RoomSnapshot{}, ErrNameTaken
		}
		pd.timer.Stop()
		delete(r.departures, key)
		rejoin = true
	}

	now := r.nowMillis()
	member := &domain.Member{
		ConnID:   connID,
		Name:     name,
		Identity: identity,
		JoinedAt: now,
	}
	rm.members[connID] = member
	rm.indexIdentity(identity, connID)
	r.conns[connID] = &connBinding{roomCode: code, name: name, identity: identity}

	// The caller's snapshot is taken before the join message lands;
	// the message reaches everyone, caller included, via broadcast.
	snap = rm.snapshot()
	r.broadcastLocked(rm, newPresenceEvent(snap.Participants))
	if !rejoin {
		msg := domain.NewSystemMessage(name+" joined the room", name, domain.ActionJoin, now)
		r.appendHistoryLocked(rm, msg)
		r.broadcastLocked(rm, newChatMessageEvent(msg))
	}

	log.Info().Str("module", "app.registry").Str("room", code).
		Str("conn", string(connID)).Str("name", name).Bool("rejoin", rejoin).Msg("joined")
	return snap, nil
}

// detachLocked unbinds a connection without departure bookkeeping and
// tells the transport to close it. Its eventual disconnect finds no
// binding and is ignored.
func (r *Registry) detachLocked(connID domain.ConnID) {
	delete(r.conns, connID)
	r.sender.Drop(connID)
}
