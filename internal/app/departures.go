package app

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/costudy/internal/domain"
)

// Disconnect removes the member immediately so presence never lies,
// but defers the "left" chat message behind the grace window so a
// refresh-speed rejoin can cancel it. Disconnects from connections
// with no binding (never joined, or superseded by a rejoin) are
// ignored entirely.
func (r *Registry) Disconnect(connID domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)

	rm, ok := r.rooms[b.roomCode]
	if !ok {
		return
	}
	m := rm.removeMember(connID)

	// Peers drop the video tile right away even though the chat
	// notification is still pending.
	r.broadcastLocked(rm, newCameraStatusEvent(connID, false))
	r.broadcastLocked(rm, newPresenceEvent(rm.participants()))

	if m != nil {
		r.scheduleDepartureLocked(b.roomCode, m.Name, m.Identity)
	}
	r.scheduleReapLocked(rm)

	log.Info().Str("module", "app.registry").Str("room", b.roomCode).
		Str("conn", string(connID)).Str("name", b.name).Msg("disconnected")
}

// scheduleDepartureLocked arms (or re-arms) the debounced departure
// for a (room, name) key. Each record carries a generation stamp; a
// firing timer that lost a race to a newer record sees the mismatch
// and does nothing.
func (r *Registry) scheduleDepartureLocked(roomCode, name string, identity domain.Identity) {
	if r.closed {
		return
	}
	key := depKey{roomCode: roomCode, name: name}
	if prev, ok := r.departures[key]; ok {
		prev.timer.Stop()
	}
	r.gen++
	pd := &pendingDeparture{
		identity:    identity,
		gen:         r.gen,
		scheduledAt: r.nowMillis(),
	}
	stamp := pd.gen
	pd.timer = time.AfterFunc(r.opts.GraceWindow, func() {
		r.fireDeparture(key, stamp)
	})
	r.departures[key] = pd
}

func (r *Registry) fireDeparture(key depKey, stamp uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pd, ok := r.departures[key]
	if !ok || pd.gen != stamp {
		return
	}
	delete(r.departures, key)

	rm, ok := r.rooms[key.roomCode]
	if !ok {
		return
	}
	msg := domain.NewSystemMessage(key.name+" left the room", key.name, domain.ActionLeave, r.nowMillis())
	r.appendHistoryLocked(rm, msg)
	r.broadcastLocked(rm, newChatMessageEvent(msg))

	log.Info().Str("module", "app.registry").Str("room", key.roomCode).
		Str("name", key.name).Msg("departure confirmed")
}
