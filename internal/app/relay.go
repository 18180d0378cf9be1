package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/costudy/internal/domain"
)

// Relay forwards a negotiation payload to one member of the sender's
// room. It is best effort: an unjoined sender, an unknown target, or a
// target in another room drops the frame silently. The payload is
// never inspected or stored.
func (r *Registry) Relay(connID domain.ConnID, kind SignalKind, targetID domain.ConnID, payload json.RawMessage) {
	if targetID == "" || len(payload) == 0 {
		return
	}

	r.mu.Lock()
	b, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	rm, ok := r.rooms[b.roomCode]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := rm.members[targetID]; !ok {
		r.mu.Unlock()
		log.Debug().Str("module", "app.relay").Str("room", b.roomCode).
			Str("target", string(targetID)).Msg("relay target not in room, dropped")
		return
	}
	r.mu.Unlock()

	r.sender.Send(targetID, newSignalEvent(kind, connID, payload))
}
