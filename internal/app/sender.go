package app

import "github.com/dkeye/costudy/internal/domain"

// Sender is the outbound delivery port implemented by the transport
// layer. Send must be non-blocking and must silently ignore ids that
// no longer map to a live connection. Drop severs a connection whose
// session was superseded by a rejoin; the transport closes it and the
// resulting disconnect is already unregistered on the engine side.
type Sender interface {
	Send(id domain.ConnID, ev Event)
	Drop(id domain.ConnID)
}
