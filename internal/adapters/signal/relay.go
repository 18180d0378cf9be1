package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/costudy/internal/app"
	"github.com/dkeye/costudy/internal/domain"
)

// handleSignalRelay parses only the routing envelope; sdp and ice
// candidate bodies ride through opaque. Misses are silent; this is a
// live peer negotiation, not a guaranteed channel.
func (ctl *Controller) handleSignalRelay(connID domain.ConnID, kind string, data []byte) {
	type relayPayload struct {
		Type      string          `json:"type"`
		TargetID  string          `json:"targetId"`
		SDP       json.RawMessage `json:"sdp,omitempty"`
		Candidate json.RawMessage `json:"candidate,omitempty"`
	}
	var p relayPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("kind", kind).Msg("bad relay payload")
		return
	}

	payload := p.SDP
	k := app.SignalKind(kind)
	if k == app.SignalICE {
		payload = p.Candidate
	}
	ctl.Reg.Relay(connID, k, domain.ConnID(p.TargetID), payload)
}
