package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/costudy/internal/app"
	"github.com/dkeye/costudy/internal/domain"
)

func (ctl *Controller) sendError(c *Conn, err error) {
	resp := struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"error"`
	}{
		Type:    "error",
		Code:    "internal",
		Message: err.Error(),
	}
	var appErr *app.Error
	if errors.As(err, &appErr) {
		resp.Code = appErr.Code
	}
	ctl.sendJSON(c, resp)
}

func (ctl *Controller) handleJoin(connID domain.ConnID, sessionToken string, c *Conn, data []byte) {
	type joinPayload struct {
		Type        string `json:"type"`
		RoomCode    string `json:"roomCode"`
		DisplayName string `json:"displayName"`
		ClientToken string `json:"clientToken,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(c, map[string]any{"type": "error", "code": "bad_payload", "error": "bad_payload"})
		return
	}

	identity := c.Identity(sessionToken, p.ClientToken)
	if !ctl.limiter.Allow(identity.SessionToken) {
		log.Warn().Str("module", "signal").Str("conn", string(connID)).Msg("join rate limited")
		ctl.sendJSON(c, map[string]any{"type": "error", "code": "rate_limited", "error": "too many join attempts"})
		return
	}

	snap, err := ctl.Reg.Join(connID, identity, p.RoomCode, p.DisplayName)
	if err != nil {
		ctl.sendError(c, err)
		return
	}

	resp := struct {
		Type string `json:"type"`
		app.RoomSnapshot
	}{
		Type:         "room-state",
		RoomSnapshot: snap,
	}
	ctl.sendJSON(c, resp)
}

func (ctl *Controller) handleChat(connID domain.ConnID, c *Conn, data []byte) {
	type chatPayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		return
	}
	if err := ctl.Reg.SendMessage(connID, p.Text); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handleCamera(connID domain.ConnID, c *Conn, data []byte) {
	type cameraPayload struct {
		Type string `json:"type"`
		On   bool   `json:"on"`
	}
	var p cameraPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad camera payload")
		return
	}
	if err := ctl.Reg.SetCamera(connID, p.On); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handleStatus(connID domain.ConnID, c *Conn, data []byte) {
	type statusPayload struct {
		Type   string             `json:"type"`
		Status domain.StatusInput `json:"status"`
	}
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad status payload")
		return
	}
	if err := ctl.Reg.SetStatus(connID, p.Status); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handlePing(c *Conn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}
