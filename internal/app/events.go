package app

import (
	"encoding/json"

	"github.com/dkeye/costudy/internal/domain"
)

// Event is one outbound frame. The set is closed: every variant below
// carries its own fixed Type discriminator, set by its constructor.
type Event interface {
	EventType() string
}

// Participant is the wire view of a member inside a snapshot.
type Participant struct {
	ID       domain.ConnID  `json:"id"`
	Name     string         `json:"name"`
	JoinedAt int64          `json:"joinedAt"`
	CameraOn bool           `json:"cameraOn"`
	Status   *domain.Status `json:"status"`
}

// RoomSnapshot is the full read view of a room: current participants
// plus the recent history ring.
type RoomSnapshot struct {
	RoomCode     string           `json:"roomCode"`
	Participants []Participant    `json:"participants"`
	Messages     []domain.Message `json:"messages"`
}

type PresenceEvent struct {
	Type         string        `json:"type"`
	Participants []Participant `json:"participants"`
}

func (PresenceEvent) EventType() string { return "presence" }

func newPresenceEvent(participants []Participant) PresenceEvent {
	return PresenceEvent{Type: "presence", Participants: participants}
}

type ChatMessageEvent struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

func (ChatMessageEvent) EventType() string { return "chat-message" }

func newChatMessageEvent(msg domain.Message) ChatMessageEvent {
	return ChatMessageEvent{Type: "chat-message", Message: msg}
}

type CameraStatusEvent struct {
	Type string        `json:"type"`
	ID   domain.ConnID `json:"id"`
	On   bool          `json:"on"`
}

func (CameraStatusEvent) EventType() string { return "camera-status" }

func newCameraStatusEvent(id domain.ConnID, on bool) CameraStatusEvent {
	return CameraStatusEvent{Type: "camera-status", ID: id, On: on}
}

type StatusUpdateEvent struct {
	Type   string         `json:"type"`
	ID     domain.ConnID  `json:"id"`
	Status *domain.Status `json:"status"`
}

func (StatusUpdateEvent) EventType() string { return "status-update" }

func newStatusUpdateEvent(id domain.ConnID, st *domain.Status) StatusUpdateEvent {
	return StatusUpdateEvent{Type: "status-update", ID: id, Status: st}
}

// SignalKind selects one of the three relayed negotiation frames.
type SignalKind string

const (
	SignalOffer  SignalKind = "signal-offer"
	SignalAnswer SignalKind = "signal-answer"
	SignalICE    SignalKind = "signal-ice"
)

// SignalEvent carries an opaque negotiation payload to one recipient.
type SignalEvent struct {
	Type    string          `json:"type"`
	From    domain.ConnID   `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

func (e SignalEvent) EventType() string { return e.Type }

func newSignalEvent(kind SignalKind, from domain.ConnID, payload json.RawMessage) SignalEvent {
	return SignalEvent{Type: string(kind), From: from, Payload: payload}
}
