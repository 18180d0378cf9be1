package app

import (
	"strings"

	"github.com/dkeye/costudy/internal/domain"
)

// SendMessage appends a user chat message and fans it out to the room.
func (r *Registry) SendMessage(connID domain.ConnID, text string) error {
	clean := strings.TrimSpace(text)

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[connID]
	if !ok {
		return ErrNotJoined
	}
	if clean == "" {
		return ErrEmptyMessage
	}
	rm, ok := r.rooms[b.roomCode]
	if !ok {
		return ErrNotJoined
	}

	msg := domain.NewUserMessage(b.name, clean, r.nowMillis())
	r.appendHistoryLocked(rm, msg)
	r.broadcastLocked(rm, newChatMessageEvent(msg))
	return nil
}

// SetCamera flips a member's camera flag and broadcasts the narrow
// delta rather than a full snapshot; these updates are frequent.
func (r *Registry) SetCamera(connID domain.ConnID, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, m, err := r.memberLocked(connID)
	if err != nil {
		return err
	}
	m.CameraOn = on
	r.broadcastLocked(rm, newCameraStatusEvent(connID, on))
	return nil
}

// SetStatus sanitizes and stores a member's presence annotation, then
// broadcasts the delta.
func (r *Registry) SetStatus(connID domain.ConnID, in domain.StatusInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, m, err := r.memberLocked(connID)
	if err != nil {
		return err
	}
	st := domain.SanitizeStatus(in, r.nowMillis())
	m.Status = &st
	r.broadcastLocked(rm, newStatusUpdateEvent(connID, m.Status))
	return nil
}

func (r *Registry) memberLocked(connID domain.ConnID) (*room, *domain.Member, error) {
	b, ok := r.conns[connID]
	if !ok {
		return nil, nil, ErrNotJoined
	}
	rm, ok := r.rooms[b.roomCode]
	if !ok {
		return nil, nil, ErrNotJoined
	}
	m, ok := rm.members[connID]
	if !ok {
		return nil, nil, ErrNotJoined
	}
	return rm, m, nil
}
