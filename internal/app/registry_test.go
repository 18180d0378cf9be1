package app_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/costudy/internal/app"
	"github.com/dkeye/costudy/internal/domain"
)

// fakeSender records everything the registry emits, per connection.
type fakeSender struct {
	mu      sync.Mutex
	events  map[domain.ConnID][]app.Event
	dropped []domain.ConnID
}

func newFakeSender() *fakeSender {
	return &fakeSender{events: make(map[domain.ConnID][]app.Event)}
}

func (s *fakeSender) Send(id domain.ConnID, ev app.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = append(s.events[id], ev)
}

func (s *fakeSender) Drop(id domain.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, id)
}

func (s *fakeSender) eventsFor(id domain.ConnID) []app.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]app.Event, len(s.events[id]))
	copy(out, s.events[id])
	return out
}

func (s *fakeSender) wasDropped(id domain.ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dropped {
		if d == id {
			return true
		}
	}
	return false
}

func newTestRegistry(t *testing.T, opts app.Options) (*app.Registry, *fakeSender) {
	t.Helper()
	sender := newFakeSender()
	reg := app.NewRegistry(sender, opts)
	t.Cleanup(reg.Close)
	return reg, sender
}

func identity(token string) domain.Identity {
	return domain.Identity{SessionToken: token, ClientToken: token}
}

func systemMessages(msgs []domain.Message, action string) []domain.Message {
	var out []domain.Message
	for _, m := range msgs {
		if m.Kind == domain.MessageKindSystem && m.Action == action {
			out = append(out, m)
		}
	}
	return out
}

func TestJoinValidation(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{})

	_, err := reg.Join("c1", identity("s1"), "ABC", "   ")
	require.ErrorIs(t, err, app.ErrEmptyName)

	_, err = reg.Join("c1", identity("s1"), "   ", "Ann")
	require.ErrorIs(t, err, app.ErrEmptyRoom)

	_, ok := reg.Snapshot("ABC")
	require.False(t, ok, "failed joins must not create reachable rooms")
}

func TestRoomCodeNormalization(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{})

	snap, err := reg.Join("c1", identity("s1"), "  abc ", "Ann")
	require.NoError(t, err)
	require.Equal(t, "ABC", snap.RoomCode)

	got, ok := reg.Snapshot("aBc")
	require.True(t, ok)
	require.Equal(t, "ABC", got.RoomCode)
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{HistoryLimit: 5})

	_, err := reg.Join("c1", identity("s1"), "ABC", "Ann")
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		require.NoError(t, reg.SendMessage("c1", fmt.Sprintf("m%d", i)))
	}

	snap, ok := reg.Snapshot("ABC")
	require.True(t, ok)
	require.Len(t, snap.Messages, 5)
	// The join notice and the two oldest chat lines fell off the ring.
	require.Equal(t, "m2", snap.Messages[0].Text)
	require.Equal(t, "m6", snap.Messages[4].Text)
}

func TestNameTakenByDifferentIdentity(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	before, _ := reg.Snapshot("ABC")

	_, err = reg.Join("c2", identity("impostor"), "ABC", "Ann")
	require.ErrorIs(t, err, app.ErrNameTaken)

	after, ok := reg.Snapshot("ABC")
	require.True(t, ok)
	require.Equal(t, before, after, "a rejected join must not mutate room state")
}

func TestSameIdentityRejoinEvictsOldConnection(t *testing.T) {
	reg, sender := newTestRegistry(t, app.Options{GraceWindow: 40 * time.Millisecond})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)

	// Old socket still open: a refresh where the browser reconnected
	// before the first connection noticed it was dead.
	snap, err := reg.Join("c2", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 1)
	require.Equal(t, domain.ConnID("c2"), snap.Participants[0].ID)
	require.True(t, sender.wasDropped("c1"))
	require.Len(t, systemMessages(snap.Messages, domain.ActionJoin), 1, "rejoin must not announce again")

	// The superseded connection's disconnect is stale bookkeeping.
	reg.Disconnect("c1")
	time.Sleep(120 * time.Millisecond)

	snap, ok := reg.Snapshot("ABC")
	require.True(t, ok)
	require.Len(t, snap.Participants, 1)
	require.Empty(t, systemMessages(snap.Messages, domain.ActionLeave))
}

func TestRepeatJoinSameConnection(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)

	// Same connection sends join again, as clients do after a flaky
	// ack. The room must not announce a second arrival.
	snap, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 1)
	require.Len(t, systemMessages(snap.Messages, domain.ActionJoin), 1)
}

func TestRefreshWithinGraceWindow(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{GraceWindow: 60 * time.Millisecond})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)

	reg.Disconnect("c1")
	snap, err := reg.Join("c2", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 1)

	time.Sleep(150 * time.Millisecond)

	snap, ok := reg.Snapshot("ABC")
	require.True(t, ok)
	require.Len(t, snap.Participants, 1)
	require.Len(t, systemMessages(snap.Messages, domain.ActionJoin), 1)
	require.Empty(t, systemMessages(snap.Messages, domain.ActionLeave))
}

func TestPendingDepartureHoldsName(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{GraceWindow: time.Minute})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	reg.Disconnect("c1")

	// Member entry is gone, but the name is provisionally held.
	_, err = reg.Join("c2", identity("other"), "ABC", "Ann")
	require.ErrorIs(t, err, app.ErrNameTaken)
}

func TestGraceExpiryEmitsExactlyOneLeave(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{
		GraceWindow: 30 * time.Millisecond,
		RoomTTL:     time.Minute,
	})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	_, err = reg.Join("c2", identity("bob"), "ABC", "Bob")
	require.NoError(t, err)

	reg.Disconnect("c1")

	require.Eventually(t, func() bool {
		snap, ok := reg.Snapshot("ABC")
		return ok && len(systemMessages(snap.Messages, domain.ActionLeave)) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	snap, ok := reg.Snapshot("ABC")
	require.True(t, ok)
	leaves := systemMessages(snap.Messages, domain.ActionLeave)
	require.Len(t, leaves, 1)
	require.Equal(t, "Ann left the room", leaves[0].Text)
	require.Equal(t, "Ann", leaves[0].Username)
	require.Len(t, snap.Participants, 1)
	require.Equal(t, "Bob", snap.Participants[0].Name)
}

func TestRapidReconnectChurn(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{GraceWindow: 50 * time.Millisecond})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	_, err = reg.Join("keeper", identity("bob"), "ABC", "Bob")
	require.NoError(t, err)

	// Several disconnect/rejoin cycles, each inside the window.
	prev := domain.ConnID("c1")
	for i := 2; i <= 5; i++ {
		reg.Disconnect(prev)
		next := domain.ConnID(fmt.Sprintf("c%d", i))
		_, err := reg.Join(next, identity("ann"), "ABC", "Ann")
		require.NoError(t, err)
		prev = next
	}

	time.Sleep(150 * time.Millisecond)
	snap, ok := reg.Snapshot("ABC")
	require.True(t, ok)
	require.Len(t, snap.Participants, 2)
	require.Len(t, systemMessages(snap.Messages, domain.ActionJoin), 2)
	require.Empty(t, systemMessages(snap.Messages, domain.ActionLeave))
}

func TestSendMessageValidation(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{})

	require.ErrorIs(t, reg.SendMessage("ghost", "hi"), app.ErrNotJoined)

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	require.ErrorIs(t, reg.SendMessage("c1", "   "), app.ErrEmptyMessage)
}

func TestChatFanout(t *testing.T) {
	reg, sender := newTestRegistry(t, app.Options{})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	_, err = reg.Join("c2", identity("bob"), "ABC", "Bob")
	require.NoError(t, err)

	require.NoError(t, reg.SendMessage("c1", "  hello  "))

	for _, conn := range []domain.ConnID{"c1", "c2"} {
		var got *domain.Message
		for _, ev := range sender.eventsFor(conn) {
			if cm, ok := ev.(app.ChatMessageEvent); ok && cm.Message.Kind == domain.MessageKindUser {
				got = &cm.Message
			}
		}
		require.NotNil(t, got, "conn %s missed the chat message", conn)
		require.Equal(t, "hello", got.Text)
		require.Equal(t, "Ann", got.Author)
	}
}

func TestCameraAndStatusDeltas(t *testing.T) {
	reg, sender := newTestRegistry(t, app.Options{})

	require.ErrorIs(t, reg.SetCamera("ghost", true), app.ErrNotJoined)
	require.ErrorIs(t, reg.SetStatus("ghost", domain.StatusInput{}), app.ErrNotJoined)

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	_, err = reg.Join("c2", identity("bob"), "ABC", "Bob")
	require.NoError(t, err)

	require.NoError(t, reg.SetCamera("c1", true))
	require.NoError(t, reg.SetStatus("c1", domain.StatusInput{Text: "reading"}))

	var camera *app.CameraStatusEvent
	var status *app.StatusUpdateEvent
	for _, ev := range sender.eventsFor("c2") {
		switch e := ev.(type) {
		case app.CameraStatusEvent:
			camera = &e
		case app.StatusUpdateEvent:
			status = &e
		}
	}
	require.NotNil(t, camera)
	require.Equal(t, domain.ConnID("c1"), camera.ID)
	require.True(t, camera.On)
	require.NotNil(t, status)
	require.Equal(t, "reading", status.Status.Text)

	snap, _ := reg.Snapshot("ABC")
	for _, p := range snap.Participants {
		if p.ID == "c1" {
			require.True(t, p.CameraOn)
			require.NotNil(t, p.Status)
		}
	}
}

func TestDisconnectResetsCameraAndPresence(t *testing.T) {
	reg, sender := newTestRegistry(t, app.Options{GraceWindow: time.Minute})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	_, err = reg.Join("c2", identity("bob"), "ABC", "Bob")
	require.NoError(t, err)
	require.NoError(t, reg.SetCamera("c1", true))

	reg.Disconnect("c1")

	var cameraOff bool
	var lastPresence *app.PresenceEvent
	for _, ev := range sender.eventsFor("c2") {
		switch e := ev.(type) {
		case app.CameraStatusEvent:
			if e.ID == "c1" && !e.On {
				cameraOff = true
			}
		case app.PresenceEvent:
			lastPresence = &e
		}
	}
	require.True(t, cameraOff, "peers must see the camera drop immediately")
	require.NotNil(t, lastPresence)
	require.Len(t, lastPresence.Participants, 1, "presence updates before the grace window ends")
}

func TestRelay(t *testing.T) {
	reg, sender := newTestRegistry(t, app.Options{})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	_, err = reg.Join("c2", identity("bob"), "ABC", "Bob")
	require.NoError(t, err)
	_, err = reg.Join("c3", identity("eve"), "XYZ", "Eve")
	require.NoError(t, err)

	payload := json.RawMessage(`{"sdp":"v=0"}`)

	// Unjoined sender, unknown target, cross-room target: silent.
	reg.Relay("ghost", app.SignalOffer, "c2", payload)
	reg.Relay("c1", app.SignalOffer, "nobody", payload)
	reg.Relay("c1", app.SignalOffer, "c3", payload)
	for _, ev := range sender.eventsFor("c3") {
		_, isSignal := ev.(app.SignalEvent)
		require.False(t, isSignal)
	}

	reg.Relay("c1", app.SignalOffer, "c2", payload)
	reg.Relay("c2", app.SignalAnswer, "c1", json.RawMessage(`{"sdp":"answer"}`))

	var offer *app.SignalEvent
	for _, ev := range sender.eventsFor("c2") {
		if se, ok := ev.(app.SignalEvent); ok {
			offer = &se
		}
	}
	require.NotNil(t, offer)
	require.Equal(t, "signal-offer", offer.Type)
	require.Equal(t, domain.ConnID("c1"), offer.From)
	require.JSONEq(t, string(payload), string(offer.Payload))

	var answer *app.SignalEvent
	for _, ev := range sender.eventsFor("c1") {
		if se, ok := ev.(app.SignalEvent); ok {
			answer = &se
		}
	}
	require.NotNil(t, answer)
	require.Equal(t, "signal-answer", answer.Type)
}

func TestRoomReapedAfterTTL(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{
		GraceWindow: 10 * time.Millisecond,
		RoomTTL:     50 * time.Millisecond,
	})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	reg.Disconnect("c1")

	require.Eventually(t, func() bool {
		_, ok := reg.Snapshot("ABC")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestJoinCancelsPendingReap(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{
		GraceWindow: 10 * time.Millisecond,
		RoomTTL:     80 * time.Millisecond,
	})

	_, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	reg.Disconnect("c1")

	time.Sleep(40 * time.Millisecond)
	_, err = reg.Join("c2", identity("bob"), "ABC", "Bob")
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	snap, ok := reg.Snapshot("ABC")
	require.True(t, ok, "a join must cancel the pending reap")
	require.Len(t, snap.Participants, 1)
}

func TestFixedClockTimestamps(t *testing.T) {
	at := time.Date(2026, time.March, 14, 9, 26, 0, 0, time.UTC)
	reg, _ := newTestRegistry(t, app.Options{Now: func() time.Time { return at }})

	snap, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	require.Equal(t, at.UnixMilli(), snap.Participants[0].JoinedAt)

	require.NoError(t, reg.SendMessage("c1", "hi"))
	snap, _ = reg.Snapshot("ABC")
	require.Equal(t, at.UnixMilli(), snap.Messages[len(snap.Messages)-1].Timestamp)
}

// The end-to-end refresh scenario: join, refresh inside the window,
// then leave for real and watch the room drain and get reaped.
func TestAnnRefreshThenLeaveScenario(t *testing.T) {
	reg, _ := newTestRegistry(t, app.Options{
		GraceWindow: 60 * time.Millisecond,
		RoomTTL:     150 * time.Millisecond,
	})

	snap, err := reg.Join("c1", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 1)

	reg.Disconnect("c1")
	snap, err = reg.Join("c2", identity("ann"), "ABC", "Ann")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 1)
	require.Empty(t, systemMessages(snap.Messages, domain.ActionLeave))

	reg.Disconnect("c2")
	require.Eventually(t, func() bool {
		snap, ok := reg.Snapshot("ABC")
		return ok && len(systemMessages(snap.Messages, domain.ActionLeave)) == 1 && len(snap.Participants) == 0
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := reg.Snapshot("ABC")
		return !ok
	}, time.Second, 5*time.Millisecond)
}
