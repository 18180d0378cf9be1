package app

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/costudy/internal/domain"
)

const (
	DefaultGraceWindow  = 3 * time.Second
	DefaultRoomTTL      = 30 * time.Minute
	DefaultHistoryLimit = 80
)

// Options tune the registry. Zero values fall back to the defaults
// above; Now is injectable so tests can pin timestamps.
type Options struct {
	GraceWindow  time.Duration
	RoomTTL      time.Duration
	HistoryLimit int
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.GraceWindow <= 0 {
		o.GraceWindow = DefaultGraceWindow
	}
	if o.RoomTTL <= 0 {
		o.RoomTTL = DefaultRoomTTL
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// connBinding ties a live connection to the room it joined. Removing
// the binding is what makes a superseded connection's later disconnect
// a no-op.
type connBinding struct {
	roomCode string
	name     string
	identity domain.Identity
}

// room owns membership, the identity index, and the history ring.
// The identity index is split per token component so that a partial
// match (either component, non-empty) still finds the prior entry.
type room struct {
	code      string
	members   map[domain.ConnID]*domain.Member
	bySession map[string]domain.ConnID
	byClient  map[string]domain.ConnID
	history   []domain.Message
	reapTimer *time.Timer
	reapGen   uint64
}

type depKey struct {
	roomCode string
	name     string
}

// pendingDeparture is a debounced "left the room" notification. gen is
// the generation stamp a firing timer validates against the currently
// registered record before acting.
type pendingDeparture struct {
	identity    domain.Identity
	gen         uint64
	scheduledAt int64
	timer       *time.Timer
}

// Registry owns every room in the process. All mutations take the one
// mutex: the join protocol reads departure state across rooms, and
// check-then-insert sequences must not interleave.
type Registry struct {
	mu         sync.Mutex
	sender     Sender
	opts       Options
	rooms      map[string]*room
	conns      map[domain.ConnID]*connBinding
	departures map[depKey]*pendingDeparture
	gen        uint64
	closed     bool
}

func NewRegistry(sender Sender, opts Options) *Registry {
	return &Registry{
		sender:     sender,
		opts:       opts.withDefaults(),
		rooms:      make(map[string]*room),
		conns:      make(map[domain.ConnID]*connBinding),
		departures: make(map[depKey]*pendingDeparture),
	}
}

// Close stops every scheduled timer. Pending departures and reaps are
// abandoned, not fired.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for key, pd := range r.departures {
		pd.timer.Stop()
		delete(r.departures, key)
	}
	for _, rm := range r.rooms {
		if rm.reapTimer != nil {
			rm.reapTimer.Stop()
			rm.reapTimer = nil
		}
	}
}

func (r *Registry) nowMillis() int64 {
	return r.opts.Now().UnixMilli()
}

// ensureRoomLocked returns the room for a normalized code, creating it
// lazily and cancelling any pending reap.
func (r *Registry) ensureRoomLocked(code string) *room {
	rm, ok := r.rooms[code]
	if !ok {
		rm = &room{
			code:      code,
			members:   make(map[domain.ConnID]*domain.Member),
			bySession: make(map[string]domain.ConnID),
			byClient:  make(map[string]domain.ConnID),
		}
		r.rooms[code] = rm
		log.Info().Str("module", "app.registry").Str("room", code).Msg("room created")
	}
	if rm.reapTimer != nil {
		rm.reapTimer.Stop()
		rm.reapTimer = nil
		rm.reapGen++
	}
	return rm
}

// scheduleReapLocked arms room deletion once membership is empty.
func (r *Registry) scheduleReapLocked(rm *room) {
	if r.closed || len(rm.members) > 0 || rm.reapTimer != nil {
		return
	}
	rm.reapGen++
	gen := rm.reapGen
	code := rm.code
	rm.reapTimer = time.AfterFunc(r.opts.RoomTTL, func() {
		r.reapRoom(code, gen)
	})
	log.Info().Str("module", "app.registry").Str("room", code).Dur("ttl", r.opts.RoomTTL).Msg("room reap scheduled")
}

func (r *Registry) reapRoom(code string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok || rm.reapGen != gen || len(rm.members) > 0 {
		return
	}
	delete(r.rooms, code)
	log.Info().Str("module", "app.registry").Str("room", code).Msg("room reaped")
}

// Snapshot is the pure read surface exposed to the HTTP layer.
func (r *Registry) Snapshot(roomCode string) (RoomSnapshot, bool) {
	code := domain.NormalizeRoomCode(roomCode)
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return RoomSnapshot{}, false
	}
	return rm.snapshot(), true
}

func (rm *room) snapshot() RoomSnapshot {
	messages := make([]domain.Message, len(rm.history))
	copy(messages, rm.history)
	return RoomSnapshot{
		RoomCode:     rm.code,
		Participants: rm.participants(),
		Messages:     messages,
	}
}

func (rm *room) participants() []Participant {
	out := make([]Participant, 0, len(rm.members))
	for _, m := range rm.members {
		out = append(out, Participant{
			ID:       m.ConnID,
			Name:     m.Name,
			JoinedAt: m.JoinedAt,
			CameraOn: m.CameraOn,
			Status:   m.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// lookupIdentity finds the connection currently indexed under any
// matching token component.
func (rm *room) lookupIdentity(id domain.Identity) (domain.ConnID, bool) {
	if id.SessionToken != "" {
		if conn, ok := rm.bySession[id.SessionToken]; ok {
			return conn, true
		}
	}
	if id.ClientToken != "" {
		if conn, ok := rm.byClient[id.ClientToken]; ok {
			return conn, true
		}
	}
	return "", false
}

func (rm *room) indexIdentity(id domain.Identity, conn domain.ConnID) {
	if id.SessionToken != "" {
		rm.bySession[id.SessionToken] = conn
	}
	if id.ClientToken != "" {
		rm.byClient[id.ClientToken] = conn
	}
}

// removeMember deletes a member and any index entries still pointing
// at its connection.
func (rm *room) removeMember(conn domain.ConnID) *domain.Member {
	m, ok := rm.members[conn]
	if !ok {
		return nil
	}
	delete(rm.members, conn)
	if rm.bySession[m.Identity.SessionToken] == conn {
		delete(rm.bySession, m.Identity.SessionToken)
	}
	if rm.byClient[m.Identity.ClientToken] == conn {
		delete(rm.byClient, m.Identity.ClientToken)
	}
	return m
}

// appendHistoryLocked pushes a message onto the ring, evicting the
// oldest entry past the cap.
func (r *Registry) appendHistoryLocked(rm *room, msg domain.Message) {
	rm.history = append(rm.history, msg)
	if len(rm.history) > r.opts.HistoryLimit {
		rm.history = rm.history[1:]
	}
}

// broadcastLocked fans an event out to every member of a room. The
// sender is non-blocking, so holding the registry lock here is safe.
func (r *Registry) broadcastLocked(rm *room, ev Event) {
	for conn := range rm.members {
		r.sender.Send(conn, ev)
	}
}
