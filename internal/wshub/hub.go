package wshub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"quizparty/internal/events"
	"quizparty/internal/rooms"
)

const (
	defaultTick        = time.Second
	defaultRevealPause = 3 * time.Second
)

type phase int

const (
	phaseIdle phase = iota
	phaseCounting
	phaseRevealing
	phaseOver
)

// roomConns holds the live connections of one room and its question timer.
// Dispatch and timer expiry both run with mu held.
type roomConns struct {
	mu      sync.Mutex
	code    string
	players map[string]*Client
	viewers map[string]*Client
	phase   phase
	timer   *countdown
	closed  bool
}

func (rc *roomConns) empty() bool {
	return len(rc.players) == 0 && len(rc.viewers) == 0
}

// Hub routes socket messages to the room registry and fans results out to
// the room's players and viewers.
type Hub struct {
	registry    *rooms.Registry
	bus         *events.Bus
	logger      *slog.Logger
	tick        time.Duration
	revealPause time.Duration
	now         func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomConns
}

type Option func(*Hub)

// WithTick sets the length of one countdown second. Tests shorten it.
func WithTick(d time.Duration) Option { return func(h *Hub) { h.tick = d } }

func WithRevealPause(d time.Duration) Option { return func(h *Hub) { h.revealPause = d } }

func WithBus(b *events.Bus) Option { return func(h *Hub) { h.bus = b } }

func WithLogger(l *slog.Logger) Option { return func(h *Hub) { h.logger = l } }

func WithClock(now func() time.Time) Option { return func(h *Hub) { h.now = now } }

func NewHub(registry *rooms.Registry, opts ...Option) *Hub {
	h := &Hub{
		registry:    registry,
		logger:      slog.Default(),
		tick:        defaultTick,
		revealPause: defaultRevealPause,
		now:         time.Now,
		rooms:       make(map[string]*roomConns),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "wshub")
	return h
}

// lockRoom returns the room's connection set with its lock held, creating
// it if needed. Release it with unlockRoom.
func (h *Hub) lockRoom(code string) *roomConns {
	for {
		h.mu.Lock()
		rc, ok := h.rooms[code]
		if !ok {
			rc = &roomConns{
				code:    code,
				players: make(map[string]*Client),
				viewers: make(map[string]*Client),
			}
			h.rooms[code] = rc
		}
		h.mu.Unlock()

		rc.mu.Lock()
		if !rc.closed {
			return rc
		}
		// torn down while we waited
		rc.mu.Unlock()
	}
}

// unlockRoom discards the room's state once nobody is connected, then
// releases the lock.
func (h *Hub) unlockRoom(rc *roomConns) {
	if rc.empty() && !rc.closed {
		h.cancelTimerLocked(rc)
		rc.closed = true
		h.mu.Lock()
		if h.rooms[rc.code] == rc {
			delete(h.rooms, rc.code)
		}
		h.mu.Unlock()
		h.logger.Debug("room connections released", "room", rc.code)
	}
	rc.mu.Unlock()
}

// Serve runs the read loop for c until the connection closes, then tears
// the connection down.
func (h *Hub) Serve(ctx context.Context, c *Client) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer h.Disconnect(c)

	go c.WritePump(ctx)

	for {
		_, data, err := c.Conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				h.logger.Debug("read failed", "client", c.ID, "error", err)
			}
			return
		}
		h.Dispatch(ctx, c, data)
	}
}

// Disconnect detaches c from its room. A player connection also leaves the
// room in the registry and everyone remaining is told. A connection whose
// seat was taken over by a newer one is only closed: no leave, no playerLeft.
func (h *Hub) Disconnect(c *Client) {
	c.close()
	b := c.binding()
	if b.role == roleNone {
		return
	}

	rc := h.lockRoom(b.room)
	defer h.unlockRoom(rc)

	switch b.role {
	case rolePlayer:
		if rc.players[b.id] != c {
			// another connection took over this seat
			return
		}
		delete(rc.players, b.id)
		c.unbindIf(b)
		res, err := h.registry.LeaveRoom(b.room, b.id)
		if err != nil {
			h.logger.Debug("leave on disconnect", "room", b.room, "player", b.id, "error", err)
		}
		h.broadcastLocked(rc, nil, TypePlayerLeft, PlayerLeftPayload{
			PlayerID:    b.id,
			Room:        res.Room,
			RoomDeleted: res.Deleted,
		})
		h.logger.Info("player disconnected", "room", b.room, "player", b.id)
		h.checkEarlyCompletionLocked(rc)
	case roleViewer:
		if rc.viewers[b.id] != c {
			return
		}
		delete(rc.viewers, b.id)
		c.unbindIf(b)
		if err := h.registry.RemoveViewer(b.room, b.id); err != nil {
			h.logger.Debug("remove viewer", "room", b.room, "viewer", b.id, "error", err)
		}
	}
}

// attachLocked binds c to a seat in rc, replacing any older connection
// that held the same seat.
func (h *Hub) attachLocked(rc *roomConns, c *Client, r role, id string) {
	set := rc.players
	if r == roleViewer {
		set = rc.viewers
	}
	b := binding{room: rc.code, id: id, role: r}
	if old, ok := set[id]; ok && old != c {
		old.unbindIf(b)
	}
	set[id] = c
	c.bind(b)
}

// detachPlayerLocked removes whichever connection holds the player's seat.
func (h *Hub) detachPlayerLocked(rc *roomConns, playerID string) {
	if c, ok := rc.players[playerID]; ok {
		delete(rc.players, playerID)
		c.unbindIf(binding{room: rc.code, id: playerID, role: rolePlayer})
	}
}

func encode(msgType string, payload any) ([]byte, error) {
	return json.Marshal(ServerMessage{Type: msgType, Payload: payload})
}

// SendTo queues a message for a single client.
func (h *Hub) SendTo(c *Client, msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		h.logger.Error("marshal failed", "type", msgType, "error", err)
		return
	}
	if !c.trySend(data) {
		h.logger.Warn("dropping message", "client", c.ID, "type", msgType)
	}
}

func (h *Hub) sendError(c *Client, msg string) {
	h.SendTo(c, TypeError, ErrorPayload{Message: msg})
}

// Broadcast sends a message to every player and viewer in the room.
func (h *Hub) Broadcast(code, msgType string, payload any) {
	h.BroadcastExcept(code, nil, msgType, payload)
}

// BroadcastExcept sends a message to everyone in the room but except.
func (h *Hub) BroadcastExcept(code string, except *Client, msgType string, payload any) {
	rc := h.lockRoom(code)
	defer h.unlockRoom(rc)
	h.broadcastLocked(rc, except, msgType, payload)
}

// broadcastLocked never blocks: a full or closed client misses the message.
func (h *Hub) broadcastLocked(rc *roomConns, except *Client, msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		h.logger.Error("marshal failed", "type", msgType, "error", err)
		return
	}
	deliver := func(c *Client) {
		if c == except {
			return
		}
		if !c.trySend(data) {
			h.logger.Warn("dropping message", "room", rc.code, "client", c.ID, "type", msgType)
		}
	}
	for _, c := range rc.players {
		deliver(c)
	}
	for _, c := range rc.viewers {
		deliver(c)
	}
}

// Connections returns how many players and viewers are attached to a room.
func (h *Hub) Connections(code string) (players, viewers int) {
	h.mu.Lock()
	rc, ok := h.rooms[code]
	h.mu.Unlock()
	if !ok {
		return 0, 0
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return 0, 0
	}
	return len(rc.players), len(rc.viewers)
}

// Close stops every room timer and drops all connection state.
func (h *Hub) Close() {
	h.mu.Lock()
	all := make([]*roomConns, 0, len(h.rooms))
	for _, rc := range h.rooms {
		all = append(all, rc)
	}
	h.rooms = make(map[string]*roomConns)
	h.mu.Unlock()

	for _, rc := range all {
		rc.mu.Lock()
		h.cancelTimerLocked(rc)
		rc.closed = true
		for _, c := range rc.players {
			c.close()
		}
		for _, c := range rc.viewers {
			c.close()
		}
		rc.mu.Unlock()
	}
}
