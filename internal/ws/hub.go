package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/tinytalk/internal/metrics"
	"github.com/fathima-sithara/tinytalk/internal/present"
)

// Command is a remote-control message from a presentation client.
type Command struct {
	Action   string `json:"action"`
	PIN      string `json:"pin,omitempty"`
	Tab      string `json:"tab,omitempty"`
	Index    int    `json:"index,omitempty"`
	Week     string `json:"week,omitempty"`
	Theme    string `json:"theme,omitempty"`
	Pathname string `json:"pathname,omitempty"`
}

// Envelope is what the server pushes to clients.
type Envelope struct {
	Type  string            `json:"type"` // "state" or "error"
	State *present.Snapshot `json:"state,omitempty"`
	Error string            `json:"error,omitempty"`
}

// MachineFactory builds the session a new room drives.
type MachineFactory func(onChange func(present.Snapshot)) *present.Machine

type Client struct {
	ID        string
	Connected time.Time
	send      chan []byte
	once      sync.Once
}

func newClient() *Client {
	return &Client{ID: uuid.NewString(), Connected: time.Now().UTC(), send: make(chan []byte, 64)}
}

// Send is the outbound queue drained by the connection writer.
func (c *Client) Send() <-chan []byte { return c.send }

func (c *Client) close() { c.once.Do(func() { close(c.send) }) }

// Room is one shared presentation: every client in it sees and steers the
// same machine.
type Room struct {
	ID      string
	machine *present.Machine
	log     *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func (r *Room) Machine() *present.Machine { return r.machine }

func (r *Room) broadcast(s present.Snapshot) {
	b, err := json.Marshal(Envelope{Type: "state", State: &s})
	if err != nil {
		r.log.Errorw("encode snapshot", "room", r.ID, "error", err)
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		select {
		case c.send <- b:
		default:
			r.log.Warnw("slow client, dropping frame", "room", r.ID, "client", c.ID)
		}
	}
}

func (r *Room) sendTo(c *Client, env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// Dispatch applies one command to the room's machine. State changes reach
// every client through the broadcast.
func (r *Room) Dispatch(ctx context.Context, cmd Command) error {
	m := r.machine
	switch cmd.Action {
	case "pin":
		m.EnterPIN(ctx, cmd.PIN)
	case "type_pin":
		m.TypePIN(cmd.PIN)
	case "tab":
		m.SelectTab(ctx, present.Tab(cmd.Tab))
	case "open":
		m.Open(cmd.Index)
	case "next":
		m.Next()
	case "prev":
		m.Prev()
	case "slideshow":
		m.StartSlideshow()
	case "tv":
		m.TV()
	case "escape":
		m.Escape()
	case "back":
		m.Back()
	case "view_week":
		m.ViewWeek(ctx, cmd.Week)
	case "current_week":
		m.BackToCurrentWeek(ctx)
	case "theme":
		m.SetTheme(ctx, cmd.Theme)
	case "delete":
		m.Delete(ctx, cmd.Pathname)
	case "refresh":
		m.Reload(ctx)
	case "lock":
		m.Lock()
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	return nil
}

// Hub owns the open rooms. A room is created on first join and torn down
// when its last client leaves.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	factory MachineFactory
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

func NewHub(factory MachineFactory, m *metrics.Metrics, log *zap.SugaredLogger) *Hub {
	return &Hub{rooms: make(map[string]*Room), factory: factory, metrics: m, log: log}
}

// Join adds a new client to roomID and queues the current state for it.
func (h *Hub) Join(roomID string) (*Room, *Client) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID, log: h.log, clients: make(map[*Client]struct{})}
		room.machine = h.factory(room.broadcast)
		h.rooms[roomID] = room
		if h.metrics != nil {
			h.metrics.PresentRooms.Inc()
		}
	}
	c := newClient()
	room.mu.Lock()
	room.clients[c] = struct{}{}
	room.mu.Unlock()
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.PresentClients.Inc()
	}
	snap := room.machine.Snapshot()
	room.sendTo(c, Envelope{Type: "state", State: &snap})
	return room, c
}

// Leave removes the client and closes its queue.
func (h *Hub) Leave(room *Room, c *Client) {
	h.mu.Lock()
	room.mu.Lock()
	_, member := room.clients[c]
	delete(room.clients, c)
	empty := len(room.clients) == 0
	room.mu.Unlock()
	if empty && h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
		room.machine.Close()
		if h.metrics != nil {
			h.metrics.PresentRooms.Dec()
		}
	}
	h.mu.Unlock()

	if member && h.metrics != nil {
		h.metrics.PresentClients.Dec()
	}
	c.close()
}

// Rooms is the number of open rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close closes every room machine, cancelling its pending countdown or
// slideshow timer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.rooms {
		r.machine.Close()
	}
}
