package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

type Handler struct {
	hub           *Hub
	logger        *zap.SugaredLogger
	pingInterval  time.Duration
	pongWait      time.Duration
	writeDeadline time.Duration
	maxMsgSize    int64
}

func NewHandler(h *Hub, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		hub:           h,
		logger:        logger,
		pingInterval:  30 * time.Second,
		pongWait:      60 * time.Second,
		writeDeadline: 10 * time.Second,
		maxMsgSize:    4 << 10,
	}
}

// Upgrade only lets websocket handshakes through to Serve.
func (w *Handler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve runs one client connection: GET /ws/present/:room.
func (w *Handler) Serve() fiber.Handler {
	return websocket.New(w.serve)
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// armReadDeadline drops a peer that stops answering pings: every pong pushes
// the read deadline out by pongWait.
func (w *Handler) armReadDeadline(c readDeadliner, now func() time.Time) error {
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(now().Add(w.pongWait))
	})
	return c.SetReadDeadline(now().Add(w.pongWait))
}

func (w *Handler) serve(c *websocket.Conn) {
	roomID := c.Params("room")
	if roomID == "" {
		roomID = "default"
	}
	room, client := w.hub.Join(roomID)
	w.logger.Infow("presentation client joined", "room", roomID, "client", client.ID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case b, ok := <-client.Send():
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				_ = c.SetWriteDeadline(time.Now().Add(w.writeDeadline))
				if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
					w.logger.Warnw("write failed", "client", client.ID, "error", err)
					return
				}
			case <-ticker.C:
				_ = c.SetWriteDeadline(time.Now().Add(w.writeDeadline))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	c.SetReadLimit(w.maxMsgSize)
	if err := w.armReadDeadline(c, time.Now); err != nil {
		w.logger.Warnw("set read deadline", "client", client.ID, "error", err)
	}
	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			room.sendTo(client, Envelope{Type: "error", Error: "malformed command"})
			continue
		}
		if err := room.Dispatch(context.Background(), cmd); err != nil {
			room.sendTo(client, Envelope{Type: "error", Error: err.Error()})
		}
	}

	w.hub.Leave(room, client)
	<-done
	_ = c.Close()
	w.logger.Infow("presentation client left", "room", roomID, "client", client.ID)
}
