package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const wsWriteTimeout = 5 * time.Second

// wsMessage is pushed to viewers whenever the surface changes
type wsMessage struct {
	Type      string `json:"type"`
	Version   uint64 `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan uint64
}

// renderHub fans render versions out to connected viewers
type renderHub struct {
	upgrader websocket.Upgrader
	clients  map[*wsClient]struct{}
	current  func() uint64
	mu       sync.Mutex
}

func newRenderHub(current func() uint64) *renderHub {
	return &renderHub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*wsClient]struct{}),
		current: current,
	}
}

// broadcast queues version for every client. A client that is behind only
// needs the newest version, so full queues drop the update.
func (h *renderHub) broadcast(version uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- version:
		default:
		}
	}
}

func (h *renderHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handle upgrades the request and streams render versions until the viewer goes away
func (h *renderHub) handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	client := &wsClient{conn: ws, send: make(chan uint64, 8)}
	client.send <- h.current()

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	log.Printf("[WS] viewer connected (%d total)", h.clientCount())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for version := range client.send {
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			msg := wsMessage{Type: "render", Version: version, Timestamp: time.Now().UnixMilli()}
			if err := ws.WriteJSON(msg); err != nil {
				log.Printf("[WS] write failed: %v", err)
				return
			}
		}
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] connection error: %v", err)
			}
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, client)
	close(client.send)
	h.mu.Unlock()
	<-done

	log.Printf("[WS] viewer disconnected")
	return nil
}
