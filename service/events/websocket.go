package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

const clientQueue = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub serves /events and fans every published event out to the connected
// websocket clients. A client that cannot keep up is dropped.
type Hub struct {
	srv *http.Server
	ln  net.Listener

	mu      sync.Mutex
	clients map[*client]bool
	closed  bool
}

func NewHub(ctx context.Context, addr string) (*Hub, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, model.NewError(model.ResourceError, model.CauseOther, "listen events", addr, err)
	}

	h := &Hub{
		ln:      ln,
		clients: map[*client]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.serveWS)
	h.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		err := h.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Logger.Error(
				"events hub stopped",
				slog.Any("error", err),
			)
		}
	}()

	lgr.Logger.Info(
		"events hub listening",
		slog.String("addr", ln.Addr().String()),
	)
	return h, nil
}

func (h *Hub) Addr() string {
	return h.ln.Addr().String()
}

func (h *Hub) Publish(event model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.drop(c)
		}
	}
	return nil
}

// Clients is the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		h.drop(c)
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.srv.Shutdown(ctx)
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lgr.Logger.Warn(
			"events upgrade failed",
			slog.Any("error", err),
		)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientQueue)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = true
	h.mu.Unlock()

	lgr.Logger.Info(
		"events subscriber connected",
		slog.String("peer", conn.RemoteAddr().String()),
	)

	go h.writePump(c)
	h.readPump(c)
}

// readPump only watches for the peer going away.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.drop(c)
		h.mu.Unlock()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			lgr.Logger.Warn(
				"events write failed",
				slog.Any("error", err),
			)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *client) {
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}
