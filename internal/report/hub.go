package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/correlate"
)

const (
	DefaultHubPath = "/records"
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10

	// viewerBuffer is the number of encoded records a slow viewer may lag
	// behind before its records are dropped.
	viewerBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts records as JSON text frames to connected websocket
// viewers. Viewers are read-only; anything they send is discarded.
//
// Every viewer gets its own writer goroutine, which is the connection's only
// writer. It pings the viewer every pingPeriod, and the viewer must answer
// within pongWait or it is disconnected. Browsers answer pings on their own.
type Hub struct {
	q *queue

	mu      sync.RWMutex
	clients map[*viewer]struct{}
	writers sync.WaitGroup

	pongWait   time.Duration
	pingPeriod time.Duration

	srv *http.Server
}

type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a hub buffering up to queueSize records.
func NewHub(queueSize int) *Hub {
	h := &Hub{
		clients:    make(map[*viewer]struct{}),
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
	}
	h.q = newQueue(queueSize, h.broadcast)
	return h
}

// ServeHTTP upgrades the request and keeps the viewer registered until it
// disconnects or stops answering pings.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("report: websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	v := &viewer{conn: conn, send: make(chan []byte, viewerBuffer)}
	h.register(v)
	defer h.unregister(v)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// write is the viewer's only writer. It returns when the viewer's send
// channel is closed or a write fails, closing the connection either way.
func (h *Hub) write(v *viewer) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
		h.writers.Done()
	}()

	for {
		select {
		case msg, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("report: websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("report: websocket ping failed", "error", err)
				return
			}
		}
	}
}

// Listen serves the hub on addr at path until Close.
func (h *Hub) Listen(addr, path string) (net.Addr, error) {
	if path == "" {
		path = DefaultHubPath
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("report: websocket listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(path, h)
	h.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("report: websocket server stopped", "error", err)
		}
	}()
	slog.Info("report: websocket hub listening", "addr", ln.Addr().String(), "path", path)
	return ln.Addr(), nil
}

func (h *Hub) register(v *viewer) {
	h.mu.Lock()
	h.clients[v] = struct{}{}
	n := len(h.clients)
	h.writers.Add(1)
	h.mu.Unlock()

	go h.write(v)
	slog.Info("report: viewer connected", "remote", v.conn.RemoteAddr().String(), "viewers", n)
}

// unregister removes v and closes its send channel under the hub lock, so
// broadcast never sends on a closed channel.
func (h *Hub) unregister(v *viewer) {
	h.mu.Lock()
	_, ok := h.clients[v]
	if ok {
		delete(h.clients, v)
		close(v.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		slog.Info("report: viewer disconnected", "viewers", n)
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Report queues rec for broadcast.
func (h *Hub) Report(rec correlate.Record) {
	h.q.push(rec)
}

// broadcast hands the encoded record to every viewer's writer. A viewer
// whose buffer is full misses the record.
func (h *Hub) broadcast(rec correlate.Record) error {
	msg, err := EncodingJSON.Encode(rec)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var lagging int
	for v := range h.clients {
		select {
		case v.send <- msg:
		default:
			lagging++
		}
	}
	if lagging > 0 {
		slog.Debug("report: viewers lagging, record skipped", "viewers", lagging)
		if lagging == len(h.clients) {
			return fmt.Errorf("report: all %d viewers lagging", lagging)
		}
	}
	return nil
}

// Stats returns broadcast counters.
func (h *Hub) Stats() Stats { return h.q.stats() }

// Close flushes queued records, disconnects every viewer once its writer has
// sent what it holds and stops the listener if one was started.
func (h *Hub) Close() error {
	h.q.close()

	var err error
	if h.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = h.srv.Shutdown(ctx)
	}

	h.mu.Lock()
	for v := range h.clients {
		delete(h.clients, v)
		close(v.send)
	}
	h.mu.Unlock()

	h.writers.Wait()
	return err
}
