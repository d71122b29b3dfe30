// Package websocket streams telemetry frames to WebSocket clients.
package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// ClientDepth is the number of frames buffered per client.
const ClientDepth = 16

// Hub broadcasts every published frame to all connected clients, one
// text message per frame. A client which can't keep up loses frames.
type Hub struct {
	lock    sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	frames  chan []byte
	dropped int
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Publish implements firmware.Sink. It never blocks.
func (h *Hub) Publish(frame []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if len(h.clients) == 0 {
		return
	}
	msg := append([]byte(nil), frame...)
	for c := range h.clients {
		select {
		case c.frames <- msg:
		default:
			c.dropped++
		}
	}
}

// Handler returns the WebSocket handler.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{frames: make(chan []byte, ClientDepth)}
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	glog.V(1).Infof("websocket client %s connected", conn.Request().RemoteAddr)
	defer func() {
		h.lock.Lock()
		delete(h.clients, c)
		dropped := c.dropped
		h.lock.Unlock()
		conn.Close()
		glog.V(1).Infof("websocket client %s gone, %d frame(s) dropped", conn.Request().RemoteAddr, dropped)
	}()

	closed := make(chan struct{})
	go func() {
		// clients don't send anything, reading only detects the close.
		var msg []byte
		for websocket.Message.Receive(conn, &msg) == nil {
		}
		close(closed)
	}()
	for {
		select {
		case <-closed:
			return
		case frame := <-c.frames:
			if err := websocket.Message.Send(conn, string(frame)); err != nil {
				return
			}
		}
	}
}

// Server serves a Hub on an address.
type Server struct {
	Addr string
	Hub  *Hub
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. Frames are at /telemetry.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/telemetry", s.Hub.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	glog.Infof("websocket telemetry on ws://%s/telemetry", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
