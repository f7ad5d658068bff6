package signaling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcall/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Relay is a two-peer WebSocket relay for local runs and tests. Peers join a
// room (?room=name, default "default"); every frame from one peer is
// forwarded to the other. Frames sent before the second peer joins are held
// and flushed when it arrives. A third peer is rejected.
type Relay struct {
	pin string

	mu       sync.Mutex
	rooms    map[string]*room
	listener net.Listener
	server   *http.Server
}

type room struct {
	peers   []*relayPeer
	pending []relayFrame
}

type relayFrame struct {
	typ  int
	data []byte
}

type relayPeer struct {
	id   uuid.UUID
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *relayPeer) write(f relayFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(f.typ, f.data)
}

// NewRelay creates a relay. When pin is non-empty, clients must pass it as
// the "pin" query parameter.
func NewRelay(pin string) *Relay {
	return &Relay{
		pin:   pin,
		rooms: make(map[string]*room),
	}
}

// Start begins listening on addr (e.g. ":0" for a random port). Returns the
// bound address.
func (r *Relay) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start WS server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", r)

	r.mu.Lock()
	r.listener = listener
	r.server = &http.Server{Handler: mux}
	srv := r.server
	r.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay stopped: %v", err)
		}
	}()

	return listener.Addr().String(), nil
}

// ServeHTTP upgrades the request and relays frames for its room.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.pin != "" && req.URL.Query().Get("pin") != r.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	name := req.URL.Query().Get("room")
	if name == "" {
		name = "default"
	}

	peer := &relayPeer{id: uuid.New(), conn: conn}
	if !r.join(name, peer) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
		return
	}
	util.LogInfo("relay: peer %s joined room %q", peer.id, name)

	defer func() {
		r.leave(name, peer)
		conn.Close()
		util.LogInfo("relay: peer %s left room %q", peer.id, name)
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		r.forward(name, peer, relayFrame{typ: typ, data: data})
	}
}

// join adds peer to the room and flushes held frames to it. Returns false
// when the room is full.
func (r *Relay) join(name string, peer *relayPeer) bool {
	r.mu.Lock()
	rm, ok := r.rooms[name]
	if !ok {
		rm = &room{}
		r.rooms[name] = rm
	}
	if len(rm.peers) >= 2 {
		r.mu.Unlock()
		return false
	}
	rm.peers = append(rm.peers, peer)

	var flush []relayFrame
	if len(rm.peers) == 2 {
		flush, rm.pending = rm.pending, nil
	}
	// Held frames go out before anything forwarded after this point.
	peer.mu.Lock()
	r.mu.Unlock()
	defer peer.mu.Unlock()

	for _, f := range flush {
		if err := peer.conn.WriteMessage(f.typ, f.data); err != nil {
			util.LogWarning("relay: flush to %s failed: %v", peer.id, err)
			break
		}
	}
	return true
}

func (r *Relay) leave(name string, peer *relayPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return
	}
	for i, p := range rm.peers {
		if p == peer {
			rm.peers = append(rm.peers[:i], rm.peers[i+1:]...)
			break
		}
	}
	if len(rm.peers) == 0 {
		delete(r.rooms, name)
	}
}

// forward delivers a frame to the other peer in the room, or holds it until
// that peer joins.
func (r *Relay) forward(name string, from *relayPeer, f relayFrame) {
	r.mu.Lock()
	rm := r.rooms[name]
	var to *relayPeer
	for _, p := range rm.peers {
		if p != from {
			to = p
		}
	}
	if to == nil {
		rm.pending = append(rm.pending, f)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if err := to.write(f); err != nil {
		util.LogWarning("relay: forward to %s failed: %v", to.id, err)
	}
}

// Close shuts down the listener and every relayed connection.
func (r *Relay) Close() {
	r.mu.Lock()
	srv := r.server
	var conns []*websocket.Conn
	for _, rm := range r.rooms {
		for _, p := range rm.peers {
			conns = append(conns, p.conn)
		}
	}
	r.mu.Unlock()

	if srv != nil {
		srv.Shutdown(context.Background())
	}
	for _, c := range conns {
		c.Close()
	}
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
