// ABOUTME: Websocket hub streaming resolved metadata to viewers
// ABOUTME: Registered as a handler listener, batches updates per tick and never blocks dispatch
package visualize

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/admsync/internal/discovery"
	"github.com/Resonate-Protocol/admsync/internal/version"
	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/Resonate-Protocol/admsync/pkg/metadata"
	"github.com/gorilla/websocket"
)

const (
	defaultPath       = "/adm"
	defaultSendBuffer = 64
	helloTimeout      = 5 * time.Second
	writeDeadline     = 10 * time.Second
	pingInterval      = 30 * time.Second

	maxOffsetMagnitude = 1e4
)

// Catalog describes the items of the loaded scene
type Catalog interface {
	ItemIDs() []uint64
	ItemInfo(id uint64) (metadata.ItemInfo, bool)
	SessionID() string
	SampleRate() int
}

// Config holds hub configuration
type Config struct {
	Name       string
	Addr       string // listen address for Start, e.g. ":8928"
	Path       string
	EnableMDNS bool
	SendBuffer int

	Catalog  Catalog
	Settings *adm.Settings // offsets commands are rejected when nil
}

// Hub fans tick frames out to connected viewers
type Hub struct {
	config   Config
	upgrader websocket.Upgrader

	frameMu sync.Mutex
	frame   []ItemState

	viewersMu sync.RWMutex
	viewers   map[*viewer]struct{}
	closed    bool

	dropped atomic.Int64
	frames  atomic.Int64

	listener   net.Listener
	httpServer *http.Server
	mdns       *discovery.Manager
	wg         sync.WaitGroup
}

type viewer struct {
	id   string
	name string
	conn *websocket.Conn
	send chan interface{}
}

// NewHub creates a hub. It serves nothing until Start or ServeHTTP is used.
func NewHub(config Config) *Hub {
	if config.Path == "" {
		config.Path = defaultPath
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaultSendBuffer
	}
	if config.Name == "" {
		config.Name = "admsync"
	}
	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		viewers: make(map[*viewer]struct{}),
	}
}

// Handler returns an http.Handler serving the feed at the configured path
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(h.config.Path, h.ServeHTTP)
	return mux
}

// Start listens on the configured address and advertises via mDNS when enabled
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.config.Addr, err)
	}
	h.listener = ln
	h.httpServer = &http.Server{Handler: h.Handler()}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("Visualizer server error: %v", err)
		}
	}()
	log.Printf("Visualizer feed listening on %s%s", ln.Addr(), h.config.Path)

	if h.config.EnableMDNS {
		port := ln.Addr().(*net.TCPAddr).Port
		h.mdns = discovery.NewManager(discovery.Config{
			ServiceName: h.config.Name,
			Port:        port,
			Path:        h.config.Path,
		})
		if err := h.mdns.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		}
	}
	return nil
}

// Addr returns the listening address after Start
func (h *Hub) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop disconnects all viewers and shuts the server down
func (h *Hub) Stop(ctx context.Context) error {
	h.viewersMu.Lock()
	h.closed = true
	for v := range h.viewers {
		v.conn.Close()
	}
	h.viewersMu.Unlock()

	if h.mdns != nil {
		h.mdns.Stop()
	}

	var err error
	if h.httpServer != nil {
		err = h.httpServer.Shutdown(ctx)
	}
	h.wg.Wait()
	return err
}

// ViewerCount returns the number of connected viewers
func (h *Hub) ViewerCount() int {
	h.viewersMu.RLock()
	defer h.viewersMu.RUnlock()
	return len(h.viewers)
}

// Dropped returns the number of messages dropped for slow viewers
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Frames returns the number of frames broadcast
func (h *Hub) Frames() int64 {
	return h.frames.Load()
}

// OnItemsReady announces newly constructed items
func (h *Hub) OnItemsReady(ids []uint64) {
	items := h.describe(ids)
	if len(items) == 0 {
		return
	}
	h.broadcast(Message{Type: TypeItems, Payload: items})
}

// OnMetadataUpdate adds an update to the current tick's frame
func (h *Hub) OnMetadataUpdate(u adm.MetadataUpdate) {
	h.frameMu.Lock()
	h.frame = append(h.frame, StateOf(u))
	h.frameMu.Unlock()
}

// OnTickEnd broadcasts the frame collected during the tick
func (h *Hub) OnTickEnd(t float64) {
	h.frameMu.Lock()
	items := h.frame
	h.frame = nil
	h.frameMu.Unlock()

	if len(items) == 0 {
		return
	}
	h.frames.Add(1)
	h.broadcast(Message{Type: TypeFrame, Payload: Frame{Time: t, Items: items}})
}

func (h *Hub) describe(ids []uint64) []ItemDescription {
	if h.config.Catalog == nil {
		return nil
	}
	items := make([]ItemDescription, 0, len(ids))
	for _, id := range ids {
		if info, ok := h.config.Catalog.ItemInfo(id); ok {
			items = append(items, Describe(info))
		}
	}
	return items
}

// broadcast queues msg for every viewer, dropping it for viewers that are behind
func (h *Hub) broadcast(msg Message) {
	h.viewersMu.RLock()
	defer h.viewersMu.RUnlock()

	for v := range h.viewers {
		select {
		case v.send <- msg:
		default:
			if h.dropped.Add(1)%100 == 1 {
				log.Printf("Warning: viewer %s is falling behind, dropping %s", v.name, msg.Type)
			}
		}
	}
}

// ServeHTTP upgrades a viewer connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	log.Printf("New viewer connection from %s", r.RemoteAddr)
	h.handleConnection(conn)
}

func (h *Hub) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	hello, err := readHello(conn)
	if err != nil {
		log.Printf("Viewer handshake failed: %v", err)
		return
	}

	v := &viewer{
		id:   hello.ViewerID,
		name: hello.Name,
		conn: conn,
		send: make(chan interface{}, h.config.SendBuffer),
	}

	// The hello is queued before registration so it precedes every broadcast
	v.send <- Message{Type: TypeServerHello, Payload: h.serverHello()}

	h.viewersMu.Lock()
	if h.closed {
		h.viewersMu.Unlock()
		return
	}
	h.viewers[v] = struct{}{}
	h.viewersMu.Unlock()
	log.Printf("Viewer connected: %s (ID: %s)", v.name, v.id)

	done := make(chan struct{})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.viewerWriter(v, done)
	}()

	defer func() {
		h.viewersMu.Lock()
		delete(h.viewers, v)
		h.viewersMu.Unlock()
		close(done)
		log.Printf("Viewer disconnected: %s", v.name)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		h.handleViewerMessage(v, data)
	}
}

func readHello(conn *websocket.Conn) (ViewerHello, error) {
	var hello ViewerHello

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return hello, fmt.Errorf("failed to read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if env.Type != TypeViewerHello {
		return hello, fmt.Errorf("expected %s, got %s", TypeViewerHello, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		return hello, fmt.Errorf("failed to parse hello: %w", err)
	}
	if hello.Name == "" {
		hello.Name = "viewer"
	}
	return hello, nil
}

func (h *Hub) serverHello() ServerHello {
	hello := ServerHello{
		Name:     h.config.Name,
		Software: version.Software(),
		Version:  ProtocolVersion,
		Items:   []ItemDescription{},
	}
	if c := h.config.Catalog; c != nil {
		hello.SessionID = c.SessionID()
		hello.SampleRate = c.SampleRate()
		hello.Items = append(hello.Items, h.describe(c.ItemIDs())...)
	}
	return hello
}

// viewerWriter sends queued messages until the connection ends
func (h *Hub) viewerWriter(v *viewer, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := v.conn.WriteJSON(msg); err != nil {
				log.Printf("Error writing to viewer %s: %v", v.name, err)
				v.conn.Close()
				return
			}
		case <-ticker.C:
			if err := v.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleViewerMessage(v *viewer, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("Error unmarshaling viewer message: %v", err)
		return
	}

	switch env.Type {
	case TypeOffsets:
		var cmd OffsetsCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			h.reject(v, "bad_request", err.Error())
			return
		}
		if err := h.applyOffsets(cmd); err != nil {
			h.reject(v, "rejected", err.Error())
		}
	default:
		log.Printf("Unknown viewer message type: %s", env.Type)
	}
}

func (h *Hub) applyOffsets(cmd OffsetsCommand) error {
	s := h.config.Settings
	if s == nil {
		return fmt.Errorf("offsets are not adjustable")
	}

	o := cmd.Offsets()
	if err := checkOffsets(o); err != nil {
		return err
	}

	switch strings.ToLower(cmd.Target) {
	case "objects":
		s.SetObjectOffsets(o)
	case "directspeakers":
		s.SetDirectSpeakerOffsets(o)
	default:
		return fmt.Errorf("unknown offsets target %q", cmd.Target)
	}
	log.Printf("Viewer set %s offsets: az=%.1f el=%.1f dist x%.2f",
		cmd.Target, cmd.Azimuth, cmd.Elevation, cmd.DistanceMultiplier)
	return nil
}

// checkOffsets refuses values no control surface produces
func checkOffsets(o adm.Offsets) error {
	if !o.Finite() {
		return fmt.Errorf("offsets must be finite")
	}
	for _, v := range []float64{o.X, o.Y, o.Z, o.Azimuth, o.Elevation, o.DistanceMultiplier} {
		if math.Abs(v) > maxOffsetMagnitude {
			return fmt.Errorf("offset %g out of range", v)
		}
	}
	return nil
}

func (h *Hub) reject(v *viewer, code, message string) {
	select {
	case v.send <- Message{Type: TypeServerError, Payload: ServerError{Error: code, Message: message}}:
	default:
	}
}
