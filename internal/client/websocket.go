// ABOUTME: WebSocket client for the visualizer feed
// ABOUTME: Handles connection, handshake, and message routing
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/admsync/pkg/visualize"
	"github.com/gorilla/websocket"
)

// Config holds client configuration
type Config struct {
	ServerAddr string
	Path       string
	ViewerID   string
	Name       string
}

// Client is a viewer connection to a player's feed
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Message channels
	Hello  chan visualize.ServerHello
	Items  chan []visualize.ItemDescription
	Frames chan visualize.Frame
	Errors chan visualize.ServerError

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = "/adm"
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config: config,
		Hello:  make(chan visualize.ServerHello, 1),
		Items:  make(chan []visualize.ItemDescription, 10),
		Frames: make(chan visualize.Frame, 32),
		Errors: make(chan visualize.ServerError, 10),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake sends viewer/hello and waits for server/hello
func (c *Client) handshake() error {
	hello := visualize.ViewerHello{
		ViewerID: c.config.ViewerID,
		Name:     c.config.Name,
		Version:  visualize.ProtocolVersion,
	}
	if err := c.send(visualize.TypeViewerHello, hello); err != nil {
		return fmt.Errorf("failed to send %s: %w", visualize.TypeViewerHello, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env visualize.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	if env.Type != visualize.TypeServerHello {
		return fmt.Errorf("expected server/hello, got %s", env.Type)
	}
	var serverHello visualize.ServerHello
	if err := json.Unmarshal(env.Payload, &serverHello); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	log.Printf("Handshake complete with %s (session %s, %d items)",
		serverHello.Name, serverHello.SessionID, len(serverHello.Items))
	c.Hello <- serverHello
	return nil
}

// send writes one message
func (c *Client) send(msgType string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(visualize.Message{Type: msgType, Payload: payload})
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		var env visualize.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.ctx.Done():
			default:
				log.Printf("Read error: %v", err)
			}
			return
		}
		c.route(env)
	}
}

// route delivers a message to its channel. Frames are dropped when the consumer lags.
func (c *Client) route(env visualize.Envelope) {
	switch env.Type {
	case visualize.TypeFrame:
		var frame visualize.Frame
		if err := json.Unmarshal(env.Payload, &frame); err != nil {
			log.Printf("Failed to parse frame: %v", err)
			return
		}
		select {
		case c.Frames <- frame:
		default:
		}

	case visualize.TypeItems:
		var items []visualize.ItemDescription
		if err := json.Unmarshal(env.Payload, &items); err != nil {
			log.Printf("Failed to parse items: %v", err)
			return
		}
		select {
		case c.Items <- items:
		case <-c.ctx.Done():
		}

	case visualize.TypeServerError:
		var serverErr visualize.ServerError
		json.Unmarshal(env.Payload, &serverErr)
		log.Printf("Server error: %s: %s", serverErr.Error, serverErr.Message)
		select {
		case c.Errors <- serverErr:
		default:
		}

	default:
		log.Printf("Unknown message type: %s", env.Type)
	}
}

// SendOffsets asks the player to change item offsets
func (c *Client) SendOffsets(cmd visualize.OffsetsCommand) error {
	return c.send(visualize.TypeOffsets, cmd)
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
