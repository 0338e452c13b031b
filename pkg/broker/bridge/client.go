// Package bridge implements broker.Transport over a websocket JSON bridge
// sitting in front of the TWS/IB Gateway socket API.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vol-core/pkg/broker"
)

const (
	defaultPath   = "/v1/stream"
	writeTimeout  = 10 * time.Second
	eventBuffer   = 1024
	closeDeadline = time.Second
)

// Client is a single bridge connection. Writes are serialised by writeMu
// because a websocket connection supports one concurrent writer.
type Client struct {
	Scheme string
	Path   string

	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan broker.Event

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	readDone  chan struct{}
}

// NewClient builds an unconnected bridge client.
func NewClient() *Client {
	return &Client{
		Scheme:   "ws",
		Path:     defaultPath,
		dialer:   websocket.DefaultDialer,
		events:   make(chan broker.Event, eventBuffer),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

// URL renders the bridge endpoint for the given connection parameters.
func (c *Client) URL(host string, port, clientID int) string {
	u := url.URL{
		Scheme:   c.Scheme,
		Host:     host + ":" + strconv.Itoa(port),
		Path:     c.Path,
		RawQuery: url.Values{"clientId": {strconv.Itoa(clientID)}}.Encode(),
	}
	return u.String()
}

// Connect dials the bridge and starts the reader goroutine.
func (c *Client) Connect(ctx context.Context, host string, port, clientID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return fmt.Errorf("bridge: already connected")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.URL(host, port, clientID), nil)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	c.conn = conn
	log.Printf("bridge: connected to %s:%d (clientId=%d)", host, port, clientID)

	go c.readLoop(conn)
	return nil
}

// Send writes one request frame.
func (c *Client) Send(ctx context.Context, req broker.Request) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return broker.ErrNotConnected
	}
	select {
	case <-c.done:
		return broker.ErrNotConnected
	default:
	}

	payload, err := encodeRequest(req)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write %s: %w", req.Kind, err)
	}
	return nil
}

func (c *Client) Events() <-chan broker.Event {
	return c.events
}

// Disconnect sends a normal close frame and tears the socket down. The reader
// then emits connectionClosed and closes the event channel.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeDeadline))
		c.writeMu.Unlock()
		_ = conn.Close()
	})
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.emit(broker.Event{Type: broker.EventConnectionClosed, ReqID: broker.NoRequestID})
		close(c.events)
		close(c.readDone)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			log.Printf("bridge: read error: %v", err)
			return
		}

		ev, err := decodeEvent(msg)
		if err != nil {
			log.Printf("bridge: parse error: %v", err)
			continue
		}
		if !c.emit(ev) {
			return
		}
	}
}

// emit delivers ev unless the client is shutting down and nobody is
// draining the channel.
func (c *Client) emit(ev broker.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		select {
		case c.events <- ev:
		default:
		}
		return false
	}
}

type requestFrame struct {
	Op       string           `json:"op"`
	ReqID    int64            `json:"reqId"`
	Contract *broker.Contract `json:"contract,omitempty"`
	Params   map[string]any   `json:"params,omitempty"`
}

func encodeRequest(req broker.Request) ([]byte, error) {
	return json.Marshal(requestFrame{
		Op:       string(req.Kind),
		ReqID:    req.ID,
		Contract: req.Contract,
		Params:   req.Params,
	})
}

// decodeEvent accepts the reqId either as a number or a numeric string; some
// bridges forward the raw socket fields untouched.
func decodeEvent(msg []byte) (broker.Event, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(msg, &raw); err != nil {
		return broker.Event{}, err
	}
	var typ string
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &typ); err != nil {
			return broker.Event{}, fmt.Errorf("event type: %w", err)
		}
	}
	if typ == "" {
		return broker.Event{}, fmt.Errorf("missing event type")
	}
	if v, ok := raw["reqId"]; ok && len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return broker.Event{}, err
		}
		raw["reqId"] = json.RawMessage(s)
		if msg, err := json.Marshal(raw); err == nil {
			return unmarshalEvent(msg)
		}
	}
	return unmarshalEvent(msg)
}

func unmarshalEvent(msg []byte) (broker.Event, error) {
	ev := broker.Event{ReqID: broker.NoRequestID}
	if err := json.Unmarshal(msg, &ev); err != nil {
		return broker.Event{}, err
	}
	return ev, nil
}
