// Vigil - Patrol Tracking and Emergency Coordination
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/vigil/internal/models"
)

// DefaultServer is used when neither --server nor VIGIL_SERVER is set.
const DefaultServer = "http://localhost:3870"

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// ErrClosed is returned by Send and ReadFrame after Close.
var ErrClosed = errors.New("connection closed")

// WebSocketURL turns a server address into the hub endpoint. http and https
// become ws and wss; a missing path becomes /ws.
func WebSocketURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server address %q: %w", server, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in server address", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server address %q has no host", server)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Client is a hub connection speaking the {"event","data"} frame protocol.
// Send is safe for concurrent use; ReadFrame must be called from one
// goroutine.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the hub at server. origin, when non-empty, is sent as
// the Origin header.
func Dial(ctx context.Context, server, origin string) (*Client, error) {
	endpoint, err := WebSocketURL(server)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, closed: make(chan struct{})}
}

// Send writes one frame.
func (c *Client) Send(event string, data interface{}) error {
	payload, err := json.Marshal(models.Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// ReadFrame blocks for the next frame from the hub.
func (c *Client) ReadFrame() (models.Frame, error) {
	var f models.Frame
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		select {
		case <-c.closed:
			return f, ErrClosed
		default:
		}
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// Close sends a normal closure and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
