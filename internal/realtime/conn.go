package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// Subprotocol is negotiated on every handshake.
const Subprotocol = "inbox-realtime-v1"

// Path is the realtime namespace under the server base URL.
const Path = "/realtime"

// DefaultPingTimeout is how long a connection may stay silent (server pings
// included) before it is treated as dead.
var DefaultPingTimeout = 15 * time.Second

// ErrPingTimeout is returned when no frames arrive within the ping timeout.
var ErrPingTimeout = errors.New("ping timeout: no frames received")

// ErrUnauthorized means the server refused the handshake credentials.
var ErrUnauthorized = errors.New("realtime handshake rejected: unauthorized")

// Frames are small JSON; anything larger is malformed.
const maxReadSize = 1 << 20

type frame struct {
	Type      string          `json:"type"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Reconnect *bool           `json:"reconnect,omitempty"`
}

// DisconnectError reports a server-initiated disconnect frame.
type DisconnectError struct {
	Reason    string
	Reconnect bool
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("disconnect (reason=%s, reconnect=%v)", e.Reason, e.Reconnect)
}

// URLFromBase maps the REST base URL to the websocket endpoint:
// https://host/x becomes wss://host/x/realtime.
func URLFromBase(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + Path
	u.RawQuery = ""
	return u.String(), nil
}

// conn is one physical connection, valid from welcome to drop.
type conn struct {
	ws *websocket.Conn
}

// dial opens the socket and waits for the welcome frame. The credential
// travels in the handshake through httpClient's transport.
func dial(ctx context.Context, rawURL string, httpClient *http.Client) (*conn, error) {
	ws, resp, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient:   httpClient,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	ws.SetReadLimit(maxReadSize)

	_, data, err := ws.Read(ctx)
	if err != nil {
		_ = ws.CloseNow()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		_ = ws.CloseNow()
		return nil, fmt.Errorf("parse welcome: %w", err)
	}
	switch f.Type {
	case "welcome":
		return &conn{ws: ws}, nil
	case "disconnect":
		_ = ws.CloseNow()
		return nil, &DisconnectError{Reason: f.Reason, Reconnect: f.Reconnect != nil && *f.Reconnect}
	default:
		_ = ws.CloseNow()
		return nil, fmt.Errorf("expected welcome, got %q", f.Type)
	}
}

func (c *conn) close() {
	_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
}

// listen reads frames until the connection drops, handing each event to
// emit in arrival order. Pings only refresh the rolling deadline.
func (c *conn) listen(ctx context.Context, pingTimeout time.Duration, emit func(Event)) error {
	for {
		readCtx := ctx
		var readCancel context.CancelFunc
		if pingTimeout > 0 {
			readCtx, readCancel = context.WithTimeout(ctx, pingTimeout)
		}
		_, data, err := c.ws.Read(readCtx)
		if readCancel != nil {
			readCancel()
		}
		if err != nil {
			if pingTimeout > 0 && ctx.Err() == nil && readCtx.Err() != nil {
				return ErrPingTimeout
			}
			return err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f.Type {
		case "ping", "welcome":
		case "disconnect":
			return &DisconnectError{Reason: f.Reason, Reconnect: f.Reconnect != nil && *f.Reconnect}
		case "event":
			if f.Event == "" {
				continue
			}
			emit(Event{Name: f.Event, Data: f.Data, ReceivedAt: time.Now()})
		}
	}
}
