package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGrace       = time.Second
)

// URLFunc returns the WebSocket endpoint of a job.
type URLFunc func(jobID string) (string, error)

// WebSocketDialer opens job status streams with gorilla/websocket.
type WebSocketDialer struct {
	url    URLFunc
	dialer *websocket.Dialer
}

func NewWebSocketDialer(url URLFunc) *WebSocketDialer {
	return &WebSocketDialer{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, jobID string) (Conn, error) {
	u, err := d.url(jobID)
	if err != nil {
		return nil, err
	}
	c, resp, err := d.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", u, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", u, err)
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

// Close sends a normal close frame and releases the socket.
func (w *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return w.c.Close()
}
