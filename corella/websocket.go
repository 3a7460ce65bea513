package corella

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer reaches a module whose serial port is exposed by a
// serial-to-WebSocket bridge. Each message carries raw serial bytes.
type WebSocketDialer struct {
	// URL of the bridge, ws:// or wss://
	URL string
	// Header is sent with the handshake, e.g. for HTTP Basic auth.
	Header http.Header
	// HandshakeTimeout defaults to 10s.
	HandshakeTimeout time.Duration
	// InsecureSkipVerify disables TLS certificate checks (wss:// only).
	InsecureSkipVerify bool
}

func (d WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("corella: invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("corella: unsupported URL scheme: %q (use ws:// or wss://)", u.Scheme)
	}

	handshake := d.HandshakeTimeout
	if handshake == 0 {
		handshake = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshake,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: d.InsecureSkipVerify,
		}
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("corella: websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("corella: websocket connection failed: %w", err)
	}

	return newWebSocketTransport(conn), nil
}

func (d WebSocketDialer) String() string {
	return "websocket " + d.URL
}

// webSocketTransport adapts a message oriented WebSocket connection to the
// Transport contract. A pump goroutine owns conn reads so that Read can give
// up after the read timeout without breaking the connection, which a
// gorilla read deadline would do.
type webSocketTransport struct {
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}

	// pending holds the unread remainder of the last frame
	pending []byte
	// readErr is set by pump before frames is closed
	readErr error

	mu          sync.Mutex
	readTimeout time.Duration
	closeOnce   sync.Once
}

var _ inputResetter = (*webSocketTransport)(nil)

func newWebSocketTransport(conn *websocket.Conn) *webSocketTransport {
	t := &webSocketTransport{
		conn:   conn,
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *webSocketTransport) pump() {
	defer close(t.frames)

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.readErr = err
			return
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		select {
		case t.frames <- data:
		case <-t.done:
			return
		}
	}
}

func (t *webSocketTransport) Read(p []byte) (int, error) {
	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}

	t.mu.Lock()
	timeout := t.readTimeout
	t.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data, ok := <-t.frames:
		if !ok {
			if t.readErr == nil || websocket.IsCloseError(t.readErr, websocket.CloseNormalClosure) {
				return 0, io.EOF
			}
			return 0, t.readErr
		}
		n := copy(p, data)
		t.pending = data[n:]
		return n, nil
	case <-expired:
		return 0, nil
	case <-t.done:
		return 0, net.ErrClosed
	}
}

// ResetInputBuffer drops bytes that arrived after the previous exchange
// ended, without waiting for more.
func (t *webSocketTransport) ResetInputBuffer() error {
	t.pending = nil
	for {
		select {
		case _, ok := <-t.frames:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (t *webSocketTransport) Write(p []byte) (int, error) {
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *webSocketTransport) SetReadTimeout(d time.Duration) error {
	if d < 0 {
		return errors.New("corella: negative read timeout")
	}
	t.mu.Lock()
	t.readTimeout = d
	t.mu.Unlock()
	return nil
}

func (t *webSocketTransport) Close() error {
	err := net.ErrClosed
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}
