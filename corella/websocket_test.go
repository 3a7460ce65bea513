package corella_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"i4.energy/across/corella/corella"
	"i4.energy/across/corella/corella/corellatest"
)

// newBridge serves a serial-to-WebSocket bridge in front of device. Every
// message is written to the device and whatever it answers is sent back as
// one binary message.
func newBridge(t *testing.T, device *corellatest.Device) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 512)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if _, err := device.Write(data); err != nil {
				return
			}
			n, _ := device.Read(buf)
			if n == 0 {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketDialer(t *testing.T) {
	t.Run("Exchanges through the bridge", func(t *testing.T) {
		ctx := context.Background()
		device := corellatest.New()

		config, err := corella.NewConfigBuilder().
			WithWebSocket(newBridge(t, device)).
			WithReadTimeout(testReadTimeout).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		m, err := corella.New(ctx, config)
		if err != nil {
			t.Fatalf("failed to create module: %v", err)
		}
		defer m.Close()

		id, err := m.ID(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != device.ID {
			t.Errorf("expected id %q, got %q", device.ID, id)
		}

		v, err := m.Version(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Firmware != device.Firmware || v.Hardware != device.Hardware {
			t.Errorf("unexpected version: %+v", v)
		}
	})

	t.Run("ErrTimeout when the bridge stays silent", func(t *testing.T) {
		ctx := context.Background()
		device := corellatest.New()
		device.Silent = true

		config, err := corella.NewConfigBuilder().
			WithDialer(corella.WebSocketDialer{URL: newBridge(t, device)}).
			WithReadTimeout(testReadTimeout).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		m, err := corella.New(ctx, config)
		if err != nil {
			t.Fatalf("failed to create module: %v", err)
		}
		defer m.Close()

		if _, err := m.ID(ctx); !errors.Is(err, corella.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got: %v", err)
		}
		if m.Connected() {
			t.Error("expected Connected() to be false after a timeout")
		}
	})

	t.Run("Late bytes are dropped before the next request", func(t *testing.T) {
		ctx := context.Background()

		upgrader := websocket.Upgrader{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()

			for _, answers := range [][]string{{"FIRST\r\n", "LATE\r\n"}, {"SECOND\r\n"}} {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
				for i, answer := range answers {
					if i > 0 {
						time.Sleep(4 * testReadTimeout)
					}
					if err := conn.WriteMessage(websocket.BinaryMessage, []byte(answer)); err != nil {
						return
					}
				}
			}
			conn.ReadMessage()
		}))
		defer srv.Close()

		config, err := corella.NewConfigBuilder().
			WithWebSocket("ws" + strings.TrimPrefix(srv.URL, "http")).
			WithReadTimeout(testReadTimeout).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		m, err := corella.New(ctx, config)
		if err != nil {
			t.Fatalf("failed to create module: %v", err)
		}
		defer m.Close()

		id, err := m.ID(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "FIRST" {
			t.Fatalf("expected FIRST, got %q", id)
		}

		// Let the late answer arrive after the first exchange has ended.
		time.Sleep(8 * testReadTimeout)

		id, err = m.ID(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "SECOND" {
			t.Errorf("expected SECOND, got %q", id)
		}
	})

	t.Run("Short reads keep the rest of a message", func(t *testing.T) {
		device := corellatest.New()
		dialer := corella.WebSocketDialer{URL: newBridge(t, device)}

		transport, err := dialer.Dial(context.Background())
		if err != nil {
			t.Fatalf("unexpected dial error: %v", err)
		}
		defer transport.Close()

		if err := transport.SetReadTimeout(time.Second); err != nil {
			t.Fatalf("unexpected error from SetReadTimeout(): %v", err)
		}
		if _, err := transport.Write([]byte("AT+ID?\r\n")); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}

		var got []string
		buf := make([]byte, 4)
		for range 3 {
			n, err := transport.Read(buf)
			if err != nil {
				t.Fatalf("unexpected read error: %v", err)
			}
			got = append(got, string(buf[:n]))
		}
		if strings.Join(got, "|") != "0001|A2B3|\r\n" {
			t.Errorf("unexpected reads: %q", got)
		}
	})

	t.Run("Read returns nothing when the timeout elapses", func(t *testing.T) {
		dialer := corella.WebSocketDialer{URL: newBridge(t, corellatest.New())}

		transport, err := dialer.Dial(context.Background())
		if err != nil {
			t.Fatalf("unexpected dial error: %v", err)
		}
		defer transport.Close()

		if err := transport.SetReadTimeout(testReadTimeout); err != nil {
			t.Fatalf("unexpected error from SetReadTimeout(): %v", err)
		}
		if err := transport.SetReadTimeout(-time.Second); err == nil {
			t.Error("expected error for negative read timeout")
		}

		n, err := transport.Read(make([]byte, 16))
		if n != 0 || err != nil {
			t.Errorf("expected 0, nil after the timeout, got %d, %v", n, err)
		}
	})

	t.Run("io.EOF when the bridge closes", func(t *testing.T) {
		upgrader := websocket.Upgrader{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}))
		defer srv.Close()

		dialer := corella.WebSocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}
		transport, err := dialer.Dial(context.Background())
		if err != nil {
			t.Fatalf("unexpected dial error: %v", err)
		}
		defer transport.Close()

		if err := transport.SetReadTimeout(time.Second); err != nil {
			t.Fatalf("unexpected error from SetReadTimeout(): %v", err)
		}
		if _, err := transport.Read(make([]byte, 16)); err != io.EOF {
			t.Errorf("expected io.EOF, got: %v", err)
		}
	})

	t.Run("Close twice", func(t *testing.T) {
		dialer := corella.WebSocketDialer{URL: newBridge(t, corellatest.New())}

		transport, err := dialer.Dial(context.Background())
		if err != nil {
			t.Fatalf("unexpected dial error: %v", err)
		}

		if err := transport.Close(); err != nil {
			t.Errorf("first close should succeed, got error: %v", err)
		}
		if err := transport.Close(); err == nil {
			t.Error("expected error on second close")
		}
	})

	t.Run("Unsupported scheme", func(t *testing.T) {
		dialer := corella.WebSocketDialer{URL: "http://bridge.local/serial"}

		transport, err := dialer.Dial(context.Background())
		if err == nil {
			t.Fatal("expected error for http:// URL")
		}
		if transport != nil {
			t.Error("expected nil transport on error")
		}
	})

	t.Run("Handshake rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		defer srv.Close()

		dialer := corella.WebSocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}
		_, err := dialer.Dial(context.Background())
		if err == nil {
			t.Fatal("expected error for rejected handshake")
		}
		if !strings.Contains(err.Error(), "HTTP 403") {
			t.Errorf("expected error to carry the HTTP status, got: %v", err)
		}
		if !errors.Is(err, websocket.ErrBadHandshake) {
			t.Errorf("expected websocket.ErrBadHandshake, got: %v", err)
		}
	})
}
