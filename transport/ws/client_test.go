package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mealgrid/realtime/transport"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// newTestClient connects a client to the server and waits for the open
// callback.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	client := New(Config{URL: wsURL(server)}, nil)

	opened := make(chan struct{})
	client.OnOpen(func() { close(opened) })

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for open callback")
	}
	return client
}

func TestClientConnect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := newTestClient(t, server)

	if err := client.Disconnect(); err != nil {
		t.Errorf("Disconnect failed: %v", err)
	}
	// Second disconnect is a no-op.
	if err := client.Disconnect(); err != nil {
		t.Errorf("second Disconnect failed: %v", err)
	}
}

func TestClientDialFailure(t *testing.T) {
	client := New(Config{URL: "ws://127.0.0.1:1", HandshakeTimeout: 500 * time.Millisecond}, nil)

	errCh := make(chan error, 1)
	client.OnError(func(err error) { errCh <- err })

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect returned sync error: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected non-nil dial error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error callback")
	}
}

func TestClientSendWritesPublishFrame(t *testing.T) {
	frames := make(chan frame, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				t.Errorf("server: malformed frame: %v", err)
				continue
			}
			frames <- f
		}
	})
	defer server.Close()

	client := newTestClient(t, server)
	defer client.Disconnect()

	if err := client.Send("cart", "item_added", []byte(`{"id":"i1"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case f := <-frames:
		if f.Type != framePublish {
			t.Errorf("frame type = %q, want %q", f.Type, framePublish)
		}
		if f.Channel != "cart" {
			t.Errorf("frame channel = %q, want cart", f.Channel)
		}
		if f.Event != "item_added" {
			t.Errorf("frame event = %q, want item_added", f.Event)
		}
		if string(f.Payload) != `{"id":"i1"}` {
			t.Errorf("frame payload = %s", f.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for publish frame")
	}
}

func TestClientSendNotConnected(t *testing.T) {
	client := New(Config{URL: "ws://localhost:12345"}, nil)

	if err := client.Send("cart", "item_added", nil); err != transport.ErrNotConnected {
		t.Errorf("Send = %v, want ErrNotConnected", err)
	}
}

func TestClientSubscribeAndDeliver(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Expect the subscribe frame, then push one event back.
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type != frameSubscribe || f.Channel != "cart" {
			t.Errorf("server: unexpected first frame: %s", data)
			return
		}

		// Give the client a moment to register its event handler.
		time.Sleep(100 * time.Millisecond)

		event, _ := json.Marshal(frame{
			Type:    frameEvent,
			Channel: "cart",
			Event:   "item_added",
			Payload: json.RawMessage(`{"id":"i1"}`),
		})
		if err := conn.WriteMessage(websocket.TextMessage, event); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := newTestClient(t, server)
	defer client.Disconnect()

	sub, err := client.Subscribe("cart")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if sub.Channel() != "cart" {
		t.Errorf("Channel = %q, want cart", sub.Channel())
	}

	type delivered struct {
		event   string
		payload []byte
	}
	got := make(chan delivered, 1)
	sub.OnEvent(func(event string, payload []byte) {
		got <- delivered{event: event, payload: payload}
	})

	select {
	case d := <-got:
		if d.event != "item_added" {
			t.Errorf("event = %q, want item_added", d.event)
		}
		if string(d.payload) != `{"id":"i1"}` {
			t.Errorf("payload = %s", d.payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event delivery")
	}
}

func TestClientPingPong(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// The default ping handler answers with a pong as long as the
		// server keeps reading.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := newTestClient(t, server)
	defer client.Disconnect()

	ponged := make(chan struct{}, 1)
	client.OnPong(func() { ponged <- struct{}{} })

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	select {
	case <-ponged:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for pong callback")
	}
}

func TestClientServerCloseEmitsError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Close immediately after the handshake.
	})
	defer server.Close()

	client := New(Config{URL: wsURL(server)}, nil)

	closed := make(chan error, 1)
	client.OnClose(func(err error) { closed <- err })
	opened := make(chan struct{})
	client.OnOpen(func() { close(opened) })

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-opened

	select {
	case err := <-closed:
		if err == nil {
			t.Error("expected non-nil error for a server-initiated close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for close callback")
	}
}

func TestClientDeliberateCloseEmitsNil(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := newTestClient(t, server)

	closed := make(chan error, 1)
	client.OnClose(func(err error) { closed <- err })

	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("close error = %v, want nil for a requested close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for close callback")
	}
}

func TestClientReconnectAfterDisconnect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := New(Config{URL: wsURL(server)}, nil)

	opens := make(chan struct{}, 2)
	client.OnOpen(func() { opens <- struct{}{} })

	waitOpen := func() {
		select {
		case <-opens:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for open callback")
		}
	}

	if err := client.Connect(); err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}
	waitOpen()

	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	if err := client.Connect(); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	waitOpen()

	client.Disconnect()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", cfg.HandshakeTimeout)
	}
	if cfg.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", cfg.WriteTimeout)
	}
	if cfg.MaxMessageSize != 512*1024 {
		t.Errorf("MaxMessageSize = %d, want 512KiB", cfg.MaxMessageSize)
	}
}
