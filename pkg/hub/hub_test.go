package hub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
)

func serve(t *testing.T, h *Hub) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		NewClient(h, c, NewJSONMessage([]byte(`{"hello":true}`))).Run()
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/ws"
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients: got %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcast(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	url := serve(t, h)
	var conns []*gws.Conn
	for i := 0; i < 2; i++ {
		c, _, err := gws.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer c.Close()
		conns = append(conns, c)
	}
	waitClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]string{"text": "Predictions: cat - 92.00%"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	for i, c := range conns {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))

		_, greeting, err := c.ReadMessage()
		if err != nil || string(greeting) != `{"hello":true}` {
			t.Errorf("client %d greeting: got %q (%v)", i, greeting, err)
		}
		typ, data, err := c.ReadMessage()
		if err != nil || typ != gws.TextMessage || string(data) != `{"text":"Predictions: cat - 92.00%"}` {
			t.Errorf("client %d json: got %d %q (%v)", i, typ, data, err)
		}
	}

	conns[0].Close()
	waitClients(t, h, 1)
}

func TestRunStops(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	url := serve(t, h)
	c, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	waitClients(t, h, 1)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if h.IsRunning() {
		t.Error("IsRunning after stop: got true")
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("clients after stop: got %d, want 0", n)
	}

	// The client sees the greeting, then the close frame.
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	c.ReadMessage()
	if _, _, err := c.ReadMessage(); err == nil {
		t.Error("expected connection to close")
	}
}

func TestBroadcastWithoutRun(t *testing.T) {
	h := New("idle", nil)
	for i := 0; i < 300; i++ {
		h.Broadcast(NewJSONMessage([]byte("{}")))
	}
	if got := h.Dropped(); got != 300-256 {
		t.Errorf("dropped: got %d, want %d", got, 300-256)
	}
}
