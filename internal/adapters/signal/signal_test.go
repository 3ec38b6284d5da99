package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type echoHandler struct {
	mu           sync.Mutex
	conns        map[domain.ConnID]core.SignalConnection
	disconnected chan domain.ConnID
}

func newEchoHandler() *echoHandler {
	return &echoHandler{
		conns:        make(map[domain.ConnID]core.SignalConnection),
		disconnected: make(chan domain.ConnID, 4),
	}
}

func (h *echoHandler) OnConnect(id domain.ConnID, conn core.SignalConnection, _ string, _ context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = conn
	return true
}

func (h *echoHandler) OnMessage(id domain.ConnID, data []byte) {
	h.mu.Lock()
	conn := h.conns[id]
	h.mu.Unlock()
	_ = conn.TrySend(data)
}

func (h *echoHandler) OnDisconnect(id domain.ConnID) {
	h.disconnected <- id
}

func serve(t *testing.T, h Handler) (*websocket.Conn, context.CancelFunc) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	ctl := NewSignalWSController(h, Options{PongWait: 2 * time.Second, WriteWait: time.Second, SendBuffer: 4})
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, cancel
}

func TestEchoAndDisconnect(t *testing.T) {
	h := newEchoHandler()
	c, cancel := serve(t, h)
	defer cancel()

	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil || string(data) != `{"type":"ping"}` {
		t.Fatalf("expected echo, got %q %v", data, err)
	}

	c.Close()
	select {
	case <-h.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
}

func TestShutdownDoesNotReportDisconnect(t *testing.T) {
	h := newEchoHandler()
	c, cancel := serve(t, h)

	// make sure the connection is registered before shutting down
	_ = c.WriteMessage(websocket.TextMessage, []byte(`{}`))
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err != nil {
		t.Fatal(err)
	}

	cancel()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatal("expected the server to close the connection")
	}
	select {
	case id := <-h.disconnected:
		t.Fatalf("shutdown must not run leave handling, got %s", id)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTrySendAfterClose(t *testing.T) {
	h := newEchoHandler()
	c, cancel := serve(t, h)
	defer cancel()
	_ = c.WriteMessage(websocket.TextMessage, []byte(`{}`))
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	c.ReadMessage()

	h.mu.Lock()
	var conn core.SignalConnection
	for _, v := range h.conns {
		conn = v
	}
	h.mu.Unlock()

	conn.Close()
	conn.Close()
	if err := conn.TrySend([]byte("x")); err != core.ErrConnClosed {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}
