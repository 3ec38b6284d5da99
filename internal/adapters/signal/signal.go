// Package signal is the WebSocket transport for room messages.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler receives connection events; the coordinator implements it.
type Handler interface {
	OnConnect(id domain.ConnID, conn core.SignalConnection, addr string, cancel context.CancelFunc) bool
	OnMessage(id domain.ConnID, data []byte)
	OnDisconnect(id domain.ConnID)
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

type SignalWSController struct {
	handler  Handler
	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(h Handler, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	return &SignalWSController{
		handler: h,
		opts:    opts,
		upgrader: websocket.Upgrader{
			// the app is embedded in third-party frames
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades the request and runs the connection until it closes.
// ctx is the server lifetime: connections torn down by shutdown do not
// leave their rooms, so the saved state keeps them.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	addr := c.ClientIP()
	id := domain.ConnID(uuid.NewString())

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	connCtx, cancel := context.WithCancel(ctx)
	if !ctl.handler.OnConnect(id, conn, addr, cancel) {
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).
		Str("client", c.GetString(ClientTokenKey)).Msg("new WS connection")

	go ctl.writePump(connCtx, conn)
	go ctl.readPump(ctx, connCtx, id, conn, cancel)
}
