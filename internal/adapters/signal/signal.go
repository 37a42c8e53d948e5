// Package signal is the connection gateway: it owns the physical websocket
// connections and surfaces connect/disconnect/message to the matchmaker and
// the event router.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okonek/matchd/internal/core"
	"github.com/okonek/matchd/internal/domain"
)

// Matchmaking is the slice of the matchmaker the gateway calls into.
type Matchmaking interface {
	OnJoinRequest(ctx context.Context, sid domain.SessionID, payload json.RawMessage)
	OnDisconnect(ctx context.Context, sid domain.SessionID)
}

// Routing is the slice of the event router the gateway calls into.
type Routing interface {
	Route(ctx context.Context, sid domain.SessionID, kind string, payload json.RawMessage)
}

type GameWSController struct {
	match   Matchmaking
	router  Routing
	audit   core.Recorder
	limiter *JoinRateLimiter

	readLimit  int64
	pingPeriod time.Duration
	pongWait   time.Duration

	mu    sync.RWMutex
	conns map[domain.SessionID]*WsConn
}

// Options carries the connection tuning knobs from config.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	JoinLimit  int
	JoinWindow time.Duration
}

func NewGameWSController(audit core.Recorder, opts Options) *GameWSController {
	return &GameWSController{
		audit:      audit,
		limiter:    NewJoinRateLimiter(opts.JoinLimit, opts.JoinWindow),
		readLimit:  opts.ReadLimit,
		pingPeriod: opts.PingPeriod,
		pongWait:   opts.PongWait,
		conns:      make(map[domain.SessionID]*WsConn),
	}
}

// Bind wires the core services in after construction; the matchmaker and
// router need the controller as their Sender, so this breaks the cycle.
func (ctl *GameWSController) Bind(m Matchmaking, r Routing) {
	ctl.match = m
	ctl.router = r
}

// Sessions reports the number of live connections.
func (ctl *GameWSController) Sessions() int {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	return len(ctl.conns)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type welcomeData struct {
	Data     string           `json:"data"`
	SocketID domain.SessionID `json:"socket_id"`
}

// HandleGame upgrades one connection and runs it until disconnect. Each
// connection gets a fresh session id for its lifetime.
func (ctl *GameWSController) HandleGame(ctx context.Context, c *gin.Context) {
	sid := domain.NewSessionID()
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("connected")

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	ctl.register(sid, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, cancel, sid, conn)

	ctl.sendJSON(conn, core.Envelope{Event: "welcome", Data: welcomeData{Data: "Connected", SocketID: sid}})
	ctl.audit.Record(sid, "connect", nil)
}

func (ctl *GameWSController) register(sid domain.SessionID, conn *WsConn) {
	ctl.mu.Lock()
	ctl.conns[sid] = conn
	ctl.mu.Unlock()
}

func (ctl *GameWSController) unregister(sid domain.SessionID) {
	ctl.mu.Lock()
	delete(ctl.conns, sid)
	ctl.mu.Unlock()
}

// ToSession implements core.Sender. Unknown or backpressured sessions are
// skipped; outbound delivery is best effort.
func (ctl *GameWSController) ToSession(sid domain.SessionID, env core.Envelope) {
	ctl.mu.RLock()
	conn, ok := ctl.conns[sid]
	ctl.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("send to gone session")
		return
	}
	ctl.sendJSON(conn, env)
}

// ToSessions fans one envelope out to a resolved member set, marshaling
// once.
func (ctl *GameWSController) ToSessions(sids []domain.SessionID, env core.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal envelope")
		return
	}
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	for _, sid := range sids {
		conn, ok := ctl.conns[sid]
		if !ok {
			continue
		}
		if err := conn.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("fanout send")
		}
	}
}

func (ctl *GameWSController) sendJSON(c *WsConn, env core.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal envelope")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("send")
	}
}

// WsConn wraps one websocket with a buffered send channel. TrySend never
// blocks; a full buffer is a backpressure error and the frame is dropped.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
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
