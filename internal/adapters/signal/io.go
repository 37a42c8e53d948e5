package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okonek/matchd/internal/core"
	"github.com/okonek/matchd/internal/domain"
)

func (ctl *GameWSController) writePump(ctx context.Context, sid domain.SessionID, c *WsConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump handles the connection's inbound messages. Disconnect is the
// only cancellation signal: when the read side dies the session is
// unregistered and the matchmaker told.
func (ctl *GameWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid domain.SessionID, c *WsConn) {
	defer func() {
		cancel()
		ctl.unregister(sid)
		ctl.limiter.Forget(sid)
		ctl.match.OnDisconnect(context.WithoutCancel(ctx), sid)
		c.Close()
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("disconnected")
	}()

	c.conn.SetReadLimit(ctl.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("read error")
				}
				return
			}
			ctl.handleEvent(ctx, sid, c, data)
		}
	}
}

// handleEvent dispatches one inbound envelope. Malformed input is dropped
// for this message only; the connection and other sessions are unaffected.
func (ctl *GameWSController) handleEvent(ctx context.Context, sid domain.SessionID, c *WsConn, data []byte) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		return
	}

	switch env.Event {
	case "start_wait":
		if !ctl.limiter.Allow(sid) {
			log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
			ctl.sendJSON(c, core.Envelope{Event: "error", Data: map[string]string{"error": "too_many_joins"}})
			return
		}
		ctl.match.OnJoinRequest(ctx, sid, env.Data)
	default:
		ctl.router.Route(ctx, sid, env.Event, env.Data)
	}
}
