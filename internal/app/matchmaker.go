package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okonek/matchd/internal/core"
	"github.com/okonek/matchd/internal/domain"
)

// A generation moves Waiting -> Forming -> Active: Forming happens inside
// the single atomic TryJoin, Active once the formation broadcast is out.
// There is no path back to Waiting for the same room id.

const (
	joinAttempts = 3
	joinBackoff  = 100 * time.Millisecond
)

type waitData struct {
	RoomID   domain.RoomID `json:"rm_id"`
	Position int           `json:"p_id"`
}

type startGame struct {
	PlayersList []domain.SessionID `json:"players_list"`
	RoomID      domain.RoomID      `json:"rm_id"`
}

type errorData struct {
	Error string `json:"error"`
}

// Matchmaker admits waiting sessions into room generations until capacity
// is reached.
type Matchmaker struct {
	Store core.CounterStore
	Rooms core.Registry
	Send  core.Sender
	Audit core.Recorder
}

// OnJoinRequest handles one start_wait. The session gets its assignment
// ack; the C-th join additionally triggers the one formation broadcast for
// that generation.
func (m *Matchmaker) OnJoinRequest(ctx context.Context, sid domain.SessionID, payload json.RawMessage) {
	m.Audit.Record(sid, "start_wait", payload)

	if room, err := m.Rooms.RoomOf(ctx, sid); err == nil {
		// Protocol violation, not fatal: the connection stays open.
		log.Warn().Str("module", "app.matchmaker").Str("sid", string(sid)).
			Str("room", string(room)).Msg("join while already assigned")
		m.Send.ToSession(sid, core.Envelope{Event: "error", Data: errorData{Error: "already_assigned"}})
		return
	} else if !errors.Is(err, core.ErrNotFound) {
		log.Error().Err(err).Str("module", "app.matchmaker").Str("sid", string(sid)).Msg("room lookup failed")
		m.Send.ToSession(sid, core.Envelope{Event: "error", Data: errorData{Error: "join_failed"}})
		return
	}

	ticket, err := m.tryJoin(ctx, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "app.matchmaker").Str("sid", string(sid)).Msg("join failed")
		m.Send.ToSession(sid, core.Envelope{Event: "error", Data: errorData{Error: "join_failed"}})
		return
	}

	log.Info().Str("module", "app.matchmaker").Str("sid", string(sid)).
		Str("room", string(ticket.Room)).Int("position", ticket.Position).Msg("waiting")
	m.Send.ToSession(sid, core.Envelope{Event: "wait_data", Data: waitData{
		RoomID:   ticket.Room,
		Position: ticket.Position,
	}})

	if !ticket.Formed {
		return
	}

	// TryJoin records membership atomically with admission, so the list
	// read by the filling join is always the complete cohort.
	members, err := m.Rooms.MembersOf(ctx, ticket.Room)
	if err != nil {
		log.Error().Err(err).Str("module", "app.matchmaker").
			Str("room", string(ticket.Room)).Msg("member list unavailable for formation")
		return
	}
	log.Info().Str("module", "app.matchmaker").Str("room", string(ticket.Room)).
		Int("members", len(members)).Msg("match formed")
	m.Send.ToSessions(members, core.Envelope{Event: "start_game", Data: startGame{
		PlayersList: members,
		RoomID:      ticket.Room,
	}})
}

// tryJoin retries transient store errors within a short bounded window.
// Sustained unavailability surfaces as a join failure to this requester
// only; routing for already-formed rooms is unaffected.
func (m *Matchmaker) tryJoin(ctx context.Context, sid domain.SessionID) (core.JoinTicket, error) {
	var err error
	for attempt := 0; attempt < joinAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return core.JoinTicket{}, ctx.Err()
			case <-time.After(joinBackoff):
			}
		}
		var ticket core.JoinTicket
		if ticket, err = m.Store.TryJoin(ctx, sid); err == nil {
			return ticket, nil
		}
		log.Warn().Err(err).Str("module", "app.matchmaker").Int("attempt", attempt+1).Msg("try join")
	}
	return core.JoinTicket{}, err
}

// OnDisconnect drops the session from the registry, both directions.
// The waiting count is NOT reclaimed: a session that leaves mid-wait
// leaves a gap, and the generation still fills on its usual increment.
// Kept as-is to match the deployed behavior; pinned by a regression test.
func (m *Matchmaker) OnDisconnect(ctx context.Context, sid domain.SessionID) {
	m.Audit.Record(sid, "disconnect", nil)
	if err := m.Rooms.Remove(ctx, sid); err != nil {
		log.Error().Err(err).Str("module", "app.matchmaker").Str("sid", string(sid)).Msg("remove failed")
		return
	}
	log.Info().Str("module", "app.matchmaker").Str("sid", string(sid)).Msg("session removed")
}
