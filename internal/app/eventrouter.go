package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/okonek/matchd/internal/core"
	"github.com/okonek/matchd/internal/domain"
)

// routePolicy says what happens to an inbound gameplay event.
type routePolicy int

const (
	// recordOnly events go to the audit trail and nowhere else.
	recordOnly routePolicy = iota
	// broadcastRoom events are fanned out to every member of the
	// sender's room under the response kind.
	broadcastRoom
)

type routeRule struct {
	policy  routePolicy
	respond string
}

// rules is the per-kind surface exchanged after a match forms.
var rules = map[string]routeRule{
	"player_move":           {broadcastRoom, "player_move_success"},
	"rescue":                {broadcastRoom, "rescue_success"},
	"player_move_displayed": {recordOnly, ""},
	"rescue_attempt":        {recordOnly, ""},
	"rescue_displayed":      {recordOnly, ""},
	"game_info":             {recordOnly, ""},
	"game_config":           {recordOnly, ""},
	"start_game":            {recordOnly, ""},
	"end_game":              {recordOnly, ""},
	"feedback":              {recordOnly, ""},
}

// EventRouter fans room-scoped events out to the sender's cohort. It
// validates nothing beyond "sender is in a room"; gameplay semantics are
// not its business.
type EventRouter struct {
	Rooms core.Registry
	Send  core.Sender
	Audit core.Recorder

	// TrustClaimedRoom restores the legacy variant that honors the
	// payload-declared rm_id instead of the registry lookup. Off by
	// default: a claimed id is not validated against membership.
	TrustClaimedRoom bool
}

func (r *EventRouter) Route(ctx context.Context, sid domain.SessionID, kind string, payload json.RawMessage) {
	rule, ok := rules[kind]
	if !ok {
		log.Warn().Str("module", "app.router").Str("sid", string(sid)).Str("event", kind).Msg("unknown event")
		return
	}
	r.Audit.Record(sid, kind, payload)
	if rule.policy == recordOnly {
		return
	}

	room, ok := r.resolveRoom(ctx, sid, payload)
	if !ok {
		return
	}
	members, err := r.Rooms.MembersOf(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("room", string(room)).Msg("member list unavailable")
		return
	}
	r.Send.ToSessions(members, core.Envelope{Event: rule.respond, Data: payload})
}

func (r *EventRouter) resolveRoom(ctx context.Context, sid domain.SessionID, payload json.RawMessage) (domain.RoomID, bool) {
	if r.TrustClaimedRoom {
		var p struct {
			RoomID string `json:"rm_id"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
			log.Warn().Str("module", "app.router").Str("sid", string(sid)).Msg("malformed payload, no rm_id")
			return "", false
		}
		return domain.RoomID(p.RoomID), true
	}

	room, err := r.Rooms.RoomOf(ctx, sid)
	if errors.Is(err, core.ErrNotFound) {
		// Stale or out-of-order message from a sender with no room.
		log.Warn().Str("module", "app.router").Str("sid", string(sid)).Msg("sender not in any room, dropped")
		return "", false
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("sid", string(sid)).Msg("room lookup failed")
		return "", false
	}
	return room, true
}
