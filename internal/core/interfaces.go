package core

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/okonek/matchd/internal/domain"
)

// Frame is a raw outbound payload, already marshaled.
type Frame []byte

// Envelope is the wire shape for every event in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

var (
	// ErrNotFound reports a missing session/room mapping.
	ErrNotFound = errors.New("not found")
	// ErrBackpressure reports a full per-connection send buffer.
	ErrBackpressure = errors.New("backpressure")
)

// JoinTicket is the result of one atomic admission into the current
// generation. Room is the id the session was admitted under; when Formed is
// set this is the id of the generation that just filled, the store has
// already rotated to a fresh one.
type JoinTicket struct {
	Room     domain.RoomID
	Position int
	Formed   bool
}

// CounterStore is the one piece of state mutated by arbitrarily many
// concurrent joins. TryJoin must be indivisible: read count and room id,
// take the position, increment, record the session's membership in both
// directions, and rotate+reset when the generation fills. The membership
// write belongs inside the same atomic step; otherwise the join that fills
// the generation can read a member list that is still missing an earlier
// joiner. No caller may observe a torn intermediate state.
type CounterStore interface {
	Init(ctx context.Context) error
	TryJoin(ctx context.Context, sid domain.SessionID) (JoinTicket, error)
}

// Registry is the read/removal side of the membership recorded by TryJoin.
// Remove must be a no-op for a session that was never admitted.
type Registry interface {
	MembersOf(ctx context.Context, room domain.RoomID) ([]domain.SessionID, error)
	RoomOf(ctx context.Context, sid domain.SessionID) (domain.RoomID, error)
	Remove(ctx context.Context, sid domain.SessionID) error
}

// Sender is the gateway's outbound primitive. Delivery is best effort: a
// session that is gone or backpressured is skipped, never waited on.
type Sender interface {
	ToSession(sid domain.SessionID, env Envelope)
	ToSessions(sids []domain.SessionID, env Envelope)
}

// Recorder is the fire-and-forget audit trail. Record must never block the
// calling event-handling goroutine and its failures are swallowed.
type Recorder interface {
	Record(sid domain.SessionID, event string, payload json.RawMessage)
}
