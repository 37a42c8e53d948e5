// Package store persists matchmaking state: the current generation's
// waiting count and room id, plus the session/room registry.
//
// Key layout matches the deployed store:
//
//	n_player            current generation's waiting count
//	room_id             current generation's token
//	<session_id>        the session's assigned room id
//	<room_id>           list of member session ids, join order
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/okonek/matchd/internal/core"
	"github.com/okonek/matchd/internal/domain"
)

const (
	keyPlayers = "n_player"
	keyRoom    = "room_id"
)

// tryJoinScript is the whole admission step. It runs server-side so the
// count increment, the membership writes and the room-id rotation are
// indivisible with respect to concurrent joins; a plain read-then-write
// sequence can overfill a generation, fire the formation signal twice, or
// let the filling join read a member list still missing an earlier joiner.
//
// ARGV[1] is the capacity, ARGV[2] a fresh token used only if this join
// fills the generation, ARGV[3] the joining session id. Returns
// {assigned room, 0-based position, formed}.
var tryJoinScript = redis.NewScript(`
local room = redis.call('GET', KEYS[2])
if not room then
  return redis.error_reply('room_id not initialized')
end
local count = tonumber(redis.call('INCR', KEYS[1]))
redis.call('SET', ARGV[3], room)
redis.call('RPUSH', room, ARGV[3])
if count >= tonumber(ARGV[1]) then
  redis.call('SET', KEYS[2], ARGV[2])
  redis.call('SET', KEYS[1], 0)
  return {room, count - 1, 1}
end
return {room, count - 1, 0}
`)

// removeScript clears both directions of a membership in one step, so a
// racing admission can never observe the session key without the list
// entry or vice versa. ARGV[1] is the session id.
var removeScript = redis.NewScript(`
local room = redis.call('GET', ARGV[1])
if not room then
  return 0
end
redis.call('DEL', ARGV[1])
redis.call('LREM', room, 0, ARGV[1])
return 1
`)

// Redis implements both core.CounterStore and core.Registry on one client,
// since counter and registry share the store instance.
type Redis struct {
	rdb      *redis.Client
	capacity int
}

func NewRedis(rdb *redis.Client, capacity int) *Redis {
	return &Redis{rdb: rdb, capacity: capacity}
}

// Init seeds the current generation: zero waiting count, fresh room token.
// Called once at startup.
func (s *Redis) Init(ctx context.Context) error {
	room := domain.NewRoomID()
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyPlayers, 0, 0)
	pipe.Set(ctx, keyRoom, string(room), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed generation: %w", err)
	}
	log.Info().Str("module", "store.redis").Str("room", string(room)).Msg("generation seeded")
	return nil
}

func (s *Redis) TryJoin(ctx context.Context, sid domain.SessionID) (core.JoinTicket, error) {
	next := domain.NewRoomID()
	res, err := tryJoinScript.Run(ctx, s.rdb, []string{keyPlayers, keyRoom}, s.capacity, string(next), string(sid)).Slice()
	if err != nil {
		return core.JoinTicket{}, fmt.Errorf("try join: %w", err)
	}
	if len(res) != 3 {
		return core.JoinTicket{}, fmt.Errorf("try join: unexpected reply %v", res)
	}
	room, _ := res[0].(string)
	pos, _ := res[1].(int64)
	formed, _ := res[2].(int64)
	return core.JoinTicket{
		Room:     domain.RoomID(room),
		Position: int(pos),
		Formed:   formed == 1,
	}, nil
}

func (s *Redis) MembersOf(ctx context.Context, room domain.RoomID) ([]domain.SessionID, error) {
	raw, err := s.rdb.LRange(ctx, string(room), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", room, err)
	}
	members := make([]domain.SessionID, 0, len(raw))
	for _, sid := range raw {
		members = append(members, domain.SessionID(sid))
	}
	return members, nil
}

func (s *Redis) RoomOf(ctx context.Context, sid domain.SessionID) (domain.RoomID, error) {
	room, err := s.rdb.Get(ctx, string(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("room of %s: %w", sid, err)
	}
	return domain.RoomID(room), nil
}

// Remove clears both directions. Safe for a session that was never
// admitted. The waiting count is deliberately left alone; see the
// matchmaker for the consequences of leaving mid-wait.
func (s *Redis) Remove(ctx context.Context, sid domain.SessionID) error {
	if err := removeScript.Run(ctx, s.rdb, []string{}, string(sid)).Err(); err != nil {
		return fmt.Errorf("remove %s: %w", sid, err)
	}
	return nil
}
