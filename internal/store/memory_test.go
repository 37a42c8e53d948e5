package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okonek/matchd/internal/core"
	"github.com/okonek/matchd/internal/domain"
	"github.com/okonek/matchd/internal/store"
)

func newMemory(t *testing.T, capacity int) *store.Memory {
	t.Helper()
	s := store.NewMemory(capacity)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestMemoryTryJoinSequential(t *testing.T) {
	ctx := context.Background()
	s := newMemory(t, 2)

	first, err := s.TryJoin(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 0, first.Position)
	assert.False(t, first.Formed)
	assert.NotEmpty(t, first.Room)

	second, err := s.TryJoin(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)
	assert.True(t, second.Formed, "second join must fill a capacity-2 generation")
	assert.Equal(t, first.Room, second.Room, "formed ticket carries the room that just filled")

	// Membership is recorded by the admission itself, in join order.
	members, err := s.MembersOf(ctx, second.Room)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"A", "B"}, members)

	third, err := s.TryJoin(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, 0, third.Position)
	assert.NotEqual(t, first.Room, third.Room, "rotation must mint a fresh token")
}

func TestMemoryTryJoinConcurrent(t *testing.T) {
	const (
		capacity = 4
		joins    = 100
	)
	ctx := context.Background()
	s := newMemory(t, capacity)

	var (
		mu      sync.Mutex
		tickets = make(map[domain.SessionID]core.JoinTicket, joins)
		wg      sync.WaitGroup
	)
	for i := 0; i < joins; i++ {
		sid := domain.SessionID(fmt.Sprintf("s%02d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := s.TryJoin(ctx, sid)
			assert.NoError(t, err)
			mu.Lock()
			tickets[sid] = ticket
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, tickets, joins)

	byRoom := make(map[domain.RoomID][]core.JoinTicket)
	for _, ticket := range tickets {
		byRoom[ticket.Room] = append(byRoom[ticket.Room], ticket)
	}
	require.Len(t, byRoom, joins/capacity, "every generation fills exactly once")

	for room, generation := range byRoom {
		assert.Len(t, generation, capacity, "room %s overfilled", room)

		formed := 0
		positions := make(map[int]bool)
		for _, ticket := range generation {
			positions[ticket.Position] = true
			if ticket.Formed {
				formed++
			}
		}
		assert.Equal(t, 1, formed, "room %s must form exactly once", room)
		assert.Len(t, positions, capacity, "room %s has duplicate positions", room)

		// Membership is written inside the same atomic step as the
		// admission, so a read after the filling join sees the full
		// cohort, never a partial list.
		members, err := s.MembersOf(ctx, room)
		require.NoError(t, err)
		assert.Len(t, members, capacity, "room %s member list incomplete", room)
		for sid, ticket := range tickets {
			if ticket.Room == room {
				assert.Contains(t, members, sid)
			}
		}
	}
}

func TestMemoryRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newMemory(t, 2)

	a, err := s.TryJoin(ctx, "A")
	require.NoError(t, err)
	b, err := s.TryJoin(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, a.Room, b.Room)
	room := a.Room

	members, err := s.MembersOf(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"A", "B"}, members, "join order must be preserved")

	got, err := s.RoomOf(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, room, got)

	require.NoError(t, s.Remove(ctx, "A"))

	members, err = s.MembersOf(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"B"}, members)

	_, err = s.RoomOf(ctx, "A")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Removing a session that was never assigned is a no-op, not an error.
	assert.NoError(t, s.Remove(ctx, "ghost"))
}

// A session that disconnects mid-wait does not give its counter slot back;
// the generation still fills on its usual increment, with the survivors
// only. Deployed behavior, pinned on purpose.
func TestMemoryDisconnectMidWaitLeavesGap(t *testing.T) {
	ctx := context.Background()
	s := newMemory(t, 2)

	_, err := s.TryJoin(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, "A"))

	b, err := s.TryJoin(ctx, "B")
	require.NoError(t, err)

	assert.True(t, b.Formed, "the gap is not reclaimed; B's join still fills the generation")
	assert.Equal(t, 1, b.Position)

	members, err := s.MembersOf(ctx, b.Room)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"B"}, members, "only survivors are members")
}
