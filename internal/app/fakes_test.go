package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okonek/matchd/internal/core"
	"github.com/okonek/matchd/internal/domain"
)

// fakeSender records every envelope per session.
type fakeSender struct {
	mu   sync.Mutex
	sent map[domain.SessionID][]core.Envelope
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[domain.SessionID][]core.Envelope)}
}

func (f *fakeSender) ToSession(sid domain.SessionID, env core.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[sid] = append(f.sent[sid], env)
}

func (f *fakeSender) ToSessions(sids []domain.SessionID, env core.Envelope) {
	for _, sid := range sids {
		f.ToSession(sid, env)
	}
}

func (f *fakeSender) envelopes(sid domain.SessionID) []core.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Envelope, len(f.sent[sid]))
	copy(out, f.sent[sid])
	return out
}

func (f *fakeSender) events(sid domain.SessionID) []string {
	var kinds []string
	for _, env := range f.envelopes(sid) {
		kinds = append(kinds, env.Event)
	}
	return kinds
}

// fakeRecorder collects audit records.
type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeRecorder) Record(_ domain.SessionID, event string, _ json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRecorder) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

// downCounterStore fails every TryJoin, as an unreachable backend would.
type downCounterStore struct {
	mu    sync.Mutex
	calls int
}

func (s *downCounterStore) Init(context.Context) error { return nil }

func (s *downCounterStore) TryJoin(context.Context, domain.SessionID) (core.JoinTicket, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return core.JoinTicket{}, errors.New("connection refused")
}

func (s *downCounterStore) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// dataOf round-trips an envelope's data through JSON so tests can inspect
// the wire shape instead of internal types.
func dataOf(t *testing.T, env core.Envelope) map[string]any {
	t.Helper()
	b, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}
