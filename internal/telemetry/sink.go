// Package telemetry is the write-only audit trail: every inbound message
// is appended, keyed by session id. It is best effort and never a
// correctness dependency of the gameplay path.
package telemetry

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/okonek/matchd/internal/domain"
)

// Entry is one audit record.
type Entry struct {
	SessionID domain.SessionID `json:"socket_id"`
	Event     string           `json:"event"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
	Time      time.Time        `json:"time"`
}

// Writer appends one entry to the durable trail.
type Writer interface {
	Write(ctx context.Context, e Entry) error
}

// Sink queues entries onto a bounded buffer drained by a capped worker
// group. Overflow policy is drop-new: when the buffer is full the entry is
// counted and discarded, the caller is never blocked and never told.
type Sink struct {
	writer  Writer
	workers int
	queue   chan Entry
	dropped atomic.Int64
}

func NewSink(w Writer, workers, queueSize int) *Sink {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Sink{
		writer:  w,
		workers: workers,
		queue:   make(chan Entry, queueSize),
	}
}

// Record enqueues without blocking. Safe from any goroutine.
func (s *Sink) Record(sid domain.SessionID, event string, payload json.RawMessage) {
	e := Entry{SessionID: sid, Event: event, Payload: payload, Time: time.Now().UTC()}
	select {
	case s.queue <- e:
	default:
		n := s.dropped.Add(1)
		log.Debug().Str("module", "telemetry").Str("event", event).Int64("dropped", n).Msg("queue full, entry dropped")
	}
}

// Run drains the queue until ctx is canceled, then waits for in-flight
// writes. Writer errors are swallowed: the trail is best effort.
func (s *Sink) Run(ctx context.Context) {
	p := pool.New().WithMaxGoroutines(s.workers)
	defer p.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.queue:
			p.Go(func() {
				if err := s.writer.Write(ctx, e); err != nil {
					log.Debug().Err(err).Str("module", "telemetry").Str("event", e.Event).Msg("write failed")
				}
			})
		}
	}
}

// Dropped reports how many entries the overflow policy discarded.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}
