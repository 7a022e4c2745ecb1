/*

This file contains the event journal. Router notifications are held as pending until the enclosing
host transaction commits; a reverted transaction drops them. Committed events are kept in a bounded
in-memory window and delivered to every registered sink.

*/

package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elys-network/yieldhook/internal/host"
	"github.com/elys-network/yieldhook/internal/logger"
	"github.com/elys-network/yieldhook/internal/types"
)

const defaultWindow = 500

// Sink receives committed events, e.g. the Postgres store.
type Sink interface {
	HandleEvent(ctx context.Context, event types.RouterEvent) error
}

// Journal implements the router's emitter and the host's Checkpointer and Committer.
type Journal struct {
	mu       sync.RWMutex
	sequence uint64
	pending  []types.RouterEvent
	recent   []types.RouterEvent
	window   int
	sinks    []Sink
	now      func() time.Time
	logger   zerolog.Logger
}

// NewJournal creates a journal delivering committed events to sinks.
func NewJournal(sinks ...Sink) *Journal {
	return &Journal{
		window: defaultWindow,
		sinks:  sinks,
		now:    time.Now,
		logger: logger.GetForComponent("event_journal"),
	}
}

// AddSink registers another sink.
func (j *Journal) AddSink(s Sink) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sinks = append(j.sinks, s)
}

// SetSequence continues numbering after a previously persisted sequence.
func (j *Journal) SetSequence(seq uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sequence = seq
}

// Emit stamps the event with sequence, transaction ID and time and holds it until commit.
func (j *Journal) Emit(ctx context.Context, event types.RouterEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sequence++
	event.Sequence = j.sequence
	event.TxID = host.TxID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = j.now().UTC()
	}
	j.pending = append(j.pending, event)
}

// Pending returns events emitted since the last commit.
func (j *Journal) Pending() []types.RouterEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]types.RouterEvent(nil), j.pending...)
}

// Recent returns up to limit committed events, newest first.
func (j *Journal) Recent(limit int) []types.RouterEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if limit <= 0 || limit > len(j.recent) {
		limit = len(j.recent)
	}
	out := make([]types.RouterEvent, 0, limit)
	for i := len(j.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.recent[i])
	}
	return out
}

// Checkpoint implements host.Checkpointer.
func (j *Journal) Checkpoint() func() {
	j.mu.RLock()
	pendingLen, seq := len(j.pending), j.sequence
	j.mu.RUnlock()
	return func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		j.pending = j.pending[:pendingLen]
		j.sequence = seq
	}
}

// Commit implements host.Committer: pending events become durable and are delivered to sinks.
// Sink failures are logged; the transaction has already committed.
func (j *Journal) Commit(ctx context.Context) {
	j.mu.Lock()
	committed := j.pending
	j.pending = nil
	j.recent = append(j.recent, committed...)
	if overflow := len(j.recent) - j.window; overflow > 0 {
		j.recent = append([]types.RouterEvent(nil), j.recent[overflow:]...)
	}
	sinks := append([]Sink(nil), j.sinks...)
	j.mu.Unlock()

	for _, event := range committed {
		for _, sink := range sinks {
			if err := sink.HandleEvent(ctx, event); err != nil {
				j.logger.Error().Err(err).
					Uint64("sequence", event.Sequence).
					Str("type", string(event.Type)).
					Msg("Failed to deliver event to sink")
			}
		}
	}
}

// LogSink writes every committed event to a component logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink logging at info level.
func NewLogSink() *LogSink {
	return &LogSink{logger: logger.GetForComponent("router_events")}
}

func (s *LogSink) HandleEvent(_ context.Context, event types.RouterEvent) error {
	e := s.logger.Info().
		Uint64("sequence", event.Sequence).
		Str("tx_id", event.TxID).
		Str("type", string(event.Type))
	if event.Asset != "" {
		e = e.Str("asset", event.Asset)
	}
	if !event.Amount.IsNil() {
		e = e.Str("amount", event.Amount.String())
	}
	if event.Type == types.EventReserveRatioUpdated {
		e = e.Uint64("oldRatioBps", event.OldRatioBps).Uint64("newRatioBps", event.NewRatioBps)
	}
	e.Msg("Router event")
	return nil
}

var (
	_ host.Checkpointer = (*Journal)(nil)
	_ host.Committer    = (*Journal)(nil)
)
