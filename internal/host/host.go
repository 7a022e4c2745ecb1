/*

This file contains the host execution environment: every router operation and every pool
operation runs inside Atomic, which serialises callers and gives all-or-nothing semantics
across the token ledger, the lending market, the router registry and the event journal.

*/

package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/yieldhook/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrNilTransaction = errors.New("transaction function is nil")

// Checkpointer is state that can be rolled back to the moment Checkpoint was called.
type Checkpointer interface {
	Checkpoint() (revert func())
}

// Committer is notified after a transaction committed.
type Committer interface {
	Commit(ctx context.Context)
}

type txKey struct{}

type txInfo struct {
	host *Host
	id   string
}

// Host runs transactions against a fixed set of participants.
type Host struct {
	mu           sync.RWMutex
	participants []Checkpointer
	logger       zerolog.Logger
}

// New creates a host over the given participants. Reverts run in reverse registration order.
func New(participants ...Checkpointer) *Host {
	return &Host{
		participants: participants,
		logger:       logger.GetForComponent("host"),
	}
}

// Register adds a participant. It must not be called while a transaction is running.
func (h *Host) Register(p Checkpointer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.participants = append(h.participants, p)
}

// TxID returns the identifier of the transaction carried by ctx, or "" outside a transaction.
func TxID(ctx context.Context) string {
	if info, ok := ctx.Value(txKey{}).(txInfo); ok {
		return info.id
	}
	return ""
}

// View runs fn with shared access to every participant. Views run concurrently with each other but
// never with a transaction. A call made from inside a running transaction of the same host runs fn
// directly.
func (h *Host) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilTransaction
	}
	if info, ok := ctx.Value(txKey{}).(txInfo); ok && info.host == h {
		return fn(ctx)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(ctx)
}

// Atomic executes fn as one transaction. If fn returns an error or panics, every participant is
// reverted and the error is returned (a panic is re-raised after the revert). A call made from
// inside a running transaction of the same host joins it.
func (h *Host) Atomic(ctx context.Context, label string, fn func(ctx context.Context) error) (err error) {
	if fn == nil {
		return ErrNilTransaction
	}
	if info, ok := ctx.Value(txKey{}).(txInfo); ok && info.host == h {
		return fn(ctx)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	txID := uuid.New().String()
	txCtx := context.WithValue(ctx, txKey{}, txInfo{host: h, id: txID})
	txLogger := h.logger.With().Str("tx_id", txID).Str("label", label).Logger()
	start := time.Now()

	reverts := make([]func(), 0, len(h.participants))
	for _, p := range h.participants {
		reverts = append(reverts, p.Checkpoint())
	}
	rollback := func() {
		for i := len(reverts) - 1; i >= 0; i-- {
			reverts[i]()
		}
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			txLogger.Error().Interface("panic", p).Msg("Transaction panicked, state reverted")
			panic(p) // Re-panic after rollback
		}
	}()

	if err = fn(txCtx); err != nil {
		rollback()
		txLogger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Transaction aborted, state reverted")
		return fmt.Errorf("%s: %w", label, err)
	}

	for _, p := range h.participants {
		if c, ok := p.(Committer); ok {
			c.Commit(txCtx)
		}
	}
	txLogger.Debug().Dur("duration", time.Since(start)).Msg("Transaction committed")
	return nil
}
