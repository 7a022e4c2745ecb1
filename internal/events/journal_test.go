package events

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldhook/internal/host"
	"github.com/elys-network/yieldhook/internal/types"
)

type recordingSink struct {
	events []types.RouterEvent
	err    error
}

func (s *recordingSink) HandleEvent(_ context.Context, ev types.RouterEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

func staked(amount int64) types.RouterEvent {
	return types.RouterEvent{Type: types.EventAssetStaked, Asset: "uusdc", Amount: sdkmath.NewInt(amount)}
}

func TestEmitStampsSequenceAndTime(t *testing.T) {
	j := NewJournal()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	j.Emit(context.Background(), staked(1))
	j.Emit(context.Background(), staked(2))

	pending := j.Pending()
	require.Len(t, pending, 2)
	require.Equal(t, uint64(1), pending[0].Sequence)
	require.Equal(t, uint64(2), pending[1].Sequence)
	require.Equal(t, fixed, pending[0].Timestamp)
	require.Empty(t, pending[0].TxID)
}

func TestCommitDeliversToSinksInOrder(t *testing.T) {
	sink := &recordingSink{}
	failing := &recordingSink{err: errors.New("down")}
	j := NewJournal(sink)
	j.AddSink(failing)
	ctx := context.Background()

	j.Emit(ctx, staked(1))
	j.Emit(ctx, staked(2))
	j.Commit(ctx)

	require.Empty(t, j.Pending())
	require.Len(t, sink.events, 2)
	require.Len(t, failing.events, 2)
	require.Equal(t, uint64(1), sink.events[0].Sequence)

	recent := j.Recent(10)
	require.Len(t, recent, 2)
	require.Equal(t, uint64(2), recent[0].Sequence)
	require.Len(t, j.Recent(1), 1)
}

func TestCheckpointDropsUncommittedEvents(t *testing.T) {
	j := NewJournal()
	ctx := context.Background()
	j.Emit(ctx, staked(1))

	revert := j.Checkpoint()
	j.Emit(ctx, staked(2))
	j.Emit(ctx, staked(3))
	revert()

	pending := j.Pending()
	require.Len(t, pending, 1)

	j.Emit(ctx, staked(4))
	require.Equal(t, uint64(2), j.Pending()[1].Sequence)
}

func TestRecentWindowIsBounded(t *testing.T) {
	j := NewJournal()
	j.window = 3
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		j.Emit(ctx, staked(i))
	}
	j.Commit(ctx)

	recent := j.Recent(0)
	require.Len(t, recent, 3)
	require.Equal(t, uint64(5), recent[0].Sequence)
	require.Equal(t, uint64(3), recent[2].Sequence)
}

func TestJournalInsideHostTransaction(t *testing.T) {
	sink := &recordingSink{}
	j := NewJournal(sink)
	h := host.New(j)
	ctx := context.Background()

	require.NoError(t, h.Atomic(ctx, "stake", func(ctx context.Context) error {
		j.Emit(ctx, staked(10))
		return nil
	}))
	require.Len(t, sink.events, 1)
	require.NotEmpty(t, sink.events[0].TxID)

	err := h.Atomic(ctx, "stake", func(ctx context.Context) error {
		j.Emit(ctx, staked(20))
		return errors.New("abort")
	})
	require.Error(t, err)
	require.Len(t, sink.events, 1)
	require.Empty(t, j.Pending())
}

func TestSetSequenceContinuesNumbering(t *testing.T) {
	j := NewJournal(NewLogSink())
	j.SetSequence(41)
	j.Emit(context.Background(), staked(1))
	require.Equal(t, uint64(42), j.Pending()[0].Sequence)
	j.Commit(context.Background())
}
