package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/connect4-sync/internal/board"
	"github.com/DoyleJ11/connect4-sync/internal/store"
)

func next(t *testing.T, sub store.Subscription) store.Change {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for change")
		return store.Change{}
	}
}

func TestCreateGetQuery(t *testing.T) {
	ctx := context.Background()
	s := New(zaptest.NewLogger(t))

	id, err := s.Create(ctx, store.NewRecord("ABC1234"))
	require.NoError(t, err)
	_, err = s.Create(ctx, store.NewRecord("ZZZ9999"))
	require.NoError(t, err)

	r, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ABC1234", r.ShortCode)
	assert.Equal(t, int64(1), r.Revision)

	hits, err := s.QueryByField(ctx, store.FieldShortCode, "ABC1234")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)

	hits, err = s.QueryByField(ctx, store.FieldStatus, string(store.StatusWaiting))
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	_, err = s.QueryByField(ctx, store.Field("board"), "x")
	assert.ErrorIs(t, err, store.ErrUnsupportedField)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	id, err := s.Create(ctx, store.NewRecord("ABC1234"))
	require.NoError(t, err)

	join := store.Patch{Status: store.Ref(store.StatusPlaying), If: store.Precondition{Status: store.StatusWaiting}}
	require.NoError(t, s.Update(ctx, id, join))
	// a second joiner loses the race
	assert.ErrorIs(t, s.Update(ctx, id, join), store.ErrConflict)

	r, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPlaying, r.Status)
	assert.Equal(t, int64(2), r.Revision)

	assert.ErrorIs(t, s.Update(ctx, "missing", join), store.ErrNotFound)
}

func TestSubscribeSeesCurrentStateThenChanges(t *testing.T) {
	ctx := context.Background()
	s := New(zaptest.NewLogger(t))
	id, err := s.Create(ctx, store.NewRecord("ABC1234"))
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx, id)
	require.NoError(t, err)
	defer sub.Close()

	first := next(t, sub)
	assert.Equal(t, store.StatusWaiting, first.Record.Status)

	for _, col := range []int{0, 1, 2} {
		var g board.Board
		_, err := g.Drop(col, board.PlayerA)
		require.NoError(t, err)
		require.NoError(t, s.Update(ctx, id, store.Patch{Board: g.Flatten()}))
	}
	for rev := int64(2); rev <= 4; rev++ {
		assert.Equal(t, rev, next(t, sub).Record.Revision)
	}

	require.NoError(t, s.Delete(ctx, id))
	assert.True(t, next(t, sub).Deleted)
	assert.ErrorIs(t, s.Delete(ctx, id), store.ErrNotFound)
}

func TestSubscribeToMissingRecord(t *testing.T) {
	s := New(nil)
	sub, err := s.Subscribe(context.Background(), "gone")
	require.NoError(t, err)
	defer sub.Close()
	assert.True(t, next(t, sub).Deleted)
}

func TestCloseUnsubscribes(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	id, err := s.Create(ctx, store.NewRecord("ABC1234"))
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Subscribers(id))

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, s.Subscribers(id))
	require.NoError(t, s.Update(ctx, id, store.Patch{Status: store.Ref(store.StatusPlaying)}))
}

func TestRecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	r := store.NewRecord("ABC1234")
	id, err := s.Create(ctx, r)
	require.NoError(t, err)

	r.Board[0] = board.PlayerB
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, board.Empty, got.Board[0])

	got.Board[1] = board.PlayerA
	again, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, board.Empty, again.Board[1])
}
