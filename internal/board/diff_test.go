package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstDiffSingleCell(t *testing.T) {
	var prev Board
	_, _ = prev.Drop(2, PlayerA)
	next := prev
	p, err := next.Drop(5, PlayerB)
	require.NoError(t, err)

	got, ok := FirstDiff(prev.Flatten(), next.Flatten())
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, p.Index(), got.Row*Cols+got.Col)
}

func TestFirstDiffEqualBoards(t *testing.T) {
	var b Board
	_, _ = b.Drop(0, PlayerA)
	_, ok := FirstDiff(b.Flatten(), b.Flatten())
	assert.False(t, ok)
	assert.Empty(t, Diff(b, b))
}

func TestSinglePlacement(t *testing.T) {
	var prev Board
	_, _ = prev.Drop(3, PlayerA)
	next := prev
	want, _ := next.Drop(3, PlayerB)

	got, ok := SinglePlacement(prev, next)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// two discs at once is not a single placement
	two := next
	_, _ = two.Drop(0, PlayerA)
	_, ok = SinglePlacement(prev, two)
	assert.False(t, ok)

	// a reset removes discs; nothing was placed
	_, ok = SinglePlacement(next, Board{})
	assert.False(t, ok)
}

func TestDiffReportsRemovals(t *testing.T) {
	var prev Board
	_, _ = prev.Drop(1, PlayerA)
	_, _ = prev.Drop(1, PlayerB)
	changes := Diff(prev, Board{})
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.Equal(t, Empty, c.Player)
	}
}
