package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fill sets raw cells without gravity checks; win detection does not care.
func fill(cells map[Pos]Cell) Board {
	var b Board
	for p, v := range cells {
		b[p.Row][p.Col] = v
	}
	return b
}

func TestHasWinFrom(t *testing.T) {
	cases := []struct {
		name   string
		cells  map[Pos]Cell
		at     Pos
		player Cell // defaults to the owner of at
		want   bool
	}{
		{
			name:  "horizontal four, placed at the end",
			cells: map[Pos]Cell{{5, 0}: PlayerA, {5, 1}: PlayerA, {5, 2}: PlayerA, {5, 3}: PlayerA},
			at:    Pos{5, 3},
			want:  true,
		},
		{
			name:  "horizontal four, placed in the middle",
			cells: map[Pos]Cell{{5, 2}: PlayerA, {5, 3}: PlayerA, {5, 4}: PlayerA, {5, 5}: PlayerA},
			at:    Pos{5, 3},
			want:  true,
		},
		{
			name:  "vertical four",
			cells: map[Pos]Cell{{5, 6}: PlayerB, {4, 6}: PlayerB, {3, 6}: PlayerB, {2, 6}: PlayerB},
			at:    Pos{2, 6},
			want:  true,
		},
		{
			name:  "diagonal down-right",
			cells: map[Pos]Cell{{2, 0}: PlayerA, {3, 1}: PlayerA, {4, 2}: PlayerA, {5, 3}: PlayerA},
			at:    Pos{3, 1},
			want:  true,
		},
		{
			name:  "diagonal down-left",
			cells: map[Pos]Cell{{2, 6}: PlayerB, {3, 5}: PlayerB, {4, 4}: PlayerB, {5, 3}: PlayerB},
			at:    Pos{5, 3},
			want:  true,
		},
		{
			name:  "five in a row still wins",
			cells: map[Pos]Cell{{5, 0}: PlayerA, {5, 1}: PlayerA, {5, 2}: PlayerA, {5, 3}: PlayerA, {5, 4}: PlayerA},
			at:    Pos{5, 4},
			want:  true,
		},
		{
			name:  "three plus a gap",
			cells: map[Pos]Cell{{5, 0}: PlayerA, {5, 1}: PlayerA, {5, 2}: PlayerA, {5, 4}: PlayerA},
			at:    Pos{5, 4},
			want:  false,
		},
		{
			name:  "three plus a gap, checked from the three",
			cells: map[Pos]Cell{{5, 0}: PlayerA, {5, 1}: PlayerA, {5, 2}: PlayerA, {5, 4}: PlayerA},
			at:    Pos{5, 2},
			want:  false,
		},
		{
			name:  "mixed players",
			cells: map[Pos]Cell{{5, 0}: PlayerA, {5, 1}: PlayerA, {5, 2}: PlayerB, {5, 3}: PlayerA},
			at:    Pos{5, 3},
			want:  false,
		},
		{
			name: "axes are not merged",
			cells: map[Pos]Cell{
				{5, 1}: PlayerA, {5, 2}: PlayerA, // horizontal pair
				{4, 4}: PlayerA, {3, 5}: PlayerA, // diagonal pair
				{5, 3}: PlayerA,
			},
			at:   Pos{5, 3},
			want: false,
		},
		{
			name:   "cell owned by the other player",
			cells:  map[Pos]Cell{{5, 0}: PlayerA, {5, 1}: PlayerA, {5, 2}: PlayerA, {5, 3}: PlayerA},
			at:     Pos{5, 3},
			player: PlayerB,
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := fill(tc.cells)
			player := tc.player
			if player == Empty {
				player = b.At(tc.at)
			}
			assert.Equal(t, tc.want, b.HasWinFrom(player, tc.at.Row, tc.at.Col))
		})
	}
}

func TestVerticalWinScenario(t *testing.T) {
	var b Board
	var last Placement
	for i := 0; i < 4; i++ {
		p, err := b.Drop(3, PlayerA)
		require.NoError(t, err)
		last = p
		if i < 3 {
			require.False(t, b.HasWinFrom(PlayerA, p.Row, p.Col))
			_, err = b.Drop(4, PlayerB)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, Placement{Row: 2, Col: 3, Player: PlayerA}, last)
	assert.True(t, b.HasWinFrom(PlayerA, 2, 3))
}

func TestDrawSequenceHasNoWinner(t *testing.T) {
	var b Board
	player := PlayerA
	for _, col := range drawSequence {
		p, err := b.Drop(col, player)
		require.NoError(t, err)
		require.False(t, b.HasWinFrom(player, p.Row, p.Col), "unexpected win at %+v", p)
		player = player.Other()
	}
	assert.True(t, b.IsFull())
	assert.Nil(t, b.FindWinningRun(PlayerA))
	assert.Nil(t, b.FindWinningRun(PlayerB))
}

func TestFindWinningRun(t *testing.T) {
	b := fill(map[Pos]Cell{{2, 6}: PlayerB, {3, 5}: PlayerB, {4, 4}: PlayerB, {5, 3}: PlayerB, {5, 0}: PlayerA})
	run := b.FindWinningRun(PlayerB)
	require.Len(t, run, 4)
	assert.Equal(t, []Pos{{2, 6}, {3, 5}, {4, 4}, {5, 3}}, run)
	assert.Nil(t, b.FindWinningRun(PlayerA))
	assert.Nil(t, b.FindWinningRun(Empty))
}

func TestFindWinningRunAgreesWithHasWinFrom(t *testing.T) {
	b := fill(map[Pos]Cell{{5, 1}: PlayerA, {5, 2}: PlayerA, {5, 3}: PlayerA, {5, 4}: PlayerA})
	run := b.FindWinningRun(PlayerA)
	require.NotNil(t, run)
	for _, p := range run {
		assert.True(t, b.HasWinFrom(PlayerA, p.Row, p.Col))
	}
}
