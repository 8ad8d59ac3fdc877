package board

import (
	"errors"
	"fmt"
)

const (
	Rows      = 6
	Cols      = 7
	WinLength = 4
)

var ErrColumnFull = errors.New("column is full")
var ErrInvalidColumn = errors.New("invalid column")
var ErrBadLength = errors.New("flat board has wrong length")
var ErrBadCell = errors.New("unknown cell value")
var ErrFloatingDisc = errors.New("disc above an empty cell")

// Cell is the content of one board slot. The non-empty values double as the
// player identities.
type Cell int

const (
	Empty   Cell = 0
	PlayerA Cell = 1
	PlayerB Cell = 2
)

func (c Cell) Valid() bool { return c == Empty || c == PlayerA || c == PlayerB }

func (c Cell) IsPlayer() bool { return c == PlayerA || c == PlayerB }

// Other returns the opponent of a player. Empty maps to Empty.
func (c Cell) Other() Cell {
	switch c {
	case PlayerA:
		return PlayerB
	case PlayerB:
		return PlayerA
	default:
		return Empty
	}
}

func (c Cell) String() string {
	switch c {
	case PlayerA:
		return "A"
	case PlayerB:
		return "B"
	default:
		return "."
	}
}

type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Placement is a resolved move: the cell a disc landed in and its owner.
type Placement struct {
	Row    int  `json:"row"`
	Col    int  `json:"col"`
	Player Cell `json:"player"`
}

func (p Placement) Pos() Pos { return Pos{Row: p.Row, Col: p.Col} }

// Index is the row-major offset of the placement in a flat board.
func (p Placement) Index() int { return p.Row*Cols + p.Col }

// Board is row 0 at the top, row Rows-1 at the bottom. It is a value type:
// assigning a Board copies it.
type Board [Rows][Cols]Cell

func InBounds(row, col int) bool {
	return row >= 0 && row < Rows && col >= 0 && col < Cols
}

// LowestOpenRow returns the row a disc dropped into col would land in.
func (b Board) LowestOpenRow(col int) (int, bool) {
	if col < 0 || col >= Cols {
		return -1, false
	}
	for r := Rows - 1; r >= 0; r-- {
		if b[r][col] == Empty {
			return r, true
		}
	}
	return -1, false
}

// Place sets a single cell. The target must be the lowest open row of its
// column; anything else breaks the gravity invariant and panics.
func (b *Board) Place(row, col int, player Cell) {
	if !InBounds(row, col) {
		panic(fmt.Sprintf("board: place out of bounds (%d,%d)", row, col))
	}
	if !player.IsPlayer() {
		panic(fmt.Sprintf("board: place with non-player cell %d", player))
	}
	if open, ok := b.LowestOpenRow(col); !ok || open != row {
		panic(fmt.Sprintf("board: place at (%d,%d) violates gravity", row, col))
	}
	b[row][col] = player
}

// Drop resolves a column to its landing row and places the disc there.
func (b *Board) Drop(col int, player Cell) (Placement, error) {
	if col < 0 || col >= Cols {
		return Placement{}, ErrInvalidColumn
	}
	row, ok := b.LowestOpenRow(col)
	if !ok {
		return Placement{}, ErrColumnFull
	}
	b.Place(row, col, player)
	return Placement{Row: row, Col: col, Player: player}, nil
}

func (b Board) At(p Pos) Cell { return b[p.Row][p.Col] }

func (b Board) IsFull() bool {
	for c := 0; c < Cols; c++ {
		if b[0][c] == Empty {
			return false
		}
	}
	return true
}

func (b Board) IsEmpty() bool { return b == Board{} }

func (b Board) Count(player Cell) int {
	n := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if b[r][c] == player {
				n++
			}
		}
	}
	return n
}

// Flatten returns the board in row-major order.
func (b Board) Flatten() []Cell {
	out := make([]Cell, 0, Rows*Cols)
	for r := 0; r < Rows; r++ {
		out = append(out, b[r][:]...)
	}
	return out
}

func Unflatten(flat []Cell) (Board, error) {
	var b Board
	if len(flat) != Rows*Cols {
		return b, fmt.Errorf("%w: got %d, want %d", ErrBadLength, len(flat), Rows*Cols)
	}
	for i, v := range flat {
		if !v.Valid() {
			return Board{}, fmt.Errorf("%w: %d at index %d", ErrBadCell, v, i)
		}
		b[i/Cols][i%Cols] = v
	}
	return b, nil
}

// Validate checks the gravity invariant: no disc sits above an empty cell.
func (b Board) Validate() error {
	for c := 0; c < Cols; c++ {
		for r := Rows - 1; r > 0; r-- {
			if b[r][c] == Empty && b[r-1][c] != Empty {
				return fmt.Errorf("%w: column %d row %d", ErrFloatingDisc, c, r-1)
			}
		}
	}
	return nil
}

func (b Board) String() string {
	out := make([]byte, 0, Rows*(Cols+1))
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			out = append(out, b[r][c].String()...)
		}
		out = append(out, '\n')
	}
	return string(out)
}
