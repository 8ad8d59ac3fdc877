package engine

import "github.com/DoyleJ11/connect4-sync/internal/board"

// FirstPlayer opens every game, including after a restart.
const FirstPlayer = board.PlayerA

func nextTurn(current board.Cell) board.Cell {
	if current == board.PlayerA {
		return board.PlayerB
	}
	return board.PlayerA
}
