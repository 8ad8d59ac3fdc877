package board

// axes are the four line directions. Each is walked both ways from a cell.
var axes = [4]Pos{
	{Row: 0, Col: 1},  // horizontal
	{Row: 1, Col: 0},  // vertical
	{Row: 1, Col: 1},  // diagonal ↘
	{Row: 1, Col: -1}, // diagonal ↙
}

// HasWinFrom reports whether the disc at (row, col) completes a line of at
// least WinLength for player. Each axis is counted on its own.
func (b Board) HasWinFrom(player Cell, row, col int) bool {
	if !player.IsPlayer() || !InBounds(row, col) || b[row][col] != player {
		return false
	}
	for _, d := range axes {
		n := 1 + b.run(player, row, col, d.Row, d.Col) + b.run(player, row, col, -d.Row, -d.Col)
		if n >= WinLength {
			return true
		}
	}
	return false
}

// run counts consecutive player cells starting one step away from (row, col).
func (b Board) run(player Cell, row, col, dr, dc int) int {
	n := 0
	r, c := row+dr, col+dc
	for InBounds(r, c) && b[r][c] == player {
		n++
		r += dr
		c += dc
	}
	return n
}

// FindWinningRun scans the whole board for a line of player discs and returns
// its cells in walk order, or nil. Used to rebuild the highlight when the win
// was not observed as a local placement.
func (b Board) FindWinningRun(player Cell) []Pos {
	if !player.IsPlayer() {
		return nil
	}
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if b[r][c] != player {
				continue
			}
			for _, d := range axes {
				cells := []Pos{{Row: r, Col: c}}
				rr, cc := r+d.Row, c+d.Col
				for InBounds(rr, cc) && b[rr][cc] == player {
					cells = append(cells, Pos{Row: rr, Col: cc})
					rr += d.Row
					cc += d.Col
				}
				if len(cells) >= WinLength {
					return cells
				}
			}
		}
	}
	return nil
}
