package board

// Diff lists every cell that differs between two boards, in row-major order.
// Each entry carries the owner of the cell in next (Empty when a disc was
// removed, as happens on a reset).
func Diff(prev, next Board) []Placement {
	var out []Placement
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if prev[r][c] != next[r][c] {
				out = append(out, Placement{Row: r, Col: c, Player: next[r][c]})
			}
		}
	}
	return out
}

// FirstDiff returns the first row-major index where the flat boards differ,
// decoded into a placement. ok is false when the boards are equal.
func FirstDiff(prev, next []Cell) (Placement, bool) {
	n := min(len(prev), len(next))
	for i := 0; i < n; i++ {
		if prev[i] != next[i] {
			return Placement{Row: i / Cols, Col: i % Cols, Player: next[i]}, true
		}
	}
	return Placement{}, false
}

// SinglePlacement reports the one disc that turns prev into next. It fails
// when zero or several cells changed, or when the change is not a legal drop
// onto prev.
func SinglePlacement(prev, next Board) (Placement, bool) {
	changes := Diff(prev, next)
	if len(changes) != 1 {
		return Placement{}, false
	}
	p := changes[0]
	if !p.Player.IsPlayer() {
		return Placement{}, false
	}
	if row, ok := prev.LowestOpenRow(p.Col); !ok || row != p.Row {
		return Placement{}, false
	}
	return p, true
}
