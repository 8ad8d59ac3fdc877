package engine

import (
	"errors"
	"testing"

	"github.com/DoyleJ11/connect4-sync/internal/board"
)

// drawColumns fills the board with alternating drops and never lines up four.
var drawColumns = []int{
	2,
	0, 0, 0, 0, 0, 0,
	1, 1, 1, 1, 1, 1,
	4, 4, 4, 4, 4, 4,
	5, 5, 5, 5, 5, 5,
	2, 2, 2, 2, 2,
	3, 3, 3, 3, 3, 3,
	6, 6, 6, 6, 6, 6,
}

func play(t *testing.T, s State, cols ...int) (State, []Event) {
	t.Helper()
	var all []Event
	for _, col := range cols {
		events, next, err := Apply(s, Command{Type: CmdDrop, Player: s.Turn, Column: col})
		if err != nil {
			t.Fatalf("drop in column %d: %v", col, err)
		}
		all = append(all, events...)
		s = next
	}
	return s, all
}

func TestDropIsRejected(t *testing.T) {
	fullColumn, _ := play(t, NewState(), 0, 0, 0, 0, 0, 0)

	cases := []struct {
		name    string
		setup   State
		cmd     Command
		wantErr error
	}{
		{
			name:    "wrong player",
			setup:   NewState(),
			cmd:     Command{Type: CmdDrop, Player: board.PlayerB, Column: 3},
			wantErr: ErrWrongTurn,
		},
		{
			name:    "column full",
			setup:   fullColumn,
			cmd:     Command{Type: CmdDrop, Player: fullColumn.Turn, Column: 0},
			wantErr: ErrColumnFull,
		},
		{
			name:    "column out of range",
			setup:   NewState(),
			cmd:     Command{Type: CmdDrop, Player: board.PlayerA, Column: 7},
			wantErr: ErrInvalidColumn,
		},
		{
			name:    "game already won",
			setup:   State{Phase: PhaseWon, Turn: board.PlayerA, Winner: board.PlayerA},
			cmd:     Command{Type: CmdDrop, Player: board.PlayerA, Column: 1},
			wantErr: ErrGameNotActive,
		},
		{
			name:    "unknown command",
			setup:   NewState(),
			cmd:     Command{Type: "Undo"},
			wantErr: ErrUnsupportedCommand,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, next, err := Apply(tc.setup, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if events != nil {
				t.Fatalf("rejected command emitted events: %+v", events)
			}
			if next.Board != tc.setup.Board || next.Turn != tc.setup.Turn {
				t.Fatalf("rejected command changed state")
			}
		})
	}
}

func TestInvalidMovesShareParent(t *testing.T) {
	for _, err := range []error{ErrWrongTurn, ErrColumnFull, ErrInvalidColumn, ErrGameNotActive, ErrMoveInFlight} {
		if !errors.Is(err, ErrInvalidMove) {
			t.Fatalf("%v is not an ErrInvalidMove", err)
		}
	}
	if !errors.Is(ErrColumnFull, board.ErrColumnFull) {
		t.Fatalf("ErrColumnFull should wrap board.ErrColumnFull")
	}
}

func TestDropAlternatesTurns(t *testing.T) {
	s, events := play(t, NewState(), 3)
	if s.Turn != board.PlayerB {
		t.Fatalf("want PlayerB to move, got %v", s.Turn)
	}
	if !ContainsEvent(events, EvtDiscPlaced) || !ContainsEvent(events, EvtTurnAdvanced) {
		t.Fatalf("missing events: %+v", events)
	}
	if events[0].Row != board.Rows-1 || events[0].Col != 3 {
		t.Fatalf("disc landed at (%d,%d)", events[0].Row, events[0].Col)
	}
}

func TestVerticalWin(t *testing.T) {
	s, events := play(t, NewState(), 3, 4, 3, 4, 3, 4, 3)

	if s.Phase != PhaseWon || s.Winner != board.PlayerA {
		t.Fatalf("want PlayerA win, got phase=%v winner=%v", s.Phase, s.Winner)
	}
	if !s.Board.HasWinFrom(board.PlayerA, 2, 3) {
		t.Fatalf("expected a win from (2,3)")
	}
	if s.Turn != board.PlayerA {
		t.Fatalf("turn should stay with the winner, got %v", s.Turn)
	}
	if !ContainsEvent(events, EvtGameWon) {
		t.Fatalf("expected EvtGameWon")
	}
	if len(s.WinningRun) < 4 {
		t.Fatalf("winning run not recorded: %+v", s.WinningRun)
	}
}

func TestDrawAfterFullBoard(t *testing.T) {
	s, events := play(t, NewState(), drawColumns...)

	if s.Phase != PhaseDraw {
		t.Fatalf("want draw, got %v", s.Phase)
	}
	if !s.Board.IsFull() || s.Winner != board.Empty {
		t.Fatalf("draw must be a full board with no winner")
	}
	if s.Moves != board.Rows*board.Cols {
		t.Fatalf("want 42 moves, got %d", s.Moves)
	}
	if !ContainsEvent(events, EvtGameDrawn) || ContainsEvent(events, EvtGameWon) {
		t.Fatalf("unexpected outcome events")
	}
}

func TestWinningLastDiscIsNotADraw(t *testing.T) {
	// Build a board with one free cell at the top of column 6 whose filling
	// completes a horizontal line for PlayerA on row 0.
	s := NewState()
	rows := [board.Rows][board.Cols]board.Cell{}
	a, b := board.PlayerA, board.PlayerB
	rows[0] = [board.Cols]board.Cell{b, b, b, a, a, a, board.Empty}
	rows[1] = [board.Cols]board.Cell{a, a, b, a, b, b, a}
	rows[2] = [board.Cols]board.Cell{b, b, a, b, a, a, b}
	rows[3] = [board.Cols]board.Cell{a, a, b, a, b, b, a}
	rows[4] = [board.Cols]board.Cell{b, b, a, b, a, a, b}
	rows[5] = [board.Cols]board.Cell{a, a, b, a, b, b, a}
	s.Board = board.Board(rows)
	s.Turn = board.PlayerA

	events, next, err := Apply(s, Command{Type: CmdDrop, Player: board.PlayerA, Column: 6})
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if !next.Board.IsFull() {
		t.Fatalf("board should be full")
	}
	if next.Phase != PhaseWon || ContainsEvent(events, EvtGameDrawn) {
		t.Fatalf("a winning final disc must be a win, got %v", next.Phase)
	}
}

func TestRestartResetsEverything(t *testing.T) {
	s, _ := play(t, NewState(), 3, 4, 3, 4, 3, 4, 3)
	events, next, err := Apply(s, Command{Type: CmdRestart})
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if !ContainsEvent(events, EvtBoardReset) {
		t.Fatalf("expected EvtBoardReset")
	}
	if !next.Board.IsEmpty() || next.Turn != FirstPlayer || next.Phase != PhaseAwaiting || next.Winner != board.Empty {
		t.Fatalf("restart left state behind: %+v", next)
	}
}

func TestReduceReplaysEvents(t *testing.T) {
	want, events := play(t, NewState(), 3, 4, 3, 4, 3, 4, 3)
	got := Reduce(events)
	if got.Board != want.Board || got.Phase != want.Phase || got.Winner != want.Winner || got.Moves != want.Moves {
		t.Fatalf("replay mismatch:\n got %+v\nwant %+v", got, want)
	}
}
