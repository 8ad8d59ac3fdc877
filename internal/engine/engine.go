package engine

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/connect4-sync/internal/board"
)

// ErrInvalidMove is the parent of every rejection that leaves state
// untouched and is safe to retry.
var ErrInvalidMove = errors.New("invalid move")

var ErrWrongTurn = fmt.Errorf("%w: not your turn", ErrInvalidMove)
var ErrColumnFull = fmt.Errorf("%w: %w", ErrInvalidMove, board.ErrColumnFull)
var ErrInvalidColumn = fmt.Errorf("%w: %w", ErrInvalidMove, board.ErrInvalidColumn)
var ErrGameNotActive = fmt.Errorf("%w: game not active", ErrInvalidMove)
var ErrMoveInFlight = fmt.Errorf("%w: another move is resolving", ErrInvalidMove)
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseAwaiting Phase = "awaiting"
	PhaseWon      Phase = "won"
	PhaseDraw     Phase = "draw"
)

func (p Phase) Terminal() bool { return p == PhaseWon || p == PhaseDraw }

type State struct {
	Board      board.Board      `json:"board"`
	Phase      Phase            `json:"phase"`
	Turn       board.Cell       `json:"turn"`
	Winner     board.Cell       `json:"winner"`
	WinningRun []board.Pos      `json:"winningRun,omitempty"`
	LastMove   *board.Placement `json:"lastMove,omitempty"`
	Moves      int              `json:"moves"`
}

type CommandType string

const (
	CmdDrop    CommandType = "Drop"
	CmdRestart CommandType = "Restart"
)

/*
	CmdDrop    -> EvtDiscPlaced -> EvtTurnAdvanced
	           -> EvtDiscPlaced -> EvtGameWon
	           -> EvtDiscPlaced -> EvtGameDrawn
	CmdRestart -> EvtBoardReset
*/

type Command struct {
	Type   CommandType
	Player board.Cell
	Column int
}

type EventType string

const (
	EvtDiscPlaced   EventType = "DiscPlaced"
	EvtTurnAdvanced EventType = "TurnAdvanced"
	EvtGameWon      EventType = "GameWon"
	EvtGameDrawn    EventType = "GameDrawn"
	EvtBoardReset   EventType = "BoardReset"

	// Emitted by the remote session only.
	EvtBoardSynced    EventType = "BoardSynced"
	EvtMoveReverted   EventType = "MoveReverted"
	EvtOpponentJoined EventType = "OpponentJoined"
	EvtOpponentLeft   EventType = "OpponentLeft"
	EvtRoomClosed     EventType = "RoomClosed"
)

// Event is what the presentation layer sees. Only the fields relevant to
// the type are set. For EvtOpponentLeft, Player is the winner by forfeit,
// or Empty when the game had already ended and its outcome stands.
type Event struct {
	Type   EventType    `json:"type"`
	Player board.Cell   `json:"player,omitempty"`
	Row    int          `json:"row"`
	Col    int          `json:"col"`
	Run    []board.Pos  `json:"run,omitempty"`
	Board  *board.Board `json:"board,omitempty"`
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdDrop:
		if s.Phase.Terminal() {
			return nil, s, ErrGameNotActive
		}
		if cmd.Player != s.Turn {
			return nil, s, ErrWrongTurn
		}

		newState := s
		p, err := newState.Board.Drop(cmd.Column, cmd.Player)
		switch {
		case errors.Is(err, board.ErrInvalidColumn):
			return nil, s, ErrInvalidColumn
		case errors.Is(err, board.ErrColumnFull):
			return nil, s, ErrColumnFull
		case err != nil:
			return nil, s, err
		}
		newState.LastMove = &p
		newState.Moves++

		events := []Event{placedEvent(p)}

		// Win beats draw: a full board whose last disc wins is a win.
		if newState.Board.HasWinFrom(p.Player, p.Row, p.Col) {
			newState.Phase = PhaseWon
			newState.Winner = p.Player
			newState.WinningRun = newState.Board.FindWinningRun(p.Player)
			events = append(events, Event{Type: EvtGameWon, Player: p.Player, Run: newState.WinningRun})
			return events, newState, nil
		}
		if newState.Board.IsFull() {
			newState.Phase = PhaseDraw
			events = append(events, Event{Type: EvtGameDrawn})
			return events, newState, nil
		}

		newState.Turn = nextTurn(s.Turn)
		events = append(events, Event{Type: EvtTurnAdvanced, Player: newState.Turn})
		return events, newState, nil

	case CmdRestart:
		return []Event{{Type: EvtBoardReset, Player: FirstPlayer}}, NewState(), nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// Reduce replays an event log onto a fresh state.
func Reduce(events []Event) State {
	s := NewState()
	for _, event := range events {
		switch event.Type {
		case EvtDiscPlaced:
			p := board.Placement{Row: event.Row, Col: event.Col, Player: event.Player}
			s.Board.Place(p.Row, p.Col, p.Player)
			s.LastMove = &p
			s.Moves++
		case EvtTurnAdvanced:
			s.Turn = event.Player
		case EvtGameWon:
			s.Phase = PhaseWon
			s.Winner = event.Player
			s.WinningRun = event.Run
		case EvtGameDrawn:
			s.Phase = PhaseDraw
		case EvtBoardReset:
			s = NewState()
		}
	}
	return s
}

func placedEvent(p board.Placement) Event {
	return Event{Type: EvtDiscPlaced, Player: p.Player, Row: p.Row, Col: p.Col}
}
