package session

import (
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/connect4-sync/internal/board"
	"github.com/DoyleJ11/connect4-sync/internal/engine"
	"github.com/DoyleJ11/connect4-sync/internal/store"
)

// reconcile folds one observed change into local state. Steps run in a
// fixed order: departure, opponent arrival, restart, then board diff and
// adoption.
func (s *Session) reconcile(c store.Change) {
	if c.Deleted {
		s.departed()
		return
	}
	rec := c.Record
	log := s.log.With(zap.Int64("revision", rec.Revision))
	if rec.Revision <= s.last.Revision {
		// already covered by a newer record or our own write
		log.Debug("skipping stale record")
		return
	}

	g, err := rec.Grid()
	if err == nil {
		err = g.Validate()
	}
	if err != nil {
		log.Warn("ignoring malformed record", zap.Error(err))
		return
	}

	if s.Waiting() {
		if rec.Status == store.StatusWaiting {
			s.last = rec
			return
		}
		s.opponentArrived(log)
		return
	}

	if rec.RestartToken != s.token {
		s.restarted(rec, g, log)
		return
	}

	prev, err := s.last.Grid()
	if err != nil {
		prev = board.Board{}
	}
	placed := false
	if p, ok := observedMove(prev, g, rec.LastMove); ok {
		s.animate(engine.PlacedEvent(p))
		placed = true
	} else if len(board.Diff(prev, g)) > 0 {
		gc := g
		s.present(engine.Event{Type: engine.EvtBoardSynced, Board: &gc})
	}

	next := stateFrom(rec, g)
	s.setState(next)
	s.last = rec

	switch {
	case rec.Status == store.StatusFinished && !s.finishShown:
		s.finishShown = true
		if ev, ok := engine.Outcome(next); ok {
			log.Info("game over", zap.Stringer("winner", next.Winner))
			s.present(ev)
		}
	case rec.Status == store.StatusPlaying && placed:
		s.present(engine.Event{Type: engine.EvtTurnAdvanced, Player: next.Turn})
	}
}

// observedMove finds the single placement between two boards. The record's
// explicit last move is trusted when replaying it onto prev yields next;
// otherwise the boards are diffed.
func observedMove(prev, next board.Board, hint *board.Placement) (board.Placement, bool) {
	if hint != nil && hint.Player.IsPlayer() && board.InBounds(hint.Row, hint.Col) {
		if row, ok := prev.LowestOpenRow(hint.Col); ok && row == hint.Row {
			probe := prev
			probe.Place(hint.Row, hint.Col, hint.Player)
			if probe == next {
				return *hint, true
			}
		}
	}
	return board.SinglePlacement(prev, next)
}

// animate presents a remote placement while holding the in-flight flag so
// local input is dropped until the disc lands.
func (s *Session) animate(ev engine.Event) {
	if s.inFlight.CompareAndSwap(false, true) {
		defer s.inFlight.Store(false)
	}
	s.present(ev)
}

func (s *Session) departed() {
	if s.leaving.Load() || s.opponentGone {
		return
	}
	s.opponentGone = true
	s.closeSub()

	if s.Waiting() {
		s.log.Info("room closed before an opponent joined")
		s.present(engine.Event{Type: engine.EvtRoomClosed})
		return
	}

	s.mu.Lock()
	finished := s.state.Phase.Terminal()
	if !finished {
		// whoever stays wins
		s.state.Phase = engine.PhaseWon
		s.state.Winner = s.role
		s.state.WinningRun = nil
	}
	s.mu.Unlock()
	s.finishShown = true

	if finished {
		s.log.Info("opponent left after the game ended")
		s.present(engine.Event{Type: engine.EvtOpponentLeft})
		return
	}
	s.log.Info("opponent left")
	s.present(engine.Event{Type: engine.EvtOpponentLeft, Player: s.role})
}

func (s *Session) opponentArrived(log *zap.Logger) {
	s.closeSub()
	sub, err := s.st.Subscribe(s.ctx, s.roomID)
	if err != nil {
		if !errors.Is(err, s.ctx.Err()) {
			log.Error("game subscription failed", zap.Error(err))
			s.opponentGone = true
			s.present(engine.Event{Type: engine.EvtRoomClosed})
		}
		return
	}
	s.sub = sub

	s.mu.Lock()
	s.waiting = false
	s.mu.Unlock()

	log.Info("opponent joined")
	s.present(engine.Event{Type: engine.EvtOpponentJoined, Player: s.role.Other()})
}

func (s *Session) restarted(rec store.Record, g board.Board, log *zap.Logger) {
	s.token = rec.RestartToken
	s.finishShown = false
	next := stateFrom(rec, g)
	s.setState(next)
	s.last = rec

	log.Info("board restarted")
	s.present(engine.Event{Type: engine.EvtBoardReset, Player: engine.FirstPlayer})
	if !g.IsEmpty() {
		// the opponent already moved on the new board
		gc := g
		s.present(engine.Event{Type: engine.EvtBoardSynced, Board: &gc})
	}
	if ev, ok := engine.Outcome(next); ok {
		s.finishShown = true
		s.present(ev)
	}
}

func stateFrom(rec store.Record, g board.Board) engine.State {
	st := engine.State{
		Board:    g,
		Phase:    engine.PhaseAwaiting,
		Turn:     rec.CurrentPlayer,
		Winner:   rec.Winner,
		LastMove: rec.LastMove,
		Moves:    g.Count(board.PlayerA) + g.Count(board.PlayerB),
	}
	if !st.Turn.IsPlayer() {
		st.Turn = engine.FirstPlayer
	}
	if rec.Status == store.StatusFinished {
		if rec.Winner.IsPlayer() {
			st.Phase = engine.PhaseWon
			st.WinningRun = g.FindWinningRun(rec.Winner)
		} else {
			st.Phase = engine.PhaseDraw
		}
	}
	return st
}
