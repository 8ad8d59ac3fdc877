package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Local is the turn authority for two players sharing one device.
type Local struct {
	mu        sync.Mutex
	state     State
	inFlight  atomic.Bool
	presenter Presenter
	log       *zap.Logger
}

func NewLocal(p Presenter, log *zap.Logger) *Local {
	if p == nil {
		p = Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{state: NewState(), presenter: p, log: log}
}

func (l *Local) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Drop plays the current player's disc into col. The disc animation runs
// before the result is committed; if ctx ends during it the move is dropped.
func (l *Local) Drop(ctx context.Context, col int) error {
	if !l.inFlight.CompareAndSwap(false, true) {
		return ErrMoveInFlight
	}
	defer l.inFlight.Store(false)

	l.mu.Lock()
	cur := l.state
	l.mu.Unlock()

	events, next, err := Apply(cur, Command{Type: CmdDrop, Player: cur.Turn, Column: col})
	if err != nil {
		return err
	}

	// events[0] is always the placement
	if err := l.presenter.Present(ctx, events[0]); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.state = next
	l.mu.Unlock()

	l.log.Debug("disc placed",
		zap.Int("row", next.LastMove.Row),
		zap.Int("col", next.LastMove.Col),
		zap.Stringer("player", next.LastMove.Player),
		zap.String("phase", string(next.Phase)))

	return l.present(ctx, events[1:])
}

// Restart clears the board. Called mid-game it aborts the game in progress.
func (l *Local) Restart(ctx context.Context) error {
	if !l.inFlight.CompareAndSwap(false, true) {
		return ErrMoveInFlight
	}
	defer l.inFlight.Store(false)

	l.mu.Lock()
	events, next, err := Apply(l.state, Command{Type: CmdRestart})
	if err == nil {
		l.state = next
	}
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.present(ctx, events)
}

// Leave has nothing to release for a local game.
func (l *Local) Leave(context.Context) error { return nil }

func (l *Local) present(ctx context.Context, events []Event) error {
	for _, ev := range events {
		if err := l.presenter.Present(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
