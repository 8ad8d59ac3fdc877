package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/connect4-sync/internal/board"
	"go.uber.org/zap/zaptest"
)

// gatedPresenter blocks every EvtDiscPlaced until release is closed, the
// way a falling-disc animation would.
type gatedPresenter struct {
	mu      sync.Mutex
	events  []Event
	started chan struct{}
	release chan struct{}
}

func newGatedPresenter() *gatedPresenter {
	return &gatedPresenter{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (p *gatedPresenter) Present(ctx context.Context, ev Event) error {
	if ev.Type == EvtDiscPlaced {
		p.started <- struct{}{}
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *gatedPresenter) seen() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func waitStarted(t *testing.T, p *gatedPresenter) {
	t.Helper()
	select {
	case <-p.started:
	case <-time.After(time.Second):
		t.Fatalf("animation never started")
	}
}

func TestLocalCommitsAfterAnimation(t *testing.T) {
	p := newGatedPresenter()
	l := NewLocal(p, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- l.Drop(context.Background(), 3) }()
	waitStarted(t, p)

	if !l.State().Board.IsEmpty() {
		t.Fatalf("board changed before the animation finished")
	}

	close(p.release)
	if err := <-done; err != nil {
		t.Fatalf("drop: %v", err)
	}

	s := l.State()
	if s.Board.At(board.Pos{Row: board.Rows - 1, Col: 3}) != board.PlayerA || s.Turn != board.PlayerB {
		t.Fatalf("unexpected state after drop: %+v", s)
	}
	if !ContainsEvent(p.seen(), EvtTurnAdvanced) {
		t.Fatalf("turn change not presented: %+v", p.seen())
	}
}

func TestLocalDropsInputWhileMoveInFlight(t *testing.T) {
	p := newGatedPresenter()
	l := NewLocal(p, nil)

	done := make(chan error, 1)
	go func() { done <- l.Drop(context.Background(), 0) }()
	waitStarted(t, p)

	if err := l.Drop(context.Background(), 1); !errors.Is(err, ErrMoveInFlight) {
		t.Fatalf("second drop: want ErrMoveInFlight, got %v", err)
	}
	if err := l.Restart(context.Background()); !errors.Is(err, ErrMoveInFlight) {
		t.Fatalf("restart while animating: want ErrMoveInFlight, got %v", err)
	}

	close(p.release)
	if err := <-done; err != nil {
		t.Fatalf("drop: %v", err)
	}
	if got := l.State().Moves; got != 1 {
		t.Fatalf("want exactly one move, got %d", got)
	}
}

func TestLocalCancelledAnimationLeavesStateAlone(t *testing.T) {
	p := newGatedPresenter()
	l := NewLocal(p, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Drop(ctx, 5) }()
	waitStarted(t, p)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if s := l.State(); !s.Board.IsEmpty() || s.Turn != FirstPlayer {
		t.Fatalf("cancelled drop mutated state: %+v", s)
	}

	// the flag is released, so the next move goes through
	close(p.release)
	if err := l.Drop(context.Background(), 5); err != nil {
		t.Fatalf("drop after cancel: %v", err)
	}
}

func TestLocalRestartAfterWin(t *testing.T) {
	var events []Event
	l := NewLocal(PresenterFunc(func(_ context.Context, ev Event) error {
		events = append(events, ev)
		return nil
	}), nil)

	for _, col := range []int{3, 4, 3, 4, 3, 4, 3} {
		if err := l.Drop(context.Background(), col); err != nil {
			t.Fatalf("drop %d: %v", col, err)
		}
	}
	if l.State().Phase != PhaseWon {
		t.Fatalf("want a win, got %v", l.State().Phase)
	}
	if err := l.Drop(context.Background(), 0); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("drop after win: want ErrGameNotActive, got %v", err)
	}

	if err := l.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s := l.State()
	if !s.Board.IsEmpty() || s.Phase != PhaseAwaiting || s.Turn != FirstPlayer {
		t.Fatalf("restart did not reset: %+v", s)
	}
	if events[len(events)-1].Type != EvtBoardReset {
		t.Fatalf("last event should be the reset, got %v", events[len(events)-1].Type)
	}
}
