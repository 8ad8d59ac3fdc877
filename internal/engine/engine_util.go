package engine

import (
	"context"

	"github.com/DoyleJ11/connect4-sync/internal/board"
)

func NewState() State {
	return State{
		Phase: PhaseAwaiting,
		Turn:  FirstPlayer,
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Presenter is the animation/UI side. Present must not return for an
// EvtDiscPlaced until the falling-disc animation has finished.
type Presenter interface {
	Present(ctx context.Context, ev Event) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, ev Event) error

func (f PresenterFunc) Present(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard ignores every event.
var Discard Presenter = PresenterFunc(func(context.Context, Event) error { return nil })

// PlacedEvent builds the animation event for a placement.
func PlacedEvent(p board.Placement) Event { return placedEvent(p) }

// Outcome converts a terminal state into the event that announces it.
func Outcome(s State) (Event, bool) {
	switch s.Phase {
	case PhaseWon:
		return Event{Type: EvtGameWon, Player: s.Winner, Run: s.WinningRun}, true
	case PhaseDraw:
		return Event{Type: EvtGameDrawn}, true
	default:
		return Event{}, false
	}
}
