package flow

import (
	"context"

	"github.com/DoyleJ11/connect4-sync/internal/engine"
)

// presenterFor returns the presenter handed to the authority created under
// gen. It keeps screen and status in step with the game before passing each
// event on.
func (c *Controller) presenterFor(gen int) engine.Presenter {
	return engine.PresenterFunc(func(ctx context.Context, ev engine.Event) error {
		if !c.observe(gen, ev) {
			return nil
		}
		return c.out.Present(ctx, ev)
	})
}

// observe applies ev to the controller and reports whether it should reach
// the player.
func (c *Controller) observe(gen int, ev engine.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}

	switch ev.Type {
	case engine.EvtOpponentJoined:
		c.screen = ScreenOnlineGame
		c.status = turnMessage(engine.FirstPlayer)
	case engine.EvtOpponentLeft:
		c.status = MsgOpponentLeft
		if !ev.Player.IsPlayer() {
			c.status = MsgOpponentGone
		}
	case engine.EvtRoomClosed:
		if auth := c.detach(); auth != nil {
			// the session loop is the caller; leave from elsewhere
			go c.abandon(auth)
		}
		c.screen = ScreenMultiplayer
		c.status = MsgGameCanceled
	case engine.EvtTurnAdvanced:
		c.status = turnMessage(ev.Player)
	case engine.EvtBoardReset:
		c.status = turnMessage(engine.FirstPlayer)
	case engine.EvtGameWon:
		c.status = winMessage(ev.Player)
	case engine.EvtGameDrawn:
		c.status = MsgDraw
	}
	return true
}
