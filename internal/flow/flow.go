// Package flow drives the screens a player moves through: start, local game,
// the multiplayer menu, code entry, the waiting room and the online game.
// One Controller serves one player.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/connect4-sync/internal/board"
	"github.com/DoyleJ11/connect4-sync/internal/engine"
	"github.com/DoyleJ11/connect4-sync/internal/session"
	"github.com/DoyleJ11/connect4-sync/internal/store"
)

var (
	ErrWrongScreen = errors.New("not available on this screen")
	ErrNoGame      = errors.New("no game in progress")
	ErrEmptyCode   = errors.New("empty game code")
)

type Screen string

const (
	ScreenStart       Screen = "start"
	ScreenLocalGame   Screen = "local"
	ScreenMultiplayer Screen = "multiplayer"
	ScreenJoinInput   Screen = "join"
	ScreenWaitingRoom Screen = "waiting"
	ScreenOnlineGame  Screen = "online"
)

const (
	MsgCreated      = "Game created! Waiting for opponent..."
	MsgCreateFailed = "Error creating game. Try again."
	MsgEnterCode    = "Please enter a game code."
	MsgNotJoinable  = "Game not found or already started."
	MsgJoinFailed   = "Error joining game. Try again."
	MsgSyncFailed   = "Move failed to sync. Try again."
	MsgOpponentLeft = "Opponent left the game. You win!"
	MsgOpponentGone = "Opponent left the game."
	MsgGameCanceled = "Game canceled."
	MsgDraw         = "Game ended in a draw."
	msgTurnTemplate = "Player %d's turn."
	msgWinsTemplate = "Player %d wins!"
)

// Authority owns the game state for one game: an engine.Local for a shared
// device or a session.Session for a remote room.
type Authority interface {
	Drop(ctx context.Context, col int) error
	Restart(ctx context.Context) error
	Leave(ctx context.Context) error
	State() engine.State
}

var (
	_ Authority = (*engine.Local)(nil)
	_ Authority = (*session.Session)(nil)
)

type Deps struct {
	Store     store.Store
	Presenter engine.Presenter
	Log       *zap.Logger
}

type View struct {
	Screen Screen        `json:"screen"`
	Status string        `json:"status"`
	Code   string        `json:"code,omitempty"`
	Role   board.Cell    `json:"role,omitempty"`
	Game   *engine.State `json:"game,omitempty"`
}

type Controller struct {
	st  store.Store
	out engine.Presenter
	log *zap.Logger

	mu     sync.Mutex
	screen Screen
	status string
	auth   Authority
	room   *session.Session
	// gen changes whenever the authority is replaced, so events from an
	// abandoned one are dropped
	gen int
}

func New(d Deps) *Controller {
	out := d.Presenter
	if out == nil {
		out = engine.Discard
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{st: d.Store, out: out, log: log, screen: ScreenStart}
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{Screen: c.screen, Status: c.status}
	if c.room != nil {
		v.Code = c.room.Code()
		v.Role = c.room.Role()
	}
	if c.auth != nil {
		s := c.auth.State()
		v.Game = &s
	}
	return v
}

func (c *Controller) PlayLocal(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != ScreenStart {
		return ErrWrongScreen
	}
	c.gen++
	c.auth = engine.NewLocal(c.presenterFor(c.gen), c.log.Named("local"))
	c.screen = ScreenLocalGame
	c.status = turnMessage(engine.FirstPlayer)
	return nil
}

func (c *Controller) OpenMultiplayer() error {
	return c.move(ScreenStart, ScreenMultiplayer)
}

func (c *Controller) ShowJoin() error {
	return c.move(ScreenMultiplayer, ScreenJoinInput)
}

func (c *Controller) move(from, to Screen) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != from {
		return ErrWrongScreen
	}
	c.screen = to
	c.status = ""
	return nil
}

func (c *Controller) CreateRoom(ctx context.Context) error {
	c.mu.Lock()
	if c.screen != ScreenMultiplayer {
		c.mu.Unlock()
		return ErrWrongScreen
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	s, err := session.Create(ctx, session.Deps{Store: c.st, Presenter: c.presenterFor(gen), Log: c.log})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn("create room failed", zap.Error(err))
		c.status = MsgCreateFailed
		return err
	}
	if c.gen != gen {
		go c.abandon(s)
		return ErrWrongScreen
	}
	c.auth, c.room = s, s
	if s.Waiting() {
		c.screen = ScreenWaitingRoom
		c.status = MsgCreated
	} else {
		c.screen = ScreenOnlineGame
		c.status = c.turnStatus(s.State())
	}
	return nil
}

func (c *Controller) JoinRoom(ctx context.Context, code string) error {
	c.mu.Lock()
	if c.screen != ScreenJoinInput {
		c.mu.Unlock()
		return ErrWrongScreen
	}
	code = session.NormalizeCode(code)
	if code == "" {
		c.status = MsgEnterCode
		c.mu.Unlock()
		return ErrEmptyCode
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	s, err := session.Join(ctx, session.Deps{Store: c.st, Presenter: c.presenterFor(gen), Log: c.log}, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case errors.Is(err, session.ErrRoomNotJoinable):
		c.status = MsgNotJoinable
		return err
	case err != nil:
		c.log.Warn("join room failed", zap.String("code", code), zap.Error(err))
		c.status = MsgJoinFailed
		return err
	}
	if c.gen != gen {
		go c.abandon(s)
		return ErrWrongScreen
	}
	c.auth, c.room = s, s
	c.screen = ScreenOnlineGame
	c.status = c.turnStatus(s.State())
	return nil
}

// Back walks one screen back. Leaving a waiting room or a game releases it.
func (c *Controller) Back(ctx context.Context) error {
	c.mu.Lock()
	switch c.screen {
	case ScreenJoinInput:
		c.screen, c.status = ScreenMultiplayer, ""
		c.mu.Unlock()
		return nil
	case ScreenMultiplayer:
		c.screen, c.status = ScreenStart, ""
		c.mu.Unlock()
		return nil
	case ScreenWaitingRoom:
		auth := c.detach()
		c.screen, c.status = ScreenMultiplayer, ""
		c.mu.Unlock()
		if auth == nil {
			return nil
		}
		return auth.Leave(ctx)
	case ScreenLocalGame, ScreenOnlineGame:
		c.mu.Unlock()
		return c.Leave(ctx)
	default:
		c.mu.Unlock()
		return nil
	}
}

func (c *Controller) Drop(ctx context.Context, col int) error {
	c.mu.Lock()
	auth, gen := c.auth, c.gen
	c.mu.Unlock()
	if auth == nil {
		return ErrNoGame
	}

	err := auth.Drop(ctx, col)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrInvalidMove):
		c.log.Debug("move ignored", zap.Int("col", col), zap.Error(err))
		return nil
	case errors.Is(err, session.ErrSyncFailed):
		c.setStatus(gen, MsgSyncFailed)
		return err
	default:
		return err
	}
}

func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	auth, gen := c.auth, c.gen
	c.mu.Unlock()
	if auth == nil {
		return ErrNoGame
	}

	err := auth.Restart(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrInvalidMove):
		return nil
	case errors.Is(err, session.ErrSyncFailed):
		c.setStatus(gen, MsgSyncFailed)
		return err
	default:
		return err
	}
}

// Leave ends any game or room and returns to the start screen.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	auth := c.detach()
	c.screen, c.status = ScreenStart, ""
	c.mu.Unlock()
	if auth == nil {
		return nil
	}
	return auth.Leave(ctx)
}

// detach drops the current authority. Callers hold c.mu.
func (c *Controller) detach() Authority {
	auth := c.auth
	c.auth, c.room = nil, nil
	c.gen++
	return auth
}

func (c *Controller) abandon(a Authority) {
	if err := a.Leave(context.Background()); err != nil {
		c.log.Warn("abandon room", zap.Error(err))
	}
}

func (c *Controller) setStatus(gen int, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.status = msg
	}
}

func playerNumber(p board.Cell) int {
	if p == board.PlayerB {
		return 2
	}
	return 1
}

func turnMessage(p board.Cell) string { return fmt.Sprintf(msgTurnTemplate, playerNumber(p)) }
func winMessage(p board.Cell) string  { return fmt.Sprintf(msgWinsTemplate, playerNumber(p)) }

func (c *Controller) turnStatus(s engine.State) string {
	switch s.Phase {
	case engine.PhaseWon:
		return winMessage(s.Winner)
	case engine.PhaseDraw:
		return MsgDraw
	default:
		return turnMessage(s.Turn)
	}
}
