// Package ws serves one player per websocket connection. Each connection
// drives its own flow.Controller and receives the controller's events and
// views as JSON messages.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/connect4-sync/internal/engine"
	"github.com/DoyleJ11/connect4-sync/internal/flow"
	"github.com/DoyleJ11/connect4-sync/internal/hub"
	"github.com/DoyleJ11/connect4-sync/internal/store"
	"github.com/DoyleJ11/connect4-sync/internal/types"
)

var errUnknownType = errors.New("unknown type")
var errMissingColumn = errors.New("missing column")

const (
	DefaultLocalDrop  = 400 * time.Millisecond
	DefaultOnlineDrop = 300 * time.Millisecond
)

type Deps struct {
	Hub   *hub.Hub
	Store store.Store
	Log   *zap.Logger

	// How long a DiscPlaced event holds the game while the disc falls.
	LocalDrop  time.Duration
	OnlineDrop time.Duration

	// Passed to websocket.Accept. Empty means same-origin only.
	OriginPatterns []string
}

func Handler(d Deps) http.HandlerFunc {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: d.OriginPatterns})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		cl := &client{
			id:   clientID,
			conn: conn,
			out:  make(chan types.ServerMessage, 32),
			log:  log.With(zap.String("client", clientID)),
			d:    d,
		}
		cl.serve(r.Context())
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	out  chan types.ServerMessage
	log  *zap.Logger
	d    Deps
	ctrl *flow.Controller

	// async tracks Drop and Restart, which run off the reader so extra
	// input during an animation reaches the in-flight guard
	async sync.WaitGroup
}

func (cl *client) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	cl.ctrl = flow.New(flow.Deps{
		Store:     cl.d.Store,
		Presenter: engine.PresenterFunc(cl.present),
		Log:       cl.log,
	})
	if cl.d.Hub != nil {
		if err := cl.d.Hub.Register(ctx, cl.id, cl.ctrl); err != nil {
			cl.log.Warn("hub register failed", zap.Error(err))
			return
		}
		defer cl.d.Hub.Unregister(cl.id)
	}

	writerDone := make(chan struct{})
	go cl.writer(ctx, cancel, writerDone)

	defer func() {
		cancel()
		cl.async.Wait()
		// the request context is gone; give the room a chance to be released
		lctx, lcancel := context.WithTimeout(context.WithoutCancel(parent), 5*time.Second)
		defer lcancel()
		if err := cl.ctrl.Leave(lctx); err != nil {
			cl.log.Warn("leave on disconnect", zap.Error(err))
		}
		<-writerDone
	}()

	cl.sendView(ctx)
	cl.log.Info("client connected")

	for {
		_, data, err := cl.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				cl.log.Info("client disconnected")
			default:
				cl.log.Debug("read failed", zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			cl.send(ctx, types.ServerMessage{Type: types.MsgError, Error: "bad json"})
			continue
		}
		cl.dispatch(ctx, cm)
	}
}

func (cl *client) dispatch(ctx context.Context, cm types.ClientMessage) {
	c := cl.ctrl
	var err error
	switch cm.Type {
	case types.MsgPlayLocal:
		err = c.PlayLocal(ctx)
	case types.MsgOpenMultiplayer:
		err = c.OpenMultiplayer()
	case types.MsgShowJoin:
		err = c.ShowJoin()
	case types.MsgCreateRoom:
		err = c.CreateRoom(ctx)
	case types.MsgJoinRoom:
		err = c.JoinRoom(ctx, cm.Code)
	case types.MsgBack:
		err = c.Back(ctx)
	case types.MsgLeave:
		err = c.Leave(ctx)
	case types.MsgDrop:
		if cm.Column == nil {
			err = errMissingColumn
			break
		}
		col := *cm.Column
		cl.runAsync(ctx, func() error { return c.Drop(ctx, col) })
		return
	case types.MsgRestart:
		cl.runAsync(ctx, func() error { return c.Restart(ctx) })
		return
	default:
		err = errUnknownType
	}
	cl.reply(ctx, cm.Type, err)
}

func (cl *client) runAsync(ctx context.Context, fn func() error) {
	cl.async.Add(1)
	go func() {
		defer cl.async.Done()
		cl.reply(ctx, "", fn())
	}()
}

// reply reports err, if any, and then the resulting view.
func (cl *client) reply(ctx context.Context, typ string, err error) {
	if err != nil && ctx.Err() == nil {
		cl.log.Debug("command failed", zap.String("type", typ), zap.Error(err))
		cl.send(ctx, types.ServerMessage{Type: types.MsgError, Error: err.Error()})
	}
	cl.sendView(ctx)
}

func (cl *client) sendView(ctx context.Context) {
	v := cl.ctrl.View()
	cl.send(ctx, types.ServerMessage{Type: types.MsgView, View: &v})
}

func (cl *client) send(ctx context.Context, m types.ServerMessage) bool {
	select {
	case cl.out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

// present forwards ev to the browser. A DiscPlaced event holds the caller
// for the length of the drop animation.
func (cl *client) present(ctx context.Context, ev engine.Event) error {
	if !cl.send(ctx, types.ServerMessage{Type: types.MsgEvent, Event: &ev}) {
		return ctx.Err()
	}
	if ev.Type != engine.EvtDiscPlaced {
		return nil
	}
	d := cl.d.OnlineDrop
	if d == 0 {
		d = DefaultOnlineDrop
	}
	if cl.ctrl.View().Screen == flow.ScreenLocalGame {
		d = cl.d.LocalDrop
		if d == 0 {
			d = DefaultLocalDrop
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cl *client) writer(ctx context.Context, stop context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	// a dead writer ends the connection
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-cl.out:
			payload, err := json.Marshal(m)
			if err != nil {
				cl.log.Error("encode message", zap.String("type", m.Type), zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err = cl.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				cl.log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}
