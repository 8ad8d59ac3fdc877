// Package hub tracks the live player controllers of one server process so
// their rooms can be released together on shutdown.
package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/connect4-sync/internal/flow"
)

var ErrClosed = errors.New("hub closed")

// Player is what the hub needs from a connected controller.
type Player interface {
	Leave(ctx context.Context) error
}

var _ Player = (*flow.Controller)(nil)

type HubMsg interface{ isHubMsg() }

type Register struct {
	ClientID string
	Player   Player
	Reply    chan error
}

type Unregister struct {
	ClientID string
}

type Count struct {
	Reply chan int
}

type ShutdownHub struct {
	Reply chan error
}

func (Register) isHubMsg()    {}
func (Unregister) isHubMsg()  {}
func (Count) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	players map[string]Player
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	leaveTO time.Duration
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		players: make(map[string]Player),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		leaveTO: 5 * time.Second,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Register adds a player under clientID. A second registration for the same
// id replaces the first.
func (h *Hub) Register(ctx context.Context, clientID string, p Player) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, Register{ClientID: clientID, Player: p, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Unregister(clientID string) {
	// best effort: after shutdown there is nothing left to remove
	_ = h.send(context.Background(), Unregister{ClientID: clientID})
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.send(ctx, Count{Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-h.ctx.Done():
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Shutdown leaves every registered player's room and stops the hub. Leave
// failures are combined into the returned error.
func (h *Hub) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, ShutdownHub{Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	if h.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				if old := h.players[msg.ClientID]; old != nil && old != msg.Player {
					go h.leave(msg.ClientID, old)
				}
				h.players[msg.ClientID] = msg.Player
				h.log.Debug("player registered", zap.String("client", msg.ClientID), zap.Int("players", len(h.players)))
				msg.Reply <- nil

			case Unregister:
				delete(h.players, msg.ClientID)
				h.log.Debug("player unregistered", zap.String("client", msg.ClientID), zap.Int("players", len(h.players)))

			case Count:
				msg.Reply <- len(h.players)

			case ShutdownHub:
				err := h.shutdown()
				h.cancel()
				msg.Reply <- err
				return
			}
		}
	}
}

func (h *Hub) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.leaveTO)
	defer cancel()

	errs := make(chan error, len(h.players))
	for id, p := range h.players {
		id, p := id, p
		go func() {
			if err := p.Leave(ctx); err != nil {
				errs <- fmt.Errorf("client %s: %w", id, err)
				return
			}
			errs <- nil
		}()
	}
	var err error
	for range h.players {
		err = multierr.Append(err, <-errs)
	}
	h.log.Info("hub stopped", zap.Int("players", len(h.players)), zap.Error(err))
	clear(h.players)
	return err
}

func (h *Hub) leave(id string, p Player) {
	ctx, cancel := context.WithTimeout(context.Background(), h.leaveTO)
	defer cancel()
	if err := p.Leave(ctx); err != nil {
		h.log.Warn("replaced player leave failed", zap.String("client", id), zap.Error(err))
	}
}
