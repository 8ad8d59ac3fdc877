// Package session plays one side of a remote game. The shared record in a
// store.Store is the source of truth; a session writes its own moves to it
// and reconciles everything it observes back into local state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/connect4-sync/internal/board"
	"github.com/DoyleJ11/connect4-sync/internal/engine"
	"github.com/DoyleJ11/connect4-sync/internal/store"
)

var (
	ErrRoomNotJoinable = errors.New("game not found or already started")
	// ErrSyncFailed wraps the store error when a move or restart could not be
	// written. The local state has already been rolled back.
	ErrSyncFailed    = errors.New("move failed to sync")
	ErrNotCreator    = errors.New("only the room creator can restart")
	ErrSessionClosed = errors.New("session closed")
)

const (
	codeAttempts = 5
	leaveTimeout = 5 * time.Second
)

type Deps struct {
	Store     store.Store
	Presenter engine.Presenter
	Log       *zap.Logger
}

type request struct {
	ctx   context.Context
	cmd   engine.CommandType
	col   int
	turn  board.Cell
	reply chan error
}

type Session struct {
	st        store.Store
	presenter engine.Presenter
	log       *zap.Logger

	role   board.Cell
	roomID string
	code   string

	inbox    chan request
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
	leaving  atomic.Bool
	leave    sync.Once

	mu      sync.Mutex
	state   engine.State
	waiting bool

	// owned by the loop goroutine
	last         store.Record
	sub          store.Subscription
	token        string
	finishShown  bool
	opponentGone bool
}

// Create opens a new room as PlayerA and waits for an opponent.
func Create(ctx context.Context, d Deps) (*Session, error) {
	var (
		id   string
		code string
		rec  store.Record
		err  error
	)
	for i := 0; i < codeAttempts; i++ {
		code, err = NewCode()
		if err != nil {
			return nil, err
		}
		rec = store.NewRecord(code)
		id, err = d.Store.Create(ctx, rec)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	sub, err := d.Store.Subscribe(ctx, id)
	if err != nil {
		_ = d.Store.Delete(context.WithoutCancel(ctx), id)
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	s := newSession(d, board.PlayerA, id, code, rec, sub, true)
	s.log.Info("room created")
	return s, nil
}

// Join takes the PlayerB seat of the waiting room with the given code.
func Join(ctx context.Context, d Deps, code string) (*Session, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrRoomNotJoinable
	}
	hits, err := d.Store.QueryByField(ctx, store.FieldShortCode, code)
	if err != nil {
		return nil, fmt.Errorf("look up room: %w", err)
	}
	var target *store.Snapshot
	for i := range hits {
		if hits[i].Record.Status == store.StatusWaiting {
			target = &hits[i]
			break
		}
	}
	if target == nil {
		return nil, ErrRoomNotJoinable
	}

	// listen before taking the seat so a failed subscribe leaves the room
	// waiting for the next attempt
	sub, err := d.Store.Subscribe(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	join := store.Patch{
		Status: store.Ref(store.StatusPlaying),
		If:     store.Precondition{Status: store.StatusWaiting},
	}
	rec, err := join.ApplyTo(target.Record)
	if err == nil {
		err = d.Store.Update(ctx, target.ID, join)
	}
	if err != nil {
		_ = sub.Close()
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotJoinable
		}
		return nil, fmt.Errorf("join room: %w", err)
	}
	s := newSession(d, board.PlayerB, target.ID, code, rec, sub, false)
	s.log.Info("room joined")
	return s, nil
}

func newSession(d Deps, role board.Cell, id, code string, rec store.Record, sub store.Subscription, waiting bool) *Session {
	p := d.Presenter
	if p == nil {
		p = engine.Discard
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		st:        d.Store,
		presenter: p,
		log:       log.With(zap.String("room", id), zap.String("code", code), zap.Stringer("role", role)),
		role:      role,
		roomID:    id,
		code:      code,
		inbox:     make(chan request),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		waiting:   waiting,
		last:      rec,
		sub:       sub,
		token:     rec.RestartToken,
	}
	if g, err := rec.Grid(); err == nil {
		s.state = stateFrom(rec, g)
	} else {
		s.state = engine.NewState()
	}
	go s.loop()
	return s
}

func (s *Session) Role() board.Cell { return s.role }
func (s *Session) Code() string     { return s.code }
func (s *Session) RoomID() string   { return s.roomID }

func (s *Session) State() engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Waiting reports whether the room is still waiting for an opponent.
func (s *Session) Waiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

// Done is closed once the session loop has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Drop plays the local player's disc. While another move or a remote
// animation is resolving it returns engine.ErrMoveInFlight.
func (s *Session) Drop(ctx context.Context, col int) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return engine.ErrMoveInFlight
	}
	defer s.inFlight.Store(false)
	return s.call(ctx, request{cmd: engine.CmdDrop, col: col, turn: s.State().Turn})
}

// Restart resets the shared record. Only the creator may restart; the local
// board resets when the new token comes back through the subscription.
func (s *Session) Restart(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return engine.ErrMoveInFlight
	}
	defer s.inFlight.Store(false)
	return s.call(ctx, request{cmd: engine.CmdRestart})
}

// Leave stops the session and deletes the room. Failures are logged, not
// returned.
func (s *Session) Leave(ctx context.Context) error {
	s.leave.Do(func() {
		s.leaving.Store(true)
		s.cancel()
		<-s.done

		var errs error
		if s.sub != nil {
			errs = multierr.Append(errs, s.sub.Close())
			s.sub = nil
		}
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
		defer cancel()
		if err := s.st.Delete(dctx, s.roomID); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = multierr.Append(errs, err)
		}
		if errs != nil {
			s.log.Warn("leave cleanup failed", zap.Error(errs))
			return
		}
		s.log.Info("left room")
	})
	return nil
}

func (s *Session) call(ctx context.Context, req request) error {
	req.ctx = ctx
	req.reply = make(chan error, 1)
	select {
	case s.inbox <- req:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		var changes <-chan store.Change
		if s.sub != nil {
			changes = s.sub.Changes()
		}
		select {
		case <-s.ctx.Done():
			return

		case req := <-s.inbox:
			ctx, cancel := context.WithCancel(req.ctx)
			stop := context.AfterFunc(s.ctx, cancel)
			var err error
			switch req.cmd {
			case engine.CmdDrop:
				err = s.drop(ctx, req.col, req.turn)
			case engine.CmdRestart:
				err = s.restart(ctx)
			default:
				err = engine.ErrUnsupportedCommand
			}
			stop()
			cancel()
			req.reply <- err

		case c, ok := <-changes:
			if !ok {
				s.subscriptionLost()
				continue
			}
			s.reconcile(c)
		}
	}
}

func (s *Session) drop(ctx context.Context, col int, turn board.Cell) error {
	s.mu.Lock()
	cur, waiting := s.state, s.waiting
	s.mu.Unlock()

	if waiting || s.opponentGone {
		return engine.ErrGameNotActive
	}
	if cur.Turn != turn {
		// the turn moved on while the request was queued behind a change
		return engine.ErrWrongTurn
	}
	events, next, err := engine.Apply(cur, engine.Command{Type: engine.CmdDrop, Player: s.role, Column: col})
	if err != nil {
		return err
	}

	if err := s.presenter.Present(ctx, events[0]); err != nil {
		return err
	}
	s.setState(next)

	status := store.StatusPlaying
	if next.Phase.Terminal() {
		status = store.StatusFinished
	}
	patch := store.Patch{
		Board:         next.Board.Flatten(),
		CurrentPlayer: store.Ref(next.Turn),
		Status:        &status,
		Winner:        store.Ref(next.Winner),
		LastMove:      next.LastMove,
		If:            store.Precondition{Status: store.StatusPlaying, CurrentPlayer: s.role},
	}
	if err := s.st.Update(ctx, s.roomID, patch); err != nil {
		s.setState(cur)
		s.log.Warn("move did not sync, reverted", zap.Int("col", col), zap.Error(err))
		revert := events[0]
		revert.Type = engine.EvtMoveReverted
		_ = s.presenter.Present(ctx, revert)
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}

	// the echo of this write must diff to nothing
	echo := patch
	echo.If = store.Precondition{}
	if written, err := echo.ApplyTo(s.last); err == nil {
		s.last = written
	}
	if next.Phase.Terminal() {
		s.finishShown = true
	}
	s.log.Debug("move synced", zap.Int("row", next.LastMove.Row), zap.Int("col", col))

	for _, ev := range events[1:] {
		if err := s.presenter.Present(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) restart(ctx context.Context) error {
	if s.role != board.PlayerA {
		return ErrNotCreator
	}
	if s.Waiting() || s.opponentGone {
		return engine.ErrGameNotActive
	}
	patch := store.Patch{
		Board:            board.Board{}.Flatten(),
		CurrentPlayer:    store.Ref(engine.FirstPlayer),
		Status:           store.Ref(store.StatusPlaying),
		Winner:           store.Ref(board.Empty),
		RestartRequested: store.Ref(true),
		RestartToken:     store.Ref(uuid.NewString()),
		ClearLastMove:    true,
	}
	if err := s.st.Update(ctx, s.roomID, patch); err != nil {
		s.log.Warn("restart did not sync", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	s.log.Info("restart requested")
	return nil
}

func (s *Session) setState(st engine.State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) present(ev engine.Event) {
	if err := s.presenter.Present(s.ctx, ev); err != nil && s.ctx.Err() == nil {
		s.log.Debug("present failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
}

func (s *Session) closeSub() {
	if s.sub == nil {
		return
	}
	if err := s.sub.Close(); err != nil {
		s.log.Debug("close subscription", zap.Error(err))
	}
	s.sub = nil
}

// subscriptionLost handles a change stream that ended without Leave.
func (s *Session) subscriptionLost() {
	s.sub = nil
	if s.leaving.Load() || s.opponentGone {
		return
	}
	s.log.Warn("change stream ended")
	s.opponentGone = true
	s.present(engine.Event{Type: engine.EvtRoomClosed})
}
