// Package store defines the shared game record that both peers of a remote
// game read and write, and the contract every backing store satisfies.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/connect4-sync/internal/board"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable marks transient failures talking to the backing store.
	ErrUnavailable      = errors.New("store unavailable")
	ErrConflict         = errors.New("precondition failed")
	ErrUnsupportedField = errors.New("unsupported query field")
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

func (s Status) Valid() bool {
	return s == StatusWaiting || s == StatusPlaying || s == StatusFinished
}

// Record is the shared document for one room. Board is the row-major
// flattening of a board.Board.
type Record struct {
	Board            []board.Cell     `json:"board"`
	CurrentPlayer    board.Cell       `json:"currentPlayer"`
	Status           Status           `json:"status"`
	Winner           board.Cell       `json:"winner"`
	ShortCode        string           `json:"shortCode"`
	RestartRequested bool             `json:"restartRequested"`
	RestartToken     string           `json:"restartToken,omitempty"`
	LastMove         *board.Placement `json:"lastMove,omitempty"`
	Revision         int64            `json:"revision"`
}

// NewRecord is the record a creator writes: empty board, PlayerA to move,
// waiting for an opponent.
func NewRecord(code string) Record {
	return Record{
		Board:         board.Board{}.Flatten(),
		CurrentPlayer: board.PlayerA,
		Status:        StatusWaiting,
		Winner:        board.Empty,
		ShortCode:     code,
	}
}

// Clone deep-copies the slice and pointer fields.
func (r Record) Clone() Record {
	out := r
	if r.Board != nil {
		out.Board = append([]board.Cell(nil), r.Board...)
	}
	if r.LastMove != nil {
		lm := *r.LastMove
		out.LastMove = &lm
	}
	return out
}

// Grid decodes the flat board.
func (r Record) Grid() (board.Board, error) {
	return board.Unflatten(r.Board)
}

// Precondition guards an update. Zero fields match anything.
type Precondition struct {
	Status        Status
	CurrentPlayer board.Cell
}

func (p Precondition) Check(r Record) error {
	if p.Status != "" && r.Status != p.Status {
		return fmt.Errorf("%w: status is %s, want %s", ErrConflict, r.Status, p.Status)
	}
	if p.CurrentPlayer != board.Empty && r.CurrentPlayer != p.CurrentPlayer {
		return fmt.Errorf("%w: %v to move, want %v", ErrConflict, r.CurrentPlayer, p.CurrentPlayer)
	}
	return nil
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Board            []board.Cell
	CurrentPlayer    *board.Cell
	Status           *Status
	Winner           *board.Cell
	RestartRequested *bool
	RestartToken     *string
	LastMove         *board.Placement
	ClearLastMove    bool

	If Precondition
}

func (p Patch) Empty() bool {
	return p.Board == nil && p.CurrentPlayer == nil && p.Status == nil && p.Winner == nil &&
		p.RestartRequested == nil && p.RestartToken == nil && p.LastMove == nil && !p.ClearLastMove
}

// ApplyTo checks the precondition and returns the patched record with its
// revision bumped. r is not modified.
func (p Patch) ApplyTo(r Record) (Record, error) {
	if err := p.If.Check(r); err != nil {
		return r, err
	}
	next := r.Clone()
	if p.Board != nil {
		next.Board = append([]board.Cell(nil), p.Board...)
	}
	if p.CurrentPlayer != nil {
		next.CurrentPlayer = *p.CurrentPlayer
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Winner != nil {
		next.Winner = *p.Winner
	}
	if p.RestartRequested != nil {
		next.RestartRequested = *p.RestartRequested
	}
	if p.RestartToken != nil {
		next.RestartToken = *p.RestartToken
	}
	if p.ClearLastMove {
		next.LastMove = nil
	}
	if p.LastMove != nil {
		lm := *p.LastMove
		next.LastMove = &lm
	}
	next.Revision++
	return next, nil
}

// Ref returns a pointer to v, for filling Patch fields.
func Ref[T any](v T) *T { return &v }

type Field string

const (
	FieldShortCode Field = "shortCode"
	FieldStatus    Field = "status"
)

// Match reports whether r's field equals value.
func Match(r Record, f Field, value string) (bool, error) {
	switch f {
	case FieldShortCode:
		return r.ShortCode == value, nil
	case FieldStatus:
		return string(r.Status) == value, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedField, f)
	}
}

type Snapshot struct {
	ID     string
	Record Record
}

// Change is one committed write as seen by a subscriber. Deleted changes
// carry no record.
type Change struct {
	ID      string `json:"id"`
	Record  Record `json:"record"`
	Deleted bool   `json:"deleted"`
}

type Subscription interface {
	// Changes delivers every committed change in commit order. It is closed
	// after Close.
	Changes() <-chan Change
	Close() error
}

type Store interface {
	Create(ctx context.Context, r Record) (string, error)
	Get(ctx context.Context, id string) (Record, error)
	// Update applies p atomically. A failed precondition returns ErrConflict.
	Update(ctx context.Context, id string, p Patch) error
	QueryByField(ctx context.Context, f Field, value string) ([]Snapshot, error)
	// Subscribe delivers the current state first (a Deleted change when the
	// record is gone), then every later change.
	Subscribe(ctx context.Context, id string) (Subscription, error)
	Delete(ctx context.Context, id string) error
}

// Unavailable wraps err in ErrUnavailable unless it is already one of the
// contract's own errors.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrConflict, ErrUnavailable, ErrUnsupportedField} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
