package pgstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/connect4-sync/internal/board"
	"github.com/DoyleJ11/connect4-sync/internal/store"
)

// gameRow is one room. The board is kept as 42 digits, row-major.
type gameRow struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShortCode        string    `gorm:"uniqueIndex"`
	Board            string    `gorm:"type:char(42)"`
	CurrentPlayer    int
	Status           string `gorm:"index"`
	Winner           int
	RestartRequested bool
	RestartToken     string
	LastMoveRow      *int
	LastMoveCol      *int
	LastMovePlayer   *int
	Revision         int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (gameRow) TableName() string { return "connect4_games" }

func encodeBoard(cells []board.Cell) string {
	var sb strings.Builder
	sb.Grow(len(cells))
	for _, c := range cells {
		sb.WriteByte(byte('0' + c))
	}
	return sb.String()
}

func decodeBoard(s string) ([]board.Cell, error) {
	cells := make([]board.Cell, len(s))
	for i := 0; i < len(s); i++ {
		c := board.Cell(s[i] - '0')
		if s[i] < '0' || !c.Valid() {
			return nil, fmt.Errorf("%w: %q at index %d", board.ErrBadCell, s[i], i)
		}
		cells[i] = c
	}
	return cells, nil
}

func fromRecord(id uuid.UUID, r store.Record) gameRow {
	row := gameRow{
		ID:               id,
		ShortCode:        r.ShortCode,
		Board:            encodeBoard(r.Board),
		CurrentPlayer:    int(r.CurrentPlayer),
		Status:           string(r.Status),
		Winner:           int(r.Winner),
		RestartRequested: r.RestartRequested,
		RestartToken:     r.RestartToken,
		Revision:         r.Revision,
	}
	if lm := r.LastMove; lm != nil {
		row.LastMoveRow = &lm.Row
		row.LastMoveCol = &lm.Col
		player := int(lm.Player)
		row.LastMovePlayer = &player
	}
	return row
}

func (g gameRow) record() (store.Record, error) {
	cells, err := decodeBoard(g.Board)
	if err != nil {
		return store.Record{}, err
	}
	r := store.Record{
		Board:            cells,
		CurrentPlayer:    board.Cell(g.CurrentPlayer),
		Status:           store.Status(g.Status),
		Winner:           board.Cell(g.Winner),
		ShortCode:        g.ShortCode,
		RestartRequested: g.RestartRequested,
		RestartToken:     g.RestartToken,
		Revision:         g.Revision,
	}
	if g.LastMoveRow != nil && g.LastMoveCol != nil && g.LastMovePlayer != nil {
		r.LastMove = &board.Placement{Row: *g.LastMoveRow, Col: *g.LastMoveCol, Player: board.Cell(*g.LastMovePlayer)}
	}
	return r, nil
}
