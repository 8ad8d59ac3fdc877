// Package pgstore keeps game records in Postgres. Rows go through gorm; each
// commit also raises a NOTIFY inside the same transaction, and subscriptions
// hold a dedicated pgx connection that LISTENs for them.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DoyleJ11/connect4-sync/internal/store"
)

const notifyChannel = "connect4_changes"

type Store struct {
	db  *gorm.DB
	dsn string
	log *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects, migrates the games table and keeps dsn for listener
// connections.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&gameRow{}); err != nil {
		return nil, err
	}
	return &Store{db: db, dsn: dsn, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func parseID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad id %q", store.ErrNotFound, id)
	}
	return u, nil
}

func classify(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return store.Unavailable(err)
}

func (s *Store) Create(ctx context.Context, r store.Record) (string, error) {
	r = r.Clone()
	r.Revision = 1
	row := fromRecord(uuid.New(), r)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", fmt.Errorf("%w: short code %s in use", store.ErrConflict, r.ShortCode)
		}
		return "", classify(err)
	}
	s.log.Debug("record created", zap.Stringer("room", row.ID), zap.String("code", r.ShortCode))
	return row.ID.String(), nil
}

func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	u, err := parseID(id)
	if err != nil {
		return store.Record{}, err
	}
	var row gameRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", u).Error; err != nil {
		return store.Record{}, classify(err)
	}
	return row.record()
}

// Update locks the row, applies the patch and notifies in one transaction.
// Postgres delivers notifications at commit, in commit order.
func (s *Store) Update(ctx context.Context, id string, p store.Patch) error {
	u, err := parseID(id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row gameRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", u).Error; err != nil {
			return classify(err)
		}
		cur, err := row.record()
		if err != nil {
			return err
		}
		next, err := p.ApplyTo(cur)
		if err != nil {
			return err
		}
		updated := fromRecord(u, next)
		updated.CreatedAt = row.CreatedAt
		if err := tx.Save(&updated).Error; err != nil {
			return classify(err)
		}
		return notify(tx, store.Change{ID: id, Record: next})
	})
}

func (s *Store) QueryByField(ctx context.Context, f store.Field, value string) ([]store.Snapshot, error) {
	var column string
	switch f {
	case store.FieldShortCode:
		column = "short_code"
	case store.FieldStatus:
		column = "status"
	default:
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedField, f)
	}

	var rows []gameRow
	if err := s.db.WithContext(ctx).Where(column+" = ?", value).Order("id").Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]store.Snapshot, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, store.Snapshot{ID: row.ID.String(), Record: r})
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	u, err := parseID(id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&gameRow{}, "id = ?", u)
		if res.Error != nil {
			return classify(res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return notify(tx, store.Change{ID: id, Deleted: true})
	})
}

func notify(tx *gorm.DB, c store.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := tx.Exec("SELECT pg_notify(?, ?)", notifyChannel, string(payload)).Error; err != nil {
		return classify(err)
	}
	return nil
}

// Subscribe opens a listener connection, then reads the current row, so no
// commit can fall between the two.
func (s *Store) Subscribe(ctx context.Context, id string) (store.Subscription, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, store.Unavailable(err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, store.Unavailable(err)
	}

	first := store.Change{ID: id}
	r, err := s.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		first.Deleted = true
	case err != nil:
		_ = conn.Close(context.Background())
		return nil, err
	default:
		first.Record = r
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		conn:    conn,
		feed:    store.NewFeed(nil),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	sub.feed.Push(first)
	go sub.listen(listenCtx, first, s.log.With(zap.String("room", id)))
	return sub, nil
}

type subscription struct {
	conn    *pgx.Conn
	feed    *store.Feed
	cancel  context.CancelFunc
	stopped chan struct{}
}

func (s *subscription) Changes() <-chan store.Change { return s.feed.Changes() }

// Close stops the listener before closing its connection; pgx connections
// are not safe for concurrent use.
func (s *subscription) Close() error {
	s.cancel()
	<-s.stopped
	_ = s.feed.Close()
	return s.conn.Close(context.Background())
}

func (s *subscription) listen(ctx context.Context, first store.Change, log *zap.Logger) {
	defer close(s.stopped)
	defer s.feed.Close()
	seen := first.Record.Revision
	gone := first.Deleted
	for {
		n, err := s.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("listener stopped", zap.Error(err))
			}
			return
		}
		var c store.Change
		if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
			log.Warn("bad change payload", zap.Error(err))
			continue
		}
		if c.ID != first.ID {
			continue
		}
		if c.Deleted {
			if gone {
				continue
			}
			gone = true
		} else if c.Record.Revision <= seen {
			continue
		} else {
			seen = c.Record.Revision
		}
		if !s.feed.Push(c) {
			return
		}
	}
}
