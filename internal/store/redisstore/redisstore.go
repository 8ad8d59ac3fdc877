// Package redisstore keeps game records in Redis so peers on different
// server instances can share a room. Each record is a JSON string key with a
// TTL, a second key maps the short code to the record id, and every commit is
// published on a per-record channel.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DoyleJ11/connect4-sync/internal/store"
)

const maxTxRetries = 16

type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

var _ store.Store = (*Store)(nil)

func New(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{rdb: rdb, ttl: ttl, log: log}
}

// Open dials url (redis://...) and checks the connection.
func Open(ctx context.Context, url string, ttl time.Duration, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("redis url required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, ttl, log), nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func recordKey(id string) string { return "c4:record:" + id }
func codeKey(code string) string { return "c4:code:" + code }
func channel(id string) string   { return "c4:changes:" + id }

func (s *Store) Create(ctx context.Context, r store.Record) (string, error) {
	id := uuid.NewString()
	r = r.Clone()
	r.Revision = 1
	raw, err := json.Marshal(r)
	if err != nil {
		return "", err
	}

	ok, err := s.rdb.SetNX(ctx, codeKey(r.ShortCode), id, s.ttl).Result()
	if err != nil {
		return "", store.Unavailable(err)
	}
	if !ok {
		return "", fmt.Errorf("%w: short code %s in use", store.ErrConflict, r.ShortCode)
	}
	if err := s.rdb.Set(ctx, recordKey(id), raw, s.ttl).Err(); err != nil {
		return "", store.Unavailable(err)
	}
	s.log.Debug("record created", zap.String("room", id), zap.String("code", r.ShortCode))
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	return get(ctx, s.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func get(ctx context.Context, c getter, id string) (store.Record, error) {
	raw, err := c.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, store.Unavailable(err)
	}
	var r store.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return store.Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return r, nil
}

// Update runs the patch under WATCH so concurrent writers retry instead of
// overwriting each other.
func (s *Store) Update(ctx context.Context, id string, p store.Patch) error {
	key := recordKey(id)
	txf := func(tx *redis.Tx) error {
		cur, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := p.ApplyTo(cur)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		msg, err := json.Marshal(store.Change{ID: id, Record: next})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, redis.KeepTTL)
			pipe.Publish(ctx, channel(id), msg)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug("update raced, retrying", zap.String("room", id), zap.Int("attempt", i+1))
			continue
		}
		return store.Unavailable(err)
	}
	return fmt.Errorf("%w: too much contention on %s", store.ErrUnavailable, id)
}

func (s *Store) QueryByField(ctx context.Context, f store.Field, value string) ([]store.Snapshot, error) {
	switch f {
	case store.FieldShortCode:
		id, err := s.rdb.Get(ctx, codeKey(value)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, store.Unavailable(err)
		}
		r, err := s.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []store.Snapshot{{ID: id, Record: r}}, nil

	case store.FieldStatus:
		var out []store.Snapshot
		iter := s.rdb.Scan(ctx, 0, recordKey("*"), 100).Iterator()
		for iter.Next(ctx) {
			id := strings.TrimPrefix(iter.Val(), recordKey(""))
			r, err := s.Get(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if string(r.Status) == value {
				out = append(out, store.Snapshot{ID: id, Record: r})
			}
		}
		if err := iter.Err(); err != nil {
			return nil, store.Unavailable(err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedField, f)
	}
}

func (s *Store) Delete(ctx context.Context, id string) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(store.Change{ID: id, Deleted: true})
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(id), codeKey(r.ShortCode))
		pipe.Publish(ctx, channel(id), msg)
		return nil
	})
	if err != nil {
		return store.Unavailable(err)
	}
	s.log.Debug("record deleted", zap.String("room", id))
	return nil
}

// Subscribe listens on the record's channel before reading its current
// state, so no commit can fall between the two.
func (s *Store) Subscribe(ctx context.Context, id string) (store.Subscription, error) {
	ps := s.rdb.Subscribe(ctx, channel(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, store.Unavailable(err)
	}

	sub := &subscription{ps: ps, feed: store.NewFeed(nil)}

	first := store.Change{ID: id}
	r, err := s.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		first.Deleted = true
	case err != nil:
		_ = sub.Close()
		return nil, err
	default:
		first.Record = r
	}
	sub.feed.Push(first)

	go sub.forward(first, s.log.With(zap.String("room", id)))
	return sub, nil
}

type subscription struct {
	ps   *redis.PubSub
	feed *store.Feed
}

func (s *subscription) Changes() <-chan store.Change { return s.feed.Changes() }

func (s *subscription) Close() error {
	err := s.ps.Close()
	_ = s.feed.Close()
	return err
}

// forward relays published commits, skipping any the initial read already
// covered.
func (s *subscription) forward(first store.Change, log *zap.Logger) {
	defer s.feed.Close()
	seen := first.Record.Revision
	gone := first.Deleted
	for msg := range s.ps.Channel() {
		var c store.Change
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			log.Warn("bad change payload", zap.Error(err))
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
