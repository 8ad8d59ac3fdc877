// Package memstore keeps game records in process memory. Two sessions in the
// same server can play each other through it, and tests use it as the
// reference store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/connect4-sync/internal/store"
)

type Store struct {
	mu      sync.Mutex
	records map[string]store.Record
	feeds   map[string]map[*store.Feed]struct{}
	log     *zap.Logger
}

var _ store.Store = (*Store)(nil)

func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		records: make(map[string]store.Record),
		feeds:   make(map[string]map[*store.Feed]struct{}),
		log:     log,
	}
}

func (s *Store) Create(ctx context.Context, r store.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	r = r.Clone()
	r.Revision = 1

	s.mu.Lock()
	s.records[id] = r
	s.mu.Unlock()

	s.log.Debug("record created", zap.String("room", id), zap.String("code", r.ShortCode))
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *Store) Update(ctx context.Context, id string, p store.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	next, err := p.ApplyTo(cur)
	if err != nil {
		return err
	}
	s.records[id] = next
	// fan out under the lock so every feed sees commits in order
	s.publish(store.Change{ID: id, Record: next})
	return nil
}

func (s *Store) QueryByField(ctx context.Context, f store.Field, value string) ([]store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Snapshot
	for id, r := range s.records {
		ok, err := store.Match(r, f, value)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, store.Snapshot{ID: id, Record: r.Clone()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, id string) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var f *store.Feed
	f = store.NewFeed(func() { s.unsubscribe(id, f) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		f.Push(store.Change{ID: id, Record: r.Clone()})
	} else {
		f.Push(store.Change{ID: id, Deleted: true})
	}
	if s.feeds[id] == nil {
		s.feeds[id] = make(map[*store.Feed]struct{})
	}
	s.feeds[id][f] = struct{}{}
	return f, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	s.publish(store.Change{ID: id, Deleted: true})
	delete(s.feeds, id)
	s.log.Debug("record deleted", zap.String("room", id))
	return nil
}

// Subscribers reports how many open subscriptions watch id.
func (s *Store) Subscribers(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds[id])
}

func (s *Store) publish(c store.Change) {
	for f := range s.feeds[c.ID] {
		if !c.Deleted {
			c.Record = c.Record.Clone()
		}
		f.Push(c)
	}
}

func (s *Store) unsubscribe(id string, f *store.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.feeds[id], f)
	if len(s.feeds[id]) == 0 {
		delete(s.feeds, id)
	}
}
