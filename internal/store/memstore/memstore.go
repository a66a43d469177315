// Package memstore is an in-memory document store with change feeds.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type collection struct {
	order   []string // record ids in insertion order
	records map[string]json.RawMessage
}

// Store is a threadsafe core.DocumentStore.
// Watchers get their own unbounded queue so writers are never blocked.
type Store struct {
	mu          sync.RWMutex
	docs        map[string]json.RawMessage
	collections map[string]*collection

	docWatchers  map[string]map[*queue.Unbounded[core.Snapshot]]struct{}
	collWatchers map[string]map[*queue.Unbounded[core.Change]]struct{}
}

var _ core.DocumentStore = (*Store)(nil)

func New() *Store {
	return &Store{
		docs:         make(map[string]json.RawMessage),
		collections:  make(map[string]*collection),
		docWatchers:  make(map[string]map[*queue.Unbounded[core.Snapshot]]struct{}),
		collWatchers: make(map[string]map[*queue.Unbounded[core.Change]]struct{}),
	}
}

func cleanPath(p string) (string, error) {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" || p == "." {
		return "", fmt.Errorf("%w: empty path", core.ErrInvalid)
	}
	return p, nil
}

func docID(p string) string { return path.Base(p) }

func decodeObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: document is not a json object: %v", core.ErrInvalid, err)
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage)
	}
	return obj, nil
}

func (s *Store) Create(_ context.Context, p string, data json.RawMessage) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	if _, err := decodeObject(data); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[p]; ok {
		return core.ErrAlreadyExists
	}
	s.docs[p] = append(json.RawMessage(nil), data...)
	s.notifyDocLocked(p)
	log.Debug().Str("module", "memstore").Str("path", p).Msg("document created")
	return nil
}

func (s *Store) Get(_ context.Context, p string) (core.Document, error) {
	p, err := cleanPath(p)
	if err != nil {
		return core.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[p]
	if !ok {
		return core.Document{}, core.ErrNotFound
	}
	return core.Document{ID: docID(p), Data: data}, nil
}

func (s *Store) Update(_ context.Context, p string, fields map[string]json.RawMessage, ifAbsent string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[p]
	if !ok {
		return core.ErrNotFound
	}
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	if ifAbsent != "" {
		if v, ok := obj[ifAbsent]; ok && string(v) != "null" {
			return core.ErrConflict
		}
	}
	for k, v := range fields {
		obj[k] = v
	}
	merged, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	s.docs[p] = merged
	s.notifyDocLocked(p)
	log.Debug().Str("module", "memstore").Str("path", p).Int("fields", len(fields)).Msg("document updated")
	return nil
}

func (s *Store) Add(_ context.Context, coll string, data json.RawMessage) (string, error) {
	coll, err := cleanPath(coll)
	if err != nil {
		return "", err
	}
	if _, err := decodeObject(data); err != nil {
		return "", err
	}
	id := uuid.NewString()
	rec := append(json.RawMessage(nil), data...)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[coll]
	if !ok {
		c = &collection{records: make(map[string]json.RawMessage)}
		s.collections[coll] = c
	}
	c.order = append(c.order, id)
	c.records[id] = rec

	ch := core.Change{Type: core.ChangeAdded, Document: core.Document{ID: id, Data: rec}}
	for w := range s.collWatchers[coll] {
		w.Push(ch)
	}
	return id, nil
}

// Records returns the records of a collection in insertion order.
func (s *Store) Records(coll string) []core.Document {
	coll, err := cleanPath(coll)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[coll]
	if !ok {
		return nil
	}
	out := make([]core.Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, core.Document{ID: id, Data: c.records[id]})
	}
	return out
}

func (s *Store) snapshotLocked(p string) core.Snapshot {
	data, ok := s.docs[p]
	if !ok {
		return core.Snapshot{Document: core.Document{ID: docID(p)}}
	}
	return core.Snapshot{Exists: true, Document: core.Document{ID: docID(p), Data: data}}
}

func (s *Store) notifyDocLocked(p string) {
	if len(s.docWatchers[p]) == 0 {
		return
	}
	snap := s.snapshotLocked(p)
	for w := range s.docWatchers[p] {
		w.Push(snap)
	}
}

func (s *Store) WatchDocument(ctx context.Context, p string) (<-chan core.Snapshot, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	w := queue.NewUnbounded[core.Snapshot](ctx)

	s.mu.Lock()
	set, ok := s.docWatchers[p]
	if !ok {
		set = make(map[*queue.Unbounded[core.Snapshot]]struct{})
		s.docWatchers[p] = set
	}
	set[w] = struct{}{}
	w.Push(s.snapshotLocked(p))
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.docWatchers[p], w)
		if len(s.docWatchers[p]) == 0 {
			delete(s.docWatchers, p)
		}
		s.mu.Unlock()
		w.Close()
	}()
	return w.Out(), nil
}

func (s *Store) WatchCollection(ctx context.Context, coll string) (<-chan core.Change, error) {
	coll, err := cleanPath(coll)
	if err != nil {
		return nil, err
	}
	w := queue.NewUnbounded[core.Change](ctx)

	s.mu.Lock()
	set, ok := s.collWatchers[coll]
	if !ok {
		set = make(map[*queue.Unbounded[core.Change]]struct{})
		s.collWatchers[coll] = set
	}
	set[w] = struct{}{}
	if c, ok := s.collections[coll]; ok {
		for _, id := range c.order {
			w.Push(core.Change{Type: core.ChangeAdded, Document: core.Document{ID: id, Data: c.records[id]}})
		}
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.collWatchers[coll], w)
		if len(s.collWatchers[coll]) == 0 {
			delete(s.collWatchers, coll)
		}
		s.mu.Unlock()
		w.Close()
	}()
	return w.Out(), nil
}

// Len is the number of documents plus collection records held by the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.docs)
	for _, c := range s.collections {
		n += len(c.order)
	}
	return n
}

// WatcherCount reports the number of live document and collection watchers.
func (s *Store) WatcherCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, set := range s.docWatchers {
		n += len(set)
	}
	for _, set := range s.collWatchers {
		n += len(set)
	}
	return n
}
