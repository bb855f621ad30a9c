// Package memstore is an in-memory Store. Entities are versioned by block
// number so queries see the state as of the block they ask for.
package memstore

import (
	"context"
	"sort"
	"sync"

	store "github.com/hanpama/entityql/internal/store"
)

type entityKey struct {
	subgraph   store.DeploymentHash
	entityType string
}

// version is the state of one entity from block on. A nil entity is a
// removal.
type version struct {
	block  store.BlockNumber
	entity *store.Entity
}

type table struct {
	ids      []string
	versions map[string][]version
}

// Store keeps entities in memory.
type Store struct {
	mu        sync.RWMutex
	tables    map[entityKey]*table
	latest    store.BlockNumber
	listeners map[int]func(store.EntityChange)
	nextID    int
}

func New() *Store {
	return &Store{
		tables:    make(map[entityKey]*table),
		listeners: make(map[int]func(store.EntityChange)),
	}
}

// OnChange registers fn to be called after every write.
func (s *Store) OnChange(fn func(store.EntityChange)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// LatestBlock returns the highest block written so far.
func (s *Store) LatestBlock() store.BlockNumber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Set writes e as of block.
func (s *Store) Set(subgraph store.DeploymentHash, block store.BlockNumber, e store.Entity) {
	attrs := make(map[string]store.Value, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	cp := store.Entity{Type: e.Type, Attributes: attrs}
	s.write(subgraph, block, e.Type, e.ID(), &cp)
	s.notify(store.EntityChange{SubgraphID: subgraph, EntityType: e.Type, EntityID: e.ID(), Operation: store.ChangeSet})
}

// Remove deletes an entity as of block.
func (s *Store) Remove(subgraph store.DeploymentHash, block store.BlockNumber, entityType, id string) {
	s.write(subgraph, block, entityType, id, nil)
	s.notify(store.EntityChange{SubgraphID: subgraph, EntityType: entityType, EntityID: id, Operation: store.ChangeRemoved})
}

func (s *Store) write(subgraph store.DeploymentHash, block store.BlockNumber, entityType, id string, e *store.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{subgraph: subgraph, entityType: entityType}
	t := s.tables[key]
	if t == nil {
		t = &table{versions: make(map[string][]version)}
		s.tables[key] = t
	}
	vs, ok := t.versions[id]
	if !ok {
		t.ids = append(t.ids, id)
	}
	// Versions stay sorted by block; a write at an existing block replaces it.
	i := sort.Search(len(vs), func(i int) bool { return vs[i].block >= block })
	switch {
	case i < len(vs) && vs[i].block == block:
		vs[i].entity = e
	default:
		vs = append(vs, version{})
		copy(vs[i+1:], vs[i:])
		vs[i] = version{block: block, entity: e}
	}
	t.versions[id] = vs
	if block > s.latest {
		s.latest = block
	}
}

func (s *Store) notify(c store.EntityChange) {
	s.mu.RLock()
	fns := make([]func(store.EntityChange), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

// at returns the entity as of block, or nil.
func (t *table) at(id string, block store.BlockNumber) *store.Entity {
	vs := t.versions[id]
	i := sort.Search(len(vs), func(i int) bool { return vs[i].block > block })
	if i == 0 {
		return nil
	}
	return vs[i-1].entity
}

// FindEntities evaluates q: filter, then order, then the window, then the
// attribute selection of each entity's type.
func (s *Store) FindEntities(ctx context.Context, q store.EntityQuery) ([]store.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var matched []store.Entity
	for _, c := range q.Collection {
		t := s.tables[entityKey{subgraph: q.SubgraphID, entityType: c.EntityType}]
		if t == nil {
			continue
		}
		for _, id := range t.ids {
			e := t.at(id, q.Block)
			if e == nil {
				continue
			}
			if q.Filter != nil && !matches(*q.Filter, e.Attributes) {
				continue
			}
			matched = append(matched, *e)
		}
	}
	s.mu.RUnlock()

	sortEntities(matched, q.Order)
	matched = window(matched, q.Range)

	attrs := make(map[string]store.AttributeNames, len(q.Collection))
	for _, c := range q.Collection {
		attrs[c.EntityType] = c.Attributes
	}
	out := make([]store.Entity, len(matched))
	for i, e := range matched {
		out[i] = project(e, attrs[e.Type])
	}
	return out, nil
}

func sortEntities(es []store.Entity, order store.EntityOrder) {
	byID := func(a, b store.Entity) int {
		if a.ID() != b.ID() {
			if a.ID() < b.ID() {
				return -1
			}
			return 1
		}
		switch {
		case a.Type < b.Type:
			return -1
		case a.Type > b.Type:
			return 1
		}
		return 0
	}
	sort.SliceStable(es, func(i, j int) bool {
		if order.Direction == store.OrderDefault || order.Attribute == "" {
			return byID(es[i], es[j]) < 0
		}
		c := compareNullsLast(es[i].Attributes[order.Attribute], es[j].Attributes[order.Attribute])
		if order.Direction == store.OrderDescending {
			c = -c
		}
		if c == 0 {
			return byID(es[i], es[j]) < 0
		}
		return c < 0
	})
}

func compareNullsLast(a, b store.Value) int {
	an, bn := isNull(a), isNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	c, ok := compare(a, b)
	if !ok {
		// Mixed kinds order by their display form.
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	}
	return c
}

func window(es []store.Entity, r store.EntityRange) []store.Entity {
	skip := int(r.Skip)
	if skip >= len(es) {
		return nil
	}
	es = es[skip:]
	if r.First != nil && int(*r.First) < len(es) {
		es = es[:*r.First]
	}
	return es
}

func project(e store.Entity, names store.AttributeNames) store.Entity {
	attrs := make(map[string]store.Value, len(e.Attributes))
	for k, v := range e.Attributes {
		if k == "id" || names.Contains(k) {
			attrs[k] = v
		}
	}
	return store.Entity{Type: e.Type, Attributes: attrs}
}
