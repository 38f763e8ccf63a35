package cloud

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Memory is an in-process Store. It backs tests and offline runs.
//
// The hook fields let tests inject failures or latency; they are read
// without locking and must be set before the store is shared.
type Memory struct {
	mu    sync.Mutex
	colls map[string]map[string]Document
	subs  map[string][]chan Change

	adds atomic.Int64

	// BeforeAdd runs before every Add; a non-nil error fails the call
	BeforeAdd func(collection string, doc Document) error
	// BeforeRead runs before List, Where and Get; a non-nil error fails the call
	BeforeRead func(collection string) error
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		colls: make(map[string]map[string]Document),
		subs:  make(map[string][]chan Change),
	}
}

// Adds returns how many Add calls created a document
func (m *Memory) Adds() int64 {
	return m.adds.Load()
}

// Len returns the number of documents in a collection
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.colls[collection])
}

func (m *Memory) Add(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.BeforeAdd != nil {
		if err := m.BeforeAdd(collection, doc); err != nil {
			return "", err
		}
	}
	id := NewID()
	m.put(collection, id, doc)
	m.adds.Add(1)
	return id, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.put(collection, id, doc)
	return nil
}

func (m *Memory) put(collection, id string, doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[collection]
	if !ok {
		c = make(map[string]Document)
		m.colls[collection] = c
	}
	typ := ChangeAdded
	if _, exists := c[id]; exists {
		typ = ChangeModified
	}
	c[id] = cloneDoc(doc)
	m.notify(Change{Type: typ, Collection: collection, Doc: Snapshot{ID: id, Data: cloneDoc(doc)}})
}

func (m *Memory) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	if err := m.beforeRead(ctx, collection); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.colls[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Snapshot{ID: id, Data: cloneDoc(doc)}, nil
}

func (m *Memory) List(ctx context.Context, collection string) ([]Snapshot, error) {
	return m.Where(ctx, collection, "", nil)
}

func (m *Memory) Where(ctx context.Context, collection, field string, value any) ([]Snapshot, error) {
	if err := m.beforeRead(ctx, collection); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Snapshot
	for id, doc := range m.colls[collection] {
		if field != "" && !fieldEquals(doc[field], value) {
			continue
		}
		out = append(out, Snapshot{ID: id, Data: cloneDoc(doc)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.colls[collection][id]; ok {
		delete(m.colls[collection], id)
		m.notify(Change{Type: ChangeRemoved, Collection: collection, Doc: Snapshot{ID: id, Data: doc}})
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for coll, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(m.subs, coll)
	}
	return nil
}

// Watch streams changes to a collection until ctx is done
func (m *Memory) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	ch := make(chan Change, 64)
	m.mu.Lock()
	m.subs[collection] = append(m.subs[collection], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[collection]
		for i, c := range subs {
			if c == ch {
				m.subs[collection] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch, nil
}

// notify must be called with mu held. Slow watchers miss changes rather
// than block writers.
func (m *Memory) notify(c Change) {
	for _, ch := range m.subs[c.Collection] {
		select {
		case ch <- c:
		default:
		}
	}
}

func (m *Memory) beforeRead(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.BeforeRead != nil {
		return m.BeforeRead(collection)
	}
	return nil
}

// fieldEquals compares document values loosely so that numbers decoded
// from JSON match integers written by Go callers.
func fieldEquals(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	fa, aok := asFloat(a)
	fb, bok := asFloat(b)
	return aok && bok && fa == fb
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

var (
	_ Store   = (*Memory)(nil)
	_ Watcher = (*Memory)(nil)
)
