// Package market holds the shared instrument registry and per-instrument tick graphs.
package market

import (
	"sort"
	"sync"

	"github.com/rewired-gh/marketwatch/internal/models"
)

// Share is a read-only view of one registry entry.
type Share struct {
	models.Instrument
	models.Snapshot
	GraphLen int
}

type entry struct {
	inst  models.Instrument
	snap  models.Snapshot
	graph *Graph
}

// Market maps instrument codes to their latest snapshot and tick graph.
// Any number of readers or a single writer may hold it at a time.
type Market struct {
	mu            sync.RWMutex
	entries       map[string]*entry
	graphCapacity int
}

func New() *Market {
	return NewWithCapacity(GraphCapacity)
}

// NewWithCapacity creates a registry whose graphs hold at most capacity ticks.
func NewWithCapacity(capacity int) *Market {
	return &Market{
		entries:       make(map[string]*entry),
		graphCapacity: capacity,
	}
}

// AddOrUpdate stores snap for inst, creating the entry and its graph on first
// insert. An existing graph is preserved.
func (m *Market) AddOrUpdate(inst models.Instrument, snap models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[inst.Code]; ok {
		e.snap = snap
		return
	}
	m.entries[inst.Code] = &entry{
		inst:  inst,
		snap:  snap,
		graph: NewGraph(m.graphCapacity),
	}
}

// UpdateIfPresent overwrites the snapshot only if code is still registered and
// returns the snapshot it replaced. It never recreates a removed entry.
func (m *Market) UpdateIfPresent(code string, snap models.Snapshot) (models.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[code]
	if !ok {
		return models.Snapshot{}, false
	}
	prev := e.snap
	e.snap = snap
	return prev, true
}

// UpsertTicks feeds ticks into the graph of code if it is still registered and
// returns the resulting graph length.
func (m *Market) UpsertTicks(code string, ticks []models.Tick) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[code]
	if !ok {
		return 0, false
	}
	for _, t := range ticks {
		e.graph.Upsert(t)
	}
	return e.graph.Len(), true
}

func (m *Market) Remove(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[code]; !ok {
		return false
	}
	delete(m.entries, code)
	return true
}

func (m *Market) Contains(code string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[code]
	return ok
}

// Get returns a copy of the entry for code.
func (m *Market) Get(code string) (Share, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[code]
	if !ok {
		return Share{}, false
	}
	return Share{Instrument: e.inst, Snapshot: e.snap, GraphLen: e.graph.Len()}, true
}

// ReadGraph calls fn with the graph of code while holding the read lock.
// fn must not retain the graph or call back into the registry.
func (m *Market) ReadGraph(code string, fn func(g *Graph)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[code]
	if !ok {
		return false
	}
	fn(e.graph)
	return true
}

// Codes returns the registered codes in ascending order.
func (m *Market) Codes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	codes := make([]string, 0, len(m.entries))
	for code := range m.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// CodesWithKind returns every registered instrument ordered by code.
func (m *Market) CodesWithKind() []models.Instrument {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Instrument, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Len returns the number of registered instruments.
func (m *Market) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
