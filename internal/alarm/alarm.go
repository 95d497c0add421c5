// Package alarm keeps the one-shot price thresholds set per instrument.
package alarm

import (
	"sort"
	"sync"
)

// Registry maps instrument codes to an ascending set of distinct price thresholds.
type Registry struct {
	mu     sync.RWMutex
	alarms map[string][]int64
}

func New() *Registry {
	return &Registry{alarms: make(map[string][]int64)}
}

// Set adds price to the thresholds of code unless it is already present.
func (r *Registry) Set(code string, price int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.alarms[code]
	i := sort.Search(len(v), func(i int) bool { return v[i] >= price })
	if i < len(v) && v[i] == price {
		return
	}
	v = append(v, 0)
	copy(v[i+1:], v[i:])
	v[i] = price
	r.alarms[code] = v
}

// Remove deletes price from code and reports whether it was present.
// The code itself is dropped once its last threshold is gone.
func (r *Registry) Remove(code string, price int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.alarms[code]
	if !ok {
		return false
	}
	i := sort.Search(len(v), func(i int) bool { return v[i] >= price })
	if i == len(v) || v[i] != price {
		return false
	}
	r.removeAt(code, v, i, 1)
	return true
}

// Fire removes and returns every threshold of code lying in the closed
// interval spanned by prev and next. A price landing exactly on a threshold
// counts as a crossing, including prev == next == threshold.
func (r *Registry) Fire(code string, prev, next int64) []int64 {
	lo, hi := prev, next
	if lo > hi {
		lo, hi = hi, lo
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.alarms[code]
	if !ok {
		return nil
	}
	start := sort.Search(len(v), func(i int) bool { return v[i] >= lo })
	end := sort.Search(len(v), func(i int) bool { return v[i] > hi })
	if start >= end {
		return nil
	}

	fired := make([]int64, end-start)
	copy(fired, v[start:end])
	r.removeAt(code, v, start, end-start)
	return fired
}

func (r *Registry) removeAt(code string, v []int64, i, n int) {
	v = append(v[:i], v[i+n:]...)
	if len(v) == 0 {
		delete(r.alarms, code)
		return
	}
	r.alarms[code] = v
}

// Get returns a copy of the thresholds of code.
func (r *Registry) Get(code string) ([]int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.alarms[code]
	if !ok {
		return nil, false
	}
	out := make([]int64, len(v))
	copy(out, v)
	return out, true
}

// Codes returns the codes that have at least one threshold, ascending.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.alarms))
	for code := range r.alarms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Snapshot returns a deep copy of every alarm set.
func (r *Registry) Snapshot() map[string][]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]int64, len(r.alarms))
	for code, v := range r.alarms {
		cp := make([]int64, len(v))
		copy(cp, v)
		out[code] = cp
	}
	return out
}

// Crosses reports whether target lies between prev and next inclusive.
func Crosses(prev, next, target int64) bool {
	lo, hi := prev, next
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo <= target && target <= hi
}
