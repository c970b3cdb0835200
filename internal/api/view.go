package api

import (
	"sync"

	"logfilters/internal/filters"
)

// View is the HTTP surface of one presenter. It keeps the latest item list
// so reads never go through the presenter loop.
type View struct {
	mu      sync.RWMutex
	items   []filters.DisplayItem
	empty   bool
	version uint64
}

func NewView() *View {
	return &View{empty: true}
}

func (v *View) OnItemsChanged(items []filters.DisplayItem, isEmpty bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = items
	v.empty = isEmpty
	v.version++
}

type Snapshot struct {
	Items   []filters.DisplayItem `json:"items"`
	Empty   bool                  `json:"empty"`
	Version uint64                `json:"version"`
}

func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	items := make([]filters.DisplayItem, len(v.items))
	copy(items, v.items)
	return Snapshot{Items: items, Empty: v.empty, Version: v.version}
}

// Sources returns the records behind the current items, in display order.
func (v *View) Sources() []filters.Record {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]filters.Record, len(v.items))
	for i, item := range v.items {
		out[i] = item.Source
	}
	return out
}
