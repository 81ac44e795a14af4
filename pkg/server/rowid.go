package server

import (
	"sync"

	"github.com/yesquel/gaiakv/pkg/skiplist"
)

// RowidAllocator hands out unique, reusable i64-range rowids per cid (spec
// §6.1 #16 "splitter-assigned unique i64 per cid"). Freed ids are kept in a
// per-cid ordered free-list so the smallest available id is reused before
// the monotonic counter advances — an ordered min-extraction structure the
// original exposes via a skiplist, here backed by pkg/skiplist directly.
type RowidAllocator struct {
	mu    sync.Mutex
	next  map[uint64]uint64
	freed map[uint64]*skiplist.List[uint64]
}

// NewRowidAllocator returns an allocator with no cids tracked yet.
func NewRowidAllocator() *RowidAllocator {
	return &RowidAllocator{
		next:  make(map[uint64]uint64),
		freed: make(map[uint64]*skiplist.List[uint64]),
	}
}

// Next returns the smallest unused rowid for cid: a previously Free'd id if
// one exists, else the next never-issued value.
func (a *RowidAllocator) Next(cid uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if fl, ok := a.freed[cid]; ok {
		if id, ok := fl.RemoveFront(); ok {
			return id
		}
	}
	id := a.next[cid]
	a.next[cid] = id + 1
	return id
}

// Free returns rowid to cid's pool for reuse by a later Next call.
func (a *RowidAllocator) Free(cid, rowid uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fl, ok := a.freed[cid]
	if !ok {
		fl = skiplist.New(func(x, y uint64) bool { return x < y })
		a.freed[cid] = fl
	}
	fl.Insert(rowid)
}
