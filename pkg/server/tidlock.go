package server

import (
	"sync"

	"github.com/yesquel/gaiakv/pkg/ts"
)

// tidLocks serializes every RPC touching a given tid's PendingTxInfo. The
// original design maps a tid deterministically to the one worker thread
// that demuxes its RPCs (spec §5), so PendingTxInfo itself needs no lock;
// pkg/transport instead dispatches every frame to its own goroutine
// regardless of tid, so this mutex-per-tid map stands in for that
// thread-affinity guarantee.
type tidLocks struct {
	mu    sync.Mutex
	locks map[ts.Tid]*sync.Mutex
}

func newTidLocks() *tidLocks {
	return &tidLocks{locks: make(map[ts.Tid]*sync.Mutex)}
}

func (t *tidLocks) lock(tid ts.Tid) func() {
	t.mu.Lock()
	l, ok := t.locks[tid]
	if !ok {
		l = &sync.Mutex{}
		t.locks[tid] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// forget drops tid's lock entry once its transaction has been fully
// resolved (commit/abort), so the map doesn't grow unbounded. Safe to call
// right after the corresponding lock() call's unlock, since no new locker
// can have observed the entry being removed mid-critical-section.
func (t *tidLocks) forget(tid ts.Tid) {
	t.mu.Lock()
	delete(t.locks, tid)
	t.mu.Unlock()
}
