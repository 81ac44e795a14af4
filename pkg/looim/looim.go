// Package looim implements the in-memory, per-COid multi-version log: the
// read/write/pending-entry/GC machinery that sits between the pending-tx
// table (pkg/txlog) and durable storage (pkg/wal, pkg/diskstore).
package looim

import (
	"sync"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/ts"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// SLEIMFlags tags a committed log entry.
type SLEIMFlags uint8

const (
	// FlagDirty marks an entry not yet flushed to the WAL/disk checkpoint.
	FlagDirty SLEIMFlags = 1 << iota
	// FlagSnapshot marks an entry synthesized by a read to cache a
	// materialized SuperValue, rather than recorded from a live write.
	FlagSnapshot
)

// SLEIM (SingleLogEntryInMemory) is one committed version of a COid.
type SLEIM struct {
	Ts     ts.Ts
	Tucoid *txlog.TxUpdateCoid
	Flags  SLEIMFlags
}

// Waiter is a deferred reader blocked on a pending entry: it resumes once no
// pending entry at or below Threshold remains.
type Waiter struct {
	Handle    DeferredReader
	Threshold ts.Ts
}

// DeferredReader is a suspended read RPC task. Wake is called from inside
// the object's write lock when the last blocking pending entry clears, so
// implementations must not synchronously re-enter the looim.
type DeferredReader interface {
	Wake()
}

// PendingSLEIM is one prepared-but-not-yet-committed version of a COid.
type PendingSLEIM struct {
	Ts        ts.Ts
	Tucoid    *txlog.TxUpdateCoid
	Waiters   []Waiter
	WaitingTs ts.Ts // max threshold among Waiters; illegal if no waiters
}

// LogOneObjectInMemory holds the full version history of one COid.
type LogOneObjectInMemory struct {
	Coid     coid.COid
	CellType keyinfo.CellType
	KeyInfo  *keyinfo.RcKeyInfo

	mu sync.RWMutex

	LogEntries     []*SLEIM        // ascending by Ts, ts unique, at least one checkpoint
	PendingEntries []*PendingSLEIM // ascending by Ts

	LastRead ts.Ts
}

// Lock/Unlock expose the object's lock to the 2PC driver
// (pkg/server), which must hold it across Read/Write/AddPending/
// RemoveOrMovePending per the component's concurrency contract (reads can
// insert cached snapshots, so even reads take the write lock).
func (o *LogOneObjectInMemory) Lock()   { o.mu.Lock() }
func (o *LogOneObjectInMemory) Unlock() { o.mu.Unlock() }

func latestLE(entries []*SLEIM, bound ts.Ts) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].Ts.Cmp(bound) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

func sortedInsertIndexSLEIM(entries []*SLEIM, t ts.Ts) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].Ts.Less(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func sortedInsertIndexPending(entries []*PendingSLEIM, t ts.Ts) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].Ts.Less(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
