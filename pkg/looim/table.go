package looim

import (
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/sval"
	"github.com/yesquel/gaiakv/pkg/ts"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// DiskLoader resolves a COid's persisted checkpoint, if any, the first time
// the node touches an object it has no in-memory history for (spec §4.4.1,
// §4.4.8). pkg/diskstore implements this.
type DiskLoader interface {
	LoadCheckpoint(c coid.COid) (tucoid *txlog.TxUpdateCoid, at ts.Ts, ok bool)
}

// Table is the node-wide map from COid to its in-memory log, and the entry
// point for the lazily-created-on-first-touch lifecycle (spec §3.4).
type Table struct {
	disk DiskLoader

	mu      sync.Mutex
	objects map[coid.COid]*LogOneObjectInMemory
}

// NewTable returns an empty table backed by disk for checkpoint loads.
func NewTable(disk DiskLoader) *Table {
	return &Table{disk: disk, objects: make(map[coid.COid]*LogOneObjectInMemory)}
}

// GetAndLock returns the object for c, creating it on first reference (spec
// §4.4.1), and locks it in the requested mode. The caller must call the
// returned unlock function exactly once.
//
// On creation: if the disk loader has a checkpoint for c, it seeds the log
// with that checkpoint at its persisted timestamp; else if createFirst, an
// empty-Value checkpoint is seeded at ts.Lowest. If neither applies and the
// object does not yet exist, GetAndLock still returns an (empty) object —
// the caller's subsequent Read call surfaces TooOldVersion, matching what a
// genuinely absent object looks like to a reader.
func (tb *Table) GetAndLock(c coid.COid, write bool, createFirst bool, nodeID uint64) (*LogOneObjectInMemory, func()) {
	o := tb.getOrCreate(c, createFirst, nodeID)
	if write {
		o.mu.Lock()
		return o, o.mu.Unlock
	}
	o.mu.RLock()
	return o, o.mu.RUnlock
}

func (tb *Table) getOrCreate(c coid.COid, createFirst bool, nodeID uint64) *LogOneObjectInMemory {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if o, ok := tb.objects[c]; ok {
		return o
	}

	o := &LogOneObjectInMemory{Coid: c, CellType: keyinfo.IntKey}
	if tucoid, at, ok := tb.disk.LoadCheckpoint(c); ok {
		o.CellType = tucoid.CellType
		o.KeyInfo = tucoid.KeyInfo
		o.LogEntries = []*SLEIM{{Ts: at, Tucoid: tucoid}}
	} else if createFirst {
		empty := &txlog.TxUpdateCoid{HasWrite: true, Value: sval.Value(nil), SetAttrs: bitset.New(txlog.MaxAttrs)}
		o.LogEntries = []*SLEIM{{Ts: ts.Lowest(nodeID), Tucoid: empty}}
	}
	tb.objects[c] = o
	return o
}

// Get returns the object for c without creating it.
func (tb *Table) Get(c coid.COid) (*LogOneObjectInMemory, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	o, ok := tb.objects[c]
	return o, ok
}

// All returns every tracked COid and its object, for use by flush/GC sweeps.
func (tb *Table) All() map[coid.COid]*LogOneObjectInMemory {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	out := make(map[coid.COid]*LogOneObjectInMemory, len(tb.objects))
	for c, o := range tb.objects {
		out[c] = o
	}
	return out
}
