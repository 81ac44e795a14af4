package looim

import (
	"fmt"

	"github.com/yesquel/gaiakv/pkg/ts"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// Write inserts a committed SLEIM at ts (spec §4.4.3). If singleVersion is
// set, every entry older than the resulting latest checkpoint is discarded
// immediately after insertion instead of relying on gc_log's staleness
// window — this node keeps only the newest version of every object. The
// truncation does not check for readers deferred on pending entries; one
// that later retries at a timestamp before the kept checkpoint gets
// ErrTooOldVersion.
//
// Write takes the object's lock itself; callers that already hold it (e.g.
// the 2PC driver composing several looim calls under one Table.GetAndLock
// critical section) should call WriteLocked instead.
func (o *LogOneObjectInMemory) Write(t ts.Ts, tucoid *txlog.TxUpdateCoid, singleVersion bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.WriteLocked(t, tucoid, singleVersion)
}

// WriteLocked is Write's core, assuming the caller already holds the
// object's write lock.
func (o *LogOneObjectInMemory) WriteLocked(t ts.Ts, tucoid *txlog.TxUpdateCoid, singleVersion bool) error {
	idx := sortedInsertIndexSLEIM(o.LogEntries, t)
	if idx < len(o.LogEntries) && o.LogEntries[idx].Ts.Equal(t) {
		return fmt.Errorf("looim: write: duplicate timestamp %s", t)
	}

	if idx > 0 && isIdempotentAdd(o.LogEntries[idx-1], tucoid) {
		return nil
	}

	entry := &SLEIM{Ts: t, Tucoid: tucoid, Flags: FlagDirty}
	o.LogEntries = append(o.LogEntries, nil)
	copy(o.LogEntries[idx+1:], o.LogEntries[idx:])
	o.LogEntries[idx] = entry

	if singleVersion {
		o.truncateToLatestCheckpoint()
		return nil
	}
	o.gcLocked(t)
	return nil
}

// isIdempotentAdd reports whether tucoid is a single Add whose cell already
// matches what's recorded in prev, when prev is a SNAPSHOT checkpoint (spec
// §4.4.3 optimization: suppress redundant re-adds of the same cell).
func isIdempotentAdd(prev *SLEIM, tucoid *txlog.TxUpdateCoid) bool {
	if prev.Flags&FlagSnapshot == 0 || !prev.Tucoid.HasWriteSV {
		return false
	}
	if tucoid.IsWrite() || len(tucoid.Litems) != 1 {
		return false
	}
	it := tucoid.Litems[0]
	if it.Kind != txlog.ItemAdd {
		return false
	}
	existing, ok := prev.Tucoid.SV.Get(it.Cell.Key)
	return ok && existing.Value == it.Cell.Value
}

func (o *LogOneObjectInMemory) truncateToLatestCheckpoint() {
	ckIdx := -1
	for i := len(o.LogEntries) - 1; i >= 0; i-- {
		if o.LogEntries[i].Tucoid.IsWrite() {
			ckIdx = i
			break
		}
	}
	if ckIdx > 0 {
		o.LogEntries = append([]*SLEIM{}, o.LogEntries[ckIdx:]...)
	}
}
