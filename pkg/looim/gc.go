package looim

import (
	"github.com/yesquel/gaiakv/pkg/metrics"
	"github.com/yesquel/gaiakv/pkg/ts"
)

// StaleUs is the age, in microseconds, a checkpoint must reach before
// gc_log is willing to discard everything before it (spec §4.4.6). It is a
// package variable; nothing in internal/config sets it, and tests override
// it directly.
var StaleUs uint64 = 30_000_000 // 30s

// GCLog discards every entry strictly before the newest checkpoint whose ts
// is older than referenceTs - StaleUs, returning the number of entries
// removed. Idempotent. GCLog takes the object's lock itself, so it must not
// be called while that lock is held; gcLocked is the locked variant.
func (o *LogOneObjectInMemory) GCLog(referenceTs ts.Ts) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gcLocked(referenceTs)
}

func (o *LogOneObjectInMemory) gcLocked(referenceTs ts.Ts) int {
	threshold := referenceTs.SubMicros(StaleUs)

	ckIdx := -1
	for i := len(o.LogEntries) - 1; i >= 0; i-- {
		if o.LogEntries[i].Tucoid.IsWrite() && o.LogEntries[i].Ts.Less(threshold) {
			ckIdx = i
			break
		}
	}
	if ckIdx <= 0 {
		return 0
	}
	o.LogEntries = append([]*SLEIM{}, o.LogEntries[ckIdx:]...)
	metrics.GCPasses.Inc()
	metrics.GCEntriesReclaimed.Add(int64(ckIdx))
	return ckIdx
}
