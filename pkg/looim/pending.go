package looim

import (
	"fmt"

	"github.com/yesquel/gaiakv/pkg/metrics"
	"github.com/yesquel/gaiakv/pkg/ts"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// AddPending inserts a prepared-but-uncommitted version (spec §4.4.4). The
// returned *PendingSLEIM is an opaque handle the 2PC driver must pass back
// to RemoveOrMovePending to promote or drop it.
//
// AddPending takes the object's lock itself; callers already holding it
// should use AddPendingLocked.
func (o *LogOneObjectInMemory) AddPending(t ts.Ts, tucoid *txlog.TxUpdateCoid) *PendingSLEIM {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.AddPendingLocked(t, tucoid)
}

// AddPendingLocked is AddPending's core, assuming the caller already holds
// the object's write lock.
func (o *LogOneObjectInMemory) AddPendingLocked(t ts.Ts, tucoid *txlog.TxUpdateCoid) *PendingSLEIM {
	p := &PendingSLEIM{Ts: t}
	p.Tucoid = tucoid
	idx := sortedInsertIndexPending(o.PendingEntries, t)
	o.PendingEntries = append(o.PendingEntries, nil)
	copy(o.PendingEntries[idx+1:], o.PendingEntries[idx:])
	o.PendingEntries[idx] = p
	return p
}

// RemoveOrMovePending resolves a prepared version (spec §4.4.5): on commit
// (move=true) it becomes a committed SLEIM at finalTs; on abort (move=false)
// it is simply dropped. Either way, waiters blocked on it are woken or
// re-queued against the next-earliest blocking pending entry.
//
// RemoveOrMovePending takes the object's lock itself; callers already
// holding it should use RemoveOrMovePendingLocked.
func (o *LogOneObjectInMemory) RemoveOrMovePending(p *PendingSLEIM, finalTs ts.Ts, move bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.RemoveOrMovePendingLocked(p, finalTs, move)
}

// RemoveOrMovePendingLocked is RemoveOrMovePending's core, assuming the
// caller already holds the object's write lock.
func (o *LogOneObjectInMemory) RemoveOrMovePendingLocked(p *PendingSLEIM, finalTs ts.Ts, move bool) error {
	idx := -1
	for i, e := range o.PendingEntries {
		if e == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("looim: remove_or_move_pending: unknown pending entry")
	}
	o.PendingEntries = append(o.PendingEntries[:idx], o.PendingEntries[idx+1:]...)

	if move {
		entry := &SLEIM{Ts: finalTs, Tucoid: p.Tucoid, Flags: FlagDirty}
		pos := sortedInsertIndexSLEIM(o.LogEntries, finalTs)
		o.LogEntries = append(o.LogEntries, nil)
		copy(o.LogEntries[pos+1:], o.LogEntries[pos:])
		o.LogEntries[pos] = entry
	}

	o.wakeOrRequeue(p.Waiters)
	o.gcLocked(finalTs)
	return nil
}

// wakeOrRequeue implements the deferred-reader wake-up step of
// RemoveOrMovePending: a waiter wakes once no remaining pending entry still
// blocks its threshold; otherwise it moves to the earliest pending entry
// that still does.
func (o *LogOneObjectInMemory) wakeOrRequeue(waiters []Waiter) {
	for _, w := range waiters {
		var blocker *PendingSLEIM
		for _, e := range o.PendingEntries {
			if e.Ts.Cmp(w.Threshold) <= 0 {
				blocker = e
				break
			}
		}
		if blocker == nil {
			w.Handle.Wake()
			metrics.DeferredReaders.Dec()
			continue
		}
		blocker.Waiters = append(blocker.Waiters, w)
		if blocker.WaitingTs.IsIllegal() || blocker.WaitingTs.Less(w.Threshold) {
			blocker.WaitingTs = w.Threshold
		}
	}
}
