// Package splitter implements the client-side splitter interface (spec
// §4.7): per-COid load statistics, heavy-hitter detection, and a
// deduplicated, throttled dispatch queue of split requests. The splitter
// thread's own decision logic (where exactly to place a new node, how to
// migrate data) is out of scope (spec's Non-goals) — this package only
// detects when a COid is hot enough to warrant a split and asks for one.
package splitter

import (
	"sort"
	"sync"
	"time"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
)

// cellCount is one cell's access count within a COid, kept in key order so
// Check can walk cumulative counts to find the 50% split point (spec
// §4.7: "finds the cell index where cumulative count crosses 50%").
type cellCount struct {
	key   keyinfo.Key
	count int
}

// coidStat accumulates one COid's access history for the current
// StatIntervalMs period (spec's original_source/src/loadstats.cpp
// COidStat). The first access to a COid is deliberately not recorded at
// cell granularity — most COids are touched once per period, and
// tracking per-cell counts for all of them would be wasted work.
type coidStat struct {
	hits     int
	ct       keyinfo.CellType
	ki       *keyinfo.RcKeyInfo
	cells    []cellCount
	seenOnce bool
}

// SplitRequest names a COid that crossed the heavy-hitter threshold and
// the cell at which it should be split (spec §4.7 SplitNode(coid,
// split-cell)).
type SplitRequest struct {
	Coid      coid.COid
	SplitCell keyinfo.Key
}

// LoadStats tracks per-COid and per-cell access counts over a rolling
// period and, on Check, reports heavy hitters as SplitRequests.
type LoadStats struct {
	mu                sync.Mutex
	stats             map[coid.COid]*coidStat
	periodStart       time.Time
	statInterval      time.Duration
	heavyHitterThresh int
}

// NewLoadStats returns a LoadStats that evaluates heavy hitters every
// statInterval, flagging any COid whose Hits exceed heavyHitterThreshold.
func NewLoadStats(statInterval time.Duration, heavyHitterThreshold int) *LoadStats {
	return &LoadStats{
		stats:             make(map[coid.COid]*coidStat),
		periodStart:       time.Time{},
		statInterval:      statInterval,
		heavyHitterThresh: heavyHitterThreshold,
	}
}

// Report records one access to coid's cell (spec §4.7 report(coid, cell)).
// ct/ki describe the COid's SuperValue cell collation, needed to keep
// cells in key order for the eventual split-point search; they are
// ignored (and may be zero) for a COid's first-ever access in a period.
func (l *LoadStats) Report(c coid.COid, cell keyinfo.Key, ct keyinfo.CellType, ki *keyinfo.RcKeyInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.periodStart.IsZero() {
		l.periodStart = time.Now()
	}

	cs, ok := l.stats[c]
	if !ok {
		// First access: record existence only, matching the original's
		// "do not record exact cell for the first access" — most COids
		// are touched once per period and never become heavy hitters.
		l.stats[c] = &coidStat{}
		return
	}
	if !cs.seenOnce {
		cs.seenOnce = true
		cs.ct = ct
		cs.ki = ki
	}
	cs.hits++
	cs.bump(cell, ct, ki)
}

func (cs *coidStat) bump(key keyinfo.Key, ct keyinfo.CellType, ki *keyinfo.RcKeyInfo) {
	idx := sort.Search(len(cs.cells), func(i int) bool {
		return keyinfo.Cmp(ct, ki, cs.cells[i].key, key) >= 0
	})
	if idx < len(cs.cells) && keyinfo.Cmp(ct, ki, cs.cells[idx].key, key) == 0 {
		cs.cells[idx].count++
		return
	}
	cs.cells = append(cs.cells, cellCount{})
	copy(cs.cells[idx+1:], cs.cells[idx:])
	cs.cells[idx] = cellCount{key: key, count: 1}
}

// Check reports whether statInterval has elapsed since the last period
// started; if so it returns every heavy hitter's SplitRequest and resets
// for a new period (spec §4.7 check()).
func (l *LoadStats) Check(now time.Time) []SplitRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.periodStart.IsZero() || now.Sub(l.periodStart) < l.statInterval {
		return nil
	}

	var reqs []SplitRequest
	for c, cs := range l.stats {
		if cs.hits <= l.heavyHitterThresh || len(cs.cells) == 0 {
			continue
		}
		half := cs.hits / 2
		count := 0
		splitIdx := len(cs.cells) - 1
		for i, cc := range cs.cells {
			count += cc.count
			if count >= half {
				splitIdx = i
				break
			}
		}
		reqs = append(reqs, SplitRequest{Coid: c, SplitCell: cs.cells[splitIdx].key})
	}

	l.stats = make(map[coid.COid]*coidStat)
	l.periodStart = now
	return reqs
}

// Snapshot returns a read-only view of the current period's hit counts,
// for the admin console's splitter command (spec §6.6).
func (l *LoadStats) Snapshot() map[coid.COid]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[coid.COid]int, len(l.stats))
	for c, cs := range l.stats {
		out[c] = cs.hits
	}
	return out
}
