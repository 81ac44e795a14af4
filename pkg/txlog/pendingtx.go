package txlog

import (
	"sync"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/ts"
)

// TxStatus is a pending transaction's position in the 2PC state machine
// (spec §4.8).
type TxStatus int

const (
	StatusInProgress TxStatus = iota
	StatusVotedYes
	StatusVotedNo
	StatusClearedAbort
)

func (s TxStatus) String() string {
	switch s {
	case StatusInProgress:
		return "InProgress"
	case StatusVotedYes:
		return "VotedYes"
	case StatusVotedNo:
		return "VotedNo"
	case StatusClearedAbort:
		return "ClearedAbort"
	default:
		return "?"
	}
}

// PendingTxInfo is everything the storage node tracks about one in-flight
// transaction (spec §3.3, §4.8): its raw/compressed updates per COid, its
// current 2PC status, and whether its updates are safe to cache in the
// in-memory log before the commit record reaches the WAL.
type PendingTxInfo struct {
	Tid    ts.Tid
	Status TxStatus

	// UpdatesCachable is false whenever any coid in this transaction was
	// touched by a concurrent, already-committed write after this
	// transaction started — spec §4.5's guard against caching a
	// read-your-own-stale-write snapshot.
	UpdatesCachable bool

	mu       sync.Mutex
	coidinfo map[coid.COid]*TxRawCoid
}

// NewPendingTxInfo creates a fresh, in-progress pending transaction entry.
func NewPendingTxInfo(tid ts.Tid) *PendingTxInfo {
	return &PendingTxInfo{
		Tid:             tid,
		Status:          StatusInProgress,
		UpdatesCachable: true,
		coidinfo:        make(map[coid.COid]*TxRawCoid),
	}
}

// GetOrCreateCoid returns the raw update list for c, creating it on first
// touch with the cell type/collation the caller knows the coid's current
// value to have.
func (p *PendingTxInfo) GetOrCreateCoid(c coid.COid, ct func() *TxRawCoid) *TxRawCoid {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.coidinfo[c]; ok {
		return r
	}
	r := ct()
	p.coidinfo[c] = r
	return r
}

// Coids returns the set of COids this transaction has touched.
func (p *PendingTxInfo) Coids() []coid.COid {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]coid.COid, 0, len(p.coidinfo))
	for c := range p.coidinfo {
		out = append(out, c)
	}
	return out
}

// CoidInfo returns the raw update list recorded for c, if any.
func (p *PendingTxInfo) CoidInfo(c coid.COid) (*TxRawCoid, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.coidinfo[c]
	return r, ok
}

// AbortLevel applies a subtransaction abort across every coid this
// transaction has touched, dropping any coid whose raw list becomes empty
// (spec §4.5, §8.1 subtransaction laws).
func (p *PendingTxInfo) AbortLevel(level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c, r := range p.coidinfo {
		if r.AbortLevel(level) {
			delete(p.coidinfo, c)
		}
	}
}

// ReleaseLevel commits a subtransaction into its parent level across every
// coid this transaction has touched (spec §4.5).
func (p *PendingTxInfo) ReleaseLevel(level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.coidinfo {
		r.ReleaseLevel(level)
	}
}

// Table is the per-node pending-transaction table (spec §3.3): the set of
// transactions currently between BeginTx and Commit/Abort.
type Table struct {
	mu  sync.Mutex
	txs map[ts.Tid]*PendingTxInfo
}

// NewTable returns an empty pending-transaction table.
func NewTable() *Table {
	return &Table{txs: make(map[ts.Tid]*PendingTxInfo)}
}

// GetOrCreate returns the PendingTxInfo for tid, creating an in-progress
// entry on first reference.
func (tb *Table) GetOrCreate(tid ts.Tid) *PendingTxInfo {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if p, ok := tb.txs[tid]; ok {
		return p
	}
	p := NewPendingTxInfo(tid)
	tb.txs[tid] = p
	return p
}

// Get returns the PendingTxInfo for tid, if it is still in the table.
func (tb *Table) Get(tid ts.Tid) (*PendingTxInfo, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	p, ok := tb.txs[tid]
	return p, ok
}

// Remove drops tid from the table — called once the commit/abort record has
// been durably written and every coid's in-memory log has been updated
// (spec §4.8).
func (tb *Table) Remove(tid ts.Tid) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	delete(tb.txs, tid)
}

// Len returns the number of transactions currently tracked, i.e. everything
// between BeginTx and Commit/Abort. Exposed for the node's system metrics
// (pkg/metrics's pending-tx gauge).
func (tb *Table) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.txs)
}

// ConflictsWithPrepared reports whether cand's updates to coid c conflict
// with any other transaction in the table that has already voted yes on c
// (spec §4.5.1, the prepare-time conflict check). excl is cand's own tid,
// skipped during the scan.
func (tb *Table) ConflictsWithPrepared(c coid.COid, cand *TxUpdateCoid, excl ts.Tid) bool {
	tb.mu.Lock()
	candidates := make([]*PendingTxInfo, 0, len(tb.txs))
	for tid, p := range tb.txs {
		if tid == excl || p.Status != StatusVotedYes {
			continue
		}
		candidates = append(candidates, p)
	}
	tb.mu.Unlock()

	for _, p := range candidates {
		r, ok := p.CoidInfo(c)
		if !ok {
			continue
		}
		if HasConflicts(cand, r.Compress()) {
			return true
		}
	}
	return false
}
