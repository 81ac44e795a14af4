package txlog

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/sval"
)

// TxRawCoid is the ordered, uncompressed raw update list a transaction has
// recorded against one COid (spec §3.3). It is owned by a single
// PendingTxInfo and, per spec §5, accessed only by the one worker thread
// that demuxes RPCs for that tid — the mutex here guards against the
// concurrent GetOrCompress / compression-cache-invalidation race when a
// deferred RPC continuation runs on a different scheduler tick than the one
// that appended the item, not against genuine multi-threaded contention.
type TxRawCoid struct {
	mu       sync.Mutex
	Items    []TxListItem
	CellType keyinfo.CellType
	KeyInfo  *keyinfo.RcKeyInfo

	cached *TxUpdateCoid // lazily computed, invalidated by Append/AbortLevel/ReleaseLevel
}

// NewTxRawCoid creates an empty raw update list for a COid whose
// SuperValue cells (if any) use the given cell type/collation.
func NewTxRawCoid(ct keyinfo.CellType, ki *keyinfo.RcKeyInfo) *TxRawCoid {
	return &TxRawCoid{CellType: ct, KeyInfo: ki}
}

// Append records a new raw item, invalidating the compression cache (spec
// §3.3 invariant: "the cached tucoid is invalidated on any new modification
// to the raw list").
func (r *TxRawCoid) Append(item TxListItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Items = append(r.Items, item)
	r.cached = nil
}

// Compress returns the compressed TxUpdateCoid for this raw list, computing
// and caching it on first call (spec §4.5). Compression is idempotent and
// pure given an immutable raw list (spec §3.3 invariant).
func (r *TxRawCoid) Compress() *TxUpdateCoid {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		return r.cached
	}
	r.cached = compress(r.CellType, r.KeyInfo, r.Items)
	return r.cached
}

// AbortLevel discards every item recorded at a subtransaction level deeper
// than level (spec §4.5). It returns true if the raw list becomes empty,
// signalling the caller (2PC driver) to drop this coid from the
// transaction's write/read set entirely.
func (r *TxRawCoid) AbortLevel(level int) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.Items[:0:0]
	for _, it := range r.Items {
		if it.Level <= level {
			kept = append(kept, it)
		}
	}
	r.Items = kept
	r.cached = nil
	return len(r.Items) == 0
}

// ReleaseLevel folds every item recorded deeper than level into level,
// preserving order and cardinality (spec §4.5, §8.1 subtransaction laws).
func (r *TxRawCoid) ReleaseLevel(level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Items {
		if r.Items[i].Level > level {
			r.Items[i].Level = level
		}
	}
	r.cached = nil
}

// TxUpdateCoid is the compressed representation of one transaction's effect
// on one COid (spec §3.3).
type TxUpdateCoid struct {
	CellType keyinfo.CellType
	KeyInfo  *keyinfo.RcKeyInfo

	HasWrite   bool
	Value      sval.Value
	HasWriteSV bool
	SV         *sval.SuperValue

	SetAttrs *bitset.BitSet     // SetAttrs[i] == 1 means Attrs[i] was overwritten
	Attrs    [MaxAttrs]uint64   // Attrs[i] defined only when SetAttrs[i] == 1

	Litems []TxListItem // post-write Add/DelRange items, in order

	// slAddItems is the lazily-populated index of Add keys used for fast
	// conflict probes (spec §3.3, §4.5.1); populated once the object is
	// frozen, i.e. the first time a conflict check needs it.
	slAddItems mapset.Set[string]

	// PendingEntrySleim is set by the 2PC driver (pkg/server) once this
	// tucoid has been handed to pkg/looim's add_pending; it lets Commit/
	// Abort find the SLEIM to promote or drop without a second lookup
	// (spec §4.8 "store the returned SLEIM-ref back into the tucoid").
	PendingEntrySleim any
}

// IsWrite reports whether this tucoid carries a checkpoint (Write or
// WriteSV); if so, HasConflicts treats it unconditionally as a conflict
// with any other tucoid on the same coid (spec §4.5.1).
func (t *TxUpdateCoid) IsWrite() bool { return t.HasWrite || t.HasWriteSV }

func compress(ct keyinfo.CellType, ki *keyinfo.RcKeyInfo, items []TxListItem) *TxUpdateCoid {
	out := &TxUpdateCoid{
		CellType: ct,
		KeyInfo:  ki,
		SetAttrs: bitset.New(MaxAttrs),
	}

	checkpoint := -1
	for i, it := range items {
		if it.Kind == ItemWrite || it.Kind == ItemWriteSV {
			checkpoint = i
		}
	}

	start := 0
	if checkpoint >= 0 {
		switch items[checkpoint].Kind {
		case ItemWrite:
			out.HasWrite = true
			out.Value = items[checkpoint].Value
		case ItemWriteSV:
			out.HasWriteSV = true
			out.SV = items[checkpoint].SV
		}
		start = checkpoint + 1
	}

	for i := start; i < len(items); i++ {
		it := items[i]
		switch it.Kind {
		case ItemAttrSet:
			out.SetAttrs.Set(uint(it.AttrID))
			out.Attrs[it.AttrID] = it.AttrVal
		case ItemAdd, ItemDelRange:
			out.Litems = append(out.Litems, it)
		case ItemRead:
			// Dropped: reads contribute to the read set separately
			// (spec §4.5).
		case ItemWrite, ItemWriteSV:
			// Unreachable: start skips past the last checkpoint.
		}
	}
	return out
}

// addKeysSet lazily builds and caches the Add-key index used by conflict
// detection (spec §4.5.1 "both sides populate SLAddItems ... lazily").
func (t *TxUpdateCoid) addKeysSet() mapset.Set[string] {
	if t.slAddItems != nil {
		return t.slAddItems
	}
	s := mapset.NewThreadUnsafeSet[string]()
	for _, it := range t.Litems {
		if it.Kind == ItemAdd {
			s.Add(encodeKey(t.CellType, it.Cell.Key))
		}
	}
	t.slAddItems = s
	return s
}

func encodeKey(ct keyinfo.CellType, k keyinfo.Key) string {
	if ct == keyinfo.IntKey {
		return string(rune(1)) + string(int64ToBytes(k.Int))
	}
	return string(rune(0)) + string(k.Bytes)
}

func int64ToBytes(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (56 - 8*i))
	}
	return b
}
