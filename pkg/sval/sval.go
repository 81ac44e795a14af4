// Package sval implements the two stored-object shapes (spec §3.2): an
// opaque Value, and a structured SuperValue of fixed-width attribute slots
// plus an ordered set of ListCells.
package sval

import (
	"fmt"
	"sort"

	"github.com/yesquel/gaiakv/pkg/keyinfo"
)

// ListCell is one element of a SuperValue's ordered cell set.
type ListCell struct {
	Key   keyinfo.Key
	Value uint64
}

// SuperValue is the structured stored-object variant (spec §3.2).
type SuperValue struct {
	CellType keyinfo.CellType
	KeyInfo  *keyinfo.RcKeyInfo // only meaningful when CellType == BinaryKey

	Attrs []uint64 // len == NAttrs; fixed-width u64 attribute slots
	Cells []ListCell
}

// NewSuperValue returns an empty SuperValue with nattrs attribute slots.
func NewSuperValue(nattrs uint16, ct keyinfo.CellType, ki *keyinfo.RcKeyInfo) *SuperValue {
	return &SuperValue{
		CellType: ct,
		KeyInfo:  ki,
		Attrs:    make([]uint64, nattrs),
	}
}

// NAttrs returns the number of fixed attribute slots.
func (sv *SuperValue) NAttrs() int { return len(sv.Attrs) }

// Clone returns a deep copy, used whenever a caller must mutate a
// reference-counted snapshot returned by pkg/looim (spec §4.4.2: "the
// returned value must not mutate shared state; if the caller mutates, it
// must clone first").
func (sv *SuperValue) Clone() *SuperValue {
	out := &SuperValue{
		CellType: sv.CellType,
		KeyInfo:  sv.KeyInfo,
		Attrs:    append([]uint64(nil), sv.Attrs...),
		Cells:    append([]ListCell(nil), sv.Cells...),
	}
	return out
}

func (sv *SuperValue) cmp(a, b keyinfo.Key) int {
	return keyinfo.Cmp(sv.CellType, sv.KeyInfo, a, b)
}

// find returns the index of the cell with the given key, and whether it was
// found. If not found, idx is the insertion point that keeps Cells sorted.
func (sv *SuperValue) find(k keyinfo.Key) (idx int, found bool) {
	n := len(sv.Cells)
	idx = sort.Search(n, func(i int) bool { return sv.cmp(sv.Cells[i].Key, k) >= 0 })
	found = idx < n && sv.cmp(sv.Cells[idx].Key, k) == 0
	return
}

// InsertOrReplace inserts cell into the ordered cell set, replacing any
// existing cell with the same key (spec §4.4.7 Add semantics).
func (sv *SuperValue) InsertOrReplace(cell ListCell) {
	idx, found := sv.find(cell.Key)
	if found {
		sv.Cells[idx] = cell
		return
	}
	sv.Cells = append(sv.Cells, ListCell{})
	copy(sv.Cells[idx+1:], sv.Cells[idx:])
	sv.Cells[idx] = cell
}

// Get returns the cell for k, if present.
func (sv *SuperValue) Get(k keyinfo.Key) (ListCell, bool) {
	idx, found := sv.find(k)
	if !found {
		return ListCell{}, false
	}
	return sv.Cells[idx], true
}

// DeleteRange deletes every cell whose key falls within
// [start,end] under it's boundary kinds (spec §4.4.7 / §6.4), returning the
// number of cells removed.
func (sv *SuperValue) DeleteRange(start, end keyinfo.Key, it keyinfo.IntervalType) int {
	out := sv.Cells[:0:0]
	removed := 0
	for _, c := range sv.Cells {
		if it.InRange(sv.CellType, sv.KeyInfo, start, end, c.Key) {
			removed++
			continue
		}
		out = append(out, c)
	}
	sv.Cells = out
	return removed
}

func (sv *SuperValue) String() string {
	return fmt.Sprintf("SuperValue{attrs=%v, cells=%d}", sv.Attrs, len(sv.Cells))
}

// Value is the opaque stored-object variant.
type Value []byte
