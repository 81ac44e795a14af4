// Package txlog implements the pending-transaction table (spec §3.3, §4.5):
// the per-(tid,coid) raw update list, its compression into a TxUpdateCoid,
// subtransaction abort/release, and conflict detection between prepared
// transactions.
package txlog

import (
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/sval"
)

// ItemKind discriminates the TxListItem variants (spec §3.3).
type ItemKind int

const (
	ItemAdd ItemKind = iota
	ItemDelRange
	ItemWrite
	ItemWriteSV
	ItemAttrSet
	ItemRead
)

func (k ItemKind) String() string {
	switch k {
	case ItemAdd:
		return "Add"
	case ItemDelRange:
		return "DelRange"
	case ItemWrite:
		return "Write"
	case ItemWriteSV:
		return "WriteSV"
	case ItemAttrSet:
		return "AttrSet"
	case ItemRead:
		return "Read"
	default:
		return "?"
	}
}

// MaxAttrs bounds the fixed-width attribute slot count (GAIA_MAX_ATTRS in
// the original WAL record format, spec §4.6); SuperValues carry fewer slots
// in practice but TxUpdateCoid's SetAttrs bitmap is sized to this bound so
// WAL delta records have a fixed-size header regardless of the live
// SuperValue's NAttrs.
const MaxAttrs = 256

// TxListItem is one raw, uncompressed operation recorded against a
// (tid, coid) pair, tagged with the subtransaction level active when it was
// recorded (spec §3.3).
type TxListItem struct {
	Kind  ItemKind
	Level int

	// ItemAdd
	Cell sval.ListCell

	// ItemDelRange
	Start, End keyinfo.Key
	Interval   keyinfo.IntervalType

	// ItemWrite
	Value sval.Value

	// ItemWriteSV
	SV *sval.SuperValue

	// ItemAttrSet
	AttrID  uint16
	AttrVal uint64
}

// AddItem builds an ItemAdd TxListItem.
func AddItem(level int, cell sval.ListCell) TxListItem {
	return TxListItem{Kind: ItemAdd, Level: level, Cell: cell}
}

// DelRangeItem builds an ItemDelRange TxListItem.
func DelRangeItem(level int, start, end keyinfo.Key, it keyinfo.IntervalType) TxListItem {
	return TxListItem{Kind: ItemDelRange, Level: level, Start: start, End: end, Interval: it}
}

// WriteItem builds an ItemWrite TxListItem.
func WriteItem(level int, v sval.Value) TxListItem {
	return TxListItem{Kind: ItemWrite, Level: level, Value: v}
}

// WriteSVItem builds an ItemWriteSV TxListItem.
func WriteSVItem(level int, sv *sval.SuperValue) TxListItem {
	return TxListItem{Kind: ItemWriteSV, Level: level, SV: sv}
}

// AttrSetItem builds an ItemAttrSet TxListItem.
func AttrSetItem(level int, attrID uint16, val uint64) TxListItem {
	return TxListItem{Kind: ItemAttrSet, Level: level, AttrID: attrID, AttrVal: val}
}

// ReadItem builds an ItemRead TxListItem (marks a read-set entry; dropped
// during compression, spec §4.5).
func ReadItem(level int) TxListItem {
	return TxListItem{Kind: ItemRead, Level: level}
}
