// Package keyinfo implements the collation descriptor and ordered ListCell
// comparison used by SuperValue cells (spec §3.2), plus the IntervalType
// encoding used by DelRange (spec §6.4).
package keyinfo

import (
	"bytes"
	"strings"
)

// Collation names the collating function applied to a binary-key field
// before comparison (spec §3.2).
type Collation int

const (
	BinaryUTF8 Collation = iota
	BinaryUTF16BE
	BinaryUTF16LE
	RTrim
	NoCase
)

// SortDir is the sort direction of one key field.
type SortDir int

const (
	Ascending SortDir = iota
	Descending
)

// FieldInfo describes one field of a binary-key cell's encoding.
type FieldInfo struct {
	Collation Collation
	Dir       SortDir
}

// RcKeyInfo is the collation descriptor for a SuperValue's binary-key cells:
// one FieldInfo per key field, applied left-to-right with standard
// lexicographic tie-breaking (spec §3.2).
type RcKeyInfo struct {
	Fields []FieldInfo
}

// CellType selects whether a SuperValue's cell keys are signed 64-bit
// integers or collated byte strings (spec §3.2).
type CellType int

const (
	IntKey CellType = iota
	BinaryKey
)

// Key is a ListCell key: either an int64 (IntKey cells) or a byte string
// compared under an RcKeyInfo (BinaryKey cells). Exactly one of the two is
// meaningful, selected by the enclosing SuperValue's CellType.
type Key struct {
	IsInt bool
	Int   int64
	Bytes []byte
}

// IntKeyOf builds an integer Key.
func IntKeyOf(v int64) Key { return Key{IsInt: true, Int: v} }

// BytesKeyOf builds a binary Key.
func BytesKeyOf(b []byte) Key { return Key{IsInt: false, Bytes: b} }

// Cmp compares two keys of the same CellType. ki is required (and may be
// nil) only when ct == BinaryKey.
func Cmp(ct CellType, ki *RcKeyInfo, a, b Key) int {
	if ct == IntKey {
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	}
	return cmpBinary(ki, a.Bytes, b.Bytes)
}

func cmpBinary(ki *RcKeyInfo, a, b []byte) int {
	if ki == nil || len(ki.Fields) == 0 {
		return bytes.Compare(a, b)
	}
	// A single collating function applies to the whole field in this
	// storage layer (multi-field composite binary keys are encoded by the
	// caller as length-prefixed concatenations above this layer); use the
	// first field's collation as the active one, matching how a single
	// ListCell key is always one logical field.
	f := ki.Fields[0]
	c := applyCollation(f.Collation, a, b)
	if f.Dir == Descending {
		c = -c
	}
	return c
}

func applyCollation(coll Collation, a, b []byte) int {
	switch coll {
	case RTrim:
		return bytes.Compare(bytes.TrimRight(a, " "), bytes.TrimRight(b, " "))
	case NoCase:
		return strings.Compare(strings.ToUpper(string(a)), strings.ToUpper(string(b)))
	case BinaryUTF16BE, BinaryUTF16LE:
		// Cells are stored pre-encoded; a byte-wise compare on UTF-16BE is
		// codepoint-order for the BMP, which is all this layer promises.
		// UTF-16LE content is normalized to BE ordering by swapping byte
		// pairs before comparing, since raw little-endian bytes do not
		// compare in codepoint order.
		if coll == BinaryUTF16LE {
			return bytes.Compare(swap16(a), swap16(b))
		}
		return bytes.Compare(a, b)
	default: // BinaryUTF8
		return bytes.Compare(a, b)
	}
}

func swap16(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	for i := 0; i+1 < len(out); i += 2 {
		out[i], out[i+1] = out[i+1], out[i]
	}
	return out
}

// ---------------------------------------------------------------------------
// IntervalType (spec §6.4)
// ---------------------------------------------------------------------------

// Boundary is the kind of one side of a DelRange interval.
type Boundary int

const (
	Open Boundary = iota
	Closed
	Unbounded
)

// IntervalType is the single-byte encoding {0..8} of a DelRange's left and
// right boundary kinds, interpreted as base-3 (left, right).
type IntervalType byte

// NewIntervalType packs left/right boundary kinds into the base-3 byte
// encoding (spec §6.4): intervalType = left*3 + right.
func NewIntervalType(left, right Boundary) IntervalType {
	return IntervalType(int(left)*3 + int(right))
}

// Decode returns the left and right Boundary kinds this IntervalType encodes.
func (it IntervalType) Decode() (left, right Boundary) {
	v := int(it)
	left = Boundary(v / 3)
	right = Boundary(v % 3)
	return
}

// InRange reports whether key k falls within the interval [start, end]
// (inclusive bounds supplied; left/right boundary kind refines open/closed/
// unbounded at each end), under ct/ki ordering.
func (it IntervalType) InRange(ct CellType, ki *RcKeyInfo, start, end, k Key) bool {
	left, right := it.Decode()

	if left != Unbounded {
		c := Cmp(ct, ki, k, start)
		if left == Open && c <= 0 {
			return false
		}
		if left == Closed && c < 0 {
			return false
		}
	}
	if right != Unbounded {
		c := Cmp(ct, ki, k, end)
		if right == Open && c >= 0 {
			return false
		}
		if right == Closed && c > 0 {
			return false
		}
	}
	return true
}
