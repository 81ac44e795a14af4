package txlog

import (
	"testing"

	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/sval"
)

func rawWith(items ...TxListItem) *TxUpdateCoid {
	r := NewTxRawCoid(keyinfo.IntKey, nil)
	for _, it := range items {
		r.Append(it)
	}
	return r.Compress()
}

func TestHasConflictsWriteIsUnconditional(t *testing.T) {
	a := rawWith(WriteItem(0, sval.Value("x")))
	b := rawWith(AttrSetItem(0, 0, 1))
	if !HasConflicts(a, b) {
		t.Fatalf("expected Write side to force a conflict")
	}
}

func TestHasConflictsAttrOverlap(t *testing.T) {
	a := rawWith(AttrSetItem(0, 5, 1))
	b := rawWith(AttrSetItem(0, 5, 2))
	if !HasConflicts(a, b) {
		t.Fatalf("expected shared attr id to conflict")
	}
	c := rawWith(AttrSetItem(0, 6, 2))
	if HasConflicts(a, c) {
		t.Fatalf("disjoint attr ids should not conflict")
	}
}

func TestHasConflictsAddAdd(t *testing.T) {
	a := rawWith(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(3), Value: 1}))
	b := rawWith(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(3), Value: 2}))
	if !HasConflicts(a, b) {
		t.Fatalf("expected same-key Add/Add to conflict")
	}
	c := rawWith(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(4), Value: 2}))
	if HasConflicts(a, c) {
		t.Fatalf("distinct-key Add/Add should not conflict")
	}
}

func TestHasConflictsAddInsideDelRange(t *testing.T) {
	it := keyinfo.NewIntervalType(keyinfo.Closed, keyinfo.Open)
	a := rawWith(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(3), Value: 1}))
	b := rawWith(DelRangeItem(0, keyinfo.IntKeyOf(2), keyinfo.IntKeyOf(4), it))
	if !HasConflicts(a, b) {
		t.Fatalf("expected Add inside the other's DelRange to conflict")
	}

	outside := rawWith(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(9), Value: 1}))
	if HasConflicts(outside, b) {
		t.Fatalf("Add outside the DelRange should not conflict")
	}
}

func TestHasConflictsDelRangeDelRange(t *testing.T) {
	it := keyinfo.NewIntervalType(keyinfo.Closed, keyinfo.Closed)
	a := rawWith(DelRangeItem(0, keyinfo.IntKeyOf(0), keyinfo.IntKeyOf(10), it))
	b := rawWith(DelRangeItem(0, keyinfo.IntKeyOf(20), keyinfo.IntKeyOf(30), it))

	DelRangeDelRangeConflicts = true
	if !HasConflicts(a, b) {
		t.Fatalf("expected unconditional DelRange/DelRange conflict by default")
	}

	DelRangeDelRangeConflicts = false
	defer func() { DelRangeDelRangeConflicts = true }()
	if HasConflicts(a, b) {
		t.Fatalf("expected no conflict once DelRangeDelRangeConflicts is disabled")
	}
}
