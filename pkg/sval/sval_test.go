package sval

import (
	"testing"

	"github.com/yesquel/gaiakv/pkg/keyinfo"
)

func TestInsertOrReplaceKeepsOrder(t *testing.T) {
	sv := NewSuperValue(2, keyinfo.IntKey, nil)
	sv.InsertOrReplace(ListCell{Key: keyinfo.IntKeyOf(5), Value: 50})
	sv.InsertOrReplace(ListCell{Key: keyinfo.IntKeyOf(1), Value: 10})
	sv.InsertOrReplace(ListCell{Key: keyinfo.IntKeyOf(3), Value: 30})

	want := []int64{1, 3, 5}
	for i, c := range sv.Cells {
		if c.Key.Int != want[i] {
			t.Fatalf("cells out of order: got %v want %v", sv.Cells, want)
		}
	}

	// Replace: same key, new value.
	sv.InsertOrReplace(ListCell{Key: keyinfo.IntKeyOf(3), Value: 999})
	c, ok := sv.Get(keyinfo.IntKeyOf(3))
	if !ok || c.Value != 999 {
		t.Fatalf("expected replaced value 999, got %+v ok=%v", c, ok)
	}
	if len(sv.Cells) != 3 {
		t.Fatalf("replace should not grow cell count, got %d", len(sv.Cells))
	}
}

func TestDeleteRangeHalfOpen(t *testing.T) {
	sv := NewSuperValue(0, keyinfo.IntKey, nil)
	for _, k := range []int64{1, 2, 3, 4, 5} {
		sv.InsertOrReplace(ListCell{Key: keyinfo.IntKeyOf(k), Value: uint64(k)})
	}
	it := keyinfo.NewIntervalType(keyinfo.Closed, keyinfo.Open)
	removed := sv.DeleteRange(keyinfo.IntKeyOf(2), keyinfo.IntKeyOf(4), it)
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	var keys []int64
	for _, c := range sv.Cells {
		keys = append(keys, c.Key.Int)
	}
	want := []int64{1, 4, 5}
	if len(keys) != len(want) {
		t.Fatalf("got %v want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v want %v", keys, want)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	sv := NewSuperValue(1, keyinfo.IntKey, nil)
	sv.Attrs[0] = 42
	sv.InsertOrReplace(ListCell{Key: keyinfo.IntKeyOf(1), Value: 1})

	c := sv.Clone()
	c.Attrs[0] = 7
	c.InsertOrReplace(ListCell{Key: keyinfo.IntKeyOf(2), Value: 2})

	if sv.Attrs[0] != 42 {
		t.Fatalf("mutating clone affected original attrs")
	}
	if len(sv.Cells) != 1 {
		t.Fatalf("mutating clone affected original cells")
	}
}
