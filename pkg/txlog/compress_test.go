package txlog

import (
	"testing"

	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/sval"
)

func TestCompressNoCheckpointKeepsAllDeltas(t *testing.T) {
	r := NewTxRawCoid(keyinfo.IntKey, nil)
	r.Append(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(1), Value: 1}))
	r.Append(AttrSetItem(0, 3, 99))
	r.Append(DelRangeItem(0, keyinfo.IntKeyOf(5), keyinfo.IntKeyOf(9),
		keyinfo.NewIntervalType(keyinfo.Closed, keyinfo.Closed)))

	tu := r.Compress()
	if tu.HasWrite || tu.HasWriteSV {
		t.Fatalf("no Write/WriteSV recorded, should not have a checkpoint")
	}
	if !tu.SetAttrs.Test(3) || tu.Attrs[3] != 99 {
		t.Fatalf("expected attr 3 set to 99")
	}
	if len(tu.Litems) != 2 {
		t.Fatalf("expected 2 litems (add+delrange), got %d", len(tu.Litems))
	}
}

func TestCompressLastWriteWins(t *testing.T) {
	r := NewTxRawCoid(keyinfo.IntKey, nil)
	r.Append(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(1), Value: 1}))
	r.Append(WriteItem(0, sval.Value("first")))
	r.Append(AttrSetItem(0, 1, 7))
	r.Append(WriteItem(0, sval.Value("second")))
	r.Append(AttrSetItem(0, 2, 8))

	tu := r.Compress()
	if !tu.HasWrite || string(tu.Value) != "second" {
		t.Fatalf("expected checkpoint value 'second', got %+v", tu)
	}
	// Only the AttrSet recorded after the winning checkpoint survives.
	if tu.SetAttrs.Test(1) {
		t.Fatalf("attr 1 was set before the checkpoint and should be discarded")
	}
	if !tu.SetAttrs.Test(2) || tu.Attrs[2] != 8 {
		t.Fatalf("expected attr 2 set to 8")
	}
}

func TestCompressDropsReadItems(t *testing.T) {
	r := NewTxRawCoid(keyinfo.IntKey, nil)
	r.Append(ReadItem(0))
	r.Append(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(1), Value: 1}))
	r.Append(ReadItem(0))

	tu := r.Compress()
	if len(tu.Litems) != 1 {
		t.Fatalf("expected read items dropped, got %d litems", len(tu.Litems))
	}
}

func TestCompressIsCachedUntilAppend(t *testing.T) {
	r := NewTxRawCoid(keyinfo.IntKey, nil)
	r.Append(AttrSetItem(0, 0, 1))
	a := r.Compress()
	b := r.Compress()
	if a != b {
		t.Fatalf("expected cached tucoid to be reused")
	}
	r.Append(AttrSetItem(0, 1, 2))
	c := r.Compress()
	if c == a {
		t.Fatalf("expected cache invalidated after Append")
	}
}

func TestAbortLevelDropsDeeperItemsAndReportsEmpty(t *testing.T) {
	r := NewTxRawCoid(keyinfo.IntKey, nil)
	r.Append(AttrSetItem(0, 0, 1))
	r.Append(AttrSetItem(1, 1, 2))
	empty := r.AbortLevel(0)
	if empty {
		t.Fatalf("level-0 item survives, raw list should not be empty")
	}
	if len(r.Items) != 1 || r.Items[0].AttrID != 0 {
		t.Fatalf("expected only the level-0 item to survive, got %+v", r.Items)
	}

	r2 := NewTxRawCoid(keyinfo.IntKey, nil)
	r2.Append(AttrSetItem(1, 0, 1))
	empty2 := r2.AbortLevel(0)
	if !empty2 {
		t.Fatalf("expected raw list to become empty once its only item aborts")
	}
}

func TestReleaseLevelFoldsIntoParent(t *testing.T) {
	r := NewTxRawCoid(keyinfo.IntKey, nil)
	r.Append(AttrSetItem(2, 0, 1))
	r.ReleaseLevel(1)
	if r.Items[0].Level != 1 {
		t.Fatalf("expected item folded to level 1, got %d", r.Items[0].Level)
	}
	// Releasing again to 0 should fold further.
	r.ReleaseLevel(0)
	if r.Items[0].Level != 0 {
		t.Fatalf("expected item folded to level 0, got %d", r.Items[0].Level)
	}
}
