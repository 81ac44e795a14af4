package txlog

import (
	"testing"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/sval"
	"github.com/yesquel/gaiakv/pkg/ts"
)

func TestTableGetOrCreateIsStable(t *testing.T) {
	tb := NewTable()
	tid := ts.NewTid(ts.NewUniqueID(1, 0))
	p1 := tb.GetOrCreate(tid)
	p2 := tb.GetOrCreate(tid)
	if p1 != p2 {
		t.Fatalf("expected the same PendingTxInfo for the same tid")
	}
}

func TestPendingTxInfoSubtransactionLaws(t *testing.T) {
	tid := ts.NewTid(ts.NewUniqueID(1, 0))
	p := NewPendingTxInfo(tid)
	c := coid.COid{Cid: 1, Oid: 1}

	r := p.GetOrCreateCoid(c, func() *TxRawCoid { return NewTxRawCoid(keyinfo.IntKey, nil) })
	r.Append(AttrSetItem(0, 0, 1))
	r.Append(AttrSetItem(1, 1, 2))

	p.AbortLevel(0)
	got, ok := p.CoidInfo(c)
	if !ok {
		t.Fatalf("coid should still be tracked: level-0 item survives abort of level 1")
	}
	if len(got.Items) != 1 {
		t.Fatalf("expected only the level-0 item to survive, got %+v", got.Items)
	}

	r.Append(AttrSetItem(1, 2, 3))
	p.ReleaseLevel(0)
	got2, _ := p.CoidInfo(c)
	for _, it := range got2.Items {
		if it.Level != 0 {
			t.Fatalf("expected every item folded to level 0 after release, got %+v", it)
		}
	}
}

func TestPendingTxInfoAbortAllDropsCoid(t *testing.T) {
	tid := ts.NewTid(ts.NewUniqueID(1, 0))
	p := NewPendingTxInfo(tid)
	c := coid.COid{Cid: 2, Oid: 2}
	r := p.GetOrCreateCoid(c, func() *TxRawCoid { return NewTxRawCoid(keyinfo.IntKey, nil) })
	r.Append(AttrSetItem(1, 0, 1))

	p.AbortLevel(0)
	if _, ok := p.CoidInfo(c); ok {
		t.Fatalf("expected coid dropped once its raw list becomes empty")
	}
}

func TestConflictsWithPreparedOnlyConsidersVotedYes(t *testing.T) {
	tb := NewTable()
	c := coid.COid{Cid: 1, Oid: 1}

	tidA := ts.NewTid(ts.NewUniqueID(1, 0))
	pa := tb.GetOrCreate(tidA)
	ra := pa.GetOrCreateCoid(c, func() *TxRawCoid { return NewTxRawCoid(keyinfo.IntKey, nil) })
	ra.Append(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(1), Value: 1}))

	cand := rawWith(AddItem(0, sval.ListCell{Key: keyinfo.IntKeyOf(1), Value: 2}))

	tidB := ts.NewTid(ts.NewUniqueID(2, 0))
	if tb.ConflictsWithPrepared(c, cand, tidB) {
		t.Fatalf("in-progress transaction should not be considered a conflict source yet")
	}

	pa.Status = StatusVotedYes
	if !tb.ConflictsWithPrepared(c, cand, tidB) {
		t.Fatalf("expected conflict once the other transaction has voted yes")
	}
	if tb.ConflictsWithPrepared(c, cand, tidA) {
		t.Fatalf("a transaction must not conflict with itself")
	}
}
