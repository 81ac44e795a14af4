// Package wal implements the append-only, crash-durable transaction log
// (spec §4.6): per-transaction MultiWrite/VoteYes/Commit/Abort records, a
// batched direct-I/O-style writer, and the async
// logUpdatesAndYesVote/logCommitAsync/logAbortAsync API the 2PC driver
// drives the log through.
package wal

import (
	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/sval"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// recordKind tags the on-disk record type (spec §4.6).
type recordKind uint8

const (
	recMultiWrite recordKind = iota
	recVoteYes
	recCommit
	recAbort
)

// bodyKind tags which shape a per-coid body takes.
type bodyKind uint8

const (
	bodyDelta bodyKind = iota
	bodyValue
	bodySuperValue
)

// itemRecord is the wire form of one post-checkpoint Add/DelRange
// TxListItem (spec §4.4.7, §4.6).
type itemRecord struct {
	IsDelRange bool

	KeyIsInt bool
	KeyInt   int64
	KeyBytes []byte
	Value    uint64

	EndIsInt bool
	EndInt   int64
	EndBytes []byte
	Interval uint8
}

func encodeItem(it txlog.TxListItem) itemRecord {
	if it.Kind == txlog.ItemDelRange {
		return itemRecord{
			IsDelRange: true,
			KeyIsInt:   it.Start.IsInt,
			KeyInt:     it.Start.Int,
			KeyBytes:   it.Start.Bytes,
			EndIsInt:   it.End.IsInt,
			EndInt:     it.End.Int,
			EndBytes:   it.End.Bytes,
			Interval:   uint8(it.Interval),
		}
	}
	return itemRecord{
		KeyIsInt: it.Cell.Key.IsInt,
		KeyInt:   it.Cell.Key.Int,
		KeyBytes: it.Cell.Key.Bytes,
		Value:    it.Cell.Value,
	}
}

func decodeItem(r itemRecord) txlog.TxListItem {
	if r.IsDelRange {
		start := keyinfo.Key{IsInt: r.KeyIsInt, Int: r.KeyInt, Bytes: r.KeyBytes}
		end := keyinfo.Key{IsInt: r.EndIsInt, Int: r.EndInt, Bytes: r.EndBytes}
		return txlog.DelRangeItem(0, start, end, keyinfo.IntervalType(r.Interval))
	}
	key := keyinfo.Key{IsInt: r.KeyIsInt, Int: r.KeyInt, Bytes: r.KeyBytes}
	return txlog.AddItem(0, sval.ListCell{Key: key, Value: r.Value})
}

// attrRecord is a sparse (index, value) pair, used so a delta record only
// carries the attribute slots the transaction actually set instead of a
// fixed txlog.MaxAttrs-wide array (spec §4.6 type=0 "SetAttrs[GAIA_MAX_ATTRS]").
type attrRecord struct {
	Index uint16
	Value uint64
}

// cellRecord is the wire form of one sval.ListCell.
type cellRecord struct {
	KeyIsInt bool
	KeyInt   int64
	KeyBytes []byte
	Value    uint64
}

// coidRecord is the per-coid body of a MultiWrite record (spec §4.6):
// type=0 delta, type=1 value, type=2 supervalue.
type coidRecord struct {
	Cid, Oid uint64
	Body     bodyKind

	// bodyDelta
	Attrs []attrRecord
	Items []itemRecord

	// bodyValue
	Value []byte

	// bodySuperValue
	CellType uint8
	NAttrs   uint16
	SVAttrs  []uint64
	Cells    []cellRecord
}

// encodeCoidRecord captures a compressed TxUpdateCoid into its WAL body
// (spec §4.6). tucoid must already be compressed (TxRawCoid.Compress).
func encodeCoidRecord(c coid.COid, tucoid *txlog.TxUpdateCoid) coidRecord {
	rec := coidRecord{Cid: c.Cid, Oid: c.Oid}
	switch {
	case tucoid.HasWrite:
		rec.Body = bodyValue
		rec.Value = tucoid.Value
	case tucoid.HasWriteSV:
		rec.Body = bodySuperValue
		rec.CellType = uint8(tucoid.SV.CellType)
		rec.NAttrs = uint16(tucoid.SV.NAttrs())
		rec.SVAttrs = append([]uint64(nil), tucoid.SV.Attrs...)
		rec.Cells = make([]cellRecord, 0, len(tucoid.SV.Cells))
		for _, cell := range tucoid.SV.Cells {
			rec.Cells = append(rec.Cells, cellRecord{
				KeyIsInt: cell.Key.IsInt, KeyInt: cell.Key.Int,
				KeyBytes: cell.Key.Bytes, Value: cell.Value,
			})
		}
	default:
		rec.Body = bodyDelta
		if tucoid.SetAttrs != nil {
			for i, e := tucoid.SetAttrs.NextSet(0); e; i, e = tucoid.SetAttrs.NextSet(i + 1) {
				rec.Attrs = append(rec.Attrs, attrRecord{Index: uint16(i), Value: tucoid.Attrs[i]})
			}
		}
		for _, it := range tucoid.Litems {
			rec.Items = append(rec.Items, encodeItem(it))
		}
	}
	return rec
}

// multiWriteRecord is the on-disk form of a MultiWrite log entry: the
// commit/prepare intent for every coid a transaction touched (spec §4.6).
type multiWriteRecord struct {
	Kind  recordKind
	Tid   [16]byte
	Ts    [16]byte
	Coids []coidRecord
}

// simpleRecord backs VoteYes, Commit, and Abort, which carry only a tid
// (and, for Commit/Abort, a timestamp) (spec §4.6).
type simpleRecord struct {
	Kind recordKind
	Tid  [16]byte
	Ts   [16]byte
}
