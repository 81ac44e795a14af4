package looim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/gaiaerr"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/rlp"
	"github.com/yesquel/gaiakv/pkg/sval"
	"github.com/yesquel/gaiakv/pkg/ts"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// diskRecord is the on-disk encoding of one COid's checkpoint used by
// FlushToFile/LoadFromFile (spec §4.4.8). pkg/diskstore has its own
// record type.
type diskRecord struct {
	Cid      uint64
	Oid      uint64
	IsValue  bool
	Value    []byte
	NAttrs   uint16
	CellType uint8
	Attrs    []uint64
	Cells    []diskCell
}

type diskCell struct {
	IsInt bool
	Int   int64
	Bytes []byte
	Value uint64
}

func encodeCheckpoint(c coid.COid, tucoid *txlog.TxUpdateCoid) diskRecord {
	rec := diskRecord{Cid: c.Cid, Oid: c.Oid}
	if tucoid.HasWrite {
		rec.IsValue = true
		rec.Value = tucoid.Value
		return rec
	}
	rec.CellType = uint8(tucoid.SV.CellType)
	rec.NAttrs = uint16(tucoid.SV.NAttrs())
	rec.Attrs = append([]uint64(nil), tucoid.SV.Attrs...)
	rec.Cells = make([]diskCell, 0, len(tucoid.SV.Cells))
	for _, cell := range tucoid.SV.Cells {
		rec.Cells = append(rec.Cells, diskCell{
			IsInt: cell.Key.IsInt,
			Int:   cell.Key.Int,
			Bytes: cell.Key.Bytes,
			Value: cell.Value,
		})
	}
	return rec
}

func decodeCheckpoint(rec diskRecord) *txlog.TxUpdateCoid {
	if rec.IsValue {
		return &txlog.TxUpdateCoid{HasWrite: true, Value: rec.Value, SetAttrs: bitset.New(txlog.MaxAttrs)}
	}
	sv := sval.NewSuperValue(rec.NAttrs, keyinfo.CellType(rec.CellType), nil)
	if len(rec.Attrs) == len(sv.Attrs) {
		copy(sv.Attrs, rec.Attrs)
	}
	for _, c := range rec.Cells {
		k := keyinfo.Key{IsInt: c.IsInt, Int: c.Int, Bytes: c.Bytes}
		sv.InsertOrReplace(sval.ListCell{Key: k, Value: c.Value})
	}
	return &txlog.TxUpdateCoid{HasWriteSV: true, SV: sv, SetAttrs: bitset.New(txlog.MaxAttrs)}
}

// FlushToFile snapshot-reads every tracked COid at snapshotTs and writes a
// length-prefixed stream of RLP-encoded diskRecords to w (spec §4.4.8).
func (tb *Table) FlushToFile(snapshotTs ts.Ts, w io.Writer) error {
	for c, o := range tb.All() {
		tucoid, _, err := o.Read(snapshotTs, nil)
		if err != nil {
			if errors.Is(err, gaiaerr.ErrTooOldVersion) {
				continue
			}
			return fmt.Errorf("looim: flush: coid %s: %w", c, err)
		}
		rec := encodeCheckpoint(c, tucoid)
		buf, err := rlp.EncodeToBytes(&rec)
		if err != nil {
			return fmt.Errorf("looim: flush: coid %s: encode: %w", c, err)
		}
		var lenPrefix [4]byte
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf)))
		if _, err := w.Write(lenPrefix[:]); err != nil {
			return err
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// LoadFromFile reads records written by FlushToFile and writes each as a
// checkpoint of its object via Write at the given timestamp (spec §4.4.8).
// Existing log entries are kept alongside it (subject to Write's usual GC);
// an object that already has an entry at that timestamp makes the load fail.
func (tb *Table) LoadFromFile(r io.Reader, at ts.Ts) error {
	for {
		var lenPrefix [4]byte
		_, err := io.ReadFull(r, lenPrefix[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		n := binary.BigEndian.Uint32(lenPrefix[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		var rec diskRecord
		if err := rlp.DecodeBytes(buf, &rec); err != nil {
			return fmt.Errorf("looim: load: decode: %w", err)
		}
		c := coid.COid{Cid: rec.Cid, Oid: rec.Oid}
		tucoid := decodeCheckpoint(rec)
		o := tb.getOrCreate(c, false, 0)
		if err := o.Write(at, tucoid, false); err != nil {
			return fmt.Errorf("looim: load: coid %s: %w", c, err)
		}
	}
}
