// Package diskstore is the per-node durable object store (spec §4.4.8): a
// pebble-backed key/value store keyed by COid holding each object's latest
// checkpoint, used both to seed pkg/looim on first touch of a cold object
// and as the destination of periodic flush-to-disk.
package diskstore

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/pebble"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/rlp"
	"github.com/yesquel/gaiakv/pkg/sval"
	"github.com/yesquel/gaiakv/pkg/ts"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// Store wraps a pebble database. A Store is safe for concurrent use — all
// methods delegate to pebble's own internal synchronization.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("diskstore: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// checkpointRecord is the on-disk encoding of one COid's checkpoint,
// mirroring pkg/looim's in-memory flush format (spec §4.4.7/§4.4.8) but
// addressed individually by pebble key instead of being streamed as one
// flat file.
type checkpointRecord struct {
	AtTs     [16]byte
	IsValue  bool
	Value    []byte
	CellType uint8
	NAttrs   uint16
	Attrs    []uint64
	Cells    []cellRecord
}

type cellRecord struct {
	KeyIsInt bool
	KeyInt   int64
	KeyBytes []byte
	Value    uint64
}

// PutCheckpoint durably writes tucoid as coid c's latest checkpoint at ts at
// (spec §4.4.8 flush_to_disk). tucoid must carry a Write or WriteSV
// checkpoint, never a bare delta — the disk store only ever holds
// materialized values, the in-memory log is the only place deltas live.
func (s *Store) PutCheckpoint(c coid.COid, at ts.Ts, tucoid *txlog.TxUpdateCoid) error {
	if !tucoid.IsWrite() {
		return fmt.Errorf("diskstore: put checkpoint %s: tucoid is not a checkpoint", c)
	}
	rec := checkpointRecord{AtTs: at.Bytes()}
	if tucoid.HasWrite {
		rec.IsValue = true
		rec.Value = tucoid.Value
	} else {
		rec.CellType = uint8(tucoid.SV.CellType)
		rec.NAttrs = uint16(tucoid.SV.NAttrs())
		rec.Attrs = append([]uint64(nil), tucoid.SV.Attrs...)
		rec.Cells = make([]cellRecord, 0, len(tucoid.SV.Cells))
		for _, cell := range tucoid.SV.Cells {
			rec.Cells = append(rec.Cells, cellRecord{
				KeyIsInt: cell.Key.IsInt, KeyInt: cell.Key.Int,
				KeyBytes: cell.Key.Bytes, Value: cell.Value,
			})
		}
	}
	buf, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("diskstore: encode %s: %w", c, err)
	}
	key := cKey(c)
	return s.db.Set(key[:], buf, pebble.Sync)
}

// LoadCheckpoint implements pkg/looim's DiskLoader: it returns the most
// recently flushed checkpoint for c, if any (spec §4.4.1 lazy object
// creation — the first GetAndLock for a cold COid consults the disk
// store).
func (s *Store) LoadCheckpoint(c coid.COid) (*txlog.TxUpdateCoid, ts.Ts, bool) {
	key := cKey(c)
	val, closer, err := s.db.Get(key[:])
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ts.Ts{}, false
		}
		return nil, ts.Ts{}, false
	}
	defer closer.Close()

	var rec checkpointRecord
	if err := rlp.DecodeBytes(val, &rec); err != nil {
		return nil, ts.Ts{}, false
	}
	at := ts.FromBytes(rec.AtTs)
	if rec.IsValue {
		return &txlog.TxUpdateCoid{HasWrite: true, Value: rec.Value, SetAttrs: bitset.New(txlog.MaxAttrs)}, at, true
	}
	sv := sval.NewSuperValue(rec.NAttrs, keyinfo.CellType(rec.CellType), nil)
	if len(rec.Attrs) == len(sv.Attrs) {
		copy(sv.Attrs, rec.Attrs)
	}
	for _, cr := range rec.Cells {
		key := keyinfo.Key{IsInt: cr.KeyIsInt, Int: cr.KeyInt, Bytes: cr.KeyBytes}
		sv.InsertOrReplace(sval.ListCell{Key: key, Value: cr.Value})
	}
	return &txlog.TxUpdateCoid{HasWriteSV: true, SV: sv, SetAttrs: bitset.New(txlog.MaxAttrs)}, at, true
}

// Delete removes c's checkpoint, used when a split relocates an object away
// from this node (spec §4.7).
func (s *Store) Delete(c coid.COid) error {
	key := cKey(c)
	return s.db.Delete(key[:], pebble.Sync)
}

// ForEach iterates every stored checkpoint in COid order, calling fn until
// it returns false or the iteration is exhausted. Used by the splitter's
// load reporting and by admin "print"/"printdetail" console commands.
func (s *Store) ForEach(fn func(c coid.COid, at ts.Ts) bool) error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		var k [16]byte
		copy(k[:], iter.Key())
		c := coid.FromBytes(k)

		var rec checkpointRecord
		if err := rlp.DecodeBytes(iter.Value(), &rec); err != nil {
			return fmt.Errorf("diskstore: decode %s: %w", c, err)
		}
		if !fn(c, ts.FromBytes(rec.AtTs)) {
			break
		}
	}
	return iter.Error()
}

func cKey(c coid.COid) [16]byte { return c.Bytes() }
