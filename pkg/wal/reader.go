package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/rlp"
	"github.com/yesquel/gaiakv/pkg/sval"
	"github.com/yesquel/gaiakv/pkg/ts"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// Entry is one decoded WAL record, used for startup recovery.
type Entry struct {
	Kind  recordKind
	Tid   ts.Tid
	Ts    ts.Ts
	Coids map[coid.COid]*txlog.TxUpdateCoid // only set for MultiWrite
}

// IsMultiWrite reports whether this entry carries per-coid updates.
func (e Entry) IsMultiWrite() bool { return e.Kind == recMultiWrite }

// IsVoteYes, IsCommit, IsAbort classify the remaining record kinds.
func (e Entry) IsVoteYes() bool { return e.Kind == recVoteYes }
func (e Entry) IsCommit() bool  { return e.Kind == recCommit }
func (e Entry) IsAbort() bool   { return e.Kind == recAbort }

// ReadAll decodes every record in a WAL file, in append order, for startup
// recovery. The caller folds these into pkg/txlog and pkg/looim: a
// MultiWrite stages a transaction's updates, VoteYes marks it prepared,
// Commit replays the staged updates into the object log, and Abort
// discards them (spec §4.6, §4.8).
func ReadAll(r io.Reader) ([]Entry, error) {
	var entries []Entry
	for {
		var lenPrefix [4]byte
		_, err := io.ReadFull(r, lenPrefix[:])
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("wal: read length prefix: %w", err)
		}
		n := binary.BigEndian.Uint32(lenPrefix[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return entries, fmt.Errorf("wal: read record body: %w", err)
		}

		kind, err := peekKind(body)
		if err != nil {
			return entries, err
		}

		switch kind {
		case recMultiWrite:
			var rec multiWriteRecord
			if err := rlp.DecodeBytes(body, &rec); err != nil {
				return entries, fmt.Errorf("wal: decode multiwrite: %w", err)
			}
			e := Entry{
				Kind:  recMultiWrite,
				Tid:   tidFromBytes(rec.Tid),
				Ts:    ts.FromBytes(rec.Ts),
				Coids: make(map[coid.COid]*txlog.TxUpdateCoid, len(rec.Coids)),
			}
			for _, cr := range rec.Coids {
				c := coid.COid{Cid: cr.Cid, Oid: cr.Oid}
				e.Coids[c] = decodeCoidRecord(cr)
			}
			entries = append(entries, e)
		default:
			var rec simpleRecord
			if err := rlp.DecodeBytes(body, &rec); err != nil {
				return entries, fmt.Errorf("wal: decode record: %w", err)
			}
			entries = append(entries, Entry{
				Kind: rec.Kind,
				Tid:  tidFromBytes(rec.Tid),
				Ts:   ts.FromBytes(rec.Ts),
			})
		}
	}
}

// peekKind decodes just enough of a record to learn its kind. Both
// multiWriteRecord and simpleRecord start with the same first field (Kind
// recordKind), so opening the record's list and reading its first integer
// is sufficient; the remaining fields are left unread.
func peekKind(body []byte) (recordKind, error) {
	s := rlp.NewStream(bytes.NewReader(body))
	if _, err := s.List(); err != nil {
		return 0, fmt.Errorf("wal: peek record kind: %w", err)
	}
	k, err := s.Uint64()
	if err != nil {
		return 0, fmt.Errorf("wal: peek record kind: %w", err)
	}
	return recordKind(k), nil
}

func decodeCoidRecord(cr coidRecord) *txlog.TxUpdateCoid {
	switch cr.Body {
	case bodyValue:
		return &txlog.TxUpdateCoid{HasWrite: true, Value: cr.Value, SetAttrs: bitset.New(txlog.MaxAttrs)}
	case bodySuperValue:
		sv := sval.NewSuperValue(cr.NAttrs, keyinfo.CellType(cr.CellType), nil)
		if len(cr.SVAttrs) == len(sv.Attrs) {
			copy(sv.Attrs, cr.SVAttrs)
		}
		for _, c := range cr.Cells {
			key := keyinfo.Key{IsInt: c.KeyIsInt, Int: c.KeyInt, Bytes: c.KeyBytes}
			sv.InsertOrReplace(sval.ListCell{Key: key, Value: c.Value})
		}
		return &txlog.TxUpdateCoid{HasWriteSV: true, SV: sv, SetAttrs: bitset.New(txlog.MaxAttrs)}
	default:
		out := &txlog.TxUpdateCoid{SetAttrs: bitset.New(txlog.MaxAttrs)}
		for _, a := range cr.Attrs {
			out.SetAttrs.Set(uint(a.Index))
			out.Attrs[a.Index] = a.Value
		}
		for _, it := range cr.Items {
			out.Litems = append(out.Litems, decodeItem(it))
		}
		return out
	}
}

// tidFromBytes reconstructs enough of a Tid to key recovery maps; the
// original node-id/counter split is opaque and irrelevant post-recovery —
// only byte-equality of the 16-byte encoding matters.
func tidFromBytes(b [16]byte) ts.Tid {
	return ts.TidFromBytes(b)
}
