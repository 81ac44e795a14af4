// Package server implements the storage node's RPC-facing half (spec
// §4.8, §6.1): the handler-id-0 RPC table and the 2PC driver that sits
// between pkg/transport, pkg/txlog's pending-tx table, and pkg/looim's
// per-COid log.
package server

import (
	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/rlp"
	"github.com/yesquel/gaiakv/pkg/ts"
)

// RPC numbers (handler-id 0, spec §6.1). Payloads are RLP-encoded structs,
// the same encode-a-flat-struct convention pkg/wal's records use.
const (
	RPCNull = iota
	RPCGetStatus
	RPCWrite
	RPCRead
	RPCFullWrite
	RPCFullRead
	RPCListAdd
	RPCListDelRange
	RPCAttrSet
	RPCPrepare
	RPCCommit
	RPCSubtrans
	RPCShutdown
	RPCStartSplitter
	RPCFlushFile
	RPCLoadFile
	RPCGetRowid
)

// coidWire is the flat wire form of a coid.COid.
type coidWire struct {
	Cid, Oid uint64
}

func wireCoid(c coid.COid) coidWire { return coidWire{Cid: c.Cid, Oid: c.Oid} }
func (w coidWire) coid() coid.COid  { return coid.COid{Cid: w.Cid, Oid: w.Oid} }

// keyWire is the flat wire form of a keyinfo.Key.
type keyWire struct {
	IsInt bool
	Int   int64
	Bytes []byte
}

func wireKey(k keyinfo.Key) keyWire { return keyWire{IsInt: k.IsInt, Int: k.Int, Bytes: k.Bytes} }
func (w keyWire) key() keyinfo.Key  { return keyinfo.Key{IsInt: w.IsInt, Int: w.Int, Bytes: w.Bytes} }

type tidWire struct {
	B [16]byte
}

func wireTid(t ts.Tid) tidWire { return tidWire{B: t.Bytes()} }
func (w tidWire) tid() ts.Tid  { return ts.TidFromBytes(w.B) }

type tsWire struct {
	B [16]byte
}

func wireTs(t ts.Ts) tsWire { return tsWire{B: t.Bytes()} }
func (w tsWire) ts() ts.Ts  { return ts.FromBytes(w.B) }

// writeRequest is RPCWrite's payload, carrying a plain Value.
// RPCFullWrite's SuperValue payload is fullWriteRequest.
type writeRequest struct {
	Tid   tidWire
	Coid  coidWire
	Level int32
	Value []byte
}

type fullWriteRequest struct {
	Tid      tidWire
	Coid     coidWire
	Level    int32
	CellType int32
	NAttrs   uint16
	SVAttrs  []uint64
	Cells    []cellWire
}

type cellWire struct {
	Key   keyWire
	Value uint64
}

// readRequest is RPCRead/RPCFullRead's payload. DeferMicros bounds how long
// the server will block a DEFER_RPC read waiting for the conflicting
// pending entry to resolve before giving up (0 disables the bound, per
// §8.1's default deferred-liveness invariant).
type readRequest struct {
	Tid         tidWire
	Coid        coidWire
	Ts          tsWire
	DeferMicros int64
}

type readResponse struct {
	Ts       tsWire
	HasValue bool
	Value    []byte
	HasSV    bool
	CellType int32
	NAttrs   uint16
	SVAttrs  []uint64
	Cells    []cellWire
}

type listAddRequest struct {
	Tid   tidWire
	Coid  coidWire
	Level int32
	Cell  cellWire
}

type listDelRangeRequest struct {
	Tid      tidWire
	Coid     coidWire
	Level    int32
	Start    keyWire
	End      keyWire
	Interval uint8
}

type attrSetRequest struct {
	Tid    tidWire
	Coid   coidWire
	Level  int32
	AttrID uint16
	Value  uint64
}

type prepareRequest struct {
	Tid       tidWire
	WriteSet  []coidWire
	ReadSet   []coidWire
	ProposeTs tsWire
}

type prepareResponse struct {
	Vote      bool
	FinalTs   tsWire
}

type commitRequest struct {
	Tid    tidWire
	Abort  bool
	Ts     tsWire
}

type subtransRequest struct {
	Tid     tidWire
	Level   int32
	Release bool
}

type getRowidRequest struct {
	Cid uint64
}

type getRowidResponse struct {
	Rowid uint64
}

type flushFileRequest struct {
	Path string
}

type statusResponse struct {
	NodeID     uint64
	NumObjects uint64
	NumPending uint64
}

func encode(v interface{}) []byte {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		// Every payload type above is a flat struct of supported kinds;
		// a marshal failure here means a coding error, not bad input.
		panic("server: rlp encode: " + err.Error())
	}
	return b
}

func decode(b []byte, v interface{}) error {
	return rlp.DecodeBytes(b, v)
}
