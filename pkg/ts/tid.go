package ts

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Tid is a 128-bit transaction identifier: node-unique-id, seconds of wall
// clock at creation, and a per-process counter (spec §3.1). It is opaque —
// compared only for equality, never ordered.
type Tid struct {
	d0 uint64 // node-unique-id
	d1 uint64 // seconds<<32 | counter
}

var tidCounter atomic.Uint32

// NewTid mints a fresh Tid tagged with id.
func NewTid(id UniqueID) Tid {
	c := tidCounter.Add(1)
	sec := uint64(time.Now().Unix())
	return Tid{
		d0: uint64(id),
		d1: sec<<32 | uint64(c),
	}
}

// Equal reports whether two Tids name the same transaction.
func (t Tid) Equal(o Tid) bool { return t.d0 == o.d0 && t.d1 == o.d1 }

// IsZero reports whether t is the zero-value Tid (never minted by NewTid).
func (t Tid) IsZero() bool { return t.d0 == 0 && t.d1 == 0 }

func (t Tid) String() string {
	return fmt.Sprintf("Tid(%016x%016x)", t.d0, t.d1)
}

// Bytes returns a stable 16-byte encoding of t, suitable for use as a map
// key in contexts that need comparable byte slices (e.g. disk formats).
func (t Tid) Bytes() [16]byte {
	var b [16]byte
	putU64(b[0:8], t.d0)
	putU64(b[8:16], t.d1)
	return b
}

// TidFromBytes decodes a Tid previously encoded with Bytes. Used by WAL
// recovery, where only byte-equality of the recovered Tid against the
// in-memory pending-tx table's keys matters, not reconstructing the
// original node-id/counter split.
func TidFromBytes(b [16]byte) Tid {
	return Tid{d0: getU64(b[0:8]), d1: getU64(b[8:16])}
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}
