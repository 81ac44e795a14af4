// Package coid defines the COid identifier (spec §3.1): the unit of
// storage, locking, and RPC addressing throughout the node.
package coid

import "fmt"

// COid names a container-object: cid identifies a container (conceptually a
// table or index), oid an object within it. COid is totally ordered by
// (cid, oid) and is comparable, so it can be used directly as a map key.
type COid struct {
	Cid uint64
	Oid uint64
}

// Cmp returns -1, 0, or 1 as c sorts before, equal to, or after o.
func (c COid) Cmp(o COid) int {
	switch {
	case c.Cid < o.Cid:
		return -1
	case c.Cid > o.Cid:
		return 1
	case c.Oid < o.Oid:
		return -1
	case c.Oid > o.Oid:
		return 1
	default:
		return 0
	}
}

// Less reports whether c sorts strictly before o.
func (c COid) Less(o COid) bool { return c.Cmp(o) < 0 }

func (c COid) String() string { return fmt.Sprintf("(%d,%d)", c.Cid, c.Oid) }

// Bytes returns a stable 16-byte big-endian encoding, used as the disk
// object store key (pkg/diskstore) and in WAL per-coid record headers.
func (c COid) Bytes() [16]byte {
	var b [16]byte
	putU64(b[0:8], c.Cid)
	putU64(b[8:16], c.Oid)
	return b
}

// FromBytes decodes a COid previously encoded with Bytes.
func FromBytes(b [16]byte) COid {
	return COid{Cid: getU64(b[0:8]), Oid: getU64(b[8:16])}
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
