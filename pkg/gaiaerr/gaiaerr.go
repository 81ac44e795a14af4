// Package gaiaerr defines the error kinds surfaced at the storage core's
// boundary (spec §7) plus a numeric status code mapping for wire responses.
package gaiaerr

import "errors"

// Sentinel error kinds, checked with errors.Is. Internal plumbing wraps
// lower-level errors (disk I/O, encoding) with fmt.Errorf("...: %w", err) so
// errors.Is/errors.As keep working up the call stack.
var (
	// ErrTooOldVersion: read ts precedes all available checkpoints.
	ErrTooOldVersion = errors.New("gaiaerr: too old version")
	// ErrPendingData: read would observe uncommitted data and the caller
	// disallowed deferral.
	ErrPendingData = errors.New("gaiaerr: pending data")
	// ErrDeferRPC: same, but the caller supplied a deferred handle — the
	// RPC task suspends and resumes later; never returned to a client.
	ErrDeferRPC = errors.New("gaiaerr: deferred")
	// ErrCorruptedLog: a checkpoint is followed by a ts-<= entry that would
	// violate the logentries invariant.
	ErrCorruptedLog = errors.New("gaiaerr: corrupted log")
	// ErrWrongType: operation mismatched with stored variant.
	ErrWrongType = errors.New("gaiaerr: wrong type")
	// ErrAttrOutrange: AttrSet with id >= nattrs.
	ErrAttrOutrange = errors.New("gaiaerr: attribute out of range")
	// ErrNoMemory: allocation failure in a record-packing path.
	ErrNoMemory = errors.New("gaiaerr: no memory")
	// ErrVoteNo: conflict detected at prepare.
	ErrVoteNo = errors.New("gaiaerr: vote no")
)

// Status is the numeric code carried in RPC responses (spec §7 propagation
// policy: PENDING_DATA, TOO_OLD_VERSION, WRONG_TYPE, ATTR_OUTRANGE,
// NO_MEMORY are returned as a status; CORRUPTED_LOG is logged and converted
// to TOO_OLD_VERSION for the client; DEFER_RPC never reaches the wire).
type Status int32

const (
	StatusOK Status = iota
	StatusTooOldVersion
	StatusPendingData
	StatusWrongType
	StatusAttrOutrange
	StatusNoMemory
	StatusVoteNo
	StatusInternal
)

// ToStatus maps an error (possibly wrapped) to the wire status code a client
// should see. CorruptedLog is deliberately downgraded to TooOldVersion: the
// log-order invariant it protects is treated as a bug, not a
// client-recoverable condition (spec §7).
func ToStatus(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrTooOldVersion), errors.Is(err, ErrCorruptedLog):
		return StatusTooOldVersion
	case errors.Is(err, ErrPendingData):
		return StatusPendingData
	case errors.Is(err, ErrWrongType):
		return StatusWrongType
	case errors.Is(err, ErrAttrOutrange):
		return StatusAttrOutrange
	case errors.Is(err, ErrNoMemory):
		return StatusNoMemory
	case errors.Is(err, ErrVoteNo):
		return StatusVoteNo
	default:
		return StatusInternal
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTooOldVersion:
		return "TOO_OLD_VERSION"
	case StatusPendingData:
		return "PENDING_DATA"
	case StatusWrongType:
		return "WRONG_TYPE"
	case StatusAttrOutrange:
		return "ATTR_OUTRANGE"
	case StatusNoMemory:
		return "NO_MEMORY"
	case StatusVoteNo:
		return "VOTE_NO"
	default:
		return "INTERNAL"
	}
}
