package server

import (
	"errors"
	"time"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/gaiaerr"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/sval"
	"github.com/yesquel/gaiakv/pkg/ts"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// chanDeferred adapts a channel to looim.DeferredReader: Wake is called
// from inside the object's write lock (spec §4.4.1), so it must be
// non-blocking and must not re-enter the looim — closing a channel is both.
type chanDeferred struct{ ch chan struct{} }

func newChanDeferred() *chanDeferred { return &chanDeferred{ch: make(chan struct{})} }
func (d *chanDeferred) Wake()        { close(d.ch) }

// rawCoidFor returns tid's buffered raw update list for c, creating it on
// first touch with c's current live cell type/collation if the object
// already exists (spec §3.3 "the raw list is created on first reference").
func (s *Server) rawCoidFor(tid ts.Tid, c coid.COid) *txlog.TxRawCoid {
	pti := s.Pending.GetOrCreate(tid)
	ct, ki := keyinfo.IntKey, (*keyinfo.RcKeyInfo)(nil)
	if o, ok := s.Looim.Get(c); ok {
		ct, ki = o.CellType, o.KeyInfo
	}
	return pti.GetOrCreateCoid(c, func() *txlog.TxRawCoid { return txlog.NewTxRawCoid(ct, ki) })
}

func (s *Server) handleWrite(body []byte) ([]byte, bool) {
	var req writeRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	unlock := s.tids.lock(req.Tid.tid())
	defer unlock()
	raw := s.rawCoidFor(req.Tid.tid(), req.Coid.coid())
	raw.Append(txlog.WriteItem(int(req.Level), sval.Value(req.Value)))
	return nil, false
}

func (s *Server) handleFullWrite(body []byte) ([]byte, bool) {
	var req fullWriteRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	unlock := s.tids.lock(req.Tid.tid())
	defer unlock()

	sv := sval.NewSuperValue(req.NAttrs, keyinfo.CellType(req.CellType), nil)
	copy(sv.Attrs, req.SVAttrs)
	for _, c := range req.Cells {
		sv.InsertOrReplace(sval.ListCell{Key: c.Key.key(), Value: c.Value})
	}

	raw := s.rawCoidFor(req.Tid.tid(), req.Coid.coid())
	raw.Append(txlog.WriteSVItem(int(req.Level), sv))
	return nil, false
}

func (s *Server) handleListAdd(body []byte) ([]byte, bool) {
	var req listAddRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	unlock := s.tids.lock(req.Tid.tid())
	defer unlock()
	raw := s.rawCoidFor(req.Tid.tid(), req.Coid.coid())
	raw.Append(txlog.AddItem(int(req.Level), sval.ListCell{Key: req.Cell.Key.key(), Value: req.Cell.Value}))
	return nil, false
}

func (s *Server) handleListDelRange(body []byte) ([]byte, bool) {
	var req listDelRangeRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	unlock := s.tids.lock(req.Tid.tid())
	defer unlock()
	raw := s.rawCoidFor(req.Tid.tid(), req.Coid.coid())
	raw.Append(txlog.DelRangeItem(int(req.Level), req.Start.key(), req.End.key(), keyinfo.IntervalType(req.Interval)))
	return nil, false
}

func (s *Server) handleAttrSet(body []byte) ([]byte, bool) {
	var req attrSetRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	if int(req.AttrID) >= txlog.MaxAttrs {
		return errPayload(gaiaerr.ErrAttrOutrange), true
	}
	unlock := s.tids.lock(req.Tid.tid())
	defer unlock()
	raw := s.rawCoidFor(req.Tid.tid(), req.Coid.coid())
	raw.Append(txlog.AttrSetItem(int(req.Level), req.AttrID, req.Value))
	return nil, false
}

// handleRead and handleFullRead both translate to looim.Read with a
// deferred handle (spec §4.8 "Read/Fullread RPCs ... on DEFERRED, the task
// returns Waiting"); here the RPC's own goroutine (spec's transport layer
// already dispatches one goroutine per request) blocks on the deferred
// channel instead of suspending a cooperative task, since no second task is
// multiplexed onto it.
func (s *Server) handleRead(body []byte) ([]byte, bool) {
	var req readRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	tucoid, at, err := s.readAt(req.Coid.coid(), req.Ts.ts(), time.Duration(req.DeferMicros)*time.Microsecond)
	if err != nil {
		return errPayload(err), true
	}
	resp := readResponse{Ts: wireTs(at)}
	if tucoid.HasWrite {
		resp.HasValue = true
		resp.Value = tucoid.Value
	}
	return encode(&resp), false
}

func (s *Server) handleFullRead(body []byte) ([]byte, bool) {
	var req readRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	tucoid, at, err := s.readAt(req.Coid.coid(), req.Ts.ts(), time.Duration(req.DeferMicros)*time.Microsecond)
	if err != nil {
		return errPayload(err), true
	}
	resp := readResponse{Ts: wireTs(at)}
	if tucoid.HasWriteSV && tucoid.SV != nil {
		resp.HasSV = true
		resp.CellType = int32(tucoid.SV.CellType)
		resp.NAttrs = uint16(tucoid.SV.NAttrs())
		resp.SVAttrs = append([]uint64(nil), tucoid.SV.Attrs...)
		for _, cell := range tucoid.SV.Cells {
			resp.Cells = append(resp.Cells, cellWire{Key: wireKey(cell.Key), Value: cell.Value})
		}
	}
	return encode(&resp), false
}

// readAt resolves a read, retrying across DEFER_RPC suspensions. deadline
// bounds the total time spent waiting on deferred pending entries (0
// disables the bound, per §8.1's default deferred-liveness invariant); once
// it elapses the read gives up with ErrTooOldVersion rather than block
// forever on a split-brained or abandoned preparer.
func (s *Server) readAt(c coid.COid, requested ts.Ts, deadline time.Duration) (*txlog.TxUpdateCoid, ts.Ts, error) {
	var timeoutCh <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		deferred := newChanDeferred()
		o, unlock := s.Looim.GetAndLock(c, true, false, s.NodeID)
		tucoid, at, err := o.ReadLocked(requested, deferred)
		unlock()

		if err == nil {
			return tucoid, at, nil
		}
		if !errors.Is(err, gaiaerr.ErrDeferRPC) {
			return nil, ts.Ts{}, err
		}
		select {
		case <-deferred.ch:
			continue
		case <-timeoutCh:
			return nil, ts.Ts{}, gaiaerr.ErrTooOldVersion
		}
	}
}
