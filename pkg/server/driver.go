package server

import (
	"sort"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/gaiaerr"
	"github.com/yesquel/gaiakv/pkg/looim"
	"github.com/yesquel/gaiakv/pkg/metrics"
	"github.com/yesquel/gaiakv/pkg/txlog"
)

// handlePrepare implements the Prepare RPC's core algorithm (spec §4.8).
func (s *Server) handlePrepare(body []byte) ([]byte, bool) {
	metrics.PrepareRequests.Inc()
	var req prepareRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	tid := req.Tid.tid()

	unlockTid := s.tids.lock(tid)
	defer unlockTid()

	pti := s.Pending.GetOrCreate(tid)

	coids := dedupCoids(req.WriteSet, req.ReadSet)
	sort.Slice(coids, func(i, j int) bool { return coids[i].Less(coids[j]) })

	type locked struct {
		c      coid.COid
		o      *looim.LogOneObjectInMemory
		unlock func()
	}
	objs := make([]locked, 0, len(coids))
	defer func() {
		for i := len(objs) - 1; i >= 0; i-- {
			objs[i].unlock()
		}
	}()
	for _, c := range coids {
		o, unlock := s.Looim.GetAndLock(c, true, false, s.NodeID)
		objs = append(objs, locked{c: c, o: o, unlock: unlock})
	}

	origSnapshot := req.ProposeTs.ts()
	proposedTs := origSnapshot

	tucoids := make(map[coid.COid]*txlog.TxUpdateCoid, len(objs))
	for _, e := range objs {
		if raw, ok := pti.CoidInfo(e.c); ok {
			tucoids[e.c] = raw.Compress()
		}
	}

	vote := true
	for _, e := range objs {
		if e.o.LastRead.Cmp(proposedTs) > 0 {
			proposedTs = e.o.LastRead.AddEpsilon()
		}
		for _, entry := range e.o.LogEntries {
			if entry.Ts.Cmp(origSnapshot) > 0 {
				vote = false
				break
			}
		}
		if !vote {
			break
		}
		cand, ok := tucoids[e.c]
		if !ok {
			continue
		}
		if s.Pending.ConflictsWithPrepared(e.c, cand, tid) {
			vote = false
			break
		}
	}

	if !vote {
		pti.Status = txlog.StatusVotedNo
		metrics.PrepareVotesNo.Inc()
		return encode(&prepareResponse{Vote: false}), false
	}

	metrics.PrepareVotesYes.Inc()
	pti.Status = txlog.StatusVotedYes
	for _, e := range objs {
		cand, ok := tucoids[e.c]
		if !ok {
			continue
		}
		if !cand.IsWrite() && len(cand.Litems) == 0 && cand.SetAttrs.Count() == 0 {
			continue // read-only coid: nothing to make pending
		}
		sleim := e.o.AddPendingLocked(proposedTs, cand)
		cand.PendingEntrySleim = sleim
	}

	done := make(chan struct{})
	if err := s.WAL.LogUpdatesAndYesVote(tid, proposedTs, pti, func() { close(done) }); err != nil {
		return errPayload(err), true
	}
	<-done

	return encode(&prepareResponse{Vote: true, FinalTs: wireTs(proposedTs)}), false
}

// handleCommit implements the Commit RPC and its abort path (spec §4.8).
func (s *Server) handleCommit(body []byte) ([]byte, bool) {
	var req commitRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	tid := req.Tid.tid()

	unlockTid := s.tids.lock(tid)
	defer func() {
		unlockTid()
		s.tids.forget(tid)
	}()

	pti, ok := s.Pending.Get(tid)
	if !ok {
		return errPayload(gaiaerr.ErrWrongType), true
	}

	at := req.Ts.ts()
	move := !req.Abort
	for _, c := range pti.Coids() {
		raw, ok := pti.CoidInfo(c)
		if !ok {
			continue
		}
		cand := raw.Compress()
		p, ok := cand.PendingEntrySleim.(*looim.PendingSLEIM)
		if !ok || p == nil {
			continue
		}
		o, unlock := s.Looim.GetAndLock(c, true, false, s.NodeID)
		_ = o.RemoveOrMovePendingLocked(p, at, move)
		unlock()
	}

	if req.Abort {
		metrics.AbortRequests.Inc()
		_ = s.WAL.LogAbortAsync(tid, at)
	} else {
		metrics.CommitRequests.Inc()
		_ = s.WAL.LogCommitAsync(tid, at)
	}
	s.Pending.Remove(tid)
	return nil, false
}

// handleSubtrans implements the Subtrans RPC (spec §4.8, §8.1 subtransaction
// laws): adjusts every raw item of tid according to abortLevel/releaseLevel.
func (s *Server) handleSubtrans(body []byte) ([]byte, bool) {
	var req subtransRequest
	if err := decode(body, &req); err != nil {
		return errPayload(err), true
	}
	tid := req.Tid.tid()
	unlock := s.tids.lock(tid)
	defer unlock()

	pti := s.Pending.GetOrCreate(tid)
	if req.Release {
		pti.ReleaseLevel(int(req.Level))
	} else {
		pti.AbortLevel(int(req.Level))
	}
	return nil, false
}

func dedupCoids(sets ...[]coidWire) []coid.COid {
	seen := make(map[coid.COid]struct{})
	var out []coid.COid
	for _, set := range sets {
		for _, w := range set {
			c := w.coid()
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
