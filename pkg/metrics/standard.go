package metrics

// Pre-defined metrics for the storage node. All metrics
// live in DefaultRegistry so they are globally accessible without passing a
// registry around — pkg/wal, pkg/looim, and pkg/server record into these
// vars directly rather than threading a *Registry through their
// constructors.

var (
	// ---- Write-ahead log metrics (pkg/wal) ----

	// WALFlushLatencyMs records how long each batched flush+sync takes.
	WALFlushLatencyMs = DefaultRegistry.Histogram("wal.flush_latency_ms")
	// WALFlushes counts completed flushes.
	WALFlushes = DefaultRegistry.Counter("wal.flushes")
	// WALRecordsWritten counts individual records appended to the log.
	WALRecordsWritten = DefaultRegistry.Counter("wal.records_written")

	// ---- In-memory object log metrics (pkg/looim) ----

	// GCPasses counts gcLocked invocations that found anything to reclaim.
	GCPasses = DefaultRegistry.Counter("looim.gc_passes")
	// GCEntriesReclaimed counts log entries discarded across all GC passes.
	GCEntriesReclaimed = DefaultRegistry.Counter("looim.gc_entries_reclaimed")
	// DeferredReaders tracks reads currently blocked on a pending entry.
	DeferredReaders = DefaultRegistry.Gauge("looim.deferred_readers")

	// ---- 2PC driver metrics (pkg/server) ----

	// PrepareRequests counts incoming Prepare RPCs.
	PrepareRequests = DefaultRegistry.Counter("server.prepare_requests")
	// PrepareVotesYes counts Prepare RPCs that voted yes.
	PrepareVotesYes = DefaultRegistry.Counter("server.prepare_votes_yes")
	// PrepareVotesNo counts Prepare RPCs that voted no.
	PrepareVotesNo = DefaultRegistry.Counter("server.prepare_votes_no")
	// CommitRequests counts Commit RPCs that committed.
	CommitRequests = DefaultRegistry.Counter("server.commit_requests")
	// AbortRequests counts Commit RPCs carrying Abort=true.
	AbortRequests = DefaultRegistry.Counter("server.abort_requests")

	// ---- Splitter metrics (cmd/storagenode) ----

	// SplitRequests counts deduplicated split requests dispatched to a node's
	// SplitFunc.
	SplitRequests = DefaultRegistry.Counter("splitter.split_requests")
)
