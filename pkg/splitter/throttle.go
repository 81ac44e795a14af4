package splitter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Stats is the feedback reported back by the dedicated splitter thread
// after each split attempt (spec §4.7; original_source's SplitterStats):
// queue depth, how long the current split has been retrying, and the
// resulting node's size, all of which feed the throttle.
type Stats struct {
	QueueDepth   int
	RetryingFor  time.Duration // 0 once the in-flight split completes
	NodeElements int
	NodeBytes    int
}

// Throttle derives a request delay from the splitter thread's reported
// load (spec §4.7: "a throttle derives a request delay from {queue depth,
// time spent retrying, node size}"). Each metric's delay is recomputed from
// the latest report, and the effective delay is the longest of the three,
// matching the original's "take the max of all metrics' individual delays"
// throttle design. Separately, Allow gates dispatch through three
// fixed-rate token-bucket limiters (x/time/rate), one per metric; their
// rates do not depend on the reported stats or on the delays.
type Throttle struct {
	mu sync.Mutex

	queueLimiter    *rate.Limiter
	retryLimiter    *rate.Limiter
	nodesizeLimiter *rate.Limiter

	queueDelay    time.Duration
	retryDelay    time.Duration
	nodesizeDelay time.Duration
}

// NewThrottle returns a Throttle with one limiter per metric: the queue and
// retry limiters allow one request per 100ms, the node-size limiter one per
// second, each with a burst of 1. All delays start at zero.
func NewThrottle() *Throttle {
	return &Throttle{
		queueLimiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		retryLimiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		nodesizeLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// ReportLoad folds in the splitter thread's latest stats, recomputing the
// per-metric delays (spec §4.7 ReportLoad).
func (t *Throttle) ReportLoad(s Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.queueDelay = delayFromQueueDepth(s.QueueDepth)
	t.retryDelay = delayFromRetrying(s.RetryingFor)
}

// ReportNodeSize folds in the resulting node's size after a split (spec
// §4.7 ReportNodeSize). A node up to 4 MiB adds no delay; above that the
// delay grows by 1ms per KiB over, capped at 5s.
func (t *Throttle) ReportNodeSize(elements, bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodesizeDelay = delayFromNodeSize(elements, bytes)
}

// CurrentDelay returns how long a caller should wait before issuing
// another split request, the max of the three metrics' delays (spec
// §4.7 getCurrentDelay).
func (t *Throttle) CurrentDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.queueDelay
	if t.retryDelay > d {
		d = t.retryDelay
	}
	if t.nodesizeDelay > d {
		d = t.nodesizeDelay
	}
	return d
}

// Allow reports whether a new split request may be dispatched right now,
// consuming a token from each limiter it reaches. All three fixed-rate
// limiters must have a token for the request to proceed; the reported
// delays are not consulted.
func (t *Throttle) Allow() bool {
	return t.queueLimiter.Allow() && t.retryLimiter.Allow() && t.nodesizeLimiter.Allow()
}

func delayFromQueueDepth(depth int) time.Duration {
	if depth <= 1 {
		return 0
	}
	d := time.Duration(depth) * 50 * time.Millisecond
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

func delayFromRetrying(retryingFor time.Duration) time.Duration {
	if retryingFor <= 0 {
		return 0
	}
	// Linear: the delay equals the time the split has been stuck retrying
	// (capped at 30s), so new requests for other coids back off too, since
	// they compete for the same splitter thread.
	d := retryingFor
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func delayFromNodeSize(elements, bytes int) time.Duration {
	const targetBytes = 4 * 1024 * 1024
	if bytes <= targetBytes {
		return 0
	}
	over := bytes - targetBytes
	d := time.Duration(over/1024) * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
