package splitter

import (
	"sync"
	"time"

	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/log"
)

// SplitFunc performs the actual split of coid at splitCell. Its decision
// logic (where the new node lives, how data migrates) is an external
// collaborator (spec's Non-goals) — Client only calls it, on a dedicated
// goroutine, once per deduplicated request.
type SplitFunc func(c coid.COid, splitCell keyinfo.Key) Stats

// Client is the storage node's splitter-client half (spec §4.7): it
// accumulates LoadStats, periodically checks for heavy hitters, and
// dispatches deduplicated SplitRequests to a dedicated goroutine at a
// rate governed by Throttle.
type Client struct {
	stats    *LoadStats
	throttle *Throttle
	split    SplitFunc
	logger   *log.Logger

	mu      sync.Mutex
	pending map[coid.COid]struct{}
	queue   chan SplitRequest

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewClient returns a Client that checks statInterval and flags COids with
// more than heavyHitterThreshold hits, calling split to actually perform a
// split.
func NewClient(statInterval time.Duration, heavyHitterThreshold int, split SplitFunc, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	c := &Client{
		stats:    NewLoadStats(statInterval, heavyHitterThreshold),
		throttle: NewThrottle(),
		split:    split,
		logger:   logger.With("component", "splitter.client"),
		pending:  make(map[coid.COid]struct{}),
		queue:    make(chan SplitRequest, 256),
		stop:     make(chan struct{}),
	}
	c.wg.Add(2)
	go c.splitLoop()
	go c.checkLoop(statInterval)
	return c
}

// Report records one access (spec §4.7 report); see LoadStats.Report.
func (c *Client) Report(coid coid.COid, cell keyinfo.Key, ct keyinfo.CellType, ki *keyinfo.RcKeyInfo) {
	c.stats.Report(coid, cell, ct, ki)
}

// Stats exposes the underlying LoadStats for the admin console's
// splitter command (spec §6.6).
func (c *Client) Stats() *LoadStats { return c.stats }

// Throttle exposes the underlying Throttle so the transport layer can
// report queue depth / node size feedback from the dedicated splitter
// thread's replies (spec §4.7).
func (c *Client) Throttle() *Throttle { return c.throttle }

// Close stops the client's background goroutines.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// checkLoop periodically runs LoadStats.Check and enqueues any resulting
// SplitRequests, deduplicated by coid (spec §4.7: "Split requests are
// deduplicated by coid in a pending table").
func (c *Client) checkLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			for _, req := range c.stats.Check(time.Now()) {
				c.enqueue(req)
			}
		}
	}
}

func (c *Client) enqueue(req SplitRequest) {
	c.mu.Lock()
	if _, dup := c.pending[req.Coid]; dup {
		c.mu.Unlock()
		return
	}
	c.pending[req.Coid] = struct{}{}
	c.mu.Unlock()

	select {
	case c.queue <- req:
	default:
		c.logger.Warn("split request queue full, dropping", "coid", req.Coid)
		c.mu.Lock()
		delete(c.pending, req.Coid)
		c.mu.Unlock()
	}
}

// splitLoop is the dedicated splitter thread (spec §4.7: "dispatched to a
// dedicated splitter thread"): it drains the request queue, respecting
// Throttle's current delay, calls SplitFunc, and feeds the result back
// into the throttle before un-deduplicating the coid.
func (c *Client) splitLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case req := <-c.queue:
			for !c.throttle.Allow() {
				d := c.throttle.CurrentDelay()
				if d <= 0 {
					d = 10 * time.Millisecond
				}
				select {
				case <-c.stop:
					return
				case <-time.After(d):
				}
			}

			stats := c.split(req.Coid, req.SplitCell)
			c.throttle.ReportLoad(stats)
			c.throttle.ReportNodeSize(stats.NodeElements, stats.NodeBytes)

			c.mu.Lock()
			delete(c.pending, req.Coid)
			c.mu.Unlock()
		}
	}
}
