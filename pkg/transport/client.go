package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClientClosed is returned by AsyncRPC/SyncRPC once the client has been
// closed.
var ErrClientClosed = errors.New("transport: client closed")

// ErrRPCTimeout is returned by SyncRPC when no reply arrives within the
// given timeout.
var ErrRPCTimeout = errors.New("transport: rpc timed out")

// outstandingRPC is one in-flight client request, tracked by xid until its
// reply arrives (spec §4.3: "records an OutstandingRPC in a hash table
// keyed by xid").
type outstandingRPC struct {
	xid      uint32
	req      uint32
	callback func(payload []byte, isErr bool, err error)
}

// Client is a single outbound connection to one destination node,
// providing async_rpc/sync_rpc over it (spec §4.3). One Client handles
// exactly one net.Conn; a node wanting to talk to N peers holds N Clients.
type Client struct {
	conn net.Conn
	w    *bufio.Writer
	wmu  sync.Mutex

	mu      sync.Mutex
	pending map[uint32]*outstandingRPC
	closed  bool

	nextXid atomic.Uint32
}

// Dial connects to addr and starts the client's read loop, which demuxes
// replies by xid and invokes their callbacks.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:    conn,
		w:       bufio.NewWriter(conn),
		pending: make(map[uint32]*outstandingRPC),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the underlying connection and fails every outstanding RPC.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, rpc := range pending {
		rpc.callback(nil, false, ErrClientClosed)
	}
	return c.conn.Close()
}

// AsyncRPC assigns a fresh xid, registers the callback, and writes the
// request frame to the destination (spec §4.3 async_rpc). If AsyncRPC
// returns nil, callback is invoked exactly once: from the client's
// read-loop goroutine when the reply arrives or the connection fails, or
// from Close's caller when the client is closed. If AsyncRPC returns an
// error, callback is not invoked.
func (c *Client) AsyncRPC(handlerID uint16, req uint32, body []byte, callback func(payload []byte, isErr bool, err error)) error {
	xid := c.nextXid.Add(1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.pending[xid] = &outstandingRPC{xid: xid, req: req, callback: callback}
	c.mu.Unlock()

	c.wmu.Lock()
	err := WriteFrame(c.w, NewRequestFrame(handlerID, req, xid, body))
	if err == nil {
		err = c.w.Flush()
	}
	c.wmu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, xid)
		c.mu.Unlock()
		return fmt.Errorf("transport: write rpc %d: %w", req, err)
	}
	return nil
}

// SyncRPC is AsyncRPC plus a completion primitive that blocks the caller
// until the reply arrives or timeout elapses (spec §4.3: "sync_rpc:
// implemented via a completion primitive on top of async").
func (c *Client) SyncRPC(handlerID uint16, req uint32, body []byte, timeout time.Duration) ([]byte, error) {
	type result struct {
		payload []byte
		isErr   bool
		err     error
	}
	done := make(chan result, 1)

	if err := c.AsyncRPC(handlerID, req, body, func(payload []byte, isErr bool, err error) {
		done <- result{payload, isErr, err}
	}); err != nil {
		return nil, err
	}

	var timer *time.Timer
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.isErr {
			return res.payload, &RPCError{Payload: res.payload}
		}
		return res.payload, nil
	case <-timeoutC:
		return nil, ErrRPCTimeout
	}
}

// RPCError wraps an application-level error status carried in a response
// frame's payload (spec §7: numeric status codes such as TOO_OLD_VERSION,
// PENDING_DATA, WRONG_TYPE, ATTR_OUTRANGE, NO_MEMORY).
type RPCError struct {
	Payload []byte
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("transport: rpc error, status payload %d bytes", len(e.Payload))
}

// readLoop reads reply frames until the connection fails, delivering each
// to its matching OutstandingRPC entry and dropping the entry (spec §4.3:
// "On reply arrival (demuxed by xid): remove entry, invoke callback").
func (c *Client) readLoop() {
	for {
		f, err := ReadFrame(c.conn)
		if err != nil {
			c.failAll(err)
			return
		}
		if !f.IsResponse() {
			continue // servers never receive on a Client connection
		}
		c.mu.Lock()
		rpc, ok := c.pending[f.Xid]
		if ok {
			delete(c.pending, f.Xid)
		}
		c.mu.Unlock()
		if !ok {
			continue // stale reply for a cancelled/timed-out request
		}
		rpc.callback(f.Payload, f.IsError(), nil)
	}
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, rpc := range pending {
		rpc.callback(nil, false, err)
	}
	c.conn.Close()
}

// Pending returns the number of in-flight requests on this client.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
