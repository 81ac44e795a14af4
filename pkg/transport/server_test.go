package transport

import (
	"testing"
	"time"
)

func startTestServer(t *testing.T) (*Server, *Dispatcher) {
	t.Helper()
	d := NewDispatcher()
	s, err := Listen("127.0.0.1:0", d, nil)
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve()
	t.Cleanup(func() { s.Close() })
	return s, d
}

func TestSyncRPCRoundTrip(t *testing.T) {
	s, d := startTestServer(t)
	d.Register(0, 3, func(req uint32, body []byte) ([]byte, bool) {
		out := append([]byte("echo:"), body...)
		return out, false
	})

	c, err := Dial(s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	payload, err := c.SyncRPC(0, 3, []byte("hi"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "echo:hi" {
		t.Fatalf("got %q", payload)
	}
}

func TestSyncRPCErrorStatus(t *testing.T) {
	s, d := startTestServer(t)
	d.Register(0, 9, func(req uint32, body []byte) ([]byte, bool) {
		return []byte{42}, true
	})

	c, err := Dial(s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.SyncRPC(0, 9, nil, time.Second)
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %v", err)
	}
	if len(rpcErr.Payload) != 1 || rpcErr.Payload[0] != 42 {
		t.Fatalf("unexpected payload %v", rpcErr.Payload)
	}
}

func TestSyncRPCNoHandlerRegistered(t *testing.T) {
	s, _ := startTestServer(t)

	c, err := Dial(s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.SyncRPC(0, 99, nil, time.Second)
	if _, ok := err.(*RPCError); !ok {
		t.Fatalf("expected *RPCError for unregistered rpc, got %v", err)
	}
}

func TestAsyncRPCConcurrentRequestsDemuxByXid(t *testing.T) {
	s, d := startTestServer(t)
	d.Register(0, 1, func(req uint32, body []byte) ([]byte, bool) {
		time.Sleep(5 * time.Millisecond)
		return body, false
	})

	c, err := Dial(s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	const n = 20
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		body := []byte{byte(i)}
		if err := c.AsyncRPC(0, 1, body, func(payload []byte, isErr bool, err error) {
			if err != nil || isErr || len(payload) != 1 {
				results <- "bad"
				return
			}
			results <- string(payload)
		}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < n; i++ {
		select {
		case r := <-results:
			if r == "bad" {
				t.Fatalf("async rpc %d failed", i)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for async replies")
		}
	}
}

func TestClientCloseFailsOutstandingRPCs(t *testing.T) {
	s, d := startTestServer(t)
	d.Register(0, 1, func(req uint32, body []byte) ([]byte, bool) {
		time.Sleep(200 * time.Millisecond)
		return body, false
	})

	c, err := Dial(s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	if err := c.AsyncRPC(0, 1, nil, func(payload []byte, isErr bool, err error) {
		done <- err
	}); err != nil {
		t.Fatal(err)
	}
	c.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after client close")
		}
	case <-time.After(time.Second):
		t.Fatal("callback never invoked after close")
	}
}
