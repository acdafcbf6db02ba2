package jsonrpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// testPair returns two connected Conns, one per end of an in-memory pipe.
func testPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := NewConn(NewStream(a))
	cb := NewConn(NewStream(b))
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestConn_ReadClassifiesMessages(t *testing.T) {
	server, client := testPair(t)
	ctx := context.Background()

	go func() {
		_ = client.Notify(ctx, "initialized", struct{}{})
	}()

	msg, err := server.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	ntf, ok := msg.(*Notification)
	if !ok {
		t.Fatalf("Read() = %T, expected *Notification", msg)
	}
	if ntf.Method != "initialized" {
		t.Errorf("method = %q, expected initialized", ntf.Method)
	}
}

func TestConn_CallCorrelatesResponse(t *testing.T) {
	server, client := testPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The caller needs a running read loop to receive the response.
	go func() {
		_, _ = server.Read(ctx)
	}()

	// The client answers the first request it sees.
	go func() {
		msg, err := client.Read(ctx)
		if err != nil {
			return
		}
		req, ok := msg.(*Request)
		if !ok {
			return
		}
		_ = client.Respond(req.ID, map[string]bool{"applied": true}, nil)
	}()

	var result struct {
		Applied bool `json:"applied"`
	}
	err := server.Call(ctx, "workspace/applyEdit", map[string]string{}, &result)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !result.Applied {
		t.Error("expected applied=true in result")
	}
}

func TestConn_CallPropagatesErrorResponse(t *testing.T) {
	server, client := testPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_, _ = server.Read(ctx)
	}()

	go func() {
		msg, err := client.Read(ctx)
		if err != nil {
			return
		}
		req, ok := msg.(*Request)
		if !ok {
			return
		}
		_ = client.Respond(req.ID, nil, NewError(CodeMethodNotFound, "unknown method"))
	}()

	err := server.Call(ctx, "window/showDocument", nil, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	rpcErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, expected *Error", err)
	}
	if rpcErr.Code != CodeMethodNotFound {
		t.Errorf("code = %d, expected %d", rpcErr.Code, CodeMethodNotFound)
	}
}

func TestConn_CallCancelled(t *testing.T) {
	server, client := testPair(t)

	// Drain the client side so the request write completes, but never answer.
	go func() {
		_, _ = client.Read(context.Background())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := server.Call(ctx, "workspace/applyEdit", nil, nil)
	if err != context.Canceled {
		t.Errorf("Call() error = %v, expected context.Canceled", err)
	}
}

func TestConn_RespondRequiresID(t *testing.T) {
	server, _ := testPair(t)
	if err := server.Respond(nil, "x", nil); err == nil {
		t.Error("expected error responding without an ID")
	}
	if err := server.Respond(json.RawMessage("null"), "x", nil); err == nil {
		t.Error("expected error responding to a null ID")
	}
}

func TestConn_CallAfterClose(t *testing.T) {
	server, _ := testPair(t)
	server.Close()

	err := server.Call(context.Background(), "anything", nil, nil)
	if err != ErrShutdown {
		t.Errorf("Call() after close = %v, expected ErrShutdown", err)
	}
	if err := server.Notify(context.Background(), "anything", nil); err != ErrShutdown {
		t.Errorf("Notify() after close = %v, expected ErrShutdown", err)
	}
}
