package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrShutdown is returned by Call and Notify after the connection closes.
var ErrShutdown = errors.New("jsonrpc: connection is shut down")

// Conn manages JSON-RPC traffic over a Stream. Reads happen on the caller's
// loop via Read; writes are serialized internally. Responses to requests this
// side issued via Call never surface from Read; they are correlated with the
// pending call and consumed internally.
type Conn struct {
	stream *Stream

	writeMu sync.Mutex

	nextID  atomic.Int64
	pending map[int64]chan *Response
	pendMu  sync.Mutex

	closed atomic.Bool
	done   chan struct{}
}

// NewConn creates a connection over the given stream.
func NewConn(stream *Stream) *Conn {
	return &Conn{
		stream:  stream,
		pending: make(map[int64]chan *Response),
		done:    make(chan struct{}),
	}
}

// Read returns the next incoming request or notification. Responses to our
// own outgoing calls are delivered to their waiters and skipped here.
// It blocks until a message arrives, the stream fails, or ctx is cancelled
// before the read begins.
func (c *Conn) Read(ctx context.Context) (any, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		payload, err := c.stream.ReadMessage()
		if err != nil {
			c.shutdown()
			return nil, err
		}

		var base struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.Unmarshal(payload, &base); err != nil {
			return nil, Errorf(CodeParseError, "parsing message: %v", err)
		}

		if base.Method != "" {
			if hasID(base.ID) {
				var req Request
				if err := json.Unmarshal(payload, &req); err != nil {
					return nil, Errorf(CodeParseError, "parsing request: %v", err)
				}
				return &req, nil
			}
			var ntf Notification
			if err := json.Unmarshal(payload, &ntf); err != nil {
				return nil, Errorf(CodeParseError, "parsing notification: %v", err)
			}
			return &ntf, nil
		}

		if hasID(base.ID) {
			var resp Response
			if err := json.Unmarshal(payload, &resp); err != nil {
				return nil, Errorf(CodeParseError, "parsing response: %v", err)
			}
			c.deliver(&resp)
			continue
		}

		return nil, NewError(CodeInvalidRequest, "message is not a request, notification, or response")
	}
}

// Call sends a request to the peer and waits for its response, unmarshaling
// the result into result when it is non-nil.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	if c.closed.Load() {
		return ErrShutdown
	}

	rawParams, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("marshaling params for %s: %w", method, err)
	}

	id := c.nextID.Add(1)
	ch := make(chan *Response, 1)

	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()

	defer func() {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
	}()

	req := &Request{
		JSONRPC: Version,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  rawParams,
	}
	if err := c.write(req); err != nil {
		return fmt.Errorf("sending %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrShutdown
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 && string(resp.Result) != "null" {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshaling %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify sends a notification to the peer.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if c.closed.Load() {
		return ErrShutdown
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	rawParams, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("marshaling params for %s: %w", method, err)
	}

	return c.write(&Notification{
		JSONRPC: Version,
		Method:  method,
		Params:  rawParams,
	})
}

// Respond sends a response for an incoming request. Exactly one of result
// and respErr should be meaningful; with neither, LSP expects result null.
func (c *Conn) Respond(id json.RawMessage, result any, respErr *Error) error {
	if !hasID(id) {
		return errors.New("jsonrpc: response requires a request ID")
	}

	resp := &Response{
		JSONRPC: Version,
		ID:      id,
	}

	switch {
	case respErr != nil:
		resp.Error = respErr
	case result != nil:
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = Errorf(CodeInternalError, "marshaling result: %v", err)
		} else {
			resp.Result = raw
		}
	default:
		resp.Result = json.RawMessage("null")
	}

	return c.write(resp)
}

// Close closes the connection and the underlying stream.
func (c *Conn) Close() error {
	if !c.shutdown() {
		return nil
	}
	return c.stream.Close()
}

// shutdown marks the connection closed and releases pending callers.
// Returns false if already shut down.
func (c *Conn) shutdown() bool {
	if c.closed.Swap(true) {
		return false
	}
	close(c.done)

	c.pendMu.Lock()
	c.pending = make(map[int64]chan *Response)
	c.pendMu.Unlock()
	return true
}

// deliver routes a response to the pending call that issued it.
func (c *Conn) deliver(resp *Response) {
	id, err := strconv.ParseInt(string(resp.ID), 10, 64)
	if err != nil {
		return // not an ID we issued
	}

	c.pendMu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.pendMu.Unlock()

	if ok {
		ch <- resp
	}
}

// write serializes a message onto the stream.
func (c *Conn) write(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return io.ErrClosedPipe
	}
	return c.stream.WriteMessage(msg)
}

// hasID reports whether a raw ID field carries a usable ID.
func hasID(id json.RawMessage) bool {
	return len(id) > 0 && string(id) != "null"
}

// marshalParams marshals params, passing raw messages through unchanged.
func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}
