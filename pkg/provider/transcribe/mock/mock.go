// Package mock provides a test double for the transcribe.Client interface.
//
// Script per-call behaviour with the Queue field, or set Result/Err for a
// uniform response. TranscribeFunc overrides everything when set.
package mock

import (
	"context"
	"sync"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
)

// Response scripts the outcome of a single Transcribe call.
type Response struct {
	Result transcribe.Result
	Err    error
}

// Client is a mock implementation of transcribe.Client.
type Client struct {
	mu sync.Mutex

	// TranscribeFunc, when non-nil, handles every call after it is recorded.
	TranscribeFunc func(ctx context.Context, req transcribe.Request) (transcribe.Result, error)

	// Queue scripts responses in call order. Once exhausted, Result/Err apply.
	Queue []Response

	// Result is the uniform response once Queue is exhausted.
	Result transcribe.Result

	// Err, if non-nil, is returned once Queue is exhausted.
	Err error

	// Calls records every request in order.
	Calls []transcribe.Request
}

// Compile-time assertion that Client satisfies transcribe.Client.
var _ transcribe.Client = (*Client)(nil)

// Transcribe records the call and returns the next scripted response.
func (c *Client) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, req)
	fn := c.TranscribeFunc
	var resp Response
	if len(c.Queue) > 0 {
		resp = c.Queue[0]
		c.Queue = c.Queue[1:]
	} else {
		resp = Response{Result: c.Result, Err: c.Err}
	}
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return transcribe.Result{}, err
	}
	return resp.Result, resp.Err
}

// CallCount returns the number of recorded calls. Thread-safe.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
}
