// Package mock provides a test double for the translate.Client interface.
//
// The default behaviour streams the Tokens slice and closes the channel.
// Set OpenErr to fail stream creation, or StreamErr to fail mid-stream after
// all tokens have been delivered. TokenDelay inserts artificial latency
// between tokens for concurrency tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
)

// Script describes the behaviour of a single StreamTranslation call.
type Script struct {
	// Tokens are delivered in order before the stream terminates.
	Tokens []string

	// OpenErr, if non-nil, is returned from StreamTranslation itself.
	OpenErr error

	// StreamErr, if non-nil, is delivered as the final token's Err after
	// Tokens are exhausted.
	StreamErr error
}

// Client is a mock implementation of translate.Client.
type Client struct {
	mu sync.Mutex

	// Queue scripts calls in order. Once exhausted, the Default script applies.
	Queue []Script

	// Default is the script used once Queue is exhausted.
	Default Script

	// TokenDelay is slept before each token delivery. Zero means no delay.
	TokenDelay time.Duration

	// Calls records every request in order.
	Calls []translate.Request
}

// Compile-time assertion that Client satisfies translate.Client.
var _ translate.Client = (*Client)(nil)

// StreamTranslation records the call and streams the next scripted response.
func (c *Client) StreamTranslation(ctx context.Context, req translate.Request) (<-chan translate.Token, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, req)
	script := c.Default
	if len(c.Queue) > 0 {
		script = c.Queue[0]
		c.Queue = c.Queue[1:]
	}
	delay := c.TokenDelay
	c.mu.Unlock()

	if script.OpenErr != nil {
		return nil, script.OpenErr
	}

	ch := make(chan translate.Token)
	go func() {
		defer close(ch)
		for _, tok := range script.Tokens {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- translate.Token{Text: tok}:
			case <-ctx.Done():
				return
			}
		}
		if script.StreamErr != nil {
			select {
			case ch <- translate.Token{Err: script.StreamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
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
