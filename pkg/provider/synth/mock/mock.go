// Package mock provides a test double for the synth.Client interface.
//
// VoiceErrs simulates per-voice failures (e.g., fault.VoiceUnavailable for a
// specific locale). Hold, when non-nil, blocks every call until the channel is
// closed or ctx is cancelled — used to exercise superseded-synthesis
// cancellation.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
)

// Client is a mock implementation of synth.Client.
type Client struct {
	mu sync.Mutex

	// Clip is returned on success. When Clip.Ref is empty a unique ref is
	// generated per call.
	Clip synth.Clip

	// Err, if non-nil, is returned by every call (after VoiceErrs lookup).
	Err error

	// VoiceErrs maps a request Voice to the error returned for it. Calls with
	// voices not present in the map succeed (subject to Err).
	VoiceErrs map[string]error

	// Hold, when non-nil, blocks each call until closed or ctx is cancelled.
	Hold chan struct{}

	// Calls records every request in order.
	Calls []synth.Request

	refSeq int
}

// Compile-time assertion that Client satisfies synth.Client.
var _ synth.Client = (*Client)(nil)

// Synthesize records the call and returns the scripted outcome.
func (c *Client) Synthesize(ctx context.Context, req synth.Request) (synth.Clip, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, req)
	hold := c.Hold
	voiceErr, hasVoiceErr := c.VoiceErrs[req.Voice]
	err := c.Err
	clip := c.Clip
	c.refSeq++
	seq := c.refSeq
	c.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return synth.Clip{}, fault.New(fault.Cancelled, "mock synth", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return synth.Clip{}, fault.New(fault.Cancelled, "mock synth", err)
	}
	if hasVoiceErr {
		return synth.Clip{}, voiceErr
	}
	if err != nil {
		return synth.Clip{}, err
	}
	if clip.Ref == "" {
		clip.Ref = fmt.Sprintf("mock-clip-%d.wav", seq)
	}
	return clip, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Voices returns the Voice field of every recorded call, in order.
func (c *Client) Voices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Calls))
	for i, call := range c.Calls {
		out[i] = call.Voice
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
	c.refSeq = 0
}
